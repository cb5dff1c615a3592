//go:build windows

package core

import (
	"audio-tagging/internal/core/types"
	"context"
	"errors"
)

var ErrOnnxNotSupportedOnWindows = errors.New("ONNX classifiers are not supported on Windows")

type OnnxClassifier struct{}

func InitOnnxRuntime(dylib string) error {
	return ErrOnnxNotSupportedOnWindows
}

func DestroyOnnxRuntime() {}

func LoadOnnxClassifier(modelPath, labelsPath string, topK int, useAccelerator bool) (*OnnxClassifier, error) {
	return nil, ErrOnnxNotSupportedOnWindows
}

func (m *OnnxClassifier) Classify(ctx context.Context, cfg types.ClassifierConfig) (types.Prediction, error) {
	return types.Prediction{}, ErrOnnxNotSupportedOnWindows
}

func (m *OnnxClassifier) Release() {}
