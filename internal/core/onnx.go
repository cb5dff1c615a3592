//go:build !windows

package core

import (
	"audio-tagging/internal/core/audio"
	"audio-tagging/internal/core/types"
	"context"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	onnxInputName  = "waveform"
	onnxOutputName = "clipwise_output"
)

var (
	initOnce sync.Once
	initErr  error
)

// InitOnnxRuntime loads the onnxruntime shared library. It must be called
// before any OnnxClassifier is loaded.
func InitOnnxRuntime(dylib string) error {
	initOnce.Do(func() {
		if dylib == "" {
			initErr = fmt.Errorf("onnxruntime shared library path is required")
			return
		}
		ort.SetSharedLibraryPath(dylib)
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

func DestroyOnnxRuntime() {
	if err := ort.DestroyEnvironment(); err != nil {
		slog.Error("error destroying onnx environment", "error", err)
	}
}

// OnnxClassifier runs an exported PANNs tagger. The model takes the raw
// waveform [1, samples] and returns clip level probabilities [1, classes].
type OnnxClassifier struct {
	session *ort.DynamicAdvancedSession
	labels  []string
	topK    int

	// Set when running on the accelerator.
	monitor *memoryMonitor
}

func LoadOnnxClassifier(modelPath, labelsPath string, topK int, useAccelerator bool) (*OnnxClassifier, error) {
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("label load error: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if useAccelerator {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("error creating cuda options: %w", err)
		}
		defer cudaOptions.Destroy()

		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, fmt.Errorf("%w: unable to enable cuda: %w", ErrResourceExhausted, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{onnxInputName},
		[]string{onnxOutputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	classifier := &OnnxClassifier{session: session, labels: labels, topK: topK}
	if useAccelerator {
		classifier.monitor = &memoryMonitor{}
	}
	return classifier, nil
}

func (m *OnnxClassifier) Classify(ctx context.Context, cfg types.ClassifierConfig) (types.Prediction, error) {
	clip, err := audio.DecodeFile(cfg.AudioPath)
	if err != nil {
		return types.Prediction{}, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}

	waveform := audio.Resample(clip.Samples, clip.SampleRate, cfg.SampleRate)
	if len(waveform) < cfg.WindowSize {
		return types.Prediction{}, fmt.Errorf("%w: clip has %d samples, need at least %d", ErrInvalidAudio, len(waveform), cfg.WindowSize)
	}

	inT, err := ort.NewTensor(ort.NewShape(1, int64(len(waveform))), waveform)
	if err != nil {
		return types.Prediction{}, err
	}
	defer inT.Destroy()

	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(m.labels))))
	if err != nil {
		return types.Prediction{}, err
	}
	defer outT.Destroy()

	if err := m.session.Run([]ort.Value{inT}, []ort.Value{outT}); err != nil {
		return types.Prediction{}, fmt.Errorf("session run error: %w", err)
	}
	if m.monitor != nil {
		m.monitor.observe(ctx)
	}

	scores := append([]float32(nil), outT.GetData()...)
	tags, err := types.TopTags(m.labels, scores, m.topK)
	if err != nil {
		return types.Prediction{}, err
	}

	return types.Prediction{Tags: tags, Labels: m.labels}, nil
}

func (m *OnnxClassifier) Release() {
	if m.session == nil {
		return
	}
	if err := m.session.Destroy(); err != nil {
		slog.Error("error destroying onnx session", "error", err)
	}
	m.session = nil
}
