package core

import (
	"audio-tagging/internal/core/python"
	"audio-tagging/internal/core/sandbox"
	"audio-tagging/internal/core/types"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime/debug"
	"strings"
)

type ClassifierType string

const (
	ClassifierTypePlugin ClassifierType = "plugin"
	ClassifierTypePython ClassifierType = "python"
	ClassifierTypeOnnx   ClassifierType = "onnx"
	ClassifierTypeRemote ClassifierType = "remote"
	ClassifierTypeEnergy ClassifierType = "energy"
)

var (
	ErrInvalidAudio          = errors.New("invalid audio input")
	ErrResourceExhausted     = errors.New("resource exhausted")
	ErrUnsupportedClassifier = errors.New("unsupported classifier type")
)

// Classifier tags a single audio file described by cfg.AudioPath. A
// Classifier is used by one worker at a time.
type Classifier interface {
	Classify(ctx context.Context, cfg types.ClassifierConfig) (types.Prediction, error)

	Release()
}

type ClassifierLoader func() (Classifier, error)

type LoaderOptions struct {
	PythonExecutable string
	PythonScript     string
	PluginBinary     string
	PluginBackend    string
	OnnxModelPath    string
	LabelsPath       string
	RemoteURL        string
	TopK             int
	UseAccelerator   bool
}

func ParseClassifierType(s string) (ClassifierType, error) {
	switch ClassifierType(strings.ToLower(strings.TrimSpace(s))) {
	case ClassifierTypePlugin:
		return ClassifierTypePlugin, nil
	case ClassifierTypePython:
		return ClassifierTypePython, nil
	case ClassifierTypeOnnx:
		return ClassifierTypeOnnx, nil
	case ClassifierTypeRemote:
		return ClassifierTypeRemote, nil
	case ClassifierTypeEnergy:
		return ClassifierTypeEnergy, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedClassifier, s)
}

func NewClassifierLoaders(opts LoaderOptions) map[ClassifierType]ClassifierLoader {
	return map[ClassifierType]ClassifierLoader{
		ClassifierTypePlugin: func() (Classifier, error) {
			return sandbox.LoadPluginClassifier(opts.PluginBinary, opts.PluginBackend)
		},
		ClassifierTypePython: func() (Classifier, error) {
			return python.NewScriptClassifier(opts.PythonExecutable, opts.PythonScript, opts.TopK)
		},
		ClassifierTypeOnnx: func() (Classifier, error) {
			return LoadOnnxClassifier(opts.OnnxModelPath, opts.LabelsPath, opts.TopK, opts.UseAccelerator)
		},
		ClassifierTypeRemote: func() (Classifier, error) {
			return NewRemoteClassifier(opts.RemoteURL, opts.TopK)
		},
		ClassifierTypeEnergy: func() (Classifier, error) {
			return NewEnergyClassifier(), nil
		},
	}
}

// NewClassifierFactory returns the loader for typ. Every worker calls it to
// get a classifier of its own.
func NewClassifierFactory(typ ClassifierType, opts LoaderOptions) (ClassifierLoader, error) {
	loader, ok := NewClassifierLoaders(opts)[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedClassifier, typ)
	}
	return loader, nil
}

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidInput
	KindResourceExhausted
	KindModelError
	KindCancelled
	KindCrashed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid_input"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindModelError:
		return "model_error"
	case KindCancelled:
		return "cancelled"
	case KindCrashed:
		return "crashed"
	}
	return "unknown"
}

// Outcome is the result of one classification call: either a prediction or
// an error together with its kind.
type Outcome struct {
	Prediction types.Prediction
	Err        error
	Kind       ErrorKind
}

func (o Outcome) Ok() bool {
	return o.Err == nil
}

func (o Outcome) Record(path string) ResultRecord {
	if o.Ok() {
		return SuccessRecord(path, o.Prediction.Summary())
	}
	return FailedRecord(path, o.Err)
}

// InvokeClassifier runs c on cfg and folds both returned errors and panics
// into an Outcome.
func InvokeClassifier(ctx context.Context, c Classifier, cfg types.ClassifierConfig) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classifier panicked", "path", cfg.AudioPath, "panic", r, "stack", string(debug.Stack()))
			out = Outcome{
				Err:  fmt.Errorf("classifier panicked: %v", r),
				Kind: KindCrashed,
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Outcome{Err: err, Kind: KindCancelled}
	}

	pred, err := c.Classify(ctx, cfg)
	if err != nil {
		return Outcome{Err: err, Kind: classifyError(err)}
	}
	return Outcome{Prediction: pred}
}

func classifyError(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrInvalidAudio), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return KindInvalidInput
	case errors.Is(err, ErrResourceExhausted):
		return KindResourceExhausted
	case errors.Is(err, sandbox.ErrPluginExited):
		return KindCrashed
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "out of memory") || strings.Contains(msg, "resource exhausted") {
		return KindResourceExhausted
	}
	return KindModelError
}
