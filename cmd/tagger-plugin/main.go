package main

import (
	"audio-tagging/internal/core"
	"audio-tagging/internal/core/sandbox"
	"audio-tagging/plugin/shared"
	"context"
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-plugin"
)

// The plugin inherits the parent's environment, with the backend selector
// added by the parent.
type PluginConfig struct {
	Backend          string `env:"AUDIO_TAGGER_BACKEND" envDefault:"onnx"`
	PythonExecutable string `env:"PYTHON_EXECUTABLE" envDefault:"python3"`
	PythonScript     string `env:"PYTHON_SCRIPT" envDefault:"plugin/plugin-python/audio_tagging.py"`
	OnnxModelPath    string `env:"ONNX_MODEL_PATH" envDefault:"models/Cnn14.onnx"`
	OnnxRuntimeDylib string `env:"ONNX_RUNTIME_DYLIB" envDefault:"/usr/local/lib/libonnxruntime.so"`
	LabelsPath       string `env:"LABELS_CSV" envDefault:"models/class_labels_indices.csv"`
	TopK             int    `env:"TOP_K" envDefault:"10"`
	UseAccelerator   bool   `env:"USE_ACCELERATOR" envDefault:"false"`
}

type tagger struct {
	classifier core.Classifier
}

func (t *tagger) Tag(ctx context.Context, req shared.TagRequest) (shared.TagResponse, error) {
	pred, err := t.classifier.Classify(ctx, req.Config)
	if err != nil {
		return shared.TagResponse{}, err
	}
	return shared.TagResponse{Prediction: pred}, nil
}

func main() {
	// stdout is reserved for the go-plugin handshake
	log.SetFlags(0)

	var cfg PluginConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	typ, err := core.ParseClassifierType(cfg.Backend)
	if err != nil {
		log.Fatalf("invalid %s: %v", sandbox.BackendEnvVar, err)
	}
	if typ == core.ClassifierTypePlugin {
		log.Fatalf("%s cannot be %q", sandbox.BackendEnvVar, typ)
	}

	if typ == core.ClassifierTypeOnnx {
		if err := core.InitOnnxRuntime(cfg.OnnxRuntimeDylib); err != nil {
			log.Fatalf("could not init onnx runtime: %v", err)
		}
		defer core.DestroyOnnxRuntime()
	}

	loader, err := core.NewClassifierFactory(typ, core.LoaderOptions{
		PythonExecutable: cfg.PythonExecutable,
		PythonScript:     cfg.PythonScript,
		OnnxModelPath:    cfg.OnnxModelPath,
		LabelsPath:       cfg.LabelsPath,
		TopK:             cfg.TopK,
		UseAccelerator:   cfg.UseAccelerator,
	})
	if err != nil {
		log.Fatalf("error creating classifier factory: %v", err)
	}

	classifier, err := loader()
	if err != nil {
		log.Fatalf("error loading %s classifier: %v", typ, err)
	}
	defer classifier.Release()

	log.Printf("serving %s tagger", typ)

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: shared.Handshake,
		Plugins: map[string]plugin.Plugin{
			shared.TaggerPluginName: &shared.TaggerPlugin{Impl: &tagger{classifier: classifier}},
		},
	})
}
