package config

import (
	"audio-tagging/internal/core"
	"audio-tagging/internal/core/types"
	"audio-tagging/internal/storage"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// ClassifierEnv selects and configures the classifier backend.
type ClassifierEnv struct {
	Type             string `env:"CLASSIFIER_TYPE" envDefault:"plugin"`
	ConfigFile       string `env:"CLASSIFIER_CONFIG"`
	PythonExecutable string `env:"PYTHON_EXECUTABLE" envDefault:"python3"`
	PythonScript     string `env:"PYTHON_SCRIPT" envDefault:"plugin/plugin-python/audio_tagging.py"`
	PluginBinary     string `env:"PLUGIN_BINARY" envDefault:"./bin/tagger-plugin"`
	PluginBackend    string `env:"PLUGIN_BACKEND" envDefault:"onnx"`
	OnnxModelPath    string `env:"ONNX_MODEL_PATH" envDefault:"models/Cnn14.onnx"`
	OnnxRuntimeDylib string `env:"ONNX_RUNTIME_DYLIB"`
	LabelsPath       string `env:"LABELS_CSV" envDefault:"models/class_labels_indices.csv"`
	RemoteURL        string `env:"REMOTE_URL"`
	TopK             int    `env:"TOP_K" envDefault:"10"`
	UseAccelerator   bool   `env:"USE_ACCELERATOR" envDefault:"false"`
}

type S3Env struct {
	Endpoint        string `env:"S3_ENDPOINT_URL"`
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
}

type Config struct {
	InputDir     string `env:"INPUT_DIR"`
	OutputCSV    string `env:"OUTPUT_CSV" envDefault:"results.csv"`
	Workers      int    `env:"WORKERS" envDefault:"0"`
	ResultBuffer int    `env:"RESULT_BUFFER" envDefault:"0"`
	Progress     bool   `env:"PROGRESS" envDefault:"true"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// Empty disables the ledger for the batch command.
	DatabaseURL string `env:"DATABASE_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	// Finished logs are uploaded here when set. With S3_ENDPOINT_URL unset
	// and LOCAL_STORAGE_DIR set, buckets are directories on disk.
	ResultBucket    string `env:"RESULT_BUCKET"`
	LocalStorageDir string `env:"LOCAL_STORAGE_DIR"`
	StagingDir      string `env:"STAGING_DIR" envDefault:"./data/staging"`

	APIPort int `env:"API_PORT" envDefault:"8001"`

	Classifier ClassifierEnv
	S3         S3Env
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.S3.Endpoint != "" && (cfg.S3.AccessKeyID == "" || cfg.S3.SecretAccessKey == "") {
		slog.Warn("S3_ENDPOINT_URL is set, but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing")
	}

	return cfg, nil
}

// Validate checks the settings a batch needs before anything is started.
func (c Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input directory is required")
	}
	if !core.IsRemoteInput(c.InputDir) {
		info, err := os.Stat(c.InputDir)
		if err != nil {
			return fmt.Errorf("invalid input directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("input %s is not a directory", c.InputDir)
		}
	}
	if c.OutputCSV == "" {
		return fmt.Errorf("output path is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.ResultBuffer < 0 {
		return fmt.Errorf("result buffer must not be negative, got %d", c.ResultBuffer)
	}
	if _, err := core.ParseClassifierType(c.Classifier.Type); err != nil {
		return err
	}
	return nil
}

func (c S3Env) ClientConfig() storage.S3ClientConfig {
	return storage.S3ClientConfig{
		Endpoint:        c.Endpoint,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
	}
}

func (c ClassifierEnv) LoaderOptions() core.LoaderOptions {
	return core.LoaderOptions{
		PythonExecutable: c.PythonExecutable,
		PythonScript:     c.PythonScript,
		PluginBinary:     c.PluginBinary,
		PluginBackend:    c.PluginBackend,
		OnnxModelPath:    c.OnnxModelPath,
		LabelsPath:       c.LabelsPath,
		RemoteURL:        c.RemoteURL,
		TopK:             c.TopK,
		UseAccelerator:   c.UseAccelerator,
	}
}

// Template returns the per-batch classifier config: the defaults, overlaid
// with CLASSIFIER_CONFIG if set.
func (c ClassifierEnv) Template() (types.ClassifierConfig, error) {
	cfg := types.DefaultClassifierConfig()
	if c.ConfigFile != "" {
		var err error
		cfg, err = LoadClassifierConfig(c.ConfigFile)
		if err != nil {
			return types.ClassifierConfig{}, err
		}
	}
	if c.UseAccelerator {
		cfg.UseAccelerator = true
	}
	if err := cfg.Validate(); err != nil {
		return types.ClassifierConfig{}, fmt.Errorf("invalid classifier config: %w", err)
	}
	return cfg, nil
}

// LoadClassifierConfig reads a YAML file on top of the defaults, so the file
// only needs the keys it changes.
func LoadClassifierConfig(path string) (types.ClassifierConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ClassifierConfig{}, fmt.Errorf("error reading classifier config: %w", err)
	}

	cfg := types.DefaultClassifierConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return types.ClassifierConfig{}, fmt.Errorf("error parsing classifier config %s: %w", path, err)
	}
	if cfg.AudioPath != "" {
		slog.Warn("audio_path in classifier config is ignored", "path", path)
		cfg.AudioPath = ""
	}
	return cfg, nil
}
