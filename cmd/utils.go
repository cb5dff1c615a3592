package cmd

import (
	"audio-tagging/internal/config"
	"audio-tagging/internal/core"
	"audio-tagging/internal/database"
	"audio-tagging/internal/messaging"
	"audio-tagging/internal/storage"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
}

// SetupLogging installs the default slog logger. Output goes to stderr and,
// if logFile is set, to that file as well. The returned func closes the file.
func SetupLogging(level, logFile string) (func(), error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	closer := func() {}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), os.ModePerm); err != nil {
			return nil, fmt.Errorf("error creating directory for log file: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		out = io.MultiWriter(f, os.Stderr)
		closer = func() { f.Close() }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})))
	return closer, nil
}

func CreateDatabase(url string) *gorm.DB {
	db, err := database.NewDatabase(url)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

// CreateObjectStore returns the S3 store when an endpoint or credentials are
// configured, the local store when LOCAL_STORAGE_DIR is set, and nil
// otherwise.
func CreateObjectStore(cfg config.Config) storage.ObjectStore {
	switch {
	case cfg.S3.Endpoint != "" || cfg.S3.AccessKeyID != "":
		store, err := storage.NewS3ObjectStore(cfg.S3.ClientConfig())
		if err != nil {
			log.Fatalf("Failed to create S3 client: %v", err)
		}
		return store
	case cfg.LocalStorageDir != "":
		store, err := storage.NewLocalObjectStore(cfg.LocalStorageDir)
		if err != nil {
			log.Fatalf("Failed to create local storage: %v", err)
		}
		return store
	}
	return nil
}

func CreateResultBucket(ctx context.Context, store storage.ObjectStore, bucket string) {
	if store == nil || bucket == "" {
		return
	}
	if err := store.CreateBucket(ctx, bucket); err != nil {
		log.Fatalf("Failed to create result bucket %s: %v", bucket, err)
	}
}

// CreateInMemoryQueue builds the single process queue and re-enqueues the
// runs that were still queued when the process last stopped.
func CreateInMemoryQueue(db *gorm.DB) *messaging.InMemoryQueue {
	runs, err := database.ListRunsWithStatus(context.Background(), db, database.JobQueued)
	if err != nil {
		log.Fatalf("Failed to fetch queued runs from database: %v", err)
	}

	queue := messaging.NewInMemoryQueue()
	for _, run := range runs {
		if err := queue.PublishBatchTask(context.Background(), messaging.BatchTaskPayload{RunId: run.Id}); err != nil {
			log.Fatalf("Failed to publish batch task: %v", err)
		}
	}
	return queue
}

// FailInterruptedRuns marks runs left RUNNING by a previous process as failed.
// Their partial results stay in the ledger.
func FailInterruptedRuns(db *gorm.DB) {
	ctx := context.Background()
	runs, err := database.ListRunsWithStatus(ctx, db, database.JobRunning)
	if err != nil {
		log.Fatalf("Failed to fetch running runs from database: %v", err)
	}
	for _, run := range runs {
		slog.Warn("marking interrupted run as failed", "run_id", run.Id)
		database.SaveRunError(ctx, db, run.Id, "run interrupted by process restart")
		if err := database.UpdateRunStatus(ctx, db, run.Id, database.JobFailed); err != nil {
			log.Fatalf("Failed to update interrupted run %s: %v", run.Id, err)
		}
	}
}

// CreateClassifierLoader resolves the configured backend. The returned func
// releases process wide resources such as the onnx runtime.
func CreateClassifierLoader(cfg config.ClassifierEnv) (core.ClassifierLoader, func()) {
	typ, err := core.ParseClassifierType(cfg.Type)
	if err != nil {
		log.Fatalf("Invalid classifier type: %v", err)
	}

	cleanup := func() {}
	if typ == core.ClassifierTypeOnnx {
		if err := core.InitOnnxRuntime(cfg.OnnxRuntimeDylib); err != nil {
			log.Fatalf("could not init ONNX Runtime: %v", err)
		}
		cleanup = core.DestroyOnnxRuntime
	}

	loader, err := core.NewClassifierFactory(typ, cfg.LoaderOptions())
	if err != nil {
		log.Fatalf("Failed to create classifier factory: %v", err)
	}
	return loader, cleanup
}

func NewBatchRunner(cfg config.Config, loader core.ClassifierLoader) *core.BatchRunner {
	template, err := cfg.Classifier.Template()
	if err != nil {
		log.Fatalf("Failed to load classifier config: %v", err)
	}

	return &core.BatchRunner{
		Template:     template,
		Loader:       loader,
		Workers:      cfg.Workers,
		ResultBuffer: cfg.ResultBuffer,
		Progress:     cfg.Progress,
	}
}
