package main

import (
	"audio-tagging/cmd"
	"audio-tagging/internal/config"
	"audio-tagging/internal/core"
	"audio-tagging/internal/database"
	"audio-tagging/internal/messaging"
	"audio-tagging/internal/storage"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

func main() {
	input := flag.String("input", "", "directory to scan for audio files, or s3://bucket/prefix")
	output := flag.String("output", "", "path of the CSV result log")
	workers := flag.Int("workers", 0, "number of workers, half the cores if 0")

	cmd.LoadEnvFile()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	if *input != "" {
		cfg.InputDir = *input
	}
	if *output != "" {
		cfg.OutputCSV = *output
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	closeLog, err := cmd.SetupLogging(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("batch failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	loader, cleanup := cmd.CreateClassifierLoader(cfg.Classifier)
	defer cleanup()

	runner := cmd.NewBatchRunner(cfg, loader)
	store := cmd.CreateObjectStore(cfg)

	// With a ledger the batch goes through the same task processor the
	// worker service uses, on an in-process queue.
	if cfg.DatabaseURL != "" {
		return runWithLedger(ctx, cfg, runner, store)
	}

	inputDir := cfg.InputDir
	if core.IsRemoteInput(inputDir) {
		if err := os.MkdirAll(cfg.StagingDir, os.ModePerm); err != nil {
			return fmt.Errorf("error creating staging directory: %w", err)
		}
		staged, err := os.MkdirTemp(cfg.StagingDir, "input-")
		if err != nil {
			return fmt.Errorf("error creating staging directory: %w", err)
		}
		defer os.RemoveAll(staged)

		if inputDir, err = core.StageInput(ctx, store, cfg.InputDir, staged); err != nil {
			return err
		}
	}

	summary, err := runner.Run(ctx, core.BatchRequest{InputDir: inputDir, OutputPath: cfg.OutputCSV})
	printSummary(summary)
	return err
}

func runWithLedger(ctx context.Context, cfg config.Config, runner *core.BatchRunner, store storage.ObjectStore) error {
	db := cmd.CreateDatabase(cfg.DatabaseURL)
	cmd.CreateResultBucket(ctx, store, cfg.ResultBucket)

	output, err := filepath.Abs(cfg.OutputCSV)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	run := database.BatchRun{
		InputDir:       cfg.InputDir,
		OutputPath:     output,
		ClassifierType: cfg.Classifier.Type,
		Workers:        cfg.Workers,
	}
	if err := database.CreateBatchRun(ctx, db, &run); err != nil {
		return err
	}
	slog.Info("created batch run", "run_id", run.Id)

	queue := messaging.NewInMemoryQueue()
	proc := core.NewTaskProcessor(db, store, queue, queue, runner, cfg.StagingDir, cfg.ResultBucket)
	defer proc.Stop()

	go func() {
		<-ctx.Done()
		proc.Stop()
	}()

	if err := queue.PublishBatchTask(ctx, messaging.BatchTaskPayload{RunId: run.Id}); err != nil {
		return err
	}
	proc.ProcessTask(<-queue.Tasks())

	finished, err := database.GetRun(context.Background(), db, run.Id)
	if err != nil {
		return err
	}
	printSummary(core.BatchSummary{
		InputDir:  finished.InputDir,
		LogPath:   finished.OutputPath,
		Total:     finished.TotalFileCount,
		Workers:   finished.Workers,
		Succeeded: finished.SucceededFileCount,
		Failed:    finished.FailedFileCount,
	})
	if finished.Status != database.JobCompleted {
		return fmt.Errorf("batch run %s finished with status %s", run.Id, finished.Status)
	}
	return nil
}

func printSummary(s core.BatchSummary) {
	fmt.Printf("input:     %s\n", s.InputDir)
	fmt.Printf("log:       %s\n", s.LogPath)
	fmt.Printf("files:     %d\n", s.Total)
	fmt.Printf("workers:   %d\n", s.Workers)
	fmt.Printf("succeeded: %d\n", s.Succeeded)
	fmt.Printf("failed:    %d\n", s.Failed)
	if s.Duration > 0 {
		fmt.Printf("duration:  %s\n", s.Duration.Round(1e6))
	}
}
