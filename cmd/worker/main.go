package main

import (
	"audio-tagging/cmd"
	"audio-tagging/internal/config"
	"audio-tagging/internal/core"
	"audio-tagging/internal/messaging"
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DatabaseURL == "" || cfg.RabbitMQURL == "" {
		log.Fatalf("DATABASE_URL and RABBITMQ_URL must be set")
	}

	closeLog, err := cmd.SetupLogging(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer closeLog()

	db := cmd.CreateDatabase(cfg.DatabaseURL)

	store := cmd.CreateObjectStore(cfg)
	cmd.CreateResultBucket(context.Background(), store, cfg.ResultBucket)

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL, messaging.BatchQueue)
	if err != nil {
		log.Fatalf("Failed to start RabbitMQ consumer: %v", err)
	}

	loader, cleanup := cmd.CreateClassifierLoader(cfg.Classifier)
	defer cleanup()

	// progress bars are for terminals, not for a service
	cfg.Progress = false
	runner := cmd.NewBatchRunner(cfg, loader)

	proc := core.NewTaskProcessor(db, store, publisher, receiver, runner, cfg.StagingDir, cfg.ResultBucket)

	done := make(chan struct{})
	go func() {
		proc.Start()
		close(done)
	}()

	slog.Info("worker started, waiting for batch tasks")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received, stopping worker")
	proc.Stop()
	<-done

	log.Println("Worker process stopped.")
}
