package main

import (
	"audio-tagging/cmd"
	"audio-tagging/internal/api"
	"audio-tagging/internal/config"
	"audio-tagging/internal/core"
	"audio-tagging/internal/messaging"
	"audio-tagging/internal/storage"
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

const localDatabase = "sqlite://data/ledger.db"

func createServer(db *gorm.DB, store storage.ObjectStore, publisher messaging.Publisher, cfg config.Config) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300, // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(db, store, publisher, cfg.ResultBucket, cfg.Classifier.Type)

	r.Route("/api/v1", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: r,
	}
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closeLog, err := cmd.SetupLogging(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer closeLog()

	// Without a broker the server runs batches itself on an in process queue.
	local := cfg.RabbitMQURL == ""
	if local && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = localDatabase
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL must be set when RABBITMQ_URL is set")
	}

	db := cmd.CreateDatabase(cfg.DatabaseURL)

	store := cmd.CreateObjectStore(cfg)
	cmd.CreateResultBucket(context.Background(), store, cfg.ResultBucket)

	var (
		publisher messaging.Publisher
		worker    *core.TaskProcessor
	)
	if local {
		cmd.FailInterruptedRuns(db)
		queue := cmd.CreateInMemoryQueue(db)
		publisher = queue

		loader, cleanup := cmd.CreateClassifierLoader(cfg.Classifier)
		defer cleanup()

		cfg.Progress = false
		runner := cmd.NewBatchRunner(cfg, loader)
		worker = core.NewTaskProcessor(db, store, queue, queue, runner, cfg.StagingDir, cfg.ResultBucket)
	} else {
		rabbit, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbit.Close()
		publisher = rabbit
	}

	server := createServer(db, store, publisher, cfg)

	workerDone := make(chan struct{})
	if worker != nil {
		slog.Info("starting in process worker")
		go func() {
			worker.Start()
			close(workerDone)
		}()
	} else {
		close(workerDone)
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		if worker != nil {
			slog.Info("shutting down worker")
			worker.Stop()
		}
	}()

	slog.Info("server started", "port", cfg.APIPort, "local", local)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.APIPort, err)
	}

	<-workerDone
	slog.Info("server stopped")
}
