package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/api"
	"github.com/rpattn/accessmap/internal/auth"
	"github.com/rpattn/accessmap/internal/bootstrap"
	"github.com/rpattn/accessmap/internal/config"
	"github.com/rpattn/accessmap/internal/inference"
	"github.com/rpattn/accessmap/internal/ingestion"
	"github.com/rpattn/accessmap/internal/learning"
	"github.com/rpattn/accessmap/internal/logging"
	"github.com/rpattn/accessmap/internal/pipeline"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// A missing .env is fine; the environment and config.yaml still apply.
	_ = godotenv.Load()

	cfg, fromFile, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !fromFile {
		logger.Info("No config.yaml found, using defaults and env vars", zap.String("path", *configPath))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	staging, err := learning.NewStaging(cfg.Review.MaxSessions)
	if err != nil {
		return err
	}
	store := learning.NewStore(ctx, backends.Mappings, logger)
	ingest := ingestion.NewService(backends.IngestionLogs, logger, ingestion.Options{
		MaxSizeBytes:      cfg.Upload.MaxSizeBytes(),
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	})
	generator := inference.NewGenerator(logger)

	server := api.NewServer(api.Dependencies{
		Pipeline:      pipeline.New(ingest, generator, store, staging, logger),
		Ingestion:     ingest,
		Store:         store,
		Generator:     generator,
		Mappings:      backends.Mappings,
		Logger:        logger,
		IngestionLogs: backends.IngestionLogs,
		// Leave room for multipart framing around the file itself.
		MaxUploadBytes: cfg.Upload.MaxSizeBytes() + 1<<20,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", auth.ReviewerHeader},
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(server.Handler()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("learning_backend", cfg.Learning.Backend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("Server exited")
	return nil
}
