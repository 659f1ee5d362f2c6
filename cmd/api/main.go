package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/api"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/api/middleware"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/archive"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/config"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/healing"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/repository"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger (rotation and multi-output from environment)
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	runRepo := repository.NewRunRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)

	// Initialize reviewer clients
	reviewerA := reviewer.NewHTTPClient(&reviewer.HTTPConfig{
		ReviewerID: "reviewer_a",
		Model:      cfg.Reviewers.A.Model,
		APIKey:     cfg.Reviewers.A.APIKey,
		BaseURL:    cfg.Reviewers.A.BaseURL,
		Timeout:    cfg.Healing.CallTimeout,
	})
	reviewerB := reviewer.NewHTTPClient(&reviewer.HTTPConfig{
		ReviewerID: "reviewer_b",
		Model:      cfg.Reviewers.B.Model,
		APIKey:     cfg.Reviewers.B.APIKey,
		BaseURL:    cfg.Reviewers.B.BaseURL,
		Timeout:    cfg.Healing.CallTimeout,
	})

	// Initialize correction payload archive (optional)
	var payloadArchive archive.Archive
	if cfg.Archive.Enabled {
		s3Archive, err := archive.NewS3Archive(&archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			PublicURL: cfg.Archive.PublicURL,
		})
		if err != nil {
			logger.Fatal("Failed to initialize payload archive: %v", err)
		}
		if err := s3Archive.EnsureBucket(context.Background()); err != nil {
			logger.Fatal("Failed to ensure archive bucket: %v", err)
		}
		payloadArchive = s3Archive
	}

	// Initialize correction dispatcher (optional)
	var dispatcher *healing.Dispatcher
	if cfg.CRM.Endpoint != "" {
		dispatcher = healing.NewDispatcher(&healing.DispatcherConfig{
			Endpoint:   cfg.CRM.Endpoint,
			APIKey:     cfg.CRM.APIKey,
			RetryCount: cfg.CRM.RetryCount,
			RetryWait:  cfg.CRM.RetryWait,
			Timeout:    cfg.CRM.Timeout,
		}, payloadArchive)
	} else {
		logger.Warn("No CRM endpoint configured, corrections will only be applied locally")
	}

	// Initialize orchestrator and scheduler
	orchestrator := healing.NewOrchestrator(healing.Config{
		Enabled:             cfg.Healing.Enabled,
		MaxAttempts:         cfg.Healing.MaxAttempts,
		ConfidenceMin:       cfg.Healing.ConfidenceMin,
		AgreementThreshold:  cfg.Healing.AgreementThreshold,
		DisagreementPenalty: cfg.Healing.DisagreementPenalty,
		Strategy:            healing.Strategy(cfg.Healing.Strategy),
		CallTimeout:         cfg.Healing.CallTimeout,
		ConfidenceFloor:     cfg.Healing.ConfidenceFloor,
		RequiredFields:      cfg.Healing.RequiredFields,
	}, jobRepo, runRepo, reviewerA, reviewerB, dispatcher)

	scheduler := healing.NewScheduler(orchestrator, scheduleRepo)

	// Re-arm schedules that survived a restart before serving traffic
	if err := scheduler.RecoverPending(context.Background()); err != nil {
		logger.Fatal("Failed to recover pending schedules: %v", err)
	}

	// Setup router
	router := api.SetupRouter(orchestrator, scheduler, runRepo, appLogger, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting API server: port=%d mode=%s healing_enabled=%t",
			cfg.Server.Port, cfg.Server.Mode, cfg.Healing.Enabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop timers first so no new runs start during shutdown
	scheduler.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
