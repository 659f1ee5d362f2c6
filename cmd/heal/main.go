package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/archive"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/config"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/healing"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/repository"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

// One-shot healing runner for operators: runs the full pipeline against a
// single job and exits. Exit code 0 for success or a clean no-issues run,
// 2 for an escalated or errored run, 1 for a rejected trigger.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "catalog-verification-heal",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	jobID := flag.String("job", "", "Verification job ID to heal")
	configPath := flag.String("config", "", "Path to config file")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall run timeout")
	flag.Parse()

	if *jobID == "" {
		appLogger.Fatal("Flag -job is required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	jobRepo := repository.NewJobRepository(db)
	runRepo := repository.NewRunRepository(db)

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
			appLogger.WithError(err).Fatal("Failed to initialize payload archive")
		}
		payloadArchive = s3Archive
	}

	var dispatcher *healing.Dispatcher
	if cfg.CRM.Endpoint != "" {
		dispatcher = healing.NewDispatcher(&healing.DispatcherConfig{
			Endpoint:   cfg.CRM.Endpoint,
			APIKey:     cfg.CRM.APIKey,
			RetryCount: cfg.CRM.RetryCount,
			RetryWait:  cfg.CRM.RetryWait,
			Timeout:    cfg.CRM.Timeout,
		}, payloadArchive)
	}

	orchestrator := healing.NewOrchestrator(healing.Config{
		Enabled:             true, // operator invocation overrides the feature flag
		MaxAttempts:         cfg.Healing.MaxAttempts,
		ConfidenceMin:       cfg.Healing.ConfidenceMin,
		AgreementThreshold:  cfg.Healing.AgreementThreshold,
		DisagreementPenalty: cfg.Healing.DisagreementPenalty,
		Strategy:            healing.Strategy(cfg.Healing.Strategy),
		CallTimeout:         cfg.Healing.CallTimeout,
		ConfidenceFloor:     cfg.Healing.ConfidenceFloor,
		RequiredFields:      cfg.Healing.RequiredFields,
	}, jobRepo, runRepo, reviewerA, reviewerB, dispatcher)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := orchestrator.RunCompleteSelfHealing(ctx, *jobID)
	if err != nil {
		appLogger.WithError(err).Error("Healing run rejected")
		os.Exit(1)
	}

	appLogger.WithFields(logger.Fields{
		"run_id":          result.RunID,
		"outcome":         result.Outcome,
		"issues_found":    len(result.Issues),
		"attempts_taken":  len(result.Attempts),
		"correction_sent": result.CorrectionSent,
		"escalated":       result.Escalated,
	}).Info("Healing run finished")

	if result.Escalated || result.FailureReason != "" {
		os.Exit(2)
	}
}
