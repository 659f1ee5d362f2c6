package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/config"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

func newRun(id, jobID string) *domain.SelfHealingRun {
	return &domain.SelfHealingRun{
		ID:        id,
		JobID:     jobID,
		Phase:     domain.PhaseIdle,
		StartedAt: time.Now().UTC(),
	}
}

// TestOpenRunInvariant verifies at most one open run per job: a second open
// while the first is uncompleted is rejected, and closing the first frees
// the slot.
func TestOpenRunInvariant(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	ctx := context.Background()

	first := newRun("run-1", "job-1")
	if err := repo.Open(ctx, first); err != nil {
		t.Fatalf("first open failed: %v", err)
	}

	if err := repo.Open(ctx, newRun("run-2", "job-1")); err != ErrOpenRunExists {
		t.Fatalf("expected ErrOpenRunExists, got %v", err)
	}

	// A different job is unaffected.
	if err := repo.Open(ctx, newRun("run-3", "job-2")); err != nil {
		t.Fatalf("open for other job failed: %v", err)
	}

	first.Phase = domain.PhaseCompleted
	first.FinalOutcome = domain.OutcomeSuccess
	if err := repo.Close(ctx, first); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := repo.Open(ctx, newRun("run-4", "job-1")); err != nil {
		t.Fatalf("open after close failed: %v", err)
	}
}

// TestRunRoundTrip verifies JSON-column fields survive a save and reload.
func TestRunRoundTrip(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	ctx := context.Background()

	run := newRun("run-rt", "job-rt")
	run.Phase = domain.PhaseFixValidation
	run.Issues = domain.IssueList{{
		Kind:        domain.IssueMissingField,
		Severity:    domain.SeverityHigh,
		Field:       "Brand",
		Description: `required field "Brand" is missing`,
	}}
	run.FixAttempts = domain.AttemptList{{
		Field:         "Brand",
		AttemptNumber: 1,
		AppliedValue:  "Kohler",
		Outcome:       domain.AttemptValidated,
		Approvals: []domain.ReviewerOpinion{
			{ReviewerID: domain.ReviewerA, Confidence: 91, Value: domain.OpinionValue{Kind: domain.ValueKindApproval, Approved: true}},
			{ReviewerID: domain.ReviewerB, Confidence: 89, Value: domain.OpinionValue{Kind: domain.ValueKindApproval, Approved: true}},
		},
	}}
	run.AttemptsTaken = 1

	if err := repo.Open(ctx, run); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	loaded, err := repo.Latest(ctx, "job-rt")
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if len(loaded.Issues) != 1 || loaded.Issues[0].Field != "Brand" {
		t.Errorf("issues did not round-trip: %+v", loaded.Issues)
	}
	if len(loaded.FixAttempts) != 1 {
		t.Fatalf("attempts did not round-trip: %+v", loaded.FixAttempts)
	}
	attempt := loaded.FixAttempts[0]
	if len(attempt.Approvals) != 2 || attempt.Approvals[1].Confidence != 89 {
		t.Errorf("approvals did not round-trip: %+v", attempt.Approvals)
	}
	if !loaded.Open() {
		t.Error("uncompleted run should report open")
	}
}

// TestListByJobOrdering verifies run history comes back newest first.
func TestListByJobOrdering(t *testing.T) {
	repo := NewRunRepository(openTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := newRun(id, "job-hist")
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		run.Phase = domain.PhaseCompleted
		if err := repo.Open(ctx, run); err != nil {
			t.Fatalf("open %s failed: %v", id, err)
		}
		if err := repo.Close(ctx, run); err != nil {
			t.Fatalf("close %s failed: %v", id, err)
		}
	}

	history, err := repo.ListByJob(ctx, "job-hist", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(history))
	}
	if history[0].ID != "run-c" || history[2].ID != "run-a" {
		t.Errorf("expected newest first, got %s..%s", history[0].ID, history[2].ID)
	}

	limited, err := repo.ListByJob(ctx, "job-hist", 2)
	if err != nil {
		t.Fatalf("limited list failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit of 2, got %d", len(limited))
	}
}
