package healing

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/config"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/repository"
)

// fakeRunner records triggered jobs and signals each fire on a channel.
type fakeRunner struct {
	mu    sync.Mutex
	jobs  []string
	fired chan string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fired: make(chan string, 8)}
}

func (f *fakeRunner) RunCompleteSelfHealing(ctx context.Context, jobID string) (*RunResult, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, jobID)
	f.mu.Unlock()
	f.fired <- jobID
	return &RunResult{JobID: jobID, Outcome: domain.OutcomeNoIssuesFound}, nil
}

func (f *fakeRunner) firedJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.jobs...)
}

func openScheduleRepo(t *testing.T) *repository.ScheduleRepository {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "schedules.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return repository.NewScheduleRepository(db)
}

func waitForFire(t *testing.T, runner *fakeRunner, want string) {
	t.Helper()
	select {
	case got := <-runner.fired:
		if got != want {
			t.Fatalf("expected fire for %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q to fire", want)
	}
}

// TestScheduleAfterDelayFires verifies a schedule persists, fires once the
// delay elapses, and leaves no pending row behind.
func TestScheduleAfterDelayFires(t *testing.T) {
	runner := newFakeRunner()
	schedules := openScheduleRepo(t)
	s := NewScheduler(runner, schedules)
	defer s.Stop()

	id, err := s.ScheduleAfterDelay(context.Background(), "job-deferred", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if id == "" {
		t.Fatal("schedule should return a non-empty ID")
	}

	waitForFire(t, runner, "job-deferred")

	pending, err := schedules.ListPending(context.Background())
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("fired schedule should not stay pending, got %d rows", len(pending))
	}
}

// TestCancelPreventsFire verifies a cancelled schedule never triggers a run.
func TestCancelPreventsFire(t *testing.T) {
	runner := newFakeRunner()
	schedules := openScheduleRepo(t)
	s := NewScheduler(runner, schedules)
	defer s.Stop()

	id, err := s.ScheduleAfterDelay(context.Background(), "job-cancelled", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if err := s.Cancel(context.Background(), id); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	select {
	case got := <-runner.fired:
		t.Fatalf("cancelled schedule fired for %q", got)
	case <-time.After(200 * time.Millisecond):
	}

	if err := s.Cancel(context.Background(), id); err != repository.ErrScheduleNotPending {
		t.Errorf("second cancel should report not pending, got %v", err)
	}
}

// TestRecoverPendingFiresOverdue verifies startup recovery: a pending row
// whose due time has passed fires immediately on a fresh scheduler.
func TestRecoverPendingFiresOverdue(t *testing.T) {
	runner := newFakeRunner()
	schedules := openScheduleRepo(t)

	overdue := &domain.ScheduledRun{
		ID:     "sched-overdue",
		JobID:  "job-restarted",
		DueAt:  time.Now().UTC().Add(-time.Minute),
		Status: domain.SchedulePending,
	}
	if err := schedules.Create(context.Background(), overdue); err != nil {
		t.Fatalf("failed to seed schedule: %v", err)
	}

	s := NewScheduler(runner, schedules)
	defer s.Stop()
	if err := s.RecoverPending(context.Background()); err != nil {
		t.Fatalf("recovery failed: %v", err)
	}

	waitForFire(t, runner, "job-restarted")
}

// TestStopDisarmsTimers verifies Stop prevents further fires while leaving
// pending rows recoverable.
// TestHasPendingTracksScheduleLifecycle verifies HasPending reflects a
// schedule from creation through cancellation, per job.
func TestHasPendingTracksScheduleLifecycle(t *testing.T) {
	runner := newFakeRunner()
	schedules := openScheduleRepo(t)
	s := NewScheduler(runner, schedules)
	defer s.Stop()

	ctx := context.Background()

	pending, err := s.HasPending(ctx, "job-waiting")
	if err != nil {
		t.Fatalf("HasPending failed: %v", err)
	}
	if pending {
		t.Error("no schedule exists yet, HasPending should be false")
	}

	id, err := s.ScheduleAfterDelay(ctx, "job-waiting", time.Hour)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	if pending, err = s.HasPending(ctx, "job-waiting"); err != nil || !pending {
		t.Errorf("expected pending schedule for job-waiting, got pending=%t err=%v", pending, err)
	}
	if pending, err = s.HasPending(ctx, "job-other"); err != nil || pending {
		t.Errorf("other jobs should not report pending, got pending=%t err=%v", pending, err)
	}

	if err := s.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if pending, err = s.HasPending(ctx, "job-waiting"); err != nil || pending {
		t.Errorf("cancelled schedule should not report pending, got pending=%t err=%v", pending, err)
	}
}

func TestStopDisarmsTimers(t *testing.T) {
	runner := newFakeRunner()
	schedules := openScheduleRepo(t)
	s := NewScheduler(runner, schedules)

	if _, err := s.ScheduleAfterDelay(context.Background(), "job-orphaned", 50*time.Millisecond); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	s.Stop()

	select {
	case got := <-runner.fired:
		t.Fatalf("stopped scheduler fired for %q", got)
	case <-time.After(200 * time.Millisecond):
	}

	pending, err := schedules.ListPending(context.Background())
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("stopped scheduler should leave the row pending for recovery, got %d", len(pending))
	}
	if len(runner.firedJobs()) != 0 {
		t.Errorf("no runs should have fired, got %v", runner.firedJobs())
	}
}
