package healing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/repository"
)

// Runner triggers one healing run for a job. Satisfied by the orchestrator.
type Runner interface {
	RunCompleteSelfHealing(ctx context.Context, jobID string) (*RunResult, error)
}

// Scheduler arms deferred healing runs backed by durable schedule rows.
// Timers live in-process; on restart RecoverPending re-arms every pending
// row, firing overdue ones immediately.
type Scheduler struct {
	runner    Runner
	schedules *repository.ScheduleRepository

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
	closed bool
}

// NewScheduler creates a scheduler around the runner and schedule store.
func NewScheduler(runner Runner, schedules *repository.ScheduleRepository) *Scheduler {
	return &Scheduler{
		runner:    runner,
		schedules: schedules,
		timers:    make(map[string]*time.Timer),
	}
}

// ScheduleAfterDelay persists a deferred run for the job and arms its timer.
// The schedule row is written before the timer exists, so a crash between
// the two leaves a recoverable pending row rather than a lost trigger.
//
// Returns the schedule ID.
func (s *Scheduler) ScheduleAfterDelay(ctx context.Context, jobID string, delay time.Duration) (string, error) {
	sched := &domain.ScheduledRun{
		ID:     uuid.NewString(),
		JobID:  jobID,
		DueAt:  time.Now().UTC().Add(delay),
		Status: domain.SchedulePending,
	}
	if err := s.schedules.Create(ctx, sched); err != nil {
		return "", err
	}
	s.arm(sched.ID, sched.JobID, delay)
	logger.CtxInfo(ctx, "healing run scheduled: job=%s schedule=%s due_in=%s", jobID, sched.ID, delay)
	return sched.ID, nil
}

// Cancel stops a pending schedule. Already-fired or cancelled schedules are
// left untouched.
func (s *Scheduler) Cancel(ctx context.Context, scheduleID string) error {
	if err := s.schedules.MarkCancelled(ctx, scheduleID); err != nil {
		return err
	}
	s.mu.Lock()
	if t, ok := s.timers[scheduleID]; ok {
		t.Stop()
		delete(s.timers, scheduleID)
	}
	s.mu.Unlock()
	return nil
}

// HasPending reports whether a deferred run is still pending for the job.
// The status endpoint uses it to report a job as pending before its first
// run opens.
func (s *Scheduler) HasPending(ctx context.Context, jobID string) (bool, error) {
	n, err := s.schedules.CountPendingForJob(ctx, jobID)
	return n > 0, err
}

// RecoverPending re-arms all pending schedule rows. Overdue rows fire with
// zero delay. Called once at startup before the API begins serving.
func (s *Scheduler) RecoverPending(ctx context.Context) error {
	pending, err := s.schedules.ListPending(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, sched := range pending {
		delay := sched.DueAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		s.arm(sched.ID, sched.JobID, delay)
	}
	if len(pending) > 0 {
		logger.CtxInfo(ctx, "recovered pending schedules: count=%d", len(pending))
	}
	return nil
}

// Stop cancels all armed timers and waits for in-flight fires to finish.
// Pending rows stay in the store for the next startup's recovery.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) arm(scheduleID, jobID string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.timers[scheduleID] = time.AfterFunc(delay, func() {
		s.fire(scheduleID, jobID)
	})
}

func (s *Scheduler) fire(scheduleID, jobID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, scheduleID)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := logger.SetJobID(context.Background(), jobID)

	// Mark fired before running; the status update guards against a
	// concurrent cancel that lost the race.
	if err := s.schedules.MarkFired(ctx, scheduleID); err != nil {
		logger.CtxWarn(ctx, "schedule fire skipped: schedule=%s err=%v", scheduleID, err)
		return
	}

	_, err := s.runner.RunCompleteSelfHealing(ctx, jobID)
	switch {
	case err == nil:
	case errors.Is(err, ErrConcurrentRun):
		logger.CtxWarn(ctx, "scheduled run skipped, another run is open: job=%s", jobID)
	default:
		logger.CtxError(ctx, "scheduled run failed: job=%s err=%v", jobID, err)
	}
}
