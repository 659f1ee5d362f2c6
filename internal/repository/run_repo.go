package repository

import (
	"context"
	"errors"
	"time"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"gorm.io/gorm"
)

// ErrOpenRunExists is returned by Open when another self-healing run is
// still open for the same job ID.
var ErrOpenRunExists = errors.New("an open self-healing run already exists for this job")

// RunRepository is the durable run ledger. Runs are append-only: snapshots
// overwrite the same row as the run progresses, and the row becomes
// immutable once completed_at is set.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Open persists a new run after verifying no other run is open for the job.
// The check and insert run in one transaction; combined with the caller's
// per-job mutex this makes run creation an atomic check-and-set.
func (r *RunRepository) Open(ctx context.Context, run *domain.SelfHealingRun) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.SelfHealingRun{}).
			Where("job_id = ? AND completed_at IS NULL", run.JobID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrOpenRunExists
		}
		return tx.Create(run).Error
	})
}

// Save writes a snapshot of the run's current state.
func (r *RunRepository) Save(ctx context.Context, run *domain.SelfHealingRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// Close stamps the run's completion time and writes the final snapshot.
func (r *RunRepository) Close(ctx context.Context, run *domain.SelfHealingRun) error {
	if run.CompletedAt == nil {
		now := time.Now()
		run.CompletedAt = &now
	}
	return r.db.WithContext(ctx).Save(run).Error
}

// Latest retrieves the most recent run for a job.
func (r *RunRepository) Latest(ctx context.Context, jobID string) (*domain.SelfHealingRun, error) {
	var run domain.SelfHealingRun
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("started_at DESC").
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListByJob retrieves the run history for a job, newest first.
func (r *RunRepository) ListByJob(ctx context.Context, jobID string, limit int) ([]domain.SelfHealingRun, error) {
	var runs []domain.SelfHealingRun
	query := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// CountOpen counts runs that have not reached a terminal state.
func (r *RunRepository) CountOpen(ctx context.Context, jobID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.SelfHealingRun{}).
		Where("job_id = ? AND completed_at IS NULL", jobID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
