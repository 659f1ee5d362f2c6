package repository

import (
	"context"
	"errors"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"gorm.io/gorm"
)

// ErrScheduleNotPending is returned when a status transition targets a
// schedule that is no longer pending.
var ErrScheduleNotPending = errors.New("scheduled run is not pending")

// ScheduleRepository persists deferred healing triggers so pending schedules
// can be recovered after a process restart.
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a new scheduled run.
func (r *ScheduleRepository) Create(ctx context.Context, s *domain.ScheduledRun) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// MarkFired transitions a pending schedule to fired. Returns
// ErrScheduleNotPending when the schedule was already fired or cancelled;
// the scheduler uses that to lose fire/cancel races cleanly.
func (r *ScheduleRepository) MarkFired(ctx context.Context, id string) error {
	return r.markFromPending(ctx, id, domain.ScheduleFired)
}

// MarkCancelled transitions a pending schedule to cancelled.
func (r *ScheduleRepository) MarkCancelled(ctx context.Context, id string) error {
	return r.markFromPending(ctx, id, domain.ScheduleCancelled)
}

func (r *ScheduleRepository) markFromPending(ctx context.Context, id string, to domain.ScheduleStatus) error {
	res := r.db.WithContext(ctx).
		Model(&domain.ScheduledRun{}).
		Where("id = ? AND status = ?", id, domain.SchedulePending).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrScheduleNotPending
	}
	return nil
}

// CountPendingForJob reports how many pending schedules target the job.
func (r *ScheduleRepository) CountPendingForJob(ctx context.Context, jobID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.ScheduledRun{}).
		Where("job_id = ? AND status = ?", jobID, domain.SchedulePending).
		Count(&n).Error
	return n, err
}

// ListPending retrieves all schedules that have not been fired or cancelled,
// soonest first.
func (r *ScheduleRepository) ListPending(ctx context.Context) ([]domain.ScheduledRun, error) {
	var schedules []domain.ScheduledRun
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.SchedulePending).
		Order("due_at ASC").
		Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}
