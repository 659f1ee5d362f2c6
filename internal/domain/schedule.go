package domain

import "time"

// ScheduleStatus is the lifecycle state of a deferred healing run.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleFired     ScheduleStatus = "fired"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// ScheduledRun is a durable deferred trigger for a self-healing run. Rows in
// pending state survive process restarts and are re-armed (or fired
// immediately when overdue) on startup.
type ScheduledRun struct {
	ID        string         `gorm:"type:text;primaryKey" json:"id"`
	JobID     string         `gorm:"type:text;not null;index:idx_schedules_job" json:"job_id"`
	DueAt     time.Time      `gorm:"index:idx_schedules_due" json:"due_at"`
	Status    ScheduleStatus `gorm:"type:text;index:idx_schedules_status;default:pending" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName returns the database table name for ScheduledRun.
func (ScheduledRun) TableName() string {
	return "scheduled_runs"
}
