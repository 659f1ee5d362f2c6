package repository

import (
	"context"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles verification job data operations.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// GetByID retrieves a verification job by its external ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.VerificationJob, error) {
	var job domain.VerificationJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Create inserts a new verification job record. Used by the ingestion side
// and by tests; the healing orchestrator never creates jobs.
func (r *JobRepository) Create(ctx context.Context, job *domain.VerificationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// UpdateStatus annotates the job's verification status.
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.VerificationJob{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ApplyCorrections rewrites the corrected attribute values on the job record
// and marks it corrected. Called only at dispatch time for validated fixes;
// the per-job run lock serializes this with any other healing writer.
func (r *JobRepository) ApplyCorrections(ctx context.Context, id string, corrections map[string]domain.FieldValue) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.VerificationJob
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			return err
		}
		if job.Attributes == nil {
			job.Attributes = domain.AttributeMap{}
		}
		for field, value := range corrections {
			job.Attributes[field] = value
		}
		job.Status = domain.JobStatusCorrected
		return tx.Save(&job).Error
	})
}
