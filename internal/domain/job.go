package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the verification state of a product record.
// Values include JobStatusPending, JobStatusVerified, JobStatusCorrected,
// and JobStatusCrashed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusVerified  JobStatus = "verified"
	JobStatusCorrected JobStatus = "corrected"
	JobStatusCrashed   JobStatus = "crashed"
)

// FieldValue is one verified attribute value with its per-field confidence
// and provenance. Sources maps an upstream source name to the value that
// source reported; disagreement between sources marks the field inconsistent.
type FieldValue struct {
	Value      string            `json:"value"`
	Confidence int               `json:"confidence"`
	Sources    map[string]string `json:"sources,omitempty"`
}

// AttributeMap stores the verification result (field name -> FieldValue)
// as a JSON column.
type AttributeMap map[string]FieldValue

// Value implements the driver.Valuer interface for database serialization.
func (m AttributeMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *AttributeMap) Scan(value interface{}) error {
	if value == nil {
		*m = AttributeMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan AttributeMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// VerificationJob is a completed product verification owned by the upstream
// ingestion pipeline. The healing orchestrator reads it and annotates its
// status; attribute values are only rewritten through an accepted fix at
// dispatch time.
type VerificationJob struct {
	ID         string       `gorm:"type:text;primaryKey" json:"id"`
	Status     JobStatus    `gorm:"type:text;index:idx_jobs_status;default:pending" json:"status"`
	Attributes AttributeMap `gorm:"type:text" json:"attributes"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// TableName returns the database table name for VerificationJob.
func (VerificationJob) TableName() string {
	return "verification_jobs"
}
