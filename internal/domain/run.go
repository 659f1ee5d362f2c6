package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RunPhase is the state machine position of a self-healing run.
// Runs move strictly forward; Completed, Escalated and Error are terminal.
type RunPhase string

const (
	PhaseIdle           RunPhase = "idle"
	PhaseIssueDetection RunPhase = "issue_detection"
	PhaseDiagnosis      RunPhase = "diagnosis"
	PhaseFixValidation  RunPhase = "fix_validation"
	PhaseDispatch       RunPhase = "dispatch"
	PhaseCompleted      RunPhase = "completed"
	PhaseEscalated      RunPhase = "escalated"
	PhaseError          RunPhase = "error"
)

// Terminal reports whether the phase ends a run.
func (p RunPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseEscalated || p == PhaseError
}

// FinalOutcome summarizes how a run ended.
type FinalOutcome string

const (
	OutcomeSuccess            FinalOutcome = "success"
	OutcomeNoIssuesFound      FinalOutcome = "no_issues_found"
	OutcomeExhaustedEscalated FinalOutcome = "exhausted_escalated"
	OutcomeError              FinalOutcome = "error"
)

// AttemptOutcome is the result of one fix-validation iteration.
type AttemptOutcome string

const (
	AttemptValidated AttemptOutcome = "validated"
	AttemptRejected  AttemptOutcome = "rejected"
	AttemptExhausted AttemptOutcome = "exhausted"
)

// FixAttempt records one bounded iteration of applying a candidate value and
// asking both reviewers to approve it. Attempts are never mutated after
// creation; the loop either stops or creates the next attempt.
type FixAttempt struct {
	Field         string            `json:"field"`
	AttemptNumber int               `json:"attempt_number"`
	AppliedValue  string            `json:"applied_value"`
	Approvals     []ReviewerOpinion `json:"approvals"`
	Outcome       AttemptOutcome    `json:"outcome"`
}

// IssueList is a JSON column of detected issues.
type IssueList []Issue

// DiagnosisList is a JSON column of per-issue diagnoses.
type DiagnosisList []Diagnosis

// AttemptList is a JSON column of fix attempts across all issues, in order.
type AttemptList []FixAttempt

func jsonColumnValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonColumnScan(value, dest interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSON column")
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dest)
}

// Value implements driver.Valuer.
func (l IssueList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return jsonColumnValue(l)
}

// Scan implements sql.Scanner.
func (l *IssueList) Scan(value interface{}) error { return jsonColumnScan(value, l) }

// Value implements driver.Valuer.
func (l DiagnosisList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return jsonColumnValue(l)
}

// Scan implements sql.Scanner.
func (l *DiagnosisList) Scan(value interface{}) error { return jsonColumnScan(value, l) }

// Value implements driver.Valuer.
func (l AttemptList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return jsonColumnValue(l)
}

// Scan implements sql.Scanner.
func (l *AttemptList) Scan(value interface{}) error { return jsonColumnScan(value, l) }

// SelfHealingRun is the append-only ledger entity for one orchestrator
// invocation against one job. It is open while CompletedAt is nil and
// immutable once closed. At most one open run may exist per JobID; the
// ledger enforces that invariant at run creation.
type SelfHealingRun struct {
	ID                string        `gorm:"type:text;primaryKey" json:"id"`
	JobID             string        `gorm:"type:text;not null;index:idx_runs_job" json:"job_id"`
	Phase             RunPhase      `gorm:"type:text" json:"phase"`
	Issues            IssueList     `gorm:"type:text" json:"issues"`
	Diagnoses         DiagnosisList `gorm:"type:text" json:"diagnoses"`
	FixAttempts       AttemptList   `gorm:"type:text" json:"fix_attempts"`
	FinalOutcome      FinalOutcome  `gorm:"type:text" json:"final_outcome,omitempty"`
	ConsensusAchieved bool          `json:"consensus_achieved"`
	AttemptsTaken     int           `json:"attempts_taken"`
	CorrectionSent    bool          `json:"correction_sent"`
	EscalatedToHuman  bool          `json:"escalated_to_human"`
	FailureReason     string        `gorm:"type:text" json:"failure_reason,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// TableName returns the database table name for SelfHealingRun.
func (SelfHealingRun) TableName() string {
	return "self_healing_runs"
}

// Open reports whether the run has not yet reached a terminal state.
func (r *SelfHealingRun) Open() bool {
	return r.CompletedAt == nil
}

// HealingStatus is the externally visible status of a job's healing history.
type HealingStatus string

const (
	HealingStatusPending    HealingStatus = "pending"
	HealingStatusInProgress HealingStatus = "in_progress"
	HealingStatusCompleted  HealingStatus = "completed"
	HealingStatusFailed     HealingStatus = "failed"
	HealingStatusEscalated  HealingStatus = "escalated"
)

// Status derives the externally visible healing status from the run.
func (r *SelfHealingRun) Status() HealingStatus {
	if r.Open() {
		return HealingStatusInProgress
	}
	switch r.Phase {
	case PhaseEscalated:
		return HealingStatusEscalated
	case PhaseError:
		return HealingStatusFailed
	default:
		return HealingStatusCompleted
	}
}
