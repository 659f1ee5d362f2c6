package healing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/topmcon/Catalog-Verification-API-sub004/internal/domain"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/lock"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/logger"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/repository"
	"github.com/topmcon/Catalog-Verification-API-sub004/internal/reviewer"
)

// Config holds the orchestrator's tunables. Thresholds are percentages in
// the 0-100 range.
type Config struct {
	Enabled             bool
	MaxAttempts         int
	ConfidenceMin       int
	AgreementThreshold  int
	DisagreementPenalty float64
	Strategy            Strategy
	CallTimeout         time.Duration
	ConfidenceFloor     int
	RequiredFields      []string
}

// RunResult is the in-memory summary of one completed orchestrator
// invocation. The authoritative record is the ledger row; the result exists
// so callers get the outcome without a read-back.
type RunResult struct {
	RunID          string
	JobID          string
	Phase          domain.RunPhase
	Outcome        domain.FinalOutcome
	Issues         []domain.Issue
	Diagnoses      []domain.Diagnosis
	Attempts       []domain.FixAttempt
	CorrectionSent bool
	Escalated      bool
	FailureReason  string
	// LedgerErrors collects snapshot writes that failed mid-run. They never
	// abort the run; callers that care about audit completeness check here.
	LedgerErrors []error
}

// Orchestrator drives the self-healing state machine for verification jobs:
// issue detection, dual-reviewer diagnosis, bounded fix validation, and
// correction dispatch, with every transition snapshotted to the run ledger.
type Orchestrator struct {
	cfg        Config
	jobs       *repository.JobRepository
	runs       *repository.RunRepository
	detector   *Detector
	engine     *Engine
	validator  *Validator
	dispatcher *Dispatcher
	locks      *lock.MutexMap
}

// NewOrchestrator wires the healing pipeline. The dispatcher may be nil when
// no CRM endpoint is configured; validated fixes are then applied locally
// without an outbound correction.
func NewOrchestrator(cfg Config, jobs *repository.JobRepository, runs *repository.RunRepository, a, b reviewer.Client, dispatcher *Dispatcher) *Orchestrator {
	policy := &Policy{
		Strategy:            cfg.Strategy,
		AgreementThreshold:  cfg.AgreementThreshold,
		DisagreementPenalty: cfg.DisagreementPenalty,
		ConfidenceMin:       cfg.ConfidenceMin,
	}
	return &Orchestrator{
		cfg:  cfg,
		jobs: jobs,
		runs: runs,
		detector: &Detector{
			RequiredFields:  cfg.RequiredFields,
			ConfidenceFloor: cfg.ConfidenceFloor,
		},
		engine: &Engine{
			ReviewerA:   a,
			ReviewerB:   b,
			Policy:      policy,
			CallTimeout: cfg.CallTimeout,
		},
		validator: &Validator{
			ReviewerA:   a,
			ReviewerB:   b,
			Policy:      policy,
			MaxAttempts: cfg.MaxAttempts,
			CallTimeout: cfg.CallTimeout,
		},
		dispatcher: dispatcher,
		locks:      lock.NewMutexMap(),
	}
}

// RunCompleteSelfHealing executes one full healing run against the job.
//
// A non-nil error is returned only when the trigger itself is rejected
// (healing disabled, a run already open, job unloadable); every accepted
// trigger produces a ledger row and a result, including runs that end in
// the escalated or error phase.
func (o *Orchestrator) RunCompleteSelfHealing(ctx context.Context, jobID string) (*RunResult, error) {
	if !o.cfg.Enabled {
		return nil, ErrHealingDisabled
	}

	// Serialize healing per job in-process; the ledger's open-run check
	// guards against other processes.
	o.locks.Lock(jobID)
	defer o.locks.Unlock(jobID)

	run := &domain.SelfHealingRun{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Phase:     domain.PhaseIdle,
		StartedAt: time.Now().UTC(),
	}
	if err := o.runs.Open(ctx, run); err != nil {
		if err == repository.ErrOpenRunExists {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrConcurrentRun)
		}
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}

	ctx = logger.SetJobID(ctx, jobID)
	ctx = logger.SetRunID(ctx, run.ID)
	logger.CtxInfo(ctx, "self-healing run started")

	result := &RunResult{RunID: run.ID, JobID: jobID}

	o.transition(ctx, run, result, domain.PhaseIssueDetection)
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		o.fail(ctx, run, result, fmt.Sprintf("load job: %v", err))
		return result, fmt.Errorf("job %s: %w: %v", jobID, ErrJobUnloadable, err)
	}
	// A record whose verification never ran has nothing to heal from.
	if job.Status == domain.JobStatusPending {
		o.fail(ctx, run, result, fmt.Sprintf("job status %q is not healable", job.Status))
		return result, fmt.Errorf("job %s: %w: status %s", jobID, ErrInvalidJobState, job.Status)
	}

	issues := o.detector.Detect(job)
	run.Issues = issues
	result.Issues = issues
	logger.CtxInfo(ctx, "issue detection complete: count=%d", len(issues))

	if len(issues) == 0 {
		o.finish(ctx, run, result, domain.PhaseCompleted, domain.OutcomeNoIssuesFound)
		return result, nil
	}

	o.transition(ctx, run, result, domain.PhaseDiagnosis)
	allConsensus := true
	for _, issue := range issues {
		d := o.engine.Diagnose(ctx, job, issue)
		run.Diagnoses = append(run.Diagnoses, d)
		result.Diagnoses = append(result.Diagnoses, d)
		if !d.ConsensusAchieved {
			allConsensus = false
		}
		o.snapshot(ctx, run, result)
	}
	run.ConsensusAchieved = allConsensus

	o.transition(ctx, run, result, domain.PhaseFixValidation)
	corrections := make(map[string]domain.FieldValue)
	escalate := false
	for _, d := range result.Diagnoses {
		if !d.Actionable {
			escalate = true
			continue
		}
		vr := o.validator.Validate(ctx, job, d)
		run.FixAttempts = append(run.FixAttempts, vr.Attempts...)
		result.Attempts = append(result.Attempts, vr.Attempts...)
		run.AttemptsTaken += len(vr.Attempts)
		o.snapshot(ctx, run, result)
		if !vr.Validated {
			escalate = true
			continue
		}
		fixed := domain.FieldValue{
			Value:      vr.FinalValue,
			Confidence: approvalConfidence(vr),
			Sources:    map[string]string{"self_healing": vr.FinalValue},
		}
		corrections[d.Issue.Field] = fixed
		// Later prompts in this run see the already-corrected value.
		if job.Attributes == nil {
			job.Attributes = domain.AttributeMap{}
		}
		job.Attributes[d.Issue.Field] = fixed
	}

	// Dispatch requires every issue to have validated; a partially healed
	// record goes to a human instead of the CRM.
	if len(corrections) > 0 && !escalate {
		o.transition(ctx, run, result, domain.PhaseDispatch)
		if err := o.dispatch(ctx, run, result, jobID, corrections); err != nil {
			result.FailureReason = err.Error()
			escalate = true
		}
	}

	if escalate {
		run.EscalatedToHuman = true
		result.Escalated = true
		o.finish(ctx, run, result, domain.PhaseEscalated, domain.OutcomeExhaustedEscalated)
		return result, nil
	}
	o.finish(ctx, run, result, domain.PhaseCompleted, domain.OutcomeSuccess)
	return result, nil
}

// dispatch sends the corrections outbound and applies them to the local
// record. The local write happens only after the CRM accepts the payload.
func (o *Orchestrator) dispatch(ctx context.Context, run *domain.SelfHealingRun, result *RunResult, jobID string, corrections map[string]domain.FieldValue) error {
	if o.dispatcher != nil {
		payload := &CorrectionPayload{
			JobID:       jobID,
			RunID:       run.ID,
			Corrections: make(map[string]string, len(corrections)),
			Source:      "self_healing_orchestrator",
		}
		for field, fv := range corrections {
			payload.Corrections[field] = fv.Value
		}
		res := o.dispatcher.Dispatch(ctx, payload)
		if !res.Sent {
			return res.Err
		}
		run.CorrectionSent = true
		result.CorrectionSent = true
	}

	if err := o.jobs.ApplyCorrections(ctx, jobID, corrections); err != nil {
		return fmt.Errorf("apply corrections: %w", err)
	}
	return nil
}

// Status returns the most recent run for the job, open or closed.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*domain.SelfHealingRun, error) {
	return o.runs.Latest(ctx, jobID)
}

// transition advances the run to the next phase and snapshots the ledger.
func (o *Orchestrator) transition(ctx context.Context, run *domain.SelfHealingRun, result *RunResult, phase domain.RunPhase) {
	run.Phase = phase
	result.Phase = phase
	o.snapshot(logger.SetPhase(ctx, string(phase)), run, result)
}

// snapshot writes the run's current state to the ledger. A failed write is
// recorded on the result and the run continues.
func (o *Orchestrator) snapshot(ctx context.Context, run *domain.SelfHealingRun, result *RunResult) {
	if err := o.runs.Save(ctx, run); err != nil {
		lerr := &LedgerWriteError{Phase: string(run.Phase), Err: err}
		result.LedgerErrors = append(result.LedgerErrors, lerr)
		logger.CtxWarn(ctx, "ledger snapshot failed: %v", lerr)
	}
}

// finish closes the run in a terminal phase.
func (o *Orchestrator) finish(ctx context.Context, run *domain.SelfHealingRun, result *RunResult, phase domain.RunPhase, outcome domain.FinalOutcome) {
	run.Phase = phase
	run.FinalOutcome = outcome
	run.FailureReason = result.FailureReason
	result.Phase = phase
	result.Outcome = outcome
	if err := o.runs.Close(ctx, run); err != nil {
		lerr := &LedgerWriteError{Phase: string(phase), Err: err}
		result.LedgerErrors = append(result.LedgerErrors, lerr)
		logger.CtxWarn(ctx, "ledger close failed: %v", lerr)
	}
	logger.CtxInfo(ctx, "self-healing run finished: phase=%s outcome=%s attempts=%d escalated=%t",
		phase, outcome, run.AttemptsTaken, run.EscalatedToHuman)
}

// fail terminates the run in the error phase with the given reason.
func (o *Orchestrator) fail(ctx context.Context, run *domain.SelfHealingRun, result *RunResult, reason string) {
	result.FailureReason = reason
	o.finish(ctx, run, result, domain.PhaseError, domain.OutcomeError)
}

// approvalConfidence derives the corrected field's confidence from the
// validating attempt: the lower of the two approving reviewers' scores.
func approvalConfidence(vr ValidationResult) int {
	last := vr.Attempts[len(vr.Attempts)-1]
	conf := 0
	for i, op := range last.Approvals {
		if i == 0 || op.Confidence < conf {
			conf = op.Confidence
		}
	}
	return conf
}
