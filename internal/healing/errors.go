package healing

import (
	"errors"
	"fmt"
)

var (
	// ErrHealingDisabled is returned when a run is triggered while the
	// self-healing feature is switched off in configuration.
	ErrHealingDisabled = errors.New("self-healing is disabled")

	// ErrConcurrentRun rejects a trigger that arrives while another run is
	// still open for the same job. It is a trigger rejection, not a run
	// failure; no second ledger entry is created.
	ErrConcurrentRun = errors.New("self-healing run already in progress for job")

	// ErrJobUnloadable marks a job that cannot be loaded at all. The run
	// terminates in the error phase.
	ErrJobUnloadable = errors.New("verification job could not be loaded")

	// ErrInvalidJobState marks a job whose verification has not run yet,
	// so there is no result to heal. The run terminates in the error phase.
	ErrInvalidJobState = errors.New("verification job is in an invalid state")
)

// LedgerWriteError wraps a failed ledger snapshot write. Losing a snapshot
// must never abort an in-progress run, so these are collected on the run
// result instead of propagating; operators can detect audit-trail gaps from
// the distinct error kind.
type LedgerWriteError struct {
	Phase string
	Err   error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger write failed in phase %s: %v", e.Phase, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}
