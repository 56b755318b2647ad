package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrOwnership means the mission exists but belongs to someone else.
	ErrOwnership = errors.New("mission owned by different user")

	// ErrAlreadyTerminal means the mission was completed or failed before
	// this call. Terminal missions reject all further check-ins.
	ErrAlreadyTerminal = errors.New("mission already completed or failed")

	// ErrAlreadyCheckedToday means a check-in already exists for the
	// current calendar day. Retrying a check-in is safe: it always lands
	// here, never duplicates a day.
	ErrAlreadyCheckedToday = errors.New("already checked today")

	// ErrMissedDay means this check-in attempt discovered a missed day and
	// transitioned the mission to failed. Distinct from ErrAlreadyTerminal
	// so callers can tell "you just failed" from "this was already over".
	ErrMissedDay = errors.New("missed day: mission failed")

	// ErrConcurrencyConflict means an optimistic write lost its race twice.
	// The whole operation is safely retryable from scratch.
	ErrConcurrencyConflict = errors.New("concurrent mission update conflict")
)

// ValidationError rejects caller input; retrying without changing the input
// will not help.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvariantViolation indicates a bug, not expected user behavior. The write
// that would have persisted the broken state is aborted.
type InvariantViolation struct {
	MissionID string
	Reason    string
}

func (e InvariantViolation) Error() string {
	return fmt.Sprintf("mission %s invariant violated: %s", e.MissionID, e.Reason)
}
