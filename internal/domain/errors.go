package domain

import (
	"fmt"
	"time"
)

// Error types for consistent error handling across the settlement engine.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrStateConflict indicates an operation that is illegal in the resource's
// current state: a duplicate active batch for a date, or a transition the
// state machine does not allow. The caller must retry with different input.
type ErrStateConflict struct {
	Resource string
	ID       string
	Current  string
	Message  string
}

func (e *ErrStateConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s cannot be modified in %s status", e.Resource, e.ID, e.Current)
}

// ErrNoEligibleTransactions indicates a batch run found nothing to settle.
type ErrNoEligibleTransactions struct {
	BatchDate time.Time
}

func (e *ErrNoEligibleTransactions) Error() string {
	return fmt.Sprintf("no eligible transactions found for settlement on %s",
		e.BatchDate.Format(BatchDateFormat))
}

// ErrExternalRail indicates a bank rail failure during batch processing.
type ErrExternalRail struct {
	BatchID string
	Err     error
}

func (e *ErrExternalRail) Error() string {
	return fmt.Sprintf("bank rail error for batch %s: %v", e.BatchID, e.Err)
}

func (e *ErrExternalRail) Unwrap() error {
	return e.Err
}

// ErrConsistency indicates the ledger write-back covered fewer transactions
// than the batch's details. The batch must be flagged, never COMPLETED,
// since downstream logic assumes COMPLETED implies full write-back.
type ErrConsistency struct {
	BatchID  string
	Expected int
	Covered  int
}

func (e *ErrConsistency) Error() string {
	return fmt.Sprintf("ledger write-back inconsistency for batch %s: %d of %d transactions covered",
		e.BatchID, e.Covered, e.Expected)
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
