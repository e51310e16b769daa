package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced project, milestone, dispute or
// payout does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientFunds is returned when a balance or held amount is too low
// for the requested movement.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ValidationError rejects malformed or out-of-range input before any state
// change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError rejects an illegal state transition. State is unchanged.
type ConflictError struct {
	Entity string
	From   string
	Action string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s in status %q does not allow %s", e.Entity, e.From, e.Action)
}

func conflictErr(entity, from, action string) error {
	return &ConflictError{Entity: entity, From: from, Action: action}
}

// PaymentError wraps a gateway failure. The triggering transaction is marked
// failed; the whole operation is safe to retry.
type PaymentError struct {
	Op  string
	Err error
}

func (e *PaymentError) Error() string { return fmt.Sprintf("payment %s failed: %v", e.Op, e.Err) }
func (e *PaymentError) Unwrap() error { return e.Err }

// LedgerInvariantError signals ledger corruption: held + released no longer
// equals total on an escrow account. It is fatal for that account — never a
// normal failure path, never swallowed.
type LedgerInvariantError struct {
	ProjectID uuid.UUID
	Held      int64
	Released  int64
	Total     int64
}

func (e *LedgerInvariantError) Error() string {
	return fmt.Sprintf("escrow invariant violated for project %s: held %d + released %d != total %d",
		e.ProjectID, e.Held, e.Released, e.Total)
}
