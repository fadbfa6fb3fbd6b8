package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when an input precondition is violated.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when a balance is below the required amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWithdrawalLimit is returned when a savings account hits its monthly withdrawal cap.
	ErrWithdrawalLimit = errors.New("monthly withdrawal limit reached")

	// ErrConcurrencyConflict is returned when a row version no longer matches on commit.
	// Callers may retry the whole command.
	ErrConcurrencyConflict = errors.New("concurrency conflict: row version mismatch")

	// ErrInvalidOperation is returned on a state-machine violation,
	// e.g. withdrawing from an inactive account.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrCurrencyMismatch is returned when two amounts in different currencies meet.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrInternal is returned for unexpected I/O, serialization, or invariant breaks.
	// The underlying cause is logged, never surfaced.
	ErrInternal = errors.New("internal error")

	// ErrUnknownEventType is returned when an event type tag has no registered decoder.
	ErrUnknownEventType = errors.New("unknown event type")
)

// InsufficientFundsError carries the details of a failed debit.
type InsufficientFundsError struct {
	AccountNumber AccountNumber
	Requested     Money
	Balance       Money
	Operation     string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %s: %s requested %s, balance %s",
		e.AccountNumber, e.Operation, e.Requested, e.Balance)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Violation is a single field-level validation failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found for a request.
// The pipeline surfaces all of them at once rather than failing fast.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Violations[0].Field, e.Violations[0].Message)
	}
	return fmt.Sprintf("validation failed: %d violations", len(e.Violations))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError from violations.
func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}
