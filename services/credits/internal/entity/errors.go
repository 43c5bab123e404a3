package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict is returned by the ledger repository when a
	// conditional save finds the stored version no longer matches.
	ErrVersionConflict = errors.New("account was modified concurrently")

	// ErrDuplicatePayment is returned when a purchase transaction with the
	// same payment reference has already been recorded.
	ErrDuplicatePayment = errors.New("payment reference already processed")

	// ErrRetriesExhausted signals a transient failure: the operation lost the
	// version race too many times and should be retried by the caller.
	ErrRetriesExhausted = errors.New("concurrent update retries exhausted")

	// ErrReconciliationRequired signals that a compensation could not be
	// persisted. The reserved job marker is left in place for the reconciler.
	ErrReconciliationRequired = errors.New("compensation not persisted, reconciliation required")

	// ErrJobNotReserved is returned when a settle or compensate transition
	// finds the generation job already closed, usually because a concurrent
	// compensator got there first.
	ErrJobNotReserved = errors.New("generation job is not reserved")

	ErrPackageNotFound = errors.New("credit package not found")
)

// ValidationError marks bad input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
