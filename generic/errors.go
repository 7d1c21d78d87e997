/*
errors.go - Centralized error types for the generic primitives

PURPOSE:
  Errors shared by every store implementation and by the leave engine.
  Domain packages wrap these with additional context.

ERROR CATEGORIES:
  1. Journal errors - Movement persistence failures
  2. Balance errors - Conditional decrement refused
  3. Concurrency errors - Compare-and-set lost

USAGE:
    if errors.Is(err, generic.ErrInsufficientBalance) {
        return &leave.InsufficientBalanceError{...}
    }

SEE ALSO:
  - journal.go: Uses these errors
  - leave/errors.go: Wraps these errors with domain context
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a journal entry with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientBalance is returned by conditional decrements when the
	// stored value is lower than the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConcurrentModification is returned when a compare-and-set loses.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidQuantity is returned for negative or zero movement amounts.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// JournalError reports that a balance mutation succeeded but its journal
// entry could not be written. The mutation is never rolled back for it.
type JournalError struct {
	EntityID EntityID
	Resource string
	Err      error
}

func (e *JournalError) Error() string {
	return fmt.Sprintf("journal write failed for %s/%s: %v", e.EntityID, e.Resource, e.Err)
}

func (e *JournalError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidQuantity)
}
