package leave

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	ErrInvalidLeaveType    = errors.New("invalid leave type")
	ErrAdvanceNotice       = errors.New("advance notice violation")
	ErrClubbingConflict    = errors.New("clubbing conflict")
	ErrNotPending          = errors.New("application already processed")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidApplication  = errors.New("invalid application")
	ErrApplicationNotFound = errors.New("application not found")
	ErrEmployeeNotFound    = errors.New("employee not found")
	ErrEmployeeExists      = errors.New("employee already exists")
	ErrValidationFailed    = errors.New("application failed validation")
)

// Re-exported so callers of this package need not import generic.
var (
	ErrInsufficientBalance    = generic.ErrInsufficientBalance
	ErrConcurrentModification = generic.ErrConcurrentModification
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientBalanceError reports a debit the balance cannot cover.
type InsufficientBalanceError struct {
	Employee  string
	LeaveType LeaveTypeKey
	Available generic.Days
	Requested generic.Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s: available %s, requested %s",
		e.LeaveType, e.Employee, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return generic.ErrInsufficientBalance }

// AdvanceNoticeError is overridable by resubmitting with force.
type AdvanceNoticeError struct {
	LeaveType   LeaveTypeKey
	Required    int
	Actual      int
	CanOverride bool
}

func (e *AdvanceNoticeError) Error() string {
	return fmt.Sprintf("%s requires %d days advance notice, got %d", e.LeaveType, e.Required, e.Actual)
}

func (e *AdvanceNoticeError) Unwrap() error { return ErrAdvanceNotice }

// ClubbingConflictError is never overridable.
type ClubbingConflictError struct {
	LeaveType     LeaveTypeKey
	With          LeaveTypeKey
	ApplicationID string
	Date          generic.Date
}

func (e *ClubbingConflictError) Error() string {
	return fmt.Sprintf("%s cannot be clubbed with %s (application %s on %s)",
		e.LeaveType, e.With, e.ApplicationID, e.Date)
}

func (e *ClubbingConflictError) Unwrap() error { return ErrClubbingConflict }

// ValidationFailedError wraps a gate result with at least one error issue.
type ValidationFailedError struct {
	Result *ValidationResult
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, is := range e.Result.Errors {
		msgs = append(msgs, is.Message)
	}
	return "application failed validation: " + strings.Join(msgs, "; ")
}

// Unwrap exposes every issue error plus ErrValidationFailed to errors.Is/As.
func (e *ValidationFailedError) Unwrap() []error {
	errs := []error{ErrValidationFailed}
	for _, is := range e.Result.Errors {
		if is.Err != nil {
			errs = append(errs, is.Err)
		}
	}
	return errs
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the request itself was wrong.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidLeaveType) ||
		errors.Is(err, ErrAdvanceNotice) ||
		errors.Is(err, ErrClubbingConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidApplication) ||
		errors.Is(err, ErrValidationFailed) ||
		generic.IsClientError(err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrApplicationNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}

// IsConflict covers state races and actions on already processed applications.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrEmployeeExists) ||
		errors.Is(err, generic.ErrConcurrentModification)
}
