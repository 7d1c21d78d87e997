/*
validation.go - Pre-submission gate

PURPOSE:
  Decides whether an application may be submitted, without side effects.
  Returns every problem found rather than the first one so a client can
  show them together.

CHECKS (hard errors unless noted):
  structure      known leave type, at least one date, no duplicates,
                 half day only for a single date
  employee       exists and has joined by the earliest date
  overlap        no date shared with the employee's own non-rejected
                 applications
  balance        balance covers DaysCount (unpaid_leave exempt)
  advance notice earliest date at least N calendar days after today;
                 with Force it is a warning, without it an error with
                 CanOverride = true
  clubbing       no non-rejected application of a forbidden type on or
                 within one day of any requested date; never overridable

SEE ALSO:
  - service.go: SubmitApplication runs the gate before inserting
*/
package leave

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// SubmitInput is what an employee sends when applying.
type SubmitInput struct {
	EmployeeEmail string
	LeaveType     string // label or key
	Dates         []generic.Date
	IsHalfDay     bool
	Reason        string
	Force         bool
}

// Issue codes
const (
	CodeInvalidLeaveType    = "invalid_leave_type"
	CodeInvalidDates        = "invalid_dates"
	CodeEmployeeNotFound    = "employee_not_found"
	CodeNotJoined           = "not_joined"
	CodeOverlap             = "overlap"
	CodeInsufficientBalance = "insufficient_balance"
	CodeAdvanceNotice       = "advance_notice"
	CodeClubbingConflict    = "clubbing_conflict"
)

type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func newIssue(code string, err error) Issue {
	return Issue{Code: code, Message: err.Error(), Err: err}
}

type ValidationResult struct {
	Valid       bool
	LeaveType   LeaveTypeKey
	DaysCount   generic.Days
	Available   generic.Days
	Warnings    []Issue
	Errors      []Issue
	CanOverride bool
}

func (r *ValidationResult) fail(is Issue) {
	r.Errors = append(r.Errors, is)
}

// ValidateApplication runs the gate for a prospective application.
func (s *Service) ValidateApplication(ctx context.Context, in SubmitInput) (*ValidationResult, error) {
	res, _, _, err := s.validate(ctx, in)
	return res, err
}

// validate also returns the employee and policy item it resolved so that
// SubmitApplication does not need to read them again.
func (s *Service) validate(ctx context.Context, in SubmitInput) (*ValidationResult, *Employee, *PolicyItem, error) {
	key := NormalizeKey(in.LeaveType)
	res := &ValidationResult{LeaveType: key, DaysCount: CountDays(in.Dates, in.IsHalfDay)}

	policy, err := s.resolver.Active(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	var item *PolicyItem
	if !policy.Accepts(key) {
		res.fail(newIssue(CodeInvalidLeaveType, fmt.Errorf("%w: %q", ErrInvalidLeaveType, in.LeaveType)))
	} else if it, ok := policy.Item(key); ok {
		item = &it
	}

	s.checkDates(res, in)

	emp, err := s.employees.FindByEmail(ctx, in.EmployeeEmail)
	if err != nil {
		return nil, nil, nil, err
	}
	if emp == nil {
		res.fail(newIssue(CodeEmployeeNotFound, fmt.Errorf("%w: %s", ErrEmployeeNotFound, in.EmployeeEmail)))
		return s.finish(res), nil, item, nil
	}
	if len(in.Dates) == 0 {
		return s.finish(res), emp, item, nil
	}

	earliest := generic.Earliest(in.Dates)
	if !emp.JoiningDate.IsZero() && earliest.Before(emp.JoiningDate) {
		res.fail(newIssue(CodeNotJoined, fmt.Errorf("%w: %s has not joined by %s", ErrInvalidApplication, emp.Email, earliest)))
	}

	existing, err := s.applications.FindByQuery(ctx, ApplicationFilter{
		EmployeeEmail: emp.Email,
		Statuses:      ActiveStatuses,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	s.checkOverlap(res, in.Dates, existing)

	if !key.IsUnpaid() {
		res.Available = emp.LeaveBalance.Get(key)
		if res.Available.LessThan(res.DaysCount) {
			res.fail(newIssue(CodeInsufficientBalance, &InsufficientBalanceError{
				Employee: emp.Email, LeaveType: key, Available: res.Available, Requested: res.DaysCount,
			}))
		}
	}

	if item != nil {
		s.checkAdvanceNotice(res, *item, earliest, in.Force)
		s.checkClubbing(res, *item, in.Dates, existing)
	}

	return s.finish(res), emp, item, nil
}

// finish marks the result overridable only when advance notice is the sole
// reason for rejection.
func (s *Service) finish(res *ValidationResult) *ValidationResult {
	res.Valid = len(res.Errors) == 0
	res.CanOverride = !res.Valid
	for _, is := range res.Errors {
		if is.Code != CodeAdvanceNotice {
			res.CanOverride = false
		}
	}
	return res
}

func (s *Service) checkDates(res *ValidationResult, in SubmitInput) {
	if len(in.Dates) == 0 {
		res.fail(newIssue(CodeInvalidDates, fmt.Errorf("%w: no dates requested", ErrInvalidApplication)))
		return
	}
	if in.IsHalfDay && len(in.Dates) > 1 {
		res.fail(newIssue(CodeInvalidDates, fmt.Errorf("%w: half day applies to a single date", ErrInvalidApplication)))
	}
	seen := make(map[string]bool, len(in.Dates))
	for _, d := range in.Dates {
		if d.IsZero() {
			res.fail(newIssue(CodeInvalidDates, fmt.Errorf("%w: empty date", ErrInvalidApplication)))
			continue
		}
		if seen[d.String()] {
			res.fail(newIssue(CodeInvalidDates, fmt.Errorf("%w: %s requested twice", ErrInvalidApplication, d)))
		}
		seen[d.String()] = true
	}
}

func (s *Service) checkOverlap(res *ValidationResult, dates []generic.Date, existing []Application) {
	for _, app := range existing {
		for _, d := range app.Dates {
			for _, want := range dates {
				if d.Equal(want) {
					res.fail(newIssue(CodeOverlap, fmt.Errorf("%w: %s already covered by application %s",
						ErrInvalidApplication, d, app.ID)))
				}
			}
		}
	}
}

func (s *Service) checkAdvanceNotice(res *ValidationResult, item PolicyItem, earliest generic.Date, force bool) {
	if item.AdvanceDaysRequired <= 0 {
		return
	}
	notice := generic.DaysBetween(s.today(), earliest)
	if notice >= item.AdvanceDaysRequired {
		return
	}
	e := &AdvanceNoticeError{LeaveType: item.Key, Required: item.AdvanceDaysRequired, Actual: notice, CanOverride: !force}
	if force {
		res.Warnings = append(res.Warnings, newIssue(CodeAdvanceNotice, e))
		return
	}
	res.fail(newIssue(CodeAdvanceNotice, e))
}

func (s *Service) checkClubbing(res *ValidationResult, item PolicyItem, dates []generic.Date, existing []Application) {
	for _, app := range existing {
		if !item.ForbidsClubbingWith(app.LeaveType) {
			continue
		}
		if d, ok := adjacent(dates, app.Dates); ok {
			res.fail(newIssue(CodeClubbingConflict, &ClubbingConflictError{
				LeaveType: item.Key, With: app.LeaveType, ApplicationID: app.ID, Date: d,
			}))
			return
		}
	}
}

// adjacent returns the first requested date that is on or within one day
// of any date in other.
func adjacent(requested, other []generic.Date) (generic.Date, bool) {
	for _, r := range requested {
		for _, o := range other {
			if generic.AbsDaysBetween(r, o) <= 1 {
				return r, true
			}
		}
	}
	return generic.Date{}, false
}
