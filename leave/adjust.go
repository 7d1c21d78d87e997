package leave

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// ADMIN ADJUSTMENTS
// =============================================================================

// AdjustmentRequest changes one leave type of one employee.
//   add     increment by Days
//   deduct  decrement by Days, refused when the balance does not cover it
//   set     overwrite with Days
type AdjustmentRequest struct {
	EmployeeEmail string
	Action        AdjustmentAction
	LeaveType     string
	Days          generic.Days
	Reason        string
}

type AdjustmentResult struct {
	Entry      AdjustmentLogEntry
	AuditError error
}

// Adjust applies a manual correction and logs it.
func (s *Service) Adjust(ctx context.Context, actor Actor, req AdjustmentRequest) (*AdjustmentResult, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins adjust balances", ErrNotAuthorized)
	}
	return s.adjust(ctx, actor, req, req.Action)
}

func (s *Service) adjust(ctx context.Context, actor Actor, req AdjustmentRequest, logged AdjustmentAction) (*AdjustmentResult, error) {
	key := NormalizeKey(req.LeaveType)
	if key == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLeaveType, req.LeaveType)
	}
	if req.Days.IsNegative() {
		return nil, fmt.Errorf("%w: adjustment of %s", generic.ErrInvalidQuantity, req.Days)
	}
	emp, err := s.findEmployee(ctx, req.EmployeeEmail)
	if err != nil {
		return nil, err
	}
	policy, err := s.resolver.Active(ctx)
	if err != nil {
		return nil, err
	}
	if !policy.Accepts(key) && !emp.LeaveBalance.Has(key) {
		return nil, fmt.Errorf("%w: %q is neither in the policy nor in the balance of %s", ErrInvalidLeaveType, req.LeaveType, emp.Email)
	}

	previous := emp.LeaveBalance.Get(key)
	id := uuid.NewString()
	entry := Entry{Type: generic.TxAdjustment, ReferenceID: id, Reason: req.Reason, Actor: actor.Email}

	var (
		m       Movement
		balance generic.Days
	)
	switch req.Action {
	case AdjustAdd:
		m, err = s.ledger.Credit(ctx, emp.Email, key, req.Days, entry)
		balance = previous.Add(req.Days)
	case AdjustDeduct:
		m, err = s.ledger.Debit(ctx, emp.Email, key, req.Days, entry)
		balance = previous.Sub(req.Days)
		if key.IsUnpaid() {
			balance = previous
		}
	case AdjustSet:
		err = s.employees.SetBalanceFields(ctx, emp.Email, Balance{key: req.Days})
		balance = req.Days
		if err == nil {
			if delta := req.Days.Sub(previous); !delta.IsZero() {
				m = s.ledger.record(ctx, emp.Email, key, delta, balance, entry)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown adjustment action %q", ErrInvalidApplication, req.Action)
	}
	if err != nil {
		return nil, err
	}
	if m.Applied() {
		balance = m.Balance
	}

	res := &AdjustmentResult{Entry: AdjustmentLogEntry{
		ID:              id,
		EmployeeID:      emp.ID,
		EmployeeEmail:   emp.Email,
		ActionType:      logged,
		LeaveType:       key,
		Days:            req.Days,
		Reason:          req.Reason,
		PerformedBy:     actor.Email,
		PreviousBalance: previous,
		NewBalance:      balance,
		CreatedAt:       s.now(),
	}}
	res.AuditError = m.JournalErr
	if s.audit != nil {
		if err := s.audit.AppendAdjustmentLog(ctx, res.Entry); err != nil {
			s.log.WithError(err).WithField("employee", emp.Email).Warn("adjustment log not written")
			res.AuditError = err
		}
	}

	s.log.WithFields(logrus.Fields{
		"employee":   emp.Email,
		"action":     logged,
		"leave_type": key,
		"days":       req.Days.String(),
		"actor":      actor.Email,
	}).Info("balance adjusted")
	return res, nil
}

// BulkAdjustmentRequest applies one action to many employees. An empty
// Employees list means every active employee.
type BulkAdjustmentRequest struct {
	Employees []string
	Action    AdjustmentAction
	LeaveType string
	Days      generic.Days
	Reason    string
}

type BulkFailure struct {
	Employee string
	Err      error
}

type BulkAdjustmentResult struct {
	Processed int
	Adjusted  []AdjustmentLogEntry
	Errors    []BulkFailure
}

// BulkAdjust continues past individual failures.
func (s *Service) BulkAdjust(ctx context.Context, actor Actor, req BulkAdjustmentRequest) (*BulkAdjustmentResult, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins adjust balances", ErrNotAuthorized)
	}
	var logged AdjustmentAction
	switch req.Action {
	case AdjustAdd:
		logged = AdjustBulkAdd
	case AdjustDeduct:
		logged = AdjustBulkDeduct
	case AdjustSet:
		logged = AdjustBulkSet
	default:
		return nil, fmt.Errorf("%w: unknown adjustment action %q", ErrInvalidApplication, req.Action)
	}

	targets := req.Employees
	if len(targets) == 0 {
		active, err := s.employees.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active employees: %w", err)
		}
		for _, e := range active {
			targets = append(targets, e.Email)
		}
	}

	res := &BulkAdjustmentResult{}
	for _, email := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++
		one, err := s.adjust(ctx, actor, AdjustmentRequest{
			EmployeeEmail: email,
			Action:        req.Action,
			LeaveType:     req.LeaveType,
			Days:          req.Days,
			Reason:        req.Reason,
		}, logged)
		if err != nil {
			res.Errors = append(res.Errors, BulkFailure{Employee: email, Err: err})
			continue
		}
		res.Adjusted = append(res.Adjusted, one.Entry)
	}
	return res, nil
}

// =============================================================================
// AUDIT LOG QUERIES
// =============================================================================

func (s *Service) AdjustmentLogs(ctx context.Context, email string, limit int) ([]AdjustmentLogEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.ListAdjustmentLogs(ctx, email, limit)
}

func (s *Service) CreditLogs(ctx context.Context, email string, limit int) ([]CreditLogEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.ListCreditLogs(ctx, email, limit)
}

// DeletionLogs lists deleted applications, newest first. Empty email means all.
func (s *Service) DeletionLogs(ctx context.Context, email string, limit int) ([]DeletionLogEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.ListDeletionLogs(ctx, email, limit)
}
