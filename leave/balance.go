package leave

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// BALANCE QUERIES
// =============================================================================

// Balance returns the stored balance of an employee.
func (s *Service) Balance(ctx context.Context, email string) (Balance, error) {
	emp, err := s.findEmployee(ctx, email)
	if err != nil {
		return nil, err
	}
	return emp.LeaveBalance.Clone(), nil
}

// Employee returns the employee record.
func (s *Service) Employee(ctx context.Context, email string) (*Employee, error) {
	return s.findEmployee(ctx, email)
}

// Journal lists the journaled movements of an employee.
func (s *Service) Journal(ctx context.Context, email string) ([]generic.Transaction, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.Transactions(ctx, generic.EntityID(email))
}

func (s *Service) findEmployee(ctx context.Context, email string) (*Employee, error) {
	emp, err := s.employees.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load employee %s: %w", email, err)
	}
	if emp == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, email)
	}
	return emp, nil
}

// =============================================================================
// ONBOARDING
// =============================================================================

// Onboard creates an employee whose balance is the policy entitlement as of
// today. The current month counts as credited.
func (s *Service) Onboard(ctx context.Context, actor Actor, emp Employee) (*Employee, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins onboard employees", ErrNotAuthorized)
	}
	emp.Email = strings.TrimSpace(emp.Email)
	if emp.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidApplication)
	}
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	today := s.today()
	if emp.JoiningDate.IsZero() {
		emp.JoiningDate = today
	}

	resolved, err := s.resolver.Resolve(ctx, emp.JoiningDate, today)
	if err != nil {
		return nil, err
	}
	emp.LeaveBalance = MergePreserving(Balance{CompOff: emp.LeaveBalance.Get(CompOff)}, resolved)
	emp.Active = true
	emp.LastCredit = PeriodOf(today)

	if err := s.employees.Create(ctx, emp); err != nil {
		return nil, fmt.Errorf("create employee %s: %w", emp.Email, err)
	}
	s.log.WithFields(logrus.Fields{"employee": emp.Email, "joining": emp.JoiningDate.String()}).Info("employee onboarded")
	return &emp, nil
}

// =============================================================================
// RECALCULATION
// =============================================================================

type RecalculationResult struct {
	Employee    string
	Previous    Balance
	Balance     Balance
	Used        Balance
	AuditErrors []error
}

// RecalculateBalance rebuilds a balance from scratch: entitlement as of ref
// minus what the employee's deducting applications in ref's year hold.
// comp_off and keys unknown to the policy keep their stored values.
func (s *Service) RecalculateBalance(ctx context.Context, actor Actor, email string, ref generic.Date) (*RecalculationResult, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins recalculate balances", ErrNotAuthorized)
	}
	emp, err := s.findEmployee(ctx, email)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.Resolve(ctx, emp.JoiningDate, ref)
	if err != nil {
		return nil, err
	}

	apps, err := s.applications.FindByQuery(ctx, ApplicationFilter{
		EmployeeEmail: emp.Email,
		Statuses:      []Status{StatusManagerApproved, StatusApproved},
	})
	if err != nil {
		return nil, fmt.Errorf("load applications: %w", err)
	}
	used := make(Balance)
	for _, app := range apps {
		if len(app.Dates) == 0 || generic.Earliest(app.Dates).Year() != ref.Year() {
			continue
		}
		held := app.Snapshot().Holds()
		if held.IsPositive() {
			used[app.LeaveType] = used.Get(app.LeaveType).Add(held)
		}
	}
	for k, v := range resolved {
		resolved[k] = v.Sub(used.Get(k)).ClampZero()
	}

	previous := emp.LeaveBalance.Clone()
	next := MergePreserving(previous, resolved)
	if err := s.employees.SetBalance(ctx, emp.Email, next); err != nil {
		return nil, fmt.Errorf("set balance: %w", err)
	}

	res := &RecalculationResult{Employee: emp.Email, Previous: previous, Balance: next, Used: used}
	now := s.now()
	for _, k := range next.Keys() {
		delta := next.Get(k).Sub(previous.Get(k))
		if delta.IsZero() {
			continue
		}
		m := s.ledger.record(ctx, emp.Email, k, delta, next.Get(k), Entry{
			Type:        generic.TxReconciliation,
			ReferenceID: "recalculate-" + ref.String(),
			Reason:      "balance recalculated",
			Actor:       actor.Email,
		})
		if m.JournalErr != nil {
			res.AuditErrors = append(res.AuditErrors, m.JournalErr)
		}
		if s.audit == nil {
			continue
		}
		err := s.audit.AppendAdjustmentLog(ctx, AdjustmentLogEntry{
			ID:              uuid.NewString(),
			EmployeeID:      emp.ID,
			EmployeeEmail:   emp.Email,
			ActionType:      AdjustRecalculate,
			LeaveType:       k,
			Days:            delta,
			Reason:          "recalculated as of " + ref.String(),
			PerformedBy:     actor.Email,
			PreviousBalance: previous.Get(k),
			NewBalance:      next.Get(k),
			CreatedAt:       now,
		})
		if err != nil {
			s.log.WithError(err).WithField("employee", emp.Email).Warn("adjustment log not written")
			res.AuditErrors = append(res.AuditErrors, err)
		}
	}

	s.log.WithFields(logrus.Fields{"employee": emp.Email, "ref": ref.String()}).Info("balance recalculated")
	return res, nil
}

// =============================================================================
// POLICY ADMINISTRATION
// =============================================================================

// ActivePolicy returns the stored policy or the default table.
func (s *Service) ActivePolicy(ctx context.Context) (*Policy, error) {
	return s.resolver.Active(ctx)
}

// ReplacePolicy validates and stores a new active policy. Stored balances
// are not touched; use RecalculateBalance to apply it retroactively.
func (s *Service) ReplacePolicy(ctx context.Context, actor Actor, p Policy) (*Policy, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins change the leave policy", ErrNotAuthorized)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if s.policies == nil {
		return nil, fmt.Errorf("no policy store configured")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = s.now()
	if err := s.policies.SavePolicy(ctx, p); err != nil {
		return nil, fmt.Errorf("save policy: %w", err)
	}
	s.log.WithFields(logrus.Fields{"policy": p.ID, "items": len(p.Items), "actor": actor.Email}).Info("policy replaced")
	return &p, nil
}
