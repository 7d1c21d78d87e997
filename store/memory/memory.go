// Package memory provides in-memory implementations of the leave store
// interfaces (for testing/dev). Every method copies on the way in and out
// so callers never share maps or slices with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

type Store struct {
	mu           sync.RWMutex
	employees    map[string]*leave.Employee
	applications map[string]*leave.Application
	policy       *leave.Policy
	creditLogs   []leave.CreditLogEntry
	adjustments  []leave.AdjustmentLogEntry
	deletions    []leave.DeletionLogEntry
}

func New() *Store {
	return &Store{
		employees:    make(map[string]*leave.Employee),
		applications: make(map[string]*leave.Application),
	}
}

// Compile-time checks
var (
	_ leave.EmployeeStore    = (*Store)(nil)
	_ leave.ApplicationStore = (*Store)(nil)
	_ leave.PolicyStore      = (*Store)(nil)
	_ leave.AuditStore       = (*Store)(nil)
)

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) FindByEmail(_ context.Context, email string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emp, ok := s.employees[email]
	if !ok {
		return nil, nil
	}
	return copyEmployee(emp), nil
}

func (s *Store) ListActive(_ context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.Employee
	for _, emp := range s.employees {
		if emp.Active {
			out = append(out, *copyEmployee(emp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) Create(_ context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.employees[emp.Email]; ok {
		return fmt.Errorf("%w: %s", leave.ErrEmployeeExists, emp.Email)
	}
	s.employees[emp.Email] = copyEmployee(&emp)
	return nil
}

// Put inserts or replaces an employee. Test fixtures use it to seed balances.
func (s *Store) Put(emp leave.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[emp.Email] = copyEmployee(&emp)
}

func (s *Store) IncrementBalanceField(_ context.Context, email string, key leave.LeaveTypeKey, delta generic.Days) (generic.Days, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	emp, ok := s.employees[email]
	if !ok {
		return generic.Days{}, fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	if emp.LeaveBalance == nil {
		emp.LeaveBalance = make(leave.Balance)
	}
	v := emp.LeaveBalance[key].Add(delta)
	emp.LeaveBalance[key] = v
	return v, nil
}

func (s *Store) DebitBalanceField(_ context.Context, email string, key leave.LeaveTypeKey, days generic.Days) (generic.Days, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	emp, ok := s.employees[email]
	if !ok {
		return generic.Days{}, fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	current := emp.LeaveBalance.Get(key)
	if current.LessThan(days) {
		return current, generic.ErrInsufficientBalance
	}
	v := current.Sub(days)
	emp.LeaveBalance[key] = v
	return v, nil
}

func (s *Store) SetBalance(_ context.Context, email string, balance leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	emp, ok := s.employees[email]
	if !ok {
		return fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	emp.LeaveBalance = roundBalance(balance)
	return nil
}

func (s *Store) SetBalanceFields(_ context.Context, email string, fields leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	emp, ok := s.employees[email]
	if !ok {
		return fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	if emp.LeaveBalance == nil {
		emp.LeaveBalance = make(leave.Balance)
	}
	for k, v := range fields {
		emp.LeaveBalance[k] = v.Round()
	}
	return nil
}

func (s *Store) ClaimCreditPeriod(_ context.Context, email string, period leave.CreditPeriod) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	emp, ok := s.employees[email]
	if !ok {
		return false, fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	if emp.LastCredit >= period {
		return false, nil
	}
	emp.LastCredit = period
	return true, nil
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func (s *Store) FindByID(_ context.Context, id string) (*leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return nil, nil
	}
	return copyApplication(app), nil
}

func (s *Store) Insert(_ context.Context, app leave.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[app.ID]; ok {
		return fmt.Errorf("application %s already exists", app.ID)
	}
	if app.Version == 0 {
		app.Version = 1
	}
	s.applications[app.ID] = copyApplication(&app)
	return nil
}

func (s *Store) UpdateFields(_ context.Context, id string, upd leave.ApplicationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	if !upd.Satisfied(app) {
		return generic.ErrConcurrentModification
	}
	upd.Apply(app)
	return nil
}

func (s *Store) AppendApproval(_ context.Context, id string, rec leave.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	app.Approvals = append(app.Approvals, rec)
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[id]; !ok {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	delete(s.applications, id)
	return nil
}

func (s *Store) FindByQuery(_ context.Context, f leave.ApplicationFilter) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.Application
	for _, app := range s.applications {
		if f.Matches(app) {
			out = append(out, *copyApplication(app))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// =============================================================================
// POLICY
// =============================================================================

func (s *Store) GetActivePolicy(_ context.Context) (*leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.policy == nil {
		return nil, nil
	}
	p := *s.policy
	p.Items = append([]leave.PolicyItem(nil), s.policy.Items...)
	return &p, nil
}

func (s *Store) SavePolicy(_ context.Context, p leave.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Items = append([]leave.PolicyItem(nil), p.Items...)
	s.policy = &p
	return nil
}

// =============================================================================
// AUDIT LOGS
// =============================================================================

func (s *Store) AppendCreditLog(_ context.Context, entry leave.CreditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creditLogs = append(s.creditLogs, entry)
	return nil
}

func (s *Store) ListCreditLogs(_ context.Context, email string, limit int) ([]leave.CreditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.CreditLogEntry
	for i := len(s.creditLogs) - 1; i >= 0; i-- {
		e := s.creditLogs[i]
		if email != "" && e.EmployeeEmail != email {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) AppendAdjustmentLog(_ context.Context, entry leave.AdjustmentLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments = append(s.adjustments, entry)
	return nil
}

func (s *Store) ListAdjustmentLogs(_ context.Context, email string, limit int) ([]leave.AdjustmentLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.AdjustmentLogEntry
	for i := len(s.adjustments) - 1; i >= 0; i-- {
		e := s.adjustments[i]
		if email != "" && e.EmployeeEmail != email {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) AppendDeletionLog(_ context.Context, entry leave.DeletionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletions = append(s.deletions, copyDeletion(entry))
	return nil
}

func (s *Store) ListDeletionLogs(_ context.Context, email string, limit int) ([]leave.DeletionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.DeletionLogEntry
	for i := len(s.deletions) - 1; i >= 0; i-- {
		e := s.deletions[i]
		if email != "" && e.EmployeeEmail != email {
			continue
		}
		out = append(out, copyDeletion(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// COPY HELPERS
// =============================================================================

func copyEmployee(e *leave.Employee) *leave.Employee {
	out := *e
	out.LeaveBalance = roundBalance(e.LeaveBalance)
	return &out
}

func roundBalance(b leave.Balance) leave.Balance {
	out := make(leave.Balance, len(b))
	for k, v := range b {
		out[k] = v.Round()
	}
	return out
}

func copyApplication(a *leave.Application) *leave.Application {
	out := *a
	out.Dates = append([]generic.Date(nil), a.Dates...)
	out.Approvals = append([]leave.ApprovalRecord(nil), a.Approvals...)
	if a.PolicySnapshot != nil {
		ps := *a.PolicySnapshot
		out.PolicySnapshot = &ps
	}
	return &out
}

func copyDeletion(e leave.DeletionLogEntry) leave.DeletionLogEntry {
	e.Before.Dates = append([]generic.Date(nil), e.Before.Dates...)
	e.Approvals = append([]leave.ApprovalRecord(nil), e.Approvals...)
	return e
}
