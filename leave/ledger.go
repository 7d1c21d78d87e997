/*
ledger.go - Balance ledger over the employee record

PURPOSE:
  The only code path that changes a stored leave balance by a signed
  amount. Every mutation is a single atomic store operation, followed by
  a journal entry describing it.

OPERATIONS:
  Debit     sufficiency check, then conditional decrement in the store
  Refund    unconditional increment
  ApplyDelta  signed: negative goes through Debit, positive through Refund
  Revert    undo a Movement returned earlier (compensation only)

UNPAID LEAVE:
  unpaid_leave is exempt. Debit and Refund return an empty Movement and
  touch nothing.

JOURNAL FAILURES:
  The balance write is the commit point. A failed journal append is
  logged and returned in Movement.JournalErr; the balance is not rolled
  back for it.

SEE ALSO:
  - generic/journal.go: Movement history
  - store.go: IncrementBalanceField / DebitBalanceField contracts
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/leave-engine/generic"
)

// Movement describes one applied balance change.
type Movement struct {
	Employee   string
	LeaveType  LeaveTypeKey
	Delta      generic.Days
	Balance    generic.Days
	JournalErr error
}

// Applied reports whether the movement changed anything.
func (m Movement) Applied() bool { return m.Employee != "" && !m.Delta.IsZero() }

// Entry carries the journal context of a mutation.
type Entry struct {
	Type           generic.TransactionType
	ReferenceID    string
	Reason         string
	Actor          string
	IdempotencyKey string
}

type Ledger struct {
	Employees EmployeeStore
	Journal   generic.Journal // optional
	Log       logrus.FieldLogger
	Now       func() time.Time
}

func NewLedger(employees EmployeeStore, journal generic.Journal, log logrus.FieldLogger) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{
		Employees: employees,
		Journal:   journal,
		Log:       log.WithField("component", "ledger"),
		Now:       time.Now,
	}
}

// Available returns the stored balance of one leave type.
func (l *Ledger) Available(ctx context.Context, email string, key LeaveTypeKey) (generic.Days, error) {
	emp, err := l.Employees.FindByEmail(ctx, email)
	if err != nil {
		return generic.Days{}, err
	}
	if emp == nil {
		return generic.Days{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, email)
	}
	return emp.LeaveBalance.Get(key), nil
}

// Debit removes days from the balance if, and only if, it covers them.
func (l *Ledger) Debit(ctx context.Context, email string, key LeaveTypeKey, days generic.Days, e Entry) (Movement, error) {
	if key.IsUnpaid() || days.IsZero() {
		return Movement{}, nil
	}
	if days.IsNegative() {
		return Movement{}, fmt.Errorf("%w: debit of %s", generic.ErrInvalidQuantity, days)
	}

	available, err := l.Available(ctx, email, key)
	if err != nil {
		return Movement{}, err
	}
	if available.LessThan(days) {
		return Movement{}, &InsufficientBalanceError{Employee: email, LeaveType: key, Available: available, Requested: days}
	}

	balance, err := l.Employees.DebitBalanceField(ctx, email, key, days)
	if errors.Is(err, generic.ErrInsufficientBalance) {
		// Lost a race with another debit between the check and the write.
		available, _ = l.Available(ctx, email, key)
		return Movement{}, &InsufficientBalanceError{Employee: email, LeaveType: key, Available: available, Requested: days}
	}
	if err != nil {
		return Movement{}, fmt.Errorf("debit %s %s: %w", key, days, err)
	}

	if e.Type == "" {
		e.Type = generic.TxConsumption
	}
	return l.record(ctx, email, key, days.Neg(), balance, e), nil
}

// Refund returns days to the balance.
func (l *Ledger) Refund(ctx context.Context, email string, key LeaveTypeKey, days generic.Days, e Entry) (Movement, error) {
	if key.IsUnpaid() || days.IsZero() {
		return Movement{}, nil
	}
	if days.IsNegative() {
		return Movement{}, fmt.Errorf("%w: refund of %s", generic.ErrInvalidQuantity, days)
	}

	balance, err := l.Employees.IncrementBalanceField(ctx, email, key, days)
	if err != nil {
		return Movement{}, fmt.Errorf("refund %s %s: %w", key, days, err)
	}

	if e.Type == "" {
		e.Type = generic.TxReversal
	}
	return l.record(ctx, email, key, days, balance, e), nil
}

// ApplyDelta applies a signed change. Negative deltas are sufficiency checked.
func (l *Ledger) ApplyDelta(ctx context.Context, email string, key LeaveTypeKey, delta generic.Days, e Entry) (Movement, error) {
	switch {
	case delta.IsNegative():
		return l.Debit(ctx, email, key, delta.Neg(), e)
	case delta.IsPositive():
		return l.Refund(ctx, email, key, delta, e)
	default:
		return Movement{}, nil
	}
}

// Credit increments without the unpaid exemption. Used by the credit job
// and admin adjustments, which address keys explicitly.
func (l *Ledger) Credit(ctx context.Context, email string, key LeaveTypeKey, days generic.Days, e Entry) (Movement, error) {
	if !days.IsPositive() {
		return Movement{}, nil
	}
	balance, err := l.Employees.IncrementBalanceField(ctx, email, key, days)
	if err != nil {
		return Movement{}, fmt.Errorf("credit %s %s: %w", key, days, err)
	}
	if e.Type == "" {
		e.Type = generic.TxGrant
	}
	return l.record(ctx, email, key, days, balance, e), nil
}

// Revert undoes a movement without a sufficiency check. It exists for
// compensation after a lost compare-and-set, never for business flows.
func (l *Ledger) Revert(ctx context.Context, m Movement, e Entry) error {
	if !m.Applied() {
		return nil
	}
	balance, err := l.Employees.IncrementBalanceField(ctx, m.Employee, m.LeaveType, m.Delta.Neg())
	if err != nil {
		l.Log.WithError(err).WithFields(logrus.Fields{
			"employee":   m.Employee,
			"leave_type": m.LeaveType,
			"delta":      m.Delta.Neg().String(),
		}).Error("compensation failed, balance needs manual correction")
		return fmt.Errorf("revert %s %s: %w", m.LeaveType, m.Delta, err)
	}
	if e.Type == "" {
		e.Type = generic.TxReversal
	}
	l.record(ctx, m.Employee, m.LeaveType, m.Delta.Neg(), balance, e)
	return nil
}

func (l *Ledger) record(ctx context.Context, email string, key LeaveTypeKey, delta, balance generic.Days, e Entry) Movement {
	m := Movement{Employee: email, LeaveType: key, Delta: delta, Balance: balance}
	if l.Journal == nil {
		return m
	}
	tx := generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		EntityID:       generic.EntityID(email),
		Resource:       string(key),
		Delta:          delta,
		BalanceAfter:   balance,
		Type:           e.Type,
		ReferenceID:    e.ReferenceID,
		Reason:         e.Reason,
		IdempotencyKey: e.IdempotencyKey,
		CreatedBy:      e.Actor,
		CreatedAt:      l.Now().UTC(),
	}
	if err := l.Journal.Append(ctx, tx); err != nil {
		l.Log.WithError(err).WithFields(logrus.Fields{
			"employee":   email,
			"leave_type": key,
			"reference":  e.ReferenceID,
		}).Warn("journal append failed")
		m.JournalErr = &generic.JournalError{EntityID: tx.EntityID, Resource: tx.Resource, Err: err}
	}
	return m
}
