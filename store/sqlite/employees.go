package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES (leave.EmployeeStore)
// =============================================================================

func (s *Store) FindByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, manager_email, joining_date, active, last_credit
		FROM employees WHERE email = ?
	`, email)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	bal, err := s.loadBalance(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	emp.LeaveBalance = bal
	return emp, nil
}

func (s *Store) ListActive(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, name, manager_email, joining_date, active, last_credit
		FROM employees WHERE active = TRUE ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}

	var employees []leave.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		employees = append(employees, *emp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range employees {
		bal, err := s.loadBalance(ctx, s.db, employees[i].Email)
		if err != nil {
			return nil, err
		}
		employees[i].LeaveBalance = bal
	}
	return employees, nil
}

func (s *Store) Create(ctx context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO employees (id, email, name, manager_email, joining_date, active, last_credit, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, emp.ID, emp.Email, emp.Name, emp.ManagerEmail, emp.JoiningDate.String(),
			emp.Active, int(emp.LastCredit), formatTime(timeNow()))
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: %s", leave.ErrEmployeeExists, emp.Email)
			}
			return fmt.Errorf("failed to create employee: %w", err)
		}
		for k, v := range emp.LeaveBalance {
			if err := upsertBalance(ctx, tx, emp.Email, k, toTenths(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) IncrementBalanceField(ctx context.Context, email string, key leave.LeaveTypeKey, delta generic.Days) (generic.Days, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result generic.Days
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireEmployee(ctx, tx, email); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO employee_balances (email, leave_type, tenths) VALUES (?, ?, ?)
			ON CONFLICT(email, leave_type) DO UPDATE SET tenths = tenths + excluded.tenths
		`, email, string(key), toTenths(delta))
		if err != nil {
			return fmt.Errorf("failed to increment balance: %w", err)
		}
		current, err := balanceField(ctx, tx, email, key)
		result = current
		return err
	})
	return result, err
}

// DebitBalanceField decrements only when the stored value covers days.
func (s *Store) DebitBalanceField(ctx context.Context, email string, key leave.LeaveTypeKey, days generic.Days) (generic.Days, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result generic.Days
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireEmployee(ctx, tx, email); err != nil {
			return err
		}
		need := toTenths(days)
		res, err := tx.ExecContext(ctx, `
			UPDATE employee_balances SET tenths = tenths - ?
			WHERE email = ? AND leave_type = ? AND tenths >= ?
		`, need, email, string(key), need)
		if err != nil {
			return fmt.Errorf("failed to debit balance: %w", err)
		}
		current, err := balanceField(ctx, tx, email, key)
		if err != nil {
			return err
		}
		result = current
		if n, _ := res.RowsAffected(); n == 0 && need > 0 {
			return generic.ErrInsufficientBalance
		}
		return nil
	})
	return result, err
}

func (s *Store) SetBalance(ctx context.Context, email string, balance leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireEmployee(ctx, tx, email); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM employee_balances WHERE email = ?`, email); err != nil {
			return fmt.Errorf("failed to clear balance: %w", err)
		}
		for k, v := range balance {
			if err := upsertBalance(ctx, tx, email, k, toTenths(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SetBalanceFields(ctx context.Context, email string, fields leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireEmployee(ctx, tx, email); err != nil {
			return err
		}
		for k, v := range fields {
			if err := upsertBalance(ctx, tx, email, k, toTenths(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClaimCreditPeriod advances last_credit only when it is older than period.
func (s *Store) ClaimCreditPeriod(ctx context.Context, email string, period leave.CreditPeriod) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE employees SET last_credit = ? WHERE email = ? AND last_credit < ?
	`, int(period), email, int(period))
	if err != nil {
		return false, fmt.Errorf("failed to claim credit period: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if err := requireEmployee(ctx, s.db, email); err != nil {
		return false, err
	}
	return false, nil
}

// =============================================================================
// EMPLOYEE HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*leave.Employee, error) {
	var (
		emp        leave.Employee
		joining    string
		lastCredit int
	)
	err := row.Scan(&emp.ID, &emp.Email, &emp.Name, &emp.ManagerEmail, &joining, &emp.Active, &lastCredit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan employee: %w", err)
	}
	emp.JoiningDate = parseDate(joining)
	emp.LastCredit = leave.CreditPeriod(lastCredit)
	return &emp, nil
}

func (s *Store) loadBalance(ctx context.Context, db execer, email string) (leave.Balance, error) {
	rows, err := db.QueryContext(ctx, `SELECT leave_type, tenths FROM employee_balances WHERE email = ?`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	defer rows.Close()

	bal := make(leave.Balance)
	for rows.Next() {
		var (
			key    string
			tenths int64
		)
		if err := rows.Scan(&key, &tenths); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		bal[leave.LeaveTypeKey(key)] = fromTenths(tenths)
	}
	return bal, rows.Err()
}

func balanceField(ctx context.Context, db execer, email string, key leave.LeaveTypeKey) (generic.Days, error) {
	var tenths int64
	err := db.QueryRowContext(ctx, `
		SELECT tenths FROM employee_balances WHERE email = ? AND leave_type = ?
	`, email, string(key)).Scan(&tenths)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Days{}, nil
	}
	if err != nil {
		return generic.Days{}, fmt.Errorf("failed to read balance: %w", err)
	}
	return fromTenths(tenths), nil
}

func upsertBalance(ctx context.Context, db execer, email string, key leave.LeaveTypeKey, tenths int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO employee_balances (email, leave_type, tenths) VALUES (?, ?, ?)
		ON CONFLICT(email, leave_type) DO UPDATE SET tenths = excluded.tenths
	`, email, string(key), tenths)
	if err != nil {
		return fmt.Errorf("failed to write balance: %w", err)
	}
	return nil
}

func requireEmployee(ctx context.Context, db execer, email string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM employees WHERE email = ?`, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", leave.ErrEmployeeNotFound, email)
	}
	return err
}
