package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// AUDIT LOGS (leave.AuditStore)
// =============================================================================

func (s *Store) AppendCreditLog(ctx context.Context, e leave.CreditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := json.Marshal(e.PreviousBalance)
	if err != nil {
		return fmt.Errorf("failed to encode credit log: %w", err)
	}
	credits, err := json.Marshal(e.CreditsApplied)
	if err != nil {
		return fmt.Errorf("failed to encode credit log: %w", err)
	}
	next, err := json.Marshal(e.NewBalance)
	if err != nil {
		return fmt.Errorf("failed to encode credit log: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credit_logs
		(id, employee_id, employee_email, credit_month, credit_year, is_year_start_reset,
		 previous_json, credits_json, new_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.EmployeeID, e.EmployeeEmail, int(e.CreditMonth), e.CreditYear, e.IsYearStartReset,
		string(prev), string(credits), string(next), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append credit log: %w", err)
	}
	return nil
}

// ListCreditLogs returns entries newest first. Empty email means all.
func (s *Store) ListCreditLogs(ctx context.Context, email string, limit int) ([]leave.CreditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := logQuery(`
		SELECT id, employee_id, employee_email, credit_month, credit_year, is_year_start_reset,
		       previous_json, credits_json, new_json, created_at
		FROM credit_logs`, email, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit logs: %w", err)
	}
	defer rows.Close()

	var entries []leave.CreditLogEntry
	for rows.Next() {
		var (
			e                   leave.CreditLogEntry
			month               int
			prev, credits, next string
			createdAt           string
		)
		err := rows.Scan(&e.ID, &e.EmployeeID, &e.EmployeeEmail, &month, &e.CreditYear,
			&e.IsYearStartReset, &prev, &credits, &next, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit log: %w", err)
		}
		e.CreditMonth = time.Month(month)
		e.CreatedAt = parseTime(createdAt)
		if err := json.Unmarshal([]byte(prev), &e.PreviousBalance); err != nil {
			return nil, fmt.Errorf("failed to decode credit log %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(credits), &e.CreditsApplied); err != nil {
			return nil, fmt.Errorf("failed to decode credit log %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(next), &e.NewBalance); err != nil {
			return nil, fmt.Errorf("failed to decode credit log %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AppendAdjustmentLog(ctx context.Context, e leave.AdjustmentLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustment_logs
		(id, employee_id, employee_email, action_type, leave_type, days_tenths, reason,
		 performed_by, previous_tenths, new_tenths, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.EmployeeID, e.EmployeeEmail, string(e.ActionType), string(e.LeaveType),
		toTenths(e.Days), nullString(e.Reason), e.PerformedBy,
		toTenths(e.PreviousBalance), toTenths(e.NewBalance), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append adjustment log: %w", err)
	}
	return nil
}

// ListAdjustmentLogs returns entries newest first. Empty email means all.
func (s *Store) ListAdjustmentLogs(ctx context.Context, email string, limit int) ([]leave.AdjustmentLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := logQuery(`
		SELECT id, employee_id, employee_email, action_type, leave_type, days_tenths, reason,
		       performed_by, previous_tenths, new_tenths, created_at
		FROM adjustment_logs`, email, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustment logs: %w", err)
	}
	defer rows.Close()

	var entries []leave.AdjustmentLogEntry
	for rows.Next() {
		var (
			e                    leave.AdjustmentLogEntry
			action, leaveType    string
			days, previous, next int64
			reason               sql.NullString
			createdAt            string
		)
		err := rows.Scan(&e.ID, &e.EmployeeID, &e.EmployeeEmail, &action, &leaveType, &days,
			&reason, &e.PerformedBy, &previous, &next, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adjustment log: %w", err)
		}
		e.ActionType = leave.AdjustmentAction(action)
		e.LeaveType = leave.LeaveTypeKey(leaveType)
		e.Days = fromTenths(days)
		e.Reason = reason.String
		e.PreviousBalance = fromTenths(previous)
		e.NewBalance = fromTenths(next)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AppendDeletionLog(ctx context.Context, e leave.DeletionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := json.Marshal(e.Before)
	if err != nil {
		return fmt.Errorf("failed to encode deletion log: %w", err)
	}
	approvals, err := json.Marshal(e.Approvals)
	if err != nil {
		return fmt.Errorf("failed to encode deletion log: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deletion_logs
		(id, application_id, employee_id, employee_email, deleted_by, role,
		 before_json, refunded_tenths, approvals_json, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ApplicationID, e.EmployeeID, e.EmployeeEmail, e.DeletedBy, string(e.Role),
		string(before), toTenths(e.Refunded), string(approvals), formatTime(e.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to append deletion log: %w", err)
	}
	return nil
}

// ListDeletionLogs returns entries newest first. Empty email means all.
func (s *Store) ListDeletionLogs(ctx context.Context, email string, limit int) ([]leave.DeletionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := logQuery(`
		SELECT id, application_id, employee_id, employee_email, deleted_by, role,
		       before_json, refunded_tenths, approvals_json, deleted_at
		FROM deletion_logs`, email, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deletion logs: %w", err)
	}
	defer rows.Close()

	var entries []leave.DeletionLogEntry
	for rows.Next() {
		var (
			e                 leave.DeletionLogEntry
			role              string
			before, approvals string
			refunded          int64
			deletedAt         string
		)
		err := rows.Scan(&e.ID, &e.ApplicationID, &e.EmployeeID, &e.EmployeeEmail, &e.DeletedBy,
			&role, &before, &refunded, &approvals, &deletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deletion log: %w", err)
		}
		e.Role = leave.Role(role)
		e.Refunded = fromTenths(refunded)
		e.DeletedAt = parseTime(deletedAt)
		if err := json.Unmarshal([]byte(before), &e.Before); err != nil {
			return nil, fmt.Errorf("failed to decode deletion log %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(approvals), &e.Approvals); err != nil {
			return nil, fmt.Errorf("failed to decode deletion log %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func logQuery(base, email string, limit int) (string, []any) {
	var args []any
	if email != "" {
		base += " WHERE employee_email = ?"
		args = append(args, email)
	}
	base += " ORDER BY seq DESC"
	if limit > 0 {
		base += " LIMIT ?"
		args = append(args, limit)
	}
	return base, args
}
