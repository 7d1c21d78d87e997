package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// APPLICATIONS (leave.ApplicationStore)
// =============================================================================

const applicationColumns = `
	id, employee_id, employee_email, manager_email, leave_type, dates_json,
	is_half_day, days_tenths, status, reason, policy_snapshot_json, version,
	created_at, updated_at`

func (s *Store) FindByID(ctx context.Context, id string) (*leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM leave_applications WHERE id = ?`, id)
	app, err := s.scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	approvals, err := s.loadApprovals(ctx, id)
	if err != nil {
		return nil, err
	}
	app.Approvals = approvals
	return app, nil
}

func (s *Store) Insert(ctx context.Context, app leave.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.Version == 0 {
		app.Version = 1
	}
	datesJSON, err := json.Marshal(app.Dates)
	if err != nil {
		return fmt.Errorf("failed to encode dates: %w", err)
	}
	snapshot, err := s.policies.MarshalItem(app.PolicySnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode policy snapshot: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO leave_applications (`+applicationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			app.ID, app.EmployeeID, app.EmployeeEmail, app.ManagerEmail, string(app.LeaveType),
			string(datesJSON), app.IsHalfDay, toTenths(app.DaysCount), string(app.Status),
			nullString(app.Reason), nullString(string(snapshot)), app.Version,
			formatTime(app.CreatedAt), formatTime(app.UpdatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("application %s already exists", app.ID)
			}
			return fmt.Errorf("failed to insert application: %w", err)
		}
		for _, rec := range app.Approvals {
			if err := insertApproval(ctx, tx, app.ID, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateFields applies a partial update. ExpectStatus and ExpectVersion
// become part of the WHERE clause, so a stale writer affects no row.
func (s *Store) UpdateFields(ctx context.Context, id string, upd leave.ApplicationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sets = []string{"version = version + 1"}
		args []any
	)
	if upd.LeaveType != nil {
		sets = append(sets, "leave_type = ?")
		args = append(args, string(*upd.LeaveType))
	}
	if upd.Dates != nil {
		datesJSON, err := json.Marshal(upd.Dates)
		if err != nil {
			return fmt.Errorf("failed to encode dates: %w", err)
		}
		sets = append(sets, "dates_json = ?")
		args = append(args, string(datesJSON))
	}
	if upd.IsHalfDay != nil {
		sets = append(sets, "is_half_day = ?")
		args = append(args, *upd.IsHalfDay)
	}
	if upd.DaysCount != nil {
		sets = append(sets, "days_tenths = ?")
		args = append(args, toTenths(*upd.DaysCount))
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.PolicySnapshot != nil {
		snapshot, err := s.policies.MarshalItem(upd.PolicySnapshot)
		if err != nil {
			return fmt.Errorf("failed to encode policy snapshot: %w", err)
		}
		sets = append(sets, "policy_snapshot_json = ?")
		args = append(args, string(snapshot))
	}
	if !upd.UpdatedAt.IsZero() {
		sets = append(sets, "updated_at = ?")
		args = append(args, formatTime(upd.UpdatedAt))
	}

	query := "UPDATE leave_applications SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if upd.ExpectStatus != "" {
		query += " AND status = ?"
		args = append(args, string(upd.ExpectStatus))
	}
	if upd.ExpectVersion != 0 {
		query += " AND version = ?"
		args = append(args, upd.ExpectVersion)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	exists, err := applicationExists(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	return generic.ErrConcurrentModification
}

func (s *Store) AppendApproval(ctx context.Context, id string, rec leave.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := applicationExists(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	return insertApproval(ctx, s.db, id, rec)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM leave_applications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	return nil
}

func (s *Store) FindByQuery(ctx context.Context, f leave.ApplicationFilter) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.EmployeeEmail != "" {
		where = append(where, "employee_email = ?")
		args = append(args, f.EmployeeEmail)
	}
	if f.ManagerEmail != "" {
		where = append(where, "manager_email = ?")
		args = append(args, f.ManagerEmail)
	}
	if f.LeaveType != "" {
		where = append(where, "leave_type = ?")
		args = append(args, string(f.LeaveType))
	}
	if f.ExcludeID != "" {
		where = append(where, "id != ?")
		args = append(args, f.ExcludeID)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + applicationColumns + ` FROM leave_applications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	var apps []leave.Application
	for rows.Next() {
		app, err := s.scanApplication(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		apps = append(apps, *app)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range apps {
		approvals, err := s.loadApprovals(ctx, apps[i].ID)
		if err != nil {
			return nil, err
		}
		apps[i].Approvals = approvals
	}
	return apps, nil
}

// =============================================================================
// APPLICATION HELPERS
// =============================================================================

func (s *Store) scanApplication(row rowScanner) (*leave.Application, error) {
	var (
		app        leave.Application
		leaveType  string
		datesJSON  string
		daysTenths int64
		status     string
		reason     sql.NullString
		snapshot   sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(
		&app.ID, &app.EmployeeID, &app.EmployeeEmail, &app.ManagerEmail, &leaveType, &datesJSON,
		&app.IsHalfDay, &daysTenths, &status, &reason, &snapshot, &app.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	if err := json.Unmarshal([]byte(datesJSON), &app.Dates); err != nil {
		return nil, fmt.Errorf("failed to decode dates of %s: %w", app.ID, err)
	}
	if snapshot.Valid {
		item, err := s.policies.UnmarshalItem([]byte(snapshot.String))
		if err != nil {
			return nil, fmt.Errorf("failed to decode policy snapshot of %s: %w", app.ID, err)
		}
		app.PolicySnapshot = item
	}
	app.LeaveType = leave.LeaveTypeKey(leaveType)
	app.DaysCount = fromTenths(daysTenths)
	app.Status = leave.Status(status)
	app.Reason = reason.String
	app.CreatedAt = parseTime(createdAt)
	app.UpdatedAt = parseTime(updatedAt)
	return &app, nil
}

func (s *Store) loadApprovals(ctx context.Context, id string) ([]leave.ApprovalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor, role, action, comment, before_json, after_json, at
		FROM application_approvals WHERE application_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals: %w", err)
	}
	defer rows.Close()

	var records []leave.ApprovalRecord
	for rows.Next() {
		var (
			rec     leave.ApprovalRecord
			role    string
			action  string
			comment sql.NullString
			before  sql.NullString
			after   sql.NullString
			at      string
		)
		if err := rows.Scan(&rec.Actor, &role, &action, &comment, &before, &after, &at); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		rec.Role = leave.Role(role)
		rec.Action = leave.ApprovalAction(action)
		rec.Comment = comment.String
		rec.At = parseTime(at)
		if rec.Before, err = decodeSnapshot(before); err != nil {
			return nil, err
		}
		if rec.After, err = decodeSnapshot(after); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func insertApproval(ctx context.Context, db execer, id string, rec leave.ApprovalRecord) error {
	before, err := encodeSnapshot(rec.Before)
	if err != nil {
		return err
	}
	after, err := encodeSnapshot(rec.After)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO application_approvals (application_id, actor, role, action, comment, before_json, after_json, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.Actor, string(rec.Role), string(rec.Action), nullString(rec.Comment), before, after, formatTime(rec.At))
	if err != nil {
		return fmt.Errorf("failed to append approval: %w", err)
	}
	return nil
}

func encodeSnapshot(snap *leave.ApplicationSnapshot) (sql.NullString, error) {
	if snap == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeSnapshot(ns sql.NullString) (*leave.ApplicationSnapshot, error) {
	if !ns.Valid {
		return nil, nil
	}
	var snap leave.ApplicationSnapshot
	if err := json.Unmarshal([]byte(ns.String), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func applicationExists(ctx context.Context, db execer, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM leave_applications WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
