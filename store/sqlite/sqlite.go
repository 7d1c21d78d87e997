/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence contract the leave engine consumes
  (employees, applications, policy, audit logs, movement journal) on a
  single SQLite database. It is the default durable driver for a single
  node deployment.

INTERFACES IMPLEMENTED:
  leave.EmployeeStore:     Employee records and per-type balances
  leave.ApplicationStore:  Leave applications and their approval history
  leave.PolicyStore:       Versioned policy documents
  leave.AuditStore:        Credit and adjustment logs
  generic.JournalStore:    Append-only movement journal

KEY TABLES:
  employees:             One row per employee, last_credit as YYYYMM
  employee_balances:     One row per (employee, leave type)
  leave_applications:    Applications, version column for compare-and-set
  application_approvals: Approval history, cascades on delete
  leave_policies:        Every saved policy; the latest row is active
  credit_logs:           Monthly credit audit trail
  adjustment_logs:       Manual adjustment audit trail
  deletion_logs:         Deleted applications, with their last state
  journal_entries:       Signed movements, unique idempotency key

QUANTITIES:
  Days are stored as INTEGER tenths. A balance of 2.5 is stored as 25,
  which keeps the conditional debit exact:
    UPDATE employee_balances SET tenths = tenths - ? WHERE ... AND tenths >= ?

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Multi-statement writes also run
  in a database transaction so a crash never leaves half an update.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
  - store/mongo: MongoDB implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	policies *factory.PolicyFactory
}

// Compile-time checks
var (
	_ leave.EmployeeStore    = (*Store)(nil)
	_ leave.ApplicationStore = (*Store)(nil)
	_ leave.PolicyStore      = (*Store)(nil)
	_ leave.AuditStore       = (*Store)(nil)
	_ generic.JournalStore   = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection would open a fresh empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, policies: factory.NewPolicyFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		manager_email TEXT NOT NULL DEFAULT '',
		joining_date TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_credit INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_manager
		ON employees(manager_email);

	-- Balances, one row per leave type
	CREATE TABLE IF NOT EXISTS employee_balances (
		email TEXT NOT NULL REFERENCES employees(email) ON DELETE CASCADE,
		leave_type TEXT NOT NULL,
		tenths INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (email, leave_type)
	);

	-- Leave applications
	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL DEFAULT '',
		employee_email TEXT NOT NULL,
		manager_email TEXT NOT NULL DEFAULT '',
		leave_type TEXT NOT NULL,
		dates_json TEXT NOT NULL,
		is_half_day BOOLEAN NOT NULL DEFAULT FALSE,
		days_tenths INTEGER NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		policy_snapshot_json TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_employee_status
		ON leave_applications(employee_email, status);
	CREATE INDEX IF NOT EXISTS idx_applications_manager
		ON leave_applications(manager_email);

	-- Approval history
	CREATE TABLE IF NOT EXISTS application_approvals (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		application_id TEXT NOT NULL REFERENCES leave_applications(id) ON DELETE CASCADE,
		actor TEXT NOT NULL,
		role TEXT NOT NULL,
		action TEXT NOT NULL,
		comment TEXT,
		before_json TEXT,
		after_json TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_application
		ON application_approvals(application_id);

	-- Policy history (latest row is active)
	CREATE TABLE IF NOT EXISTS leave_policies (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		document_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Audit logs
	CREATE TABLE IF NOT EXISTS credit_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		employee_email TEXT NOT NULL,
		credit_month INTEGER NOT NULL,
		credit_year INTEGER NOT NULL,
		is_year_start_reset BOOLEAN NOT NULL DEFAULT FALSE,
		previous_json TEXT NOT NULL,
		credits_json TEXT NOT NULL,
		new_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credit_logs_email
		ON credit_logs(employee_email);

	CREATE TABLE IF NOT EXISTS adjustment_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		employee_email TEXT NOT NULL,
		action_type TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		days_tenths INTEGER NOT NULL,
		reason TEXT,
		performed_by TEXT NOT NULL,
		previous_tenths INTEGER NOT NULL,
		new_tenths INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustment_logs_email
		ON adjustment_logs(employee_email);

	CREATE TABLE IF NOT EXISTS deletion_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		application_id TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		employee_email TEXT NOT NULL,
		deleted_by TEXT NOT NULL,
		role TEXT NOT NULL,
		before_json TEXT NOT NULL,
		refunded_tenths INTEGER NOT NULL DEFAULT 0,
		approvals_json TEXT NOT NULL,
		deleted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deletion_logs_email
		ON deletion_logs(employee_email);

	-- Movement journal (append-only)
	CREATE TABLE IF NOT EXISTS journal_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		entity_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		delta_tenths INTEGER NOT NULL,
		balance_after_tenths INTEGER NOT NULL DEFAULT 0,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_entity
		ON journal_entries(entity_id);
	CREATE INDEX IF NOT EXISTS idx_journal_reference
		ON journal_entries(reference_id) WHERE reference_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"journal_entries", "deletion_logs", "adjustment_logs", "credit_logs", "leave_policies",
		"application_approvals", "leave_applications", "employee_balances", "employees",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a database transaction. The caller holds s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

var timeNow = time.Now

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func parseDate(s string) generic.Date {
	if s == "" {
		return generic.Date{}
	}
	d, _ := generic.ParseDate(s)
	return d
}

func toTenths(d generic.Days) int64 { return d.Tenths() }

func fromTenths(n int64) generic.Days { return generic.DaysFromTenths(n) }

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
