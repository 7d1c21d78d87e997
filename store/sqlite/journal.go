package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// JOURNAL (generic.JournalStore)
// =============================================================================

// Append adds an entry to the journal. There is no UPDATE or DELETE path
// for journal_entries anywhere in this package.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries
		(id, entity_id, resource, delta_tenths, balance_after_tenths, tx_type,
		 reference_id, reason, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(tx.ID), string(tx.EntityID), tx.Resource,
		toTenths(tx.Delta), toTenths(tx.BalanceAfter), string(tx.Type),
		nullString(tx.ReferenceID), nullString(tx.Reason), nullString(tx.IdempotencyKey),
		nullString(tx.CreatedBy), formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "idempotency_key") {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Exists checks if an idempotency key has been used.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM journal_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) LoadByEntity(ctx context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryJournal(ctx, journalSelect+` WHERE entity_id = ? ORDER BY seq ASC`, string(entityID))
}

func (s *Store) LoadByReference(ctx context.Context, referenceID string) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryJournal(ctx, journalSelect+` WHERE reference_id = ? ORDER BY seq ASC`, referenceID)
}

// Recent returns the newest entries across all employees (for admin view).
func (s *Store) Recent(ctx context.Context, limit int) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryJournal(ctx, journalSelect+` ORDER BY seq DESC LIMIT ?`, limit)
}

const journalSelect = `
	SELECT id, entity_id, resource, delta_tenths, balance_after_tenths, tx_type,
	       reference_id, reason, idempotency_key, created_by, created_at
	FROM journal_entries`

func (s *Store) queryJournal(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var txs []generic.Transaction
	for rows.Next() {
		tx, err := scanJournalEntry(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanJournalEntry(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		id, entityID   string
		delta, after   int64
		txType         string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(&id, &entityID, &tx.Resource, &delta, &after, &txType,
		&referenceID, &reason, &idempotencyKey, &createdBy, &createdAt)
	if err != nil {
		return tx, fmt.Errorf("failed to scan journal entry: %w", err)
	}

	tx.ID = generic.TransactionID(id)
	tx.EntityID = generic.EntityID(entityID)
	tx.Delta = fromTenths(delta)
	tx.BalanceAfter = fromTenths(after)
	tx.Type = generic.TransactionType(txType)
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedAt = parseTime(createdAt)
	return tx, nil
}
