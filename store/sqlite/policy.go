package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// POLICY (leave.PolicyStore)
// =============================================================================

// GetActivePolicy returns the most recently saved policy, or nil.
func (s *Store) GetActivePolicy(ctx context.Context) (*leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT document_json FROM leave_policies ORDER BY seq DESC LIMIT 1
	`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	return s.policies.ParsePolicy([]byte(doc))
}

// SavePolicy appends a new version. Older versions stay for audit.
func (s *Store) SavePolicy(ctx context.Context, p leave.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.policies.MarshalPolicy(&p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leave_policies (id, document_json, created_at) VALUES (?, ?, ?)
	`, p.ID, string(doc), formatTime(timeNow()))
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// PolicyHistory lists saved policy ids, newest first.
func (s *Store) PolicyHistory(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM leave_policies ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
