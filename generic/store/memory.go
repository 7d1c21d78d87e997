// Package store provides in-memory JournalStore implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// MEMORY JOURNAL - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     []generic.Transaction
	byEntity    map[generic.EntityID][]int
	byReference map[string][]int
	idempotency map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		byEntity:    make(map[generic.EntityID][]int),
		byReference: make(map[string][]int),
		idempotency: make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}

	i := len(m.entries)
	m.entries = append(m.entries, tx)
	m.byEntity[tx.EntityID] = append(m.byEntity[tx.EntityID], i)
	if tx.ReferenceID != "" {
		m.byReference[tx.ReferenceID] = append(m.byReference[tx.ReferenceID], i)
	}
	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) LoadByEntity(_ context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.byEntity[entityID]), nil
}

func (m *Memory) LoadByReference(_ context.Context, referenceID string) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.byReference[referenceID]), nil
}

// Len returns the number of journaled entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) collect(idx []int) []generic.Transaction {
	result := make([]generic.Transaction, 0, len(idx))
	for _, i := range idx {
		result = append(result, m.entries[i])
	}
	return result
}

// Compile-time check
var _ generic.JournalStore = (*Memory)(nil)
