/*
journal.go - Append-only movement journal

PURPOSE:
  Every signed increment applied to a stored balance (debit, refund,
  credit, adjustment, recalculation) is recorded here. The stored balance
  is the value the engine reads; the journal explains how it got there.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. IDEMPOTENT: Same idempotency key = same entry (no duplicates)

CORRECTIONS:
  A wrong debit is never edited. A reversal entry with the opposite sign
  is appended, so the net of all entries for one reference equals the
  amount currently held against it.

EXAMPLE FLOW:
  1. Manager approves 2 days casual leave: consumption -2 (ref app-1)
  2. Admin rejects it:                     reversal    +2 (ref app-1)

  NetByReference(app-1) = 0, so nothing is held for app-1.

SEE ALSO:
  - store.go: Low-level persistence interface
  - leave/ledger.go: Writes an entry for every balance mutation
*/
package generic

import "context"

// Journal is the history of all balance movements.
type Journal interface {
	// Append adds an entry. Fails if the idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// Transactions returns all entries for an entity, oldest first.
	Transactions(ctx context.Context, entityID EntityID) ([]Transaction, error)

	// ByReference returns all entries for a reference, oldest first.
	ByReference(ctx context.Context, referenceID string) ([]Transaction, error)

	// NetByReference sums the deltas journaled against a reference for one
	// resource. A debited-and-refunded application nets to zero.
	NetByReference(ctx context.Context, referenceID, resource string) (Days, error)
}

// =============================================================================
// DEFAULT JOURNAL - Implementation using JournalStore
// =============================================================================

type DefaultJournal struct {
	Store JournalStore
}

func NewJournal(store JournalStore) *DefaultJournal {
	return &DefaultJournal{Store: store}
}

func (j *DefaultJournal) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := j.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return j.Store.Append(ctx, tx)
}

func (j *DefaultJournal) Transactions(ctx context.Context, entityID EntityID) ([]Transaction, error) {
	return j.Store.LoadByEntity(ctx, entityID)
}

func (j *DefaultJournal) ByReference(ctx context.Context, referenceID string) ([]Transaction, error) {
	return j.Store.LoadByReference(ctx, referenceID)
}

func (j *DefaultJournal) NetByReference(ctx context.Context, referenceID, resource string) (Days, error) {
	txs, err := j.Store.LoadByReference(ctx, referenceID)
	if err != nil {
		return Days{}, err
	}
	var net Days
	for _, tx := range txs {
		if tx.Resource == resource {
			net = net.Add(tx.Delta)
		}
	}
	return net, nil
}
