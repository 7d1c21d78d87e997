/*
store.go - Persistence interface for the movement journal

PURPOSE:
  Defines the interface between the journal and the database. The
  balance itself lives on the employee record (see leave.EmployeeStore);
  the journal keeps the history of every signed increment applied to it.

APPEND-ONLY CONTRACT:
  - Append(): Single entry write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  An entry may carry an idempotency key. If the key already exists the
  write is rejected with ErrDuplicateIdempotencyKey, which lets the
  monthly credit job and retried HTTP calls skip work already journaled.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for testing
  - store/sqlite/journal.go: SQLite
  - store/mongo/records.go: MongoDB

SEE ALSO:
  - journal.go: Higher-level interface using JournalStore
*/
package generic

import "context"

// JournalStore handles persistence of journal entries.
// IMPORTANT: JournalStore is APPEND-ONLY.
type JournalStore interface {
	// Append persists an entry. Returns ErrDuplicateIdempotencyKey if the
	// entry's key already exists.
	Append(ctx context.Context, tx Transaction) error

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// LoadByEntity returns all entries for an entity, oldest first.
	LoadByEntity(ctx context.Context, entityID EntityID) ([]Transaction, error)

	// LoadByReference returns all entries carrying the given reference
	// (application id, credit period, adjustment id), oldest first.
	LoadByReference(ctx context.Context, referenceID string) ([]Transaction, error)
}
