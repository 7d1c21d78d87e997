package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// POLICY (leave.PolicyStore)
// =============================================================================

func (s *Store) GetActivePolicy(ctx context.Context) (*leave.Policy, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	var doc policyDoc
	err := s.policyDocs.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return s.policies.ParsePolicy([]byte(doc.Document))
}

// SavePolicy appends a new version; ObjectIDs order the history.
func (s *Store) SavePolicy(ctx context.Context, p leave.Policy) error {
	data, err := s.policies.MarshalPolicy(&p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	_, err = s.policyDocs.InsertOne(ctx, policyDoc{PolicyID: p.ID, Document: string(data), SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOGS (leave.AuditStore)
// =============================================================================

func (s *Store) AppendCreditLog(ctx context.Context, e leave.CreditLogEntry) error {
	if _, err := s.creditLogs.InsertOne(ctx, creditLogToDoc(e)); err != nil {
		return fmt.Errorf("failed to append credit log: %w", err)
	}
	return nil
}

func (s *Store) ListCreditLogs(ctx context.Context, email string, limit int) ([]leave.CreditLogEntry, error) {
	cursor, err := s.creditLogs.Find(ctx, emailFilter(email), newestFirst(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query credit logs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []creditLogDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode credit logs: %w", err)
	}
	out := make([]leave.CreditLogEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, creditLogFromDoc(d))
	}
	return out, nil
}

func (s *Store) AppendAdjustmentLog(ctx context.Context, e leave.AdjustmentLogEntry) error {
	if _, err := s.adjustments.InsertOne(ctx, adjustmentToDoc(e)); err != nil {
		return fmt.Errorf("failed to append adjustment log: %w", err)
	}
	return nil
}

func (s *Store) ListAdjustmentLogs(ctx context.Context, email string, limit int) ([]leave.AdjustmentLogEntry, error) {
	cursor, err := s.adjustments.Find(ctx, emailFilter(email), newestFirst(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustment logs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []adjustmentLogDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode adjustment logs: %w", err)
	}
	out := make([]leave.AdjustmentLogEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, adjustmentFromDoc(d))
	}
	return out, nil
}

func (s *Store) AppendDeletionLog(ctx context.Context, e leave.DeletionLogEntry) error {
	if _, err := s.deletions.InsertOne(ctx, deletionToDoc(e)); err != nil {
		return fmt.Errorf("failed to append deletion log: %w", err)
	}
	return nil
}

func (s *Store) ListDeletionLogs(ctx context.Context, email string, limit int) ([]leave.DeletionLogEntry, error) {
	cursor, err := s.deletions.Find(ctx, emailFilter(email), newestFirst(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query deletion logs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []deletionLogDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode deletion logs: %w", err)
	}
	out := make([]leave.DeletionLogEntry, 0, len(docs))
	for _, d := range docs {
		e, err := deletionFromDoc(d)
		if err != nil {
			return nil, fmt.Errorf("failed to decode deletion log %s: %w", d.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func emailFilter(email string) bson.M {
	if email == "" {
		return bson.M{}
	}
	return bson.M{"employee_email": email}
}

func newestFirst(limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

// =============================================================================
// JOURNAL (generic.JournalStore)
// =============================================================================

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	_, err := s.journal.InsertOne(ctx, journalToDoc(tx))
	if mongo.IsDuplicateKeyError(err) {
		return generic.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	n, err := s.journal.CountDocuments(ctx, bson.M{"idempotency_key": idempotencyKey})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) LoadByEntity(ctx context.Context, entityID generic.EntityID) ([]generic.Transaction, error) {
	return s.loadJournal(ctx, bson.M{"entity_id": string(entityID)})
}

func (s *Store) LoadByReference(ctx context.Context, referenceID string) ([]generic.Transaction, error) {
	return s.loadJournal(ctx, bson.M{"reference_id": referenceID})
}

func (s *Store) loadJournal(ctx context.Context, filter bson.M) ([]generic.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.journal.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []journalDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}
	out := make([]generic.Transaction, 0, len(docs))
	for _, d := range docs {
		out = append(out, journalFromDoc(d))
	}
	return out, nil
}
