/*
Package mongo provides a MongoDB-backed implementation of the storage interfaces.

PURPOSE:
  Same contracts as store/sqlite, for deployments that keep HR data in
  MongoDB. Every atomicity requirement of leave/store.go maps onto a
  single-document operation:

    IncrementBalanceField  $inc on leave_balance.<key>
    DebitBalanceField      $inc with filter leave_balance.<key> >= days
    UpdateFields           $set + $inc version with filter on status/version
    AppendApproval         $push approvals
    ClaimCreditPeriod      $set last_credit with filter last_credit < period

COLLECTIONS:
  employees, leave_applications, leave_policies, credit_logs,
  adjustment_logs, deletion_logs, journal_entries

QUANTITIES:
  Balances are stored as integer tenths so $inc stays exact.

SEE ALSO:
  - leave/store.go: Interface definitions
  - documents.go: BSON document shapes and conversions
*/
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	EmployeeCollection    = "employees"
	ApplicationCollection = "leave_applications"
	PolicyCollection      = "leave_policies"
	CreditLogCollection   = "credit_logs"
	AdjustmentCollection  = "adjustment_logs"
	DeletionCollection    = "deletion_logs"
	JournalCollection     = "journal_entries"
)

// Store implements all storage interfaces on one MongoDB database.
type Store struct {
	client       *mongo.Client
	employees    *mongo.Collection
	applications *mongo.Collection
	policyDocs   *mongo.Collection
	creditLogs   *mongo.Collection
	adjustments  *mongo.Collection
	deletions    *mongo.Collection
	journal      *mongo.Collection
	policies     *factory.PolicyFactory
}

// Compile-time checks
var (
	_ leave.EmployeeStore    = (*Store)(nil)
	_ leave.ApplicationStore = (*Store)(nil)
	_ leave.PolicyStore      = (*Store)(nil)
	_ leave.AuditStore       = (*Store)(nil)
	_ generic.JournalStore   = (*Store)(nil)
)

// Connect dials uri, pings the primary and prepares indexes.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := New(client, client.Database(database))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle. client may be nil when the caller
// owns the connection.
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:       client,
		employees:    db.Collection(EmployeeCollection),
		applications: db.Collection(ApplicationCollection),
		policyDocs:   db.Collection(PolicyCollection),
		creditLogs:   db.Collection(CreditLogCollection),
		adjustments:  db.Collection(AdjustmentCollection),
		deletions:    db.Collection(DeletionCollection),
		journal:      db.Collection(JournalCollection),
		policies:     factory.NewPolicyFactory(),
	}
}

// Close disconnects the client if the store owns one.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique indexes the contracts rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.employees, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{s.applications, mongo.IndexModel{
			Keys: bson.D{{Key: "employee_email", Value: 1}, {Key: "status", Value: 1}},
		}},
		{s.applications, mongo.IndexModel{
			Keys: bson.D{{Key: "manager_email", Value: 1}},
		}},
		{s.journal, mongo.IndexModel{
			Keys: bson.D{{Key: "idempotency_key", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
		}},
		{s.journal, mongo.IndexModel{
			Keys: bson.D{{Key: "reference_id", Value: 1}},
		}},
		{s.creditLogs, mongo.IndexModel{
			Keys: bson.D{{Key: "employee_email", Value: 1}},
		}},
		{s.adjustments, mongo.IndexModel{
			Keys: bson.D{{Key: "employee_email", Value: 1}},
		}},
		{s.deletions, mongo.IndexModel{
			Keys: bson.D{{Key: "employee_email", Value: 1}},
		}},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateOne(ctx, ix.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}
