package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// APPLICATIONS (leave.ApplicationStore)
// =============================================================================

func (s *Store) FindByID(ctx context.Context, id string) (*leave.Application, error) {
	var doc applicationDoc
	err := s.applications.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return s.applicationFromDoc(doc)
}

func (s *Store) Insert(ctx context.Context, app leave.Application) error {
	doc, err := s.applicationToDoc(app)
	if err != nil {
		return fmt.Errorf("failed to encode application: %w", err)
	}
	_, err = s.applications.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("application %s already exists", app.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update guarded by the expectations.
func (s *Store) UpdateFields(ctx context.Context, id string, upd leave.ApplicationUpdate) error {
	update, err := s.updateDoc(upd)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	res, err := s.applications.UpdateOne(ctx, casFilter(id, upd), update)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return s.missOrConflict(ctx, id)
}

func (s *Store) AppendApproval(ctx context.Context, id string, rec leave.ApprovalRecord) error {
	res, err := s.applications.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$push": bson.M{"approvals": approvalToDoc(rec)}},
	)
	if err != nil {
		return fmt.Errorf("failed to append approval: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.applications.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	return nil
}

func (s *Store) FindByQuery(ctx context.Context, f leave.ApplicationFilter) ([]leave.Application, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.applications.Find(ctx, queryFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []applicationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode applications: %w", err)
	}
	out := make([]leave.Application, 0, len(docs))
	for _, d := range docs {
		app, err := s.applicationFromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *app)
	}
	return out, nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	n, err := s.applications.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", leave.ErrApplicationNotFound, id)
	}
	return generic.ErrConcurrentModification
}
