// internal/app/store/notifications/store.go
package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/afgang/gangmail/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no dispatch matches the given key.
var ErrNotFound = errors.New("notification dispatch not found")

// Store provides access to the notification_dispatches ledger.
//
// Every outbound email gets exactly one ledger row, keyed by a
// deterministic dispatch key, so duplicate enqueues (draw retries,
// reconciliation sweeps) collapse instead of double-sending.
type Store struct {
	c *mongo.Collection
}

// New creates a new notifications store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notification_dispatches")}
}

// EnsureIndexes creates the dedup and sweep indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetName("idx_dispatches_key").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}, {Key: "updated_at", Value: 1}},
			Options: options.Index().SetName("idx_dispatches_sweep"),
		},
		{
			Keys:    bson.D{{Key: "assignment_id", Value: 1}},
			Options: options.Index().SetName("idx_dispatches_assignment"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Record upserts a pending ledger row for the given dispatch. It returns
// true when this call created the row; false means the key already
// existed and the caller should not submit a second delivery.
func (s *Store) Record(ctx context.Context, d models.NotificationDispatch) (bool, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":           primitive.NewObjectID(),
			"key":           d.Key,
			"assignment_id": d.AssignmentID,
			"kind":          d.Kind,
			"recipient":     d.Recipient,
			"note":          d.Note,
			"status":        models.DispatchPending,
			"attempts":      0,
			"created_at":    now,
			"updated_at":    now,
		},
	}
	opts := options.Update().SetUpsert(true)
	res, err := s.c.UpdateOne(ctx, bson.M{"key": d.Key}, update, opts)
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

// MarkSent records successful delivery.
func (s *Store) MarkSent(ctx context.Context, key string) error {
	return s.update(ctx, key, bson.M{
		"$set": bson.M{
			"status":          models.DispatchSent,
			"updated_at":      time.Now().UTC(),
			"next_attempt_at": nil,
		},
	})
}

// RecordAttempt records a transient failure and schedules the next try.
func (s *Store) RecordAttempt(ctx context.Context, key string, sendErr string, nextAttempt time.Time) error {
	return s.update(ctx, key, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{
			"last_error":      sendErr,
			"updated_at":      time.Now().UTC(),
			"next_attempt_at": nextAttempt,
		},
	})
}

// MarkFailed records a permanent failure after retries are exhausted. The
// row stays in the ledger so an operator can see what was never delivered.
func (s *Store) MarkFailed(ctx context.Context, key string, sendErr string) error {
	return s.update(ctx, key, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{
			"status":          models.DispatchFailed,
			"last_error":      sendErr,
			"updated_at":      time.Now().UTC(),
			"next_attempt_at": nil,
		},
	})
}

func (s *Store) update(ctx context.Context, key string, update bson.M) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"key": key}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStalled returns pending dispatches the delivery workers have lost
// track of: rows whose scheduled retry time has passed, and rows that
// were recorded but never attempted (no next_attempt_at) and have not
// been touched since pendingBefore. The first kind exists when the
// process died between recording an attempt and delivering the retry;
// the second when it died, or dropped the item on a full queue, between
// recording the row and the first delivery. The reconciliation sweep
// resubmits both.
func (s *Store) ListStalled(ctx context.Context, now, pendingBefore time.Time) ([]models.NotificationDispatch, error) {
	filter := bson.M{
		"status": models.DispatchPending,
		"$or": bson.A{
			bson.M{"next_attempt_at": bson.M{"$lte": now, "$ne": nil}},
			bson.M{"next_attempt_at": nil, "updated_at": bson.M{"$lte": pendingBefore}},
		},
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.NotificationDispatch
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExistsForAssignment reports whether any dispatch row exists for the
// given assignment and template kind.
func (s *Store) ExistsForAssignment(ctx context.Context, assignmentID primitive.ObjectID, kind models.TemplateKind) (bool, error) {
	count, err := s.c.CountDocuments(ctx, bson.M{
		"assignment_id": assignmentID,
		"kind":          kind,
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
