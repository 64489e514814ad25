// internal/app/store/participants/store.go
package participants

import (
	"context"
	"errors"
	"time"

	"github.com/afgang/gangmail/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrAlreadyEnrolled is returned when the user already joined the exchange.
	ErrAlreadyEnrolled = errors.New("user already enrolled in exchange")
	// ErrNotFound is returned when no participant matches the given id.
	ErrNotFound = errors.New("participant not found")
)

// Store provides access to the participants collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new participants store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("participants")}
}

// EnsureIndexes creates the unique (exchange, user) enrollment index and
// the pool-listing index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "exchange_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetName("idx_participants_enrollment").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "exchange_id", Value: 1}, {Key: "confirmed", Value: 1}},
			Options: options.Index().SetName("idx_participants_pool"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Enroll adds a user to an exchange. Duplicate enrollment maps the
// duplicate-key error to ErrAlreadyEnrolled.
func (s *Store) Enroll(ctx context.Context, p models.Participant) (models.Participant, error) {
	p.ID = primitive.NewObjectID()
	p.EnrolledAt = time.Now().UTC()

	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Participant{}, ErrAlreadyEnrolled
		}
		return models.Participant{}, err
	}
	return p, nil
}

// Confirm marks a participant as confirmed for the draw.
func (s *Store) Confirm(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"confirmed": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConfirmed returns the confirmed participant pool for an exchange,
// in enrollment order.
func (s *Store) ListConfirmed(ctx context.Context, exchangeID primitive.ObjectID) ([]models.Participant, error) {
	filter := bson.M{"exchange_id": exchangeID, "confirmed": true}
	opts := options.Find().SetSort(bson.D{{Key: "enrolled_at", Value: 1}})

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Participant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
