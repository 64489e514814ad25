// internal/app/store/exchanges/store.go
package exchanges

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

var (
	// ErrNotFound is returned when no exchange matches the given id.
	ErrNotFound = errors.New("exchange not found")
)

// Store provides access to the exchanges collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new exchanges store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("exchanges")}
}

// EnsureIndexes creates the indexes the draw engine depends on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetName("idx_exchanges_slug").SetUnique(true),
		},
		{
			// Serves the due-exchange sweep: drawn == false, draw_time <= now.
			Keys:    bson.D{{Key: "drawn", Value: 1}, {Key: "draw_time", Value: 1}},
			Options: options.Index().SetName("idx_exchanges_due"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a new exchange. ID, timestamps, and the drawn flag are
// set here; callers provide name, slug, draw time, and lookback window.
func (s *Store) Create(ctx context.Context, ex models.Exchange) (models.Exchange, error) {
	now := time.Now().UTC()
	ex.ID = primitive.NewObjectID()
	ex.Drawn = false
	ex.DrawnCompletedAt = nil
	ex.CreatedAt = now
	ex.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, ex); err != nil {
		return models.Exchange{}, err
	}
	return ex, nil
}

// GetByID returns one exchange or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Exchange, error) {
	var ex models.Exchange
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&ex)
	if err == mongo.ErrNoDocuments {
		return models.Exchange{}, ErrNotFound
	}
	if err != nil {
		return models.Exchange{}, err
	}
	return ex, nil
}

// ListDue returns exchanges whose draw time has passed and which have not
// been drawn, oldest scheduled first.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]models.Exchange, error) {
	filter := bson.M{
		"drawn":     false,
		"draw_time": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "draw_time", Value: 1}})

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Exchange
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
