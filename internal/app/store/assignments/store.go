// internal/app/store/assignments/store.go
package assignments

import (
	"context"
	"errors"
	"time"

	"github.com/afgang/gangmail/internal/app/system/txn"
	"github.com/afgang/gangmail/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no assignment matches the given id.
	ErrNotFound = errors.New("assignment not found")
	// ErrAlreadyDrawn is returned by CommitDraw when another draw won the
	// compare-and-set on the exchange's drawn flag.
	ErrAlreadyDrawn = errors.New("exchange already drawn")
	// ErrConflict is returned when a state transition is rejected by its
	// current-state precondition (e.g. marking sent twice).
	ErrConflict = errors.New("assignment state conflict")
)

// Store provides access to the assignments collection. It also owns the
// draw commit, which spans assignments and the exchange's drawn flag.
type Store struct {
	db *mongo.Database
	c  *mongo.Collection
}

// New creates a new assignments store.
func New(db *mongo.Database) *Store {
	return &Store{db: db, c: db.Collection("assignments")}
}

// EnsureIndexes creates the per-exchange uniqueness indexes that back the
// derangement invariants, plus the reconciliation scan index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "exchange_id", Value: 1}, {Key: "sender_id", Value: 1}},
			Options: options.Index().SetName("idx_assignments_sender").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "exchange_id", Value: 1}, {Key: "recipient_id", Value: 1}},
			Options: options.Index().SetName("idx_assignments_recipient").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_assignments_state"),
		},
		{
			Keys:    bson.D{{Key: "sender_user", Value: 1}},
			Options: options.Index().SetName("idx_assignments_sender_user"),
		},
		{
			Keys:    bson.D{{Key: "recipient_user", Value: 1}},
			Options: options.Index().SetName("idx_assignments_recipient_user"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// GetByID returns one assignment or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Assignment, error) {
	var a models.Assignment
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return models.Assignment{}, ErrNotFound
	}
	if err != nil {
		return models.Assignment{}, err
	}
	return a, nil
}

// ListByUsers returns every assignment in which any of the given users
// took part as sender or recipient, excluding the given exchange. The
// history lookup uses this to find prior pairings regardless of how many
// unrelated exchanges have been drawn since; read-only.
func (s *Store) ListByUsers(ctx context.Context, userIDs []primitive.ObjectID, exclude primitive.ObjectID) ([]models.Assignment, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"exchange_id": bson.M{"$ne": exclude},
		"$or": bson.A{
			bson.M{"sender_user": bson.M{"$in": userIDs}},
			bson.M{"recipient_user": bson.M{"$in": userIDs}},
		},
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Assignment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByExchange returns the number of assignments in one exchange.
func (s *Store) CountByExchange(ctx context.Context, exchangeID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"exchange_id": exchangeID})
}

// CommitDraw persists a full draw: it inserts every assignment row and
// flips the exchange's drawn flag, as one transaction when the server
// supports them.
//
// The drawn flip is a conditional update on drawn == false. Losing that
// compare-and-set returns ErrAlreadyDrawn. On the no-transaction fallback
// path the rows are inserted first and the flag flipped last, and any
// failure deletes the rows this call inserted, so the exchange is left
// undrawn and a retry is safe.
func (s *Store) CommitDraw(ctx context.Context, log *zap.Logger, exchangeID primitive.ObjectID, drawn []models.Assignment) error {
	if len(drawn) == 0 {
		return errors.New("commit draw: no assignments")
	}

	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(drawn))
	ids := make([]primitive.ObjectID, 0, len(drawn))
	for i := range drawn {
		drawn[i].CreatedAt = now
		docs = append(docs, drawn[i])
		ids = append(ids, drawn[i].ID)
	}

	err := txn.Run(ctx, s.db, log, func(ctx context.Context) error {
		if _, err := s.c.InsertMany(ctx, docs); err != nil {
			return err
		}
		res, err := s.db.Collection("exchanges").UpdateOne(ctx,
			bson.M{"_id": exchangeID, "drawn": false},
			bson.M{"$set": bson.M{
				"drawn":              true,
				"drawn_completed_at": now,
				"updated_at":         now,
			}})
		if err != nil {
			return err
		}
		if res.ModifiedCount == 0 {
			return ErrAlreadyDrawn
		}
		return nil
	})
	if err != nil {
		// Inside a real transaction the abort already removed the rows and
		// this delete matches nothing. On the fallback path it undoes the
		// insert so the exchange stays retryable.
		if _, cleanupErr := s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); cleanupErr != nil {
			log.Error("draw commit cleanup failed",
				zap.String("exchange_id", exchangeID.Hex()),
				zap.Error(cleanupErr))
		}
		// On the fallback path a concurrent commit can win the unique
		// (exchange_id, sender_id) index before this one reaches the
		// drawn-flag compare-and-set; that race is the same benign outcome.
		if wafflemongo.IsDup(err) {
			return ErrAlreadyDrawn
		}
		return err
	}
	return nil
}

// MarkSent transitions an assignment from assigned to sent, storing the
// sender's note. Any other current state returns ErrConflict.
func (s *Store) MarkSent(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error) {
	now := time.Now().UTC()
	return s.transition(ctx, id,
		bson.M{"_id": id, "state": models.StateAssigned},
		bson.M{"$set": bson.M{
			"state":       models.StateSent,
			"sent_at":     now,
			"sender_note": note,
		}})
}

// MarkReceived transitions an assignment to received from either assigned
// or sent, storing the recipient's note. Received is terminal, so a
// repeat call returns ErrConflict.
func (s *Store) MarkReceived(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error) {
	now := time.Now().UTC()
	return s.transition(ctx, id,
		bson.M{"_id": id, "state": bson.M{"$in": bson.A{models.StateAssigned, models.StateSent}}},
		bson.M{"$set": bson.M{
			"state":          models.StateReceived,
			"received_at":    now,
			"recipient_note": note,
		}})
}

// transition applies one guarded single-document update. A filter miss is
// disambiguated into ErrNotFound vs ErrConflict with a follow-up read.
func (s *Store) transition(ctx context.Context, id primitive.ObjectID, filter, update bson.M) (models.Assignment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var a models.Assignment
	err := s.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&a)
	if err == mongo.ErrNoDocuments {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return models.Assignment{}, getErr
		}
		return models.Assignment{}, ErrConflict
	}
	if err != nil {
		return models.Assignment{}, err
	}
	return a, nil
}

// ListAssignedBefore returns assignments still in the assigned state that
// were created before the cutoff. The reconciliation sweep uses this to
// find draws whose notifications may never have been dispatched.
func (s *Store) ListAssignedBefore(ctx context.Context, cutoff time.Time) ([]models.Assignment, error) {
	filter := bson.M{
		"state":      models.StateAssigned,
		"created_at": bson.M{"$lt": cutoff},
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Assignment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
