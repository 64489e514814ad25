package testutil

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/afgang/gangmail/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateExchange creates a test exchange whose draw time has already
// passed, so it counts as due.
func (f *Fixtures) CreateExchange(ctx context.Context, name string) models.Exchange {
	f.t.Helper()
	return f.CreateExchangeAt(ctx, name, time.Now().UTC().Add(-time.Hour))
}

// CreateExchangeAt creates a test exchange with the given draw time.
func (f *Fixtures) CreateExchangeAt(ctx context.Context, name string, drawTime time.Time) models.Exchange {
	f.t.Helper()

	now := time.Now().UTC()
	ex := models.Exchange{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Slug:      fmt.Sprintf("%s-%s", name, primitive.NewObjectID().Hex()[:8]),
		DrawTime:  drawTime,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("exchanges").InsertOne(ctx, ex); err != nil {
		f.t.Fatalf("failed to create test exchange: %v", err)
	}
	return ex
}

// CreateParticipant creates a confirmed participant in the given exchange.
func (f *Fixtures) CreateParticipant(ctx context.Context, exchangeID primitive.ObjectID, name, email string) models.Participant {
	f.t.Helper()

	p := models.Participant{
		ID:         primitive.NewObjectID(),
		ExchangeID: exchangeID,
		UserID:     primitive.NewObjectID(),
		Email:      email,
		FullName:   name,
		Confirmed:  true,
		EnrolledAt: time.Now().UTC(),
	}

	if _, err := f.db.Collection("participants").InsertOne(ctx, p); err != nil {
		f.t.Fatalf("failed to create test participant: %v", err)
	}
	return p
}

// CreateAssignment creates an assignment between two participants.
func (f *Fixtures) CreateAssignment(ctx context.Context, exchangeID primitive.ObjectID, sender, recipient models.Participant) models.Assignment {
	f.t.Helper()

	a := models.Assignment{
		ID:             primitive.NewObjectID(),
		ExchangeID:     exchangeID,
		SenderID:       sender.ID,
		SenderUser:     sender.UserID,
		SenderName:     sender.FullName,
		SenderEmail:    sender.Email,
		RecipientID:    recipient.ID,
		RecipientUser:  recipient.UserID,
		RecipientName:  recipient.FullName,
		RecipientEmail: recipient.Email,
		State:          models.StateAssigned,
		CreatedAt:      time.Now().UTC(),
	}

	if _, err := f.db.Collection("assignments").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to create test assignment: %v", err)
	}
	return a
}
