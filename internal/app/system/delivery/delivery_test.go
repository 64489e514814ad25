package delivery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/afgang/gangmail/internal/app/store/assignments"
	"github.com/afgang/gangmail/internal/app/store/exchanges"
	"github.com/afgang/gangmail/internal/app/system/delivery"
	"github.com/afgang/gangmail/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// memAssignments applies the same state preconditions as the Mongo store.
type memAssignments struct {
	mu   sync.Mutex
	rows map[primitive.ObjectID]*models.Assignment
}

func newMemAssignments(list ...models.Assignment) *memAssignments {
	m := &memAssignments{rows: make(map[primitive.ObjectID]*models.Assignment)}
	for i := range list {
		a := list[i]
		m.rows[a.ID] = &a
	}
	return m
}

func (m *memAssignments) GetByID(ctx context.Context, id primitive.ObjectID) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return models.Assignment{}, assignments.ErrNotFound
	}
	return *a, nil
}

func (m *memAssignments) MarkSent(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return models.Assignment{}, assignments.ErrNotFound
	}
	if a.State != models.StateAssigned {
		return models.Assignment{}, assignments.ErrConflict
	}
	now := time.Now().UTC()
	a.State = models.StateSent
	a.SentAt = &now
	a.SenderNote = note
	return *a, nil
}

func (m *memAssignments) MarkReceived(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return models.Assignment{}, assignments.ErrNotFound
	}
	if a.State != models.StateAssigned && a.State != models.StateSent {
		return models.Assignment{}, assignments.ErrConflict
	}
	now := time.Now().UTC()
	a.State = models.StateReceived
	a.ReceivedAt = &now
	a.RecipientNote = note
	return *a, nil
}

type memExchanges struct {
	byID map[primitive.ObjectID]models.Exchange
	err  error
}

func (m *memExchanges) GetByID(ctx context.Context, id primitive.ObjectID) (models.Exchange, error) {
	if m.err != nil {
		return models.Exchange{}, m.err
	}
	ex, ok := m.byID[id]
	if !ok {
		return models.Exchange{}, exchanges.ErrNotFound
	}
	return ex, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	sent     []string
	received []string
}

func (n *recordingNotifier) GiftSent(ctx context.Context, ex models.Exchange, a models.Assignment, note string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) GiftReceived(ctx context.Context, ex models.Exchange, a models.Assignment, note string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, note)
}

func newTestAssignment(exchangeID primitive.ObjectID) models.Assignment {
	return models.Assignment{
		ID:             primitive.NewObjectID(),
		ExchangeID:     exchangeID,
		SenderName:     "Alice",
		SenderEmail:    "alice@example.com",
		RecipientName:  "Bob",
		RecipientEmail: "bob@example.com",
		State:          models.StateAssigned,
		CreatedAt:      time.Now().UTC(),
	}
}

func newManager(store *memAssignments, exs *memExchanges, n *recordingNotifier) *delivery.Manager {
	m := &delivery.Manager{
		Assignments: store,
		Exchanges:   exs,
		Log:         zap.NewNop(),
	}
	if n != nil {
		m.Notifier = n
	}
	return m
}

func TestMarkSent_TransitionsAndNotifies(t *testing.T) {
	ex := models.Exchange{ID: primitive.NewObjectID(), Name: "Winter Exchange"}
	a := newTestAssignment(ex.ID)
	store := newMemAssignments(a)
	notifier := &recordingNotifier{}
	m := newManager(store, &memExchanges{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}}, notifier)

	updated, err := m.MarkSent(context.Background(), a.ID, "gone to the post office")
	if err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if updated.State != models.StateSent {
		t.Errorf("state: got %q, want %q", updated.State, models.StateSent)
	}
	if updated.SentAt == nil {
		t.Error("SentAt not set")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("GiftSent calls: got %d, want 1", len(notifier.sent))
	}
	if notifier.sent[0] != "gone to the post office" {
		t.Errorf("note: got %q", notifier.sent[0])
	}
}

func TestMarkSent_TwiceIsConflict(t *testing.T) {
	ex := models.Exchange{ID: primitive.NewObjectID(), Name: "Winter Exchange"}
	a := newTestAssignment(ex.ID)
	store := newMemAssignments(a)
	m := newManager(store, &memExchanges{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}}, &recordingNotifier{})

	if _, err := m.MarkSent(context.Background(), a.ID, ""); err != nil {
		t.Fatalf("first MarkSent failed: %v", err)
	}
	_, err := m.MarkSent(context.Background(), a.ID, "")
	if !errors.Is(err, assignments.ErrConflict) {
		t.Errorf("second MarkSent: expected ErrConflict, got %v", err)
	}
}

func TestMarkReceived_FromAssignedSkipsSent(t *testing.T) {
	// The recipient can confirm receipt before the sender marks sent.
	ex := models.Exchange{ID: primitive.NewObjectID(), Name: "Winter Exchange"}
	a := newTestAssignment(ex.ID)
	store := newMemAssignments(a)
	notifier := &recordingNotifier{}
	m := newManager(store, &memExchanges{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}}, notifier)

	updated, err := m.MarkReceived(context.Background(), a.ID, "lovely card")
	if err != nil {
		t.Fatalf("MarkReceived failed: %v", err)
	}
	if updated.State != models.StateReceived {
		t.Errorf("state: got %q, want %q", updated.State, models.StateReceived)
	}
	if updated.SentAt != nil {
		t.Error("SentAt should stay unset when receipt precedes sending")
	}
	if len(notifier.received) != 1 {
		t.Errorf("GiftReceived calls: got %d, want 1", len(notifier.received))
	}
}

func TestMarkReceived_AfterSent(t *testing.T) {
	ex := models.Exchange{ID: primitive.NewObjectID(), Name: "Winter Exchange"}
	a := newTestAssignment(ex.ID)
	store := newMemAssignments(a)
	m := newManager(store, &memExchanges{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}}, &recordingNotifier{})

	if _, err := m.MarkSent(context.Background(), a.ID, ""); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	updated, err := m.MarkReceived(context.Background(), a.ID, "")
	if err != nil {
		t.Fatalf("MarkReceived failed: %v", err)
	}
	if updated.State != models.StateReceived {
		t.Errorf("state: got %q, want %q", updated.State, models.StateReceived)
	}
}

func TestMarkReceived_IsTerminal(t *testing.T) {
	ex := models.Exchange{ID: primitive.NewObjectID(), Name: "Winter Exchange"}
	a := newTestAssignment(ex.ID)
	store := newMemAssignments(a)
	m := newManager(store, &memExchanges{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}}, &recordingNotifier{})

	if _, err := m.MarkReceived(context.Background(), a.ID, ""); err != nil {
		t.Fatalf("MarkReceived failed: %v", err)
	}

	if _, err := m.MarkReceived(context.Background(), a.ID, ""); !errors.Is(err, assignments.ErrConflict) {
		t.Errorf("repeat MarkReceived: expected ErrConflict, got %v", err)
	}
	if _, err := m.MarkSent(context.Background(), a.ID, ""); !errors.Is(err, assignments.ErrConflict) {
		t.Errorf("MarkSent after received: expected ErrConflict, got %v", err)
	}
}

func TestMarkSent_UnknownAssignment(t *testing.T) {
	m := newManager(newMemAssignments(), &memExchanges{}, &recordingNotifier{})

	_, err := m.MarkSent(context.Background(), primitive.NewObjectID(), "")
	if !errors.Is(err, assignments.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkSent_SanitizesNote(t *testing.T) {
	ex := models.Exchange{ID: primitive.NewObjectID(), Name: "Winter Exchange"}
	a := newTestAssignment(ex.ID)
	store := newMemAssignments(a)
	notifier := &recordingNotifier{}
	m := newManager(store, &memExchanges{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}}, notifier)

	updated, err := m.MarkSent(context.Background(), a.ID, `<script>alert("x")</script>on its way`)
	if err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if updated.SenderNote != "on its way" {
		t.Errorf("persisted note: got %q, want markup stripped", updated.SenderNote)
	}
	if notifier.sent[0] != "on its way" {
		t.Errorf("notified note: got %q, want markup stripped", notifier.sent[0])
	}
}

func TestMarkSent_ExchangeLookupFailureKeepsTransition(t *testing.T) {
	a := newTestAssignment(primitive.NewObjectID())
	store := newMemAssignments(a)
	notifier := &recordingNotifier{}
	m := newManager(store, &memExchanges{err: errors.New("mongo down")}, notifier)

	updated, err := m.MarkSent(context.Background(), a.ID, "")
	if err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if updated.State != models.StateSent {
		t.Errorf("state: got %q, want %q", updated.State, models.StateSent)
	}
	if len(notifier.sent) != 0 {
		t.Error("notification fired despite exchange lookup failure")
	}
}
