package draws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/afgang/gangmail/internal/app/features/draws"
	"github.com/afgang/gangmail/internal/app/store/assignments"
	"github.com/afgang/gangmail/internal/app/store/exchanges"
	"github.com/afgang/gangmail/internal/app/system/delivery"
	"github.com/afgang/gangmail/internal/app/system/draw"
	"github.com/afgang/gangmail/internal/app/system/opsauth"
	"github.com/afgang/gangmail/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Minimal fakes backing the orchestrator and delivery manager.

type exchangeFake struct {
	byID map[primitive.ObjectID]models.Exchange
}

func (f *exchangeFake) GetByID(ctx context.Context, id primitive.ObjectID) (models.Exchange, error) {
	ex, ok := f.byID[id]
	if !ok {
		return models.Exchange{}, exchanges.ErrNotFound
	}
	return ex, nil
}

func (f *exchangeFake) ListDue(ctx context.Context, now time.Time) ([]models.Exchange, error) {
	var due []models.Exchange
	for _, ex := range f.byID {
		if ex.Due(now) {
			due = append(due, ex)
		}
	}
	return due, nil
}

type participantFake struct {
	pools map[primitive.ObjectID][]models.Participant
}

func (f *participantFake) ListConfirmed(ctx context.Context, exchangeID primitive.ObjectID) ([]models.Participant, error) {
	return f.pools[exchangeID], nil
}

type assignmentFake struct {
	rows map[primitive.ObjectID]*models.Assignment
}

func newAssignmentFake(list ...models.Assignment) *assignmentFake {
	f := &assignmentFake{rows: make(map[primitive.ObjectID]*models.Assignment)}
	for i := range list {
		a := list[i]
		f.rows[a.ID] = &a
	}
	return f
}

func (f *assignmentFake) ListByUsers(ctx context.Context, userIDs []primitive.ObjectID, exclude primitive.ObjectID) ([]models.Assignment, error) {
	return nil, nil
}

func (f *assignmentFake) CommitDraw(ctx context.Context, log *zap.Logger, exchangeID primitive.ObjectID, drawn []models.Assignment) error {
	for i := range drawn {
		a := drawn[i]
		f.rows[a.ID] = &a
	}
	return nil
}

func (f *assignmentFake) GetByID(ctx context.Context, id primitive.ObjectID) (models.Assignment, error) {
	a, ok := f.rows[id]
	if !ok {
		return models.Assignment{}, assignments.ErrNotFound
	}
	return *a, nil
}

func (f *assignmentFake) MarkSent(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error) {
	a, ok := f.rows[id]
	if !ok {
		return models.Assignment{}, assignments.ErrNotFound
	}
	if a.State != models.StateAssigned {
		return models.Assignment{}, assignments.ErrConflict
	}
	a.State = models.StateSent
	a.SenderNote = note
	return *a, nil
}

func (f *assignmentFake) MarkReceived(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error) {
	a, ok := f.rows[id]
	if !ok {
		return models.Assignment{}, assignments.ErrNotFound
	}
	if a.State == models.StateReceived {
		return models.Assignment{}, assignments.ErrConflict
	}
	a.State = models.StateReceived
	a.RecipientNote = note
	return *a, nil
}

func passthrough(next http.Handler) http.Handler { return next }

func testRouter(t *testing.T, exs *exchangeFake, parts *participantFake, asn *assignmentFake) http.Handler {
	t.Helper()

	logger := zap.NewNop()
	orch := &draw.Orchestrator{
		Exchanges:    exs,
		Participants: parts,
		Assignments:  asn,
		Log:          logger,
	}
	del := &delivery.Manager{
		Assignments: asn,
		Exchanges:   exs,
		Log:         logger,
	}
	return draws.Routes(draws.NewHandler(orch, del, logger), passthrough)
}

func dueExchange() models.Exchange {
	return models.Exchange{
		ID:       primitive.NewObjectID(),
		Name:     "Winter Exchange",
		Slug:     "winter-exchange",
		DrawTime: time.Now().UTC().Add(-time.Hour),
	}
}

func confirmedPool(exchangeID primitive.ObjectID, n int) []models.Participant {
	pool := make([]models.Participant, n)
	for i := range pool {
		pool[i] = models.Participant{
			ID:         primitive.NewObjectID(),
			ExchangeID: exchangeID,
			UserID:     primitive.NewObjectID(),
			Email:      "user@example.com",
			FullName:   "Test User",
			Confirmed:  true,
		}
	}
	return pool
}

func TestRunDraw_ReturnsOutcome(t *testing.T) {
	ex := dueExchange()
	router := testRouter(t,
		&exchangeFake{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}},
		&participantFake{pools: map[primitive.ObjectID][]models.Participant{ex.ID: confirmedPool(ex.ID, 3)}},
		newAssignmentFake())

	req := httptest.NewRequest("POST", "/exchanges/"+ex.ID.Hex()+"/draw", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var outcome draw.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to parse outcome: %v", err)
	}
	if outcome.Kind != draw.OutcomeDrawn {
		t.Errorf("kind: got %q, want %q", outcome.Kind, draw.OutcomeDrawn)
	}
	if outcome.Assignments != 3 {
		t.Errorf("assignments: got %d, want 3", outcome.Assignments)
	}
}

func TestRunDraw_NotDueWithoutForce(t *testing.T) {
	ex := dueExchange()
	ex.DrawTime = time.Now().UTC().Add(time.Hour)
	router := testRouter(t,
		&exchangeFake{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}},
		&participantFake{pools: map[primitive.ObjectID][]models.Participant{ex.ID: confirmedPool(ex.ID, 3)}},
		newAssignmentFake())

	req := httptest.NewRequest("POST", "/exchanges/"+ex.ID.Hex()+"/draw", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var outcome draw.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to parse outcome: %v", err)
	}
	if outcome.Kind != draw.OutcomeNotDue {
		t.Errorf("kind: got %q, want %q", outcome.Kind, draw.OutcomeNotDue)
	}

	// Forcing overrides the schedule.
	req = httptest.NewRequest("POST", "/exchanges/"+ex.ID.Hex()+"/draw?force=true", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to parse outcome: %v", err)
	}
	if outcome.Kind != draw.OutcomeDrawn {
		t.Errorf("forced kind: got %q, want %q", outcome.Kind, draw.OutcomeDrawn)
	}
}

func TestRunDraw_UnknownExchange(t *testing.T) {
	router := testRouter(t, &exchangeFake{}, &participantFake{}, newAssignmentFake())

	req := httptest.NewRequest("POST", "/exchanges/"+primitive.NewObjectID().Hex()+"/draw", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRunDraw_InvalidID(t *testing.T) {
	router := testRouter(t, &exchangeFake{}, &participantFake{}, newAssignmentFake())

	req := httptest.NewRequest("POST", "/exchanges/not-an-id/draw", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRunDue_SweepsAllDueExchanges(t *testing.T) {
	ex1, ex2 := dueExchange(), dueExchange()
	router := testRouter(t,
		&exchangeFake{byID: map[primitive.ObjectID]models.Exchange{ex1.ID: ex1, ex2.ID: ex2}},
		&participantFake{pools: map[primitive.ObjectID][]models.Participant{
			ex1.ID: confirmedPool(ex1.ID, 3),
			ex2.ID: confirmedPool(ex2.ID, 4),
		}},
		newAssignmentFake())

	req := httptest.NewRequest("POST", "/draws/run-due", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Results []draw.DueResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(resp.Results))
	}
	for _, r := range resp.Results {
		if r.Outcome.Kind != draw.OutcomeDrawn {
			t.Errorf("exchange %s: got %q, want %q", r.ExchangeID.Hex(), r.Outcome.Kind, draw.OutcomeDrawn)
		}
	}
}

func TestMarkSent_TransitionsAssignment(t *testing.T) {
	ex := dueExchange()
	a := models.Assignment{
		ID:         primitive.NewObjectID(),
		ExchangeID: ex.ID,
		State:      models.StateAssigned,
	}
	router := testRouter(t,
		&exchangeFake{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}},
		&participantFake{},
		newAssignmentFake(a))

	body := strings.NewReader(`{"note":"posted this morning"}`)
	req := httptest.NewRequest("POST", "/assignments/"+a.ID.Hex()+"/sent", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var updated models.Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to parse assignment: %v", err)
	}
	if updated.State != models.StateSent {
		t.Errorf("state: got %q, want %q", updated.State, models.StateSent)
	}
	if updated.SenderNote != "posted this morning" {
		t.Errorf("note: got %q", updated.SenderNote)
	}
}

func TestMarkSent_EmptyBodyAllowed(t *testing.T) {
	ex := dueExchange()
	a := models.Assignment{ID: primitive.NewObjectID(), ExchangeID: ex.ID, State: models.StateAssigned}
	router := testRouter(t,
		&exchangeFake{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}},
		&participantFake{},
		newAssignmentFake(a))

	req := httptest.NewRequest("POST", "/assignments/"+a.ID.Hex()+"/sent", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMarkSent_MalformedBody(t *testing.T) {
	ex := dueExchange()
	a := models.Assignment{ID: primitive.NewObjectID(), ExchangeID: ex.ID, State: models.StateAssigned}
	router := testRouter(t,
		&exchangeFake{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}},
		&participantFake{},
		newAssignmentFake(a))

	req := httptest.NewRequest("POST", "/assignments/"+a.ID.Hex()+"/sent", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestMarkSent_Conflict(t *testing.T) {
	ex := dueExchange()
	a := models.Assignment{ID: primitive.NewObjectID(), ExchangeID: ex.ID, State: models.StateSent}
	router := testRouter(t,
		&exchangeFake{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}},
		&participantFake{},
		newAssignmentFake(a))

	req := httptest.NewRequest("POST", "/assignments/"+a.ID.Hex()+"/sent", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestMarkReceived_TransitionsAssignment(t *testing.T) {
	ex := dueExchange()
	a := models.Assignment{ID: primitive.NewObjectID(), ExchangeID: ex.ID, State: models.StateSent}
	router := testRouter(t,
		&exchangeFake{byID: map[primitive.ObjectID]models.Exchange{ex.ID: ex}},
		&participantFake{},
		newAssignmentFake(a))

	req := httptest.NewRequest("POST", "/assignments/"+a.ID.Hex()+"/received", strings.NewReader(`{"note":"arrived safely"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var updated models.Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to parse assignment: %v", err)
	}
	if updated.State != models.StateReceived {
		t.Errorf("state: got %q, want %q", updated.State, models.StateReceived)
	}
}

func TestMarkReceived_UnknownAssignment(t *testing.T) {
	router := testRouter(t, &exchangeFake{}, &participantFake{}, newAssignmentFake())

	req := httptest.NewRequest("POST", "/assignments/"+primitive.NewObjectID().Hex()+"/received", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRoutes_RequireOperatorToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash failed: %v", err)
	}

	logger := zap.NewNop()
	h := draws.NewHandler(&draw.Orchestrator{
		Exchanges:    &exchangeFake{},
		Participants: &participantFake{},
		Assignments:  newAssignmentFake(),
		Log:          logger,
	}, &delivery.Manager{Assignments: newAssignmentFake(), Exchanges: &exchangeFake{}, Log: logger}, logger)
	router := draws.Routes(h, opsauth.Middleware(string(hash), logger))

	req := httptest.NewRequest("POST", "/draws/run-due", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest("POST", "/draws/run-due", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status: got %d, want %d", rec.Code, http.StatusOK)
	}
}
