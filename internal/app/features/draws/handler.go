// internal/app/features/draws/handler.go

// Package draws exposes the draw engine's invocation interface over HTTP:
// the due-draw sweep, single-exchange draws, and the sent/received
// lifecycle confirmations. Every response is a discriminated outcome, not
// a bare success flag, so the external scheduler can log precisely.
package draws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/afgang/gangmail/internal/app/store/assignments"
	"github.com/afgang/gangmail/internal/app/store/exchanges"
	"github.com/afgang/gangmail/internal/app/system/delivery"
	"github.com/afgang/gangmail/internal/app/system/draw"
	"github.com/afgang/gangmail/internal/app/system/timeouts"
	"github.com/afgang/gangmail/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler holds dependencies for the draw endpoints.
type Handler struct {
	Orchestrator *draw.Orchestrator
	Delivery     *delivery.Manager
	Log          *zap.Logger
}

// NewHandler constructs a draws Handler.
func NewHandler(orch *draw.Orchestrator, del *delivery.Manager, logger *zap.Logger) *Handler {
	return &Handler{
		Orchestrator: orch,
		Delivery:     del,
		Log:          logger,
	}
}

// RunDue handles POST /draws/run-due: draw every due exchange now.
func (h *Handler) RunDue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeoutCtx(r, timeouts.Long())
	defer cancel()

	results, err := h.Orchestrator.RunDueDraws(ctx, time.Now().UTC())
	if err != nil {
		h.Log.Error("run-due sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// RunDraw handles POST /exchanges/{exchangeID}/draw. The force query
// parameter is the administrative override for the not-due guard.
func (h *Handler) RunDraw(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "exchangeID")
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"

	ctx, cancel := timeoutCtx(r, timeouts.Long())
	defer cancel()

	outcome, err := h.Orchestrator.RunDraw(ctx, id, force, time.Now().UTC())
	if err != nil {
		if errors.Is(err, exchanges.ErrNotFound) {
			writeError(w, http.StatusNotFound, "exchange not found")
			return
		}
		h.Log.Error("draw failed",
			zap.String("exchange_id", id.Hex()),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "draw failed")
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

type noteRequest struct {
	Note string `json:"note"`
}

// MarkSent handles POST /assignments/{assignmentID}/sent.
func (h *Handler) MarkSent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Delivery.MarkSent)
}

// MarkReceived handles POST /assignments/{assignmentID}/received.
func (h *Handler) MarkReceived(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Delivery.MarkReceived)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error)) {
	id, ok := pathID(w, r, "assignmentID")
	if !ok {
		return
	}

	var req noteRequest
	if r.Body != nil {
		// An empty body means an empty note; malformed JSON is an error.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ctx, cancel := timeoutCtx(r, timeouts.Short())
	defer cancel()

	a, err := apply(ctx, id, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, assignments.ErrNotFound):
			writeError(w, http.StatusNotFound, "assignment not found")
		case errors.Is(err, assignments.ErrConflict):
			writeError(w, http.StatusConflict, "assignment already in a later state")
		default:
			h.Log.Error("assignment transition failed",
				zap.String("assignment_id", id.Hex()),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "transition failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func timeoutCtx(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return primitive.NilObjectID, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
