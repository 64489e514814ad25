// internal/app/features/draws/routes.go
package draws

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns a subrouter serving the draw engine's invocation
// interface. The authz middleware is the operator token guard.
func Routes(h *Handler, authz func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authz)

	r.Post("/draws/run-due", h.RunDue)
	r.Post("/exchanges/{exchangeID}/draw", h.RunDraw)
	r.Post("/assignments/{assignmentID}/sent", h.MarkSent)
	r.Post("/assignments/{assignmentID}/received", h.MarkReceived)

	return r
}
