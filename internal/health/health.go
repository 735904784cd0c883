// Package health provides the HTTP health check handler.
//
// GET /health reports whether the gateway can serve conversation turns. The
// response is a JSON object with a top-level "status" field ("healthy",
// "initializing" or "unhealthy"), a "models_loaded" boolean that playback
// clients poll before enabling recording, and a "checks" map with the
// per-dependency results.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// checkTimeout is the maximum time a single dependency probe may take
// before its context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe. Check should return nil when the
// dependency is usable and a non-nil error describing the failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "asr", "lipsync"). It
	// appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body.
type result struct {
	Status       string            `json:"status"`
	ModelsLoaded bool              `json:"models_loaded"`
	Checks       map[string]string `json:"checks,omitempty"`
}

// Handler serves the /health endpoint. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
	ready    atomic.Bool
}

// New creates a [Handler] that evaluates the given checkers on each request.
// The checkers run sequentially in the order provided. The handler reports
// "initializing" until [Handler.SetReady] is called.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// SetReady marks startup complete. Before this call the handler reports
// "initializing" without probing dependencies.
func (h *Handler) SetReady() {
	h.ready.Store(true)
}

// Health reports the gateway's ability to serve turns:
//
//   - 200 "initializing" with models_loaded=false before [Handler.SetReady].
//   - 200 "healthy" with models_loaded=true when every checker passes.
//   - 503 "unhealthy" when any checker fails; models_loaded stays true
//     because the backends were reachable at startup.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeJSON(w, http.StatusOK, result{Status: "initializing"})
		return
	}

	checks := make(map[string]string, len(h.checkers))
	allOK := true
	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "healthy", ModelsLoaded: true, Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /health route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
