package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Handler exposes liveness and readiness endpoints next to the metrics.
type Handler struct {
	Probes  map[string]Probe
	Timeout time.Duration
}

// Router mounts /livez, /readyz and, when metrics is not nil, /metrics.
func (h Handler) Router(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/livez", h.Live)
	r.Get("/readyz", h.Ready)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status, ok := h.Check(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Check runs every probe with its own timeout and reports "ok" or the error
// text per dependency.
func (h Handler) Check(ctx context.Context) (map[string]string, bool) {
	if len(h.Probes) == 0 {
		return map[string]string{"dependencies": "unavailable"}, false
	}
	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, h.timeout())
		err := h.Probes[name](probeCtx)
		cancel()
		if err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	return status, healthy
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
