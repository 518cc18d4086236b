package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/bjaus/relay"
)

// HealthServer exposes /healthz and /readyz endpoints.
type HealthServer struct {
	ready atomic.Bool
}

// NewHealthServer creates a new health server.
func NewHealthServer() *HealthServer {
	return &HealthServer{}
}

// SetReady marks the process as ready.
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports the readiness flag.
func (h *HealthServer) Ready() bool {
	return h.ready.Load()
}

// Handler returns an http.Handler with health and readiness endpoints.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	return mux
}

// MarkReady returns a unit that flips h to ready when the session's READY
// event passes through the chain.
func MarkReady[S any](h *HealthServer) relay.Middleware[S] {
	return relay.MiddlewareFunc[S](func(ctx context.Context, state S, ec *relay.EventContext, next relay.Next[S]) error {
		if _, ok := ec.Event.(*relay.Ready); ok {
			h.SetReady(true)
		}
		return next.Run(ctx, state, ec)
	})
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
	}
}
