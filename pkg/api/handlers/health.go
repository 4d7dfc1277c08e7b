package handlers

import (
	"net/http"

	"github.com/marmos91/shufflepool/pkg/readpool"
)

// PoolInspector is the read-only view of a pool used by the HTTP handlers.
// *readpool.Pool implements it.
type PoolInspector interface {
	Stats() readpool.Stats
	Plan() readpool.Plan
	IsDestroyed() bool
}

// HealthHandler handles health check endpoints.
//
// Health endpoints provide:
//   - Liveness probe: Is the process running?
//   - Readiness probe: Can the pool still serve buffer requests?
type HealthHandler struct {
	pool PoolInspector
}

// NewHealthHandler creates a new health handler.
//
// The pool parameter may be nil, in which case the readiness check
// returns unhealthy status.
func NewHealthHandler(pool PoolInspector) *HealthHandler {
	return &HealthHandler{pool: pool}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "shufflepool",
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 503 Service Unavailable when there is no pool or the pool has been
// destroyed. A pool that has not allocated yet is ready: allocation happens on
// the first request.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("pool not initialized"))
		return
	}

	stats := h.pool.Stats()
	if stats.State == readpool.StateDestroyed.String() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(stats, "pool destroyed"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"pool_id":   stats.ID,
		"state":     stats.State,
		"available": stats.Available,
		"waiters":   stats.Waiters,
	}))
}
