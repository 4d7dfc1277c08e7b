package handlers

import (
	"net/http"

	"github.com/marmos91/shufflepool/pkg/readpool"
)

// PoolHandler exposes pool introspection endpoints.
type PoolHandler struct {
	pool PoolInspector
}

// NewPoolHandler creates a pool handler. pool may be nil.
func NewPoolHandler(pool PoolInspector) *PoolHandler {
	return &PoolHandler{pool: pool}
}

// PlanResponse describes the capacity plan of a pool.
type PlanResponse struct {
	TotalBytes            int64 `json:"total_bytes"`
	PooledBytes           int64 `json:"pooled_bytes"`
	BufferSize            int   `json:"buffer_size"`
	NumTotalBuffers       int   `json:"num_total_buffers"`
	NumBuffersPerRequest  int   `json:"num_buffers_per_request"`
	MaxConcurrentRequests int   `json:"max_concurrent_requests"`
}

// Stats handles GET /pool - a snapshot of the pool counters.
func (h *PoolHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("pool not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(h.pool.Stats()))
}

// Plan handles GET /pool/plan.
func (h *PoolHandler) Plan(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("pool not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(planResponse(h.pool.Plan())))
}

func planResponse(p readpool.Plan) PlanResponse {
	return PlanResponse{
		TotalBytes:            p.TotalBytes,
		PooledBytes:           p.PooledBytes(),
		BufferSize:            p.BufferSize,
		NumTotalBuffers:       p.NumTotalBuffers,
		NumBuffersPerRequest:  p.NumBuffersPerRequest,
		MaxConcurrentRequests: p.MaxConcurrentRequests(),
	}
}
