package readpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ============================================================================
// Prometheus Metrics for the read buffer pool
// ============================================================================

// Label constants for metrics.
const (
	LabelStatus = "status"
	LabelPath   = "path"
)

// Request status values.
const (
	StatusGranted     = "granted"
	StatusTimeout     = "timeout"
	StatusDestroyed   = "destroyed"
	StatusOOM         = "oom"
	StatusAllocFailed = "alloc_failed"
	StatusCanceled    = "canceled"
)

// Recycle path values.
const (
	PathPooled   = "pooled"
	PathReleased = "released"
)

// Metrics provides Prometheus metrics for a Pool. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	waitDuration       prometheus.Histogram
	availableBuffers   prometheus.Gauge
	outstandingBuffers prometheus.Gauge
	waiters            prometheus.Gauge
	recycledTotal      *prometheus.CounterVec
	allocationFailures prometheus.Counter
	releaseErrors      prometheus.Counter
}

// NewMetrics creates and registers pool metrics.
// If registry is nil, metrics will be created but not registered (useful for testing).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shufflepool",
				Subsystem: "readpool",
				Name:      "requests_total",
				Help:      "Total number of batch requests by outcome",
			},
			[]string{LabelStatus},
		),

		waitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "shufflepool",
				Subsystem: "readpool",
				Name:      "wait_duration_seconds",
				Help:      "Time a request spent waiting for free buffers",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
			},
		),

		availableBuffers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "shufflepool",
				Subsystem: "readpool",
				Name:      "available_buffers",
				Help:      "Number of buffers currently free in the pool",
			},
		),

		outstandingBuffers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "shufflepool",
				Subsystem: "readpool",
				Name:      "outstanding_buffers",
				Help:      "Number of buffers currently held by callers",
			},
		),

		waiters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "shufflepool",
				Subsystem: "readpool",
				Name:      "waiters",
				Help:      "Number of requests blocked waiting for buffers",
			},
		),

		recycledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shufflepool",
				Subsystem: "readpool",
				Name:      "recycled_buffers_total",
				Help:      "Total number of recycled buffers, by whether they were pooled or released",
			},
			[]string{LabelPath},
		),

		allocationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "shufflepool",
				Subsystem: "readpool",
				Name:      "allocation_failures_total",
				Help:      "Number of failed bulk allocations",
			},
		),

		releaseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "shufflepool",
				Subsystem: "readpool",
				Name:      "release_errors_total",
				Help:      "Number of buffers the allocator failed to release",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.requestsTotal,
			m.waitDuration,
			m.availableBuffers,
			m.outstandingBuffers,
			m.waiters,
			m.recycledTotal,
			m.allocationFailures,
			m.releaseErrors,
		)
	}

	return m
}

// ObserveRequest records the outcome of a request and how long it waited.
func (m *Metrics) ObserveRequest(status string, waited time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(status).Inc()
	m.waitDuration.Observe(waited.Seconds())
}

// SetBuffers sets the free and outstanding buffer gauges.
func (m *Metrics) SetBuffers(available, outstanding int) {
	if m == nil {
		return
	}
	m.availableBuffers.Set(float64(available))
	m.outstandingBuffers.Set(float64(outstanding))
}

// SetWaiters sets the number of blocked requests.
func (m *Metrics) SetWaiters(count int) {
	if m == nil {
		return
	}
	m.waiters.Set(float64(count))
}

// ObserveRecycle records n recycled buffers taking the given path.
func (m *Metrics) ObserveRecycle(path string, n int) {
	if m == nil {
		return
	}
	m.recycledTotal.WithLabelValues(path).Add(float64(n))
}

// ObserveAllocationFailure records a failed bulk allocation.
func (m *Metrics) ObserveAllocationFailure() {
	if m == nil {
		return
	}
	m.allocationFailures.Inc()
}

// ObserveReleaseError records a buffer the allocator could not release.
func (m *Metrics) ObserveReleaseError() {
	if m == nil {
		return
	}
	m.releaseErrors.Inc()
}
