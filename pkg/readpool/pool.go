package readpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/shufflepool/internal/logger"
	"github.com/marmos91/shufflepool/internal/telemetry"
)

// State is the lifecycle state of a Pool.
type State int

const (
	// StateUninitialized means no memory has been allocated yet.
	StateUninitialized State = iota

	// StateInitialized means the bulk allocation succeeded and requests are served.
	StateInitialized

	// StateDestroyed is terminal. Requests fail and recycled segments are released.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Options configures a Pool.
type Options struct {
	// TotalBytes is the memory budget of the pool.
	TotalBytes int64

	// BufferSize is the size of every segment.
	BufferSize int

	// RequestTimeout bounds how long a single RequestBuffers call may block.
	RequestTimeout time.Duration

	// Allocator provides segment memory. Defaults to DefaultAllocator().
	Allocator Allocator

	// Metrics records pool metrics. Optional.
	Metrics *Metrics

	// Keys names the configuration options quoted in error messages.
	Keys ConfigKeys

	// ID identifies the pool in logs and traces. Defaults to a random UUID.
	ID string
}

// Pool is a fixed-capacity pool of equally-sized segments handed out in batches.
//
// Thread safety: all methods are safe for concurrent use.
type Pool struct {
	id      string
	plan    Plan
	timeout time.Duration
	alloc   Allocator
	metrics *Metrics
	keys    ConfigKeys

	mu          sync.Mutex
	state       State
	free        *queue.Queue
	outstanding int
	waiters     int
	waitCh      chan struct{}
	nextID      uint64

	requests           uint64
	granted            uint64
	timeouts           uint64
	allocationFailures uint64
}

// New validates opts and creates an uninitialized pool. Memory is allocated by the
// first RequestBuffers call.
func New(opts Options) (*Pool, error) {
	plan, err := NewPlan(opts.TotalBytes, opts.BufferSize, opts.Keys)
	if err != nil {
		return nil, err
	}
	if opts.RequestTimeout <= 0 {
		return nil, &ConfigError{Field: "RequestTimeout", Message: "request timeout must be positive"}
	}

	alloc := opts.Allocator
	if alloc == nil {
		alloc = DefaultAllocator()
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &Pool{
		id:      id,
		plan:    plan,
		timeout: opts.RequestTimeout,
		alloc:   alloc,
		metrics: opts.Metrics,
		keys:    opts.Keys,
		free:    queue.New(),
		waitCh:  make(chan struct{}),
	}, nil
}

// RequestBuffers returns exactly NumBuffersPerRequest segments, blocking until
// enough are free.
//
// It fails with an *OutOfMemoryError if the bulk allocation triggered by the first
// request runs out of memory, with a wrapped allocator error if that allocation
// fails for another reason, with ErrTimeout if the batch is not available within
// the request timeout, with ErrDestroyed if the pool is destroyed before or while
// waiting, and with ctx.Err() (wrapped) if ctx is done first.
func (p *Pool) RequestBuffers(ctx context.Context) ([]*Segment, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRequestBuffers,
		telemetry.PoolID(p.id), telemetry.Buffers(p.plan.NumBuffersPerRequest))
	defer span.End()
	ctx = p.logContext(ctx)

	start := time.Now()
	segs, status, err := p.requestBuffers(ctx)
	waited := time.Since(start)

	p.metrics.ObserveRequest(status, waited)
	span.SetAttributes(telemetry.Outcome(status), telemetry.WaitMs(logger.Since(start)))
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return segs, err
}

func (p *Pool) requestBuffers(ctx context.Context) ([]*Segment, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests++
	if p.state == StateDestroyed {
		return nil, StatusDestroyed, ErrDestroyed
	}
	if err := ctx.Err(); err != nil {
		return nil, StatusCanceled, fmt.Errorf("buffer request canceled: %w", err)
	}
	if p.state == StateUninitialized {
		if err := p.initialize(ctx); err != nil {
			if errors.Is(err, ErrOutOfMemory) {
				return nil, StatusOOM, err
			}
			return nil, StatusAllocFailed, err
		}
	}

	perRequest := p.plan.NumBuffersPerRequest
	deadline := time.Now().Add(p.timeout)

	for p.free.Length() < perRequest {
		if p.state == StateDestroyed {
			return nil, StatusDestroyed, ErrDestroyed
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.timeouts++
			logger.DebugCtx(ctx, "Buffer request timed out",
				logger.KeyAvailable, p.free.Length(),
				logger.KeyPerRequest, perRequest,
				logger.KeyTimeout, p.timeout)
			return nil, StatusTimeout, timeoutError(p.keys)
		}

		if err := p.wait(ctx, remaining); err != nil {
			return nil, StatusCanceled, fmt.Errorf("buffer request canceled: %w", err)
		}
	}

	segs := make([]*Segment, perRequest)
	for i := range segs {
		seg := p.free.Remove().(*Segment)
		seg.state = segmentOutstanding
		segs[i] = seg
	}
	p.outstanding += perRequest
	p.granted++
	p.metrics.SetBuffers(p.free.Length(), p.outstanding)

	return segs, StatusGranted, nil
}

// wait blocks until the next broadcast, the timeout, or ctx is done. It must be
// called with p.mu held and returns with p.mu held. The broadcast channel is
// captured under the lock, so a recycle that happens after the caller's check
// always wakes it.
func (p *Pool) wait(ctx context.Context, timeout time.Duration) error {
	ch := p.waitCh
	p.waiters++
	p.metrics.SetWaiters(p.waiters)
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	var err error
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}
	timer.Stop()

	p.mu.Lock()
	p.waiters--
	p.metrics.SetWaiters(p.waiters)
	return err
}

// initialize allocates every segment of the plan. Called with p.mu held.
// On failure every segment allocated so far is released and the pool stays
// uninitialized.
func (p *Pool) initialize(ctx context.Context) error {
	if p.state != StateUninitialized {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanInitialize,
		telemetry.PoolID(p.id),
		telemetry.Buffers(p.plan.NumTotalBuffers),
		telemetry.BufferSize(p.plan.BufferSize))
	defer span.End()

	start := time.Now()
	segs := make([]*Segment, 0, p.plan.NumTotalBuffers)
	for len(segs) < p.plan.NumTotalBuffers {
		data, err := p.alloc.Allocate(p.plan.BufferSize)
		if err != nil {
			return p.allocationFailed(ctx, span, segs, err)
		}

		p.nextID++
		segs = append(segs, &Segment{id: p.nextID, data: data, pool: p, state: segmentFree})
	}

	for _, seg := range segs {
		p.free.Add(seg)
	}
	p.state = StateInitialized
	p.metrics.SetBuffers(p.free.Length(), p.outstanding)

	logger.InfoCtx(ctx, "Read buffer pool initialized",
		logger.KeyBuffers, p.plan.NumTotalBuffers,
		logger.KeyBufferSize, p.plan.BufferSize,
		logger.KeyPerRequest, p.plan.NumBuffersPerRequest,
		logger.KeyDuration, logger.Since(start))
	return nil
}

// allocationFailed releases the segments allocated so far and builds the error
// returned for a failed bulk allocation. Only allocator errors wrapping
// ErrOutOfMemory become an *OutOfMemoryError. Called with p.mu held.
func (p *Pool) allocationFailed(ctx context.Context, span trace.Span, segs []*Segment, cause error) error {
	allocated := int64(len(segs)) * int64(p.plan.BufferSize)
	missing := p.plan.PooledBytes() - allocated
	for _, seg := range segs {
		p.release(ctx, seg)
	}

	p.allocationFailures++
	p.metrics.ObserveAllocationFailure()
	span.SetAttributes(telemetry.BytesAllocated(allocated), telemetry.BytesMissing(missing))

	var err error
	if errors.Is(cause, ErrOutOfMemory) {
		err = &OutOfMemoryError{
			AllocatedBytes: allocated,
			MissingBytes:   missing,
			Keys:           p.keys,
			Cause:          cause,
		}
	} else {
		err = fmt.Errorf("failed to allocate buffer %d of %d for the read buffer pool: %w",
			len(segs)+1, p.plan.NumTotalBuffers, cause)
	}

	telemetry.RecordError(ctx, err)
	logger.ErrorCtx(ctx, "Read buffer pool allocation failed",
		logger.KeyBytesAllocated, allocated,
		logger.KeyBytesMissing, missing,
		logger.Err(cause))
	return err
}

// Recycle returns a single segment to the pool. See RecycleAll.
func (p *Pool) Recycle(seg *Segment) error {
	if seg == nil {
		return fmt.Errorf("%w: segment must not be nil", ErrInvalidArgument)
	}
	return p.recycle([]*Segment{seg})
}

// RecycleAll returns segments to the pool. An empty slice is a no-op; a nil slice
// or a nil element is rejected.
//
// After Destroy the segments are released back to the allocator instead of being
// pooled. Recycling a segment the caller does not own, or recycling before the pool
// was ever initialized, fails with ErrInvalidArgument without changing the pool.
// Allocator release failures are logged and counted, never returned.
func (p *Pool) RecycleAll(segs []*Segment) error {
	if segs == nil {
		return fmt.Errorf("%w: segments must not be nil", ErrInvalidArgument)
	}
	if len(segs) == 0 {
		return nil
	}
	return p.recycle(segs)
}

func (p *Pool) recycle(segs []*Segment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateUninitialized {
		return fmt.Errorf("%w: recycling a buffer before initialization", ErrInvalidArgument)
	}
	if err := p.checkOwnership(segs); err != nil {
		return err
	}

	p.outstanding -= len(segs)

	if p.state == StateDestroyed {
		ctx := logger.WithContext(context.Background(), logger.NewLogContext(p.id))
		for _, seg := range segs {
			p.release(ctx, seg)
		}
		p.metrics.ObserveRecycle(PathReleased, len(segs))
		p.metrics.SetBuffers(0, p.outstanding)
		return nil
	}

	for _, seg := range segs {
		seg.state = segmentFree
		p.free.Add(seg)
	}
	p.metrics.ObserveRecycle(PathPooled, len(segs))
	p.metrics.SetBuffers(p.free.Length(), p.outstanding)

	if p.free.Length() >= p.plan.NumBuffersPerRequest {
		p.broadcast()
	}
	return nil
}

// checkOwnership verifies that every segment is outstanding from this pool and
// appears once. Called with p.mu held.
func (p *Pool) checkOwnership(segs []*Segment) error {
	var seen map[*Segment]struct{}
	if len(segs) > 1 {
		seen = make(map[*Segment]struct{}, len(segs))
	}

	for i, seg := range segs {
		switch {
		case seg == nil:
			return fmt.Errorf("%w: segment %d is nil", ErrInvalidArgument, i)
		case seg.pool != p:
			return fmt.Errorf("%w: segment %d does not belong to this pool", ErrInvalidArgument, seg.id)
		case seg.state == segmentFree:
			return fmt.Errorf("%w: segment %d is already recycled", ErrInvalidArgument, seg.id)
		case seg.state == segmentReleased:
			return fmt.Errorf("%w: segment %d is already released", ErrInvalidArgument, seg.id)
		}

		if seen != nil {
			if _, dup := seen[seg]; dup {
				return fmt.Errorf("%w: segment %d is recycled twice", ErrInvalidArgument, seg.id)
			}
			seen[seg] = struct{}{}
		}
	}
	return nil
}

// Destroy releases every free segment and wakes all blocked requesters, which fail
// with ErrDestroyed. Segments still held by callers are released when they are
// recycled. Calling Destroy more than once is a no-op.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDestroyed {
		return
	}
	p.state = StateDestroyed

	ctx := logger.WithContext(context.Background(), logger.NewLogContext(p.id))
	released := p.free.Length()
	for p.free.Length() > 0 {
		p.release(ctx, p.free.Remove().(*Segment))
	}
	p.broadcast()
	p.metrics.SetBuffers(0, p.outstanding)

	logger.InfoCtx(ctx, "Read buffer pool destroyed",
		logger.KeyBuffers, released,
		"outstanding", p.outstanding,
		"waiters", p.waiters)
}

// release returns a segment's memory to the allocator. Called with p.mu held.
func (p *Pool) release(ctx context.Context, seg *Segment) {
	data := seg.data
	seg.data = nil
	seg.state = segmentReleased

	if err := p.alloc.Release(data); err != nil {
		p.metrics.ObserveReleaseError()
		logger.WarnCtx(ctx, "Failed to release segment memory",
			"segment", seg.id,
			logger.Err(err))
	}
}

// broadcast wakes every waiter. Called with p.mu held.
func (p *Pool) broadcast() {
	close(p.waitCh)
	p.waitCh = make(chan struct{})
}

// logContext attaches the pool and trace identifiers to ctx for logging, keeping
// any LogContext the caller already set.
func (p *Pool) logContext(ctx context.Context) context.Context {
	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(p.id)
	}
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		lc = lc.WithTrace(traceID, telemetry.SpanID(ctx))
	}
	return logger.WithContext(ctx, lc)
}

// ID returns the pool identifier used in logs and traces.
func (p *Pool) ID() string { return p.id }

// Plan returns the capacity plan.
func (p *Pool) Plan() Plan { return p.plan }

// NumTotalBuffers returns the number of segments the pool manages.
func (p *Pool) NumTotalBuffers() int { return p.plan.NumTotalBuffers }

// NumBuffersPerRequest returns the batch size of RequestBuffers.
func (p *Pool) NumBuffersPerRequest() int { return p.plan.NumBuffersPerRequest }

// MaxConcurrentRequests returns how many full batches can be outstanding at once.
func (p *Pool) MaxConcurrentRequests() int { return p.plan.MaxConcurrentRequests() }

// TotalBytes returns the configured memory budget.
func (p *Pool) TotalBytes() int64 { return p.plan.TotalBytes }

// BufferSize returns the segment size.
func (p *Pool) BufferSize() int { return p.plan.BufferSize }

// RequestTimeout returns the per-request wait bound.
func (p *Pool) RequestTimeout() time.Duration { return p.timeout }

// AvailableBuffers returns the number of free segments at this instant.
func (p *Pool) AvailableBuffers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.Length()
}

// IsDestroyed reports whether Destroy has been called.
func (p *Pool) IsDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateDestroyed
}

// State returns the lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	ID                    string `json:"id"`
	State                 string `json:"state"`
	TotalBytes            int64  `json:"total_bytes"`
	BufferSize            int    `json:"buffer_size"`
	RequestTimeout        string `json:"request_timeout"`
	NumTotalBuffers       int    `json:"num_total_buffers"`
	NumBuffersPerRequest  int    `json:"num_buffers_per_request"`
	MaxConcurrentRequests int    `json:"max_concurrent_requests"`
	Available             int    `json:"available"`
	Outstanding           int    `json:"outstanding"`
	Waiters               int    `json:"waiters"`
	Requests              uint64 `json:"requests"`
	Granted               uint64 `json:"granted"`
	Timeouts              uint64 `json:"timeouts"`
	AllocationFailures    uint64 `json:"allocation_failures"`
}

// Stats returns a snapshot of the pool's state and counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		ID:                    p.id,
		State:                 p.state.String(),
		TotalBytes:            p.plan.TotalBytes,
		BufferSize:            p.plan.BufferSize,
		RequestTimeout:        p.timeout.String(),
		NumTotalBuffers:       p.plan.NumTotalBuffers,
		NumBuffersPerRequest:  p.plan.NumBuffersPerRequest,
		MaxConcurrentRequests: p.plan.MaxConcurrentRequests(),
		Available:             p.free.Length(),
		Outstanding:           p.outstanding,
		Waiters:               p.waiters,
		Requests:              p.requests,
		Granted:               p.granted,
		Timeouts:              p.timeouts,
		AllocationFailures:    p.allocationFailures,
	}
}
