package readpool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestPool creates a 32MiB pool of 4MiB heap buffers: 8 buffers, 2 per request.
func newTestPool(t *testing.T, timeout time.Duration) (*Pool, *HeapAllocator) {
	t.Helper()
	return newSizedPool(t, 32*mib, 4*mib, timeout)
}

func newSizedPool(t *testing.T, total int64, size int, timeout time.Duration) (*Pool, *HeapAllocator) {
	t.Helper()
	alloc := NewHeapAllocator(0)
	p, err := New(Options{
		TotalBytes:     total,
		BufferSize:     size,
		RequestTimeout: timeout,
		Allocator:      alloc,
	})
	require.NoError(t, err)
	return p, alloc
}

// drain requests batches until the pool is empty.
func drain(t *testing.T, p *Pool) []*Segment {
	t.Helper()
	var held []*Segment
	for i := 0; i < p.MaxConcurrentRequests(); i++ {
		segs, err := p.RequestBuffers(context.Background())
		require.NoError(t, err)
		held = append(held, segs...)
	}
	return held
}

func waitForWaiters(t *testing.T, p *Pool, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Stats().Waiters == n },
		2*time.Second, time.Millisecond, "expected %d waiters", n)
}

// flakyAllocator fails Release for every buffer.
type flakyAllocator struct {
	*HeapAllocator
}

func (a flakyAllocator) Release(buf []byte) error {
	_ = a.HeapAllocator.Release(buf)
	return errors.New("release refused")
}

// lockDeniedAllocator allocates up to ok buffers, then fails like an mlock
// without CAP_IPC_LOCK.
type lockDeniedAllocator struct {
	*HeapAllocator
	ok int
}

func (a *lockDeniedAllocator) Allocate(size int) ([]byte, error) {
	if a.ok == 0 {
		return nil, errors.New("mlock: operation not permitted")
	}
	a.ok--
	return a.HeapAllocator.Allocate(size)
}

// ============================================================================
// Construction
// ============================================================================

func TestNew(t *testing.T) {
	p, alloc := newTestPool(t, time.Second)

	assert.Equal(t, 8, p.NumTotalBuffers())
	assert.Equal(t, 2, p.NumBuffersPerRequest())
	assert.Equal(t, 4, p.MaxConcurrentRequests())
	assert.Equal(t, int64(32*mib), p.TotalBytes())
	assert.Equal(t, 4*mib, p.BufferSize())
	assert.Equal(t, time.Second, p.RequestTimeout())
	assert.NotEmpty(t, p.ID())

	// Memory is allocated lazily.
	assert.Equal(t, StateUninitialized, p.State())
	assert.Equal(t, 0, p.AvailableBuffers())
	assert.Equal(t, int64(0), alloc.InUse())
	assert.False(t, p.IsDestroyed())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"ZeroTotal", Options{TotalBytes: 0, BufferSize: 1, RequestTimeout: time.Second}},
		{"ZeroBuffer", Options{TotalBytes: 1, BufferSize: 0, RequestTimeout: time.Second}},
		{"TotalBelowBuffer", Options{TotalBytes: 1, BufferSize: 2, RequestTimeout: time.Second}},
		{"ZeroTimeout", Options{TotalBytes: 2, BufferSize: 1}},
		{"NegativeTimeout", Options{TotalBytes: 2, BufferSize: 1, RequestTimeout: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.opts)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestNewUsesGivenID(t *testing.T) {
	p, err := New(Options{TotalBytes: 2, BufferSize: 1, RequestTimeout: time.Second, ID: "reader-pool", Allocator: NewHeapAllocator(0)})
	require.NoError(t, err)
	assert.Equal(t, "reader-pool", p.ID())
}

// ============================================================================
// Acquisition
// ============================================================================

func TestRequestBuffersInitializesLazily(t *testing.T) {
	p, alloc := newTestPool(t, time.Second)

	segs, err := p.RequestBuffers(context.Background())
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, StateInitialized, p.State())
	assert.Equal(t, 6, p.AvailableBuffers())
	assert.Equal(t, int64(32*mib), alloc.InUse())
	for _, seg := range segs {
		assert.Equal(t, 4*mib, seg.Size())
		assert.Len(t, seg.Bytes(), 4*mib)
	}
	assert.NotEqual(t, segs[0].ID(), segs[1].ID())

	// A second request does not allocate again.
	_, err = p.RequestBuffers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(32*mib), alloc.InUse())
}

func TestRequestBuffersTimesOut(t *testing.T) {
	const timeout = 100 * time.Millisecond
	p, _ := newTestPool(t, timeout)
	held := drain(t, p)
	require.Len(t, held, 8)

	start := time.Now()
	segs, err := p.RequestBuffers(context.Background())
	elapsed := time.Since(start)

	assert.Nil(t, segs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "fierce contention")
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+2*time.Second)

	// A timeout leaves the pool untouched.
	assert.Equal(t, 0, p.AvailableBuffers())
	assert.Equal(t, uint64(1), p.Stats().Timeouts)
	assert.NoError(t, p.RecycleAll(held))
	assert.Equal(t, 8, p.AvailableBuffers())
}

func TestRequestBuffersWakeupsDoNotExtendDeadline(t *testing.T) {
	const timeout = 200 * time.Millisecond
	p, _ := newTestPool(t, timeout)
	held := drain(t, p)

	// Wake the waiter every few milliseconds without ever leaving a batch free.
	stop := make(chan struct{})
	var wakeups int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.mu.Lock()
				p.broadcast()
				p.mu.Unlock()
				wakeups++
			}
		}
	}()

	start := time.Now()
	_, err := p.RequestBuffers(context.Background())
	elapsed := time.Since(start)
	close(stop)
	wg.Wait()

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)
	assert.Greater(t, wakeups, 1)
	assert.NoError(t, p.RecycleAll(held))
}

func TestRequestBuffersTimeoutNamesConfigKey(t *testing.T) {
	p, err := New(Options{
		TotalBytes:     1,
		BufferSize:     1,
		RequestTimeout: 10 * time.Millisecond,
		Allocator:      NewHeapAllocator(0),
		Keys:           ConfigKeys{ReadMemory: "pool.total_bytes"},
	})
	require.NoError(t, err)

	_, err = p.RequestBuffers(context.Background())
	require.NoError(t, err)

	_, err = p.RequestBuffers(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "'pool.total_bytes'")
}

func TestRequestBuffersWakesOnRecycle(t *testing.T) {
	p, _ := newTestPool(t, 10*time.Second)
	held := drain(t, p)

	type result struct {
		segs []*Segment
		err  error
	}
	done := make(chan result, 1)
	go func() {
		segs, err := p.RequestBuffers(context.Background())
		done <- result{segs, err}
	}()

	waitForWaiters(t, p, 1)

	// One buffer is not a full batch; the waiter keeps waiting.
	require.NoError(t, p.Recycle(held[0]))
	select {
	case r := <-done:
		t.Fatalf("request completed with a partial batch: %v", r.err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Recycle(held[1]))
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Len(t, r.segs, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by recycle")
	}
}

func TestRequestBuffersSingleBufferPool(t *testing.T) {
	p, _ := newSizedPool(t, 4*kib+1, 4*kib, 10*time.Second)
	require.Equal(t, 1, p.NumTotalBuffers())
	require.Equal(t, 1, p.NumBuffersPerRequest())

	first, err := p.RequestBuffers(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	done := make(chan []*Segment, 1)
	go func() {
		segs, err := p.RequestBuffers(context.Background())
		assert.NoError(t, err)
		done <- segs
	}()

	waitForWaiters(t, p, 1)
	select {
	case <-done:
		t.Fatal("second request must block while the only buffer is held")
	default:
	}

	require.NoError(t, p.Recycle(first[0]))
	select {
	case second := <-done:
		require.Len(t, second, 1)
		assert.Equal(t, first[0].ID(), second[0].ID())
	case <-time.After(2 * time.Second):
		t.Fatal("second request was not served after recycle")
	}
}

func TestRequestBuffersContextCanceled(t *testing.T) {
	t.Run("WhileWaiting", func(t *testing.T) {
		p, _ := newTestPool(t, 10*time.Second)
		drain(t, p)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := p.RequestBuffers(ctx)
			done <- err
		}()

		waitForWaiters(t, p, 1)
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, ErrTimeout)
		case <-time.After(2 * time.Second):
			t.Fatal("canceled request did not return")
		}
		assert.Equal(t, 0, p.Stats().Waiters)
	})

	t.Run("BeforeCall", func(t *testing.T) {
		p, alloc := newTestPool(t, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.RequestBuffers(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(0), alloc.InUse())
	})

	t.Run("ContextDeadlineShorterThanTimeout", func(t *testing.T) {
		p, _ := newTestPool(t, 10*time.Second)
		drain(t, p)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := p.RequestBuffers(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRequestBuffersNoOverlap(t *testing.T) {
	p, _ := newTestPool(t, 10*time.Second)

	var (
		mu    sync.Mutex
		owner = make(map[uint64]int)
	)

	const workers = 16
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				segs, err := p.RequestBuffers(context.Background())
				if !assert.NoError(t, err) {
					return
				}

				mu.Lock()
				for _, seg := range segs {
					if prev, taken := owner[seg.ID()]; taken {
						t.Errorf("segment %d handed to worker %d while held by %d", seg.ID(), id, prev)
					}
					owner[seg.ID()] = id
				}
				mu.Unlock()

				segs[0].Bytes()[0] = byte(id)

				mu.Lock()
				for _, seg := range segs {
					delete(owner, seg.ID())
				}
				mu.Unlock()

				assert.NoError(t, p.RecycleAll(segs))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, p.NumTotalBuffers(), p.AvailableBuffers())
	assert.Equal(t, 0, p.Stats().Outstanding)
}

func TestConservation(t *testing.T) {
	p, _ := newTestPool(t, time.Second)
	rng := rand.New(rand.NewSource(42))

	var held []*Segment
	for i := 0; i < 500; i++ {
		canRequest := len(held) == 0 || p.AvailableBuffers() >= p.NumBuffersPerRequest()
		if canRequest && (len(held) == 0 || rng.Intn(2) == 0) {
			segs, err := p.RequestBuffers(context.Background())
			require.NoError(t, err)
			held = append(held, segs...)
		} else {
			n := 1 + rng.Intn(len(held))
			require.NoError(t, p.RecycleAll(held[:n]))
			held = held[n:]
		}

		stats := p.Stats()
		require.Equal(t, p.NumTotalBuffers(), stats.Available+len(held))
		require.Equal(t, len(held), stats.Outstanding)
	}
}

// ============================================================================
// Recycle
// ============================================================================

func TestRecycleInvalidArguments(t *testing.T) {
	p, _ := newTestPool(t, time.Second)

	t.Run("BeforeInitialization", func(t *testing.T) {
		other, _ := newTestPool(t, time.Second)
		segs, err := other.RequestBuffers(context.Background())
		require.NoError(t, err)

		err = p.Recycle(segs[0])
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Contains(t, err.Error(), "before initialization")
	})

	segs, err := p.RequestBuffers(context.Background())
	require.NoError(t, err)

	t.Run("NilSegment", func(t *testing.T) {
		assert.ErrorIs(t, p.Recycle(nil), ErrInvalidArgument)
	})

	t.Run("NilSlice", func(t *testing.T) {
		assert.ErrorIs(t, p.RecycleAll(nil), ErrInvalidArgument)
	})

	t.Run("EmptySlice", func(t *testing.T) {
		assert.NoError(t, p.RecycleAll([]*Segment{}))
		assert.Equal(t, 6, p.AvailableBuffers())
	})

	t.Run("NilElement", func(t *testing.T) {
		err := p.RecycleAll([]*Segment{segs[0], nil})
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, 6, p.AvailableBuffers())
	})

	t.Run("ForeignSegment", func(t *testing.T) {
		other, _ := newTestPool(t, time.Second)
		foreign, err := other.RequestBuffers(context.Background())
		require.NoError(t, err)

		err = p.Recycle(foreign[0])
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Contains(t, err.Error(), "does not belong")
	})

	t.Run("DuplicateInBatch", func(t *testing.T) {
		err := p.RecycleAll([]*Segment{segs[0], segs[0]})
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, 6, p.AvailableBuffers())
	})

	t.Run("DoubleRecycle", func(t *testing.T) {
		require.NoError(t, p.Recycle(segs[0]))
		assert.Equal(t, 7, p.AvailableBuffers())

		err := p.Recycle(segs[0])
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Contains(t, err.Error(), "already recycled")

		// The batch is validated before anything is pooled.
		err = p.RecycleAll([]*Segment{segs[1], segs[0]})
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Equal(t, 7, p.AvailableBuffers())

		require.NoError(t, p.Recycle(segs[1]))
		assert.Equal(t, 8, p.AvailableBuffers())
	})
}

// ============================================================================
// Destroy
// ============================================================================

func TestDestroyReleasesFreeBuffers(t *testing.T) {
	p, alloc := newTestPool(t, time.Second)
	segs, err := p.RequestBuffers(context.Background())
	require.NoError(t, err)

	p.Destroy()

	assert.True(t, p.IsDestroyed())
	assert.Equal(t, StateDestroyed, p.State())
	assert.Equal(t, 0, p.AvailableBuffers())
	assert.Equal(t, int64(2*4*mib), alloc.InUse(), "outstanding buffers stay with their owner")

	_, err = p.RequestBuffers(context.Background())
	assert.ErrorIs(t, err, ErrDestroyed)

	// Recycling after destroy releases the memory immediately.
	require.NoError(t, p.Recycle(segs[0]))
	assert.Equal(t, 0, p.AvailableBuffers())
	assert.Equal(t, int64(4*mib), alloc.InUse())
	assert.Nil(t, segs[0].Bytes())

	require.NoError(t, p.RecycleAll(segs[1:]))
	assert.Equal(t, int64(0), alloc.InUse())
	assert.Equal(t, 0, p.Stats().Outstanding)

	// Released segments cannot come back.
	assert.ErrorIs(t, p.Recycle(segs[0]), ErrInvalidArgument)
}

func TestDestroyIsIdempotent(t *testing.T) {
	p, alloc := newTestPool(t, time.Second)
	_, err := p.RequestBuffers(context.Background())
	require.NoError(t, err)

	p.Destroy()
	once := p.Stats()
	p.Destroy()
	twice := p.Stats()

	assert.Equal(t, once, twice)
	assert.True(t, p.IsDestroyed())
	assert.Equal(t, 0, p.AvailableBuffers())
	assert.Equal(t, int64(2*4*mib), alloc.InUse())
}

func TestDestroyBeforeFirstRequest(t *testing.T) {
	p, alloc := newTestPool(t, time.Second)
	p.Destroy()

	_, err := p.RequestBuffers(context.Background())
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.Equal(t, int64(0), alloc.InUse())
	assert.Equal(t, StateDestroyed, p.State())
}

func TestDestroyWakesWaiters(t *testing.T) {
	p, _ := newTestPool(t, time.Minute)
	drain(t, p)

	const waiters = 3
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, err := p.RequestBuffers(context.Background())
			errs <- err
		}()
	}
	waitForWaiters(t, p, waiters)

	start := time.Now()
	p.Destroy()

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrDestroyed)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter was not woken by destroy")
		}
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDestroyConcurrentWithRecycle(t *testing.T) {
	p, alloc := newTestPool(t, time.Second)
	held := drain(t, p)

	var wg sync.WaitGroup
	for _, seg := range held {
		wg.Add(1)
		go func(s *Segment) {
			defer wg.Done()
			assert.NoError(t, p.Recycle(s))
		}(seg)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Destroy()
	}()
	wg.Wait()

	assert.Equal(t, 0, p.AvailableBuffers())
	assert.Equal(t, int64(0), alloc.InUse())
}

func TestDestroyReleaseErrorsAreNotReturned(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	alloc := flakyAllocator{NewHeapAllocator(0)}

	p, err := New(Options{TotalBytes: 4 * kib, BufferSize: kib, RequestTimeout: time.Second, Allocator: alloc, Metrics: metrics})
	require.NoError(t, err)

	segs, err := p.RequestBuffers(context.Background())
	require.NoError(t, err)
	require.Len(t, segs, 4)
	require.NoError(t, p.RecycleAll(segs[:2]))

	p.Destroy()
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.releaseErrors))

	require.NoError(t, p.RecycleAll(segs[2:]))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.releaseErrors))
}

// ============================================================================
// Allocation failure
// ============================================================================

func TestInitializeOutOfMemory(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	alloc := NewHeapAllocator(3 * 4 * mib)

	p, err := New(Options{
		TotalBytes:     32 * mib,
		BufferSize:     4 * mib,
		RequestTimeout: time.Second,
		Allocator:      alloc,
		Metrics:        metrics,
	})
	require.NoError(t, err)

	segs, err := p.RequestBuffers(context.Background())
	assert.Nil(t, segs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	var oom *OutOfMemoryError
	require.True(t, errors.As(err, &oom))
	assert.Equal(t, int64(12*mib), oom.AllocatedBytes)
	assert.Equal(t, int64(20*mib), oom.MissingBytes)

	// Every partial allocation is unwound and the pool is not latched.
	assert.Equal(t, int64(0), alloc.InUse())
	assert.Equal(t, StateUninitialized, p.State())
	assert.Equal(t, 0, p.AvailableBuffers())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.allocationFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(StatusOOM)))

	// Once memory is available the next request initializes the pool.
	alloc.Limit = 0
	segs, err = p.RequestBuffers(context.Background())
	require.NoError(t, err)
	assert.Len(t, segs, 2)
	assert.Equal(t, StateInitialized, p.State())
	assert.Equal(t, int64(32*mib), alloc.InUse())
	assert.Equal(t, uint64(1), p.Stats().AllocationFailures)
}

func TestInitializeFailsOnFirstAllocation(t *testing.T) {
	alloc := NewHeapAllocator(1)
	p, err := New(Options{TotalBytes: 8 * kib, BufferSize: 4 * kib, RequestTimeout: time.Second, Allocator: alloc})
	require.NoError(t, err)

	_, err = p.RequestBuffers(context.Background())
	var oom *OutOfMemoryError
	require.True(t, errors.As(err, &oom))
	assert.Equal(t, int64(0), oom.AllocatedBytes)
	assert.Equal(t, int64(8*kib), oom.MissingBytes)
	assert.ErrorIs(t, oom.Unwrap(), ErrOutOfMemory)
}

func TestInitializeNonMemoryFailureIsNotOutOfMemory(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	alloc := &lockDeniedAllocator{HeapAllocator: NewHeapAllocator(0), ok: 3}

	p, err := New(Options{
		TotalBytes:     8 * kib,
		BufferSize:     1 * kib,
		RequestTimeout: time.Second,
		Allocator:      alloc,
		Metrics:        metrics,
	})
	require.NoError(t, err)

	segs, err := p.RequestBuffers(context.Background())
	assert.Nil(t, segs)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOutOfMemory)

	var oom *OutOfMemoryError
	assert.False(t, errors.As(err, &oom))
	assert.Contains(t, err.Error(), "operation not permitted")
	assert.Contains(t, err.Error(), "buffer 4 of 8")
	assert.NotContains(t, err.Error(), "can't allocate enough memory")

	// The partial allocation is still unwound.
	assert.Equal(t, int64(0), alloc.InUse())
	assert.Equal(t, StateUninitialized, p.State())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(StatusAllocFailed)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(StatusOOM)))
}

// ============================================================================
// Introspection and metrics
// ============================================================================

func TestStats(t *testing.T) {
	p, _ := newTestPool(t, 50*time.Millisecond)

	stats := p.Stats()
	assert.Equal(t, "uninitialized", stats.State)
	assert.Equal(t, 8, stats.NumTotalBuffers)
	assert.Equal(t, 2, stats.NumBuffersPerRequest)
	assert.Equal(t, 4, stats.MaxConcurrentRequests)
	assert.Equal(t, "50ms", stats.RequestTimeout)

	drain(t, p)
	_, err := p.RequestBuffers(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	stats = p.Stats()
	assert.Equal(t, "initialized", stats.State)
	assert.Equal(t, 0, stats.Available)
	assert.Equal(t, 8, stats.Outstanding)
	assert.Equal(t, uint64(5), stats.Requests)
	assert.Equal(t, uint64(4), stats.Granted)
	assert.Equal(t, uint64(1), stats.Timeouts)
}

func TestPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	p, err := New(Options{
		TotalBytes:     32 * mib,
		BufferSize:     4 * mib,
		RequestTimeout: 20 * time.Millisecond,
		Allocator:      NewHeapAllocator(0),
		Metrics:        metrics,
	})
	require.NoError(t, err)

	held := drain(t, p)
	_, err = p.RequestBuffers(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(StatusGranted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(StatusTimeout)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.availableBuffers))
	assert.Equal(t, float64(8), testutil.ToFloat64(metrics.outstandingBuffers))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.waiters))

	require.NoError(t, p.RecycleAll(held[:4]))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.recycledTotal.WithLabelValues(PathPooled)))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.availableBuffers))

	p.Destroy()
	require.NoError(t, p.RecycleAll(held[4:]))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.recycledTotal.WithLabelValues(PathReleased)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.outstandingBuffers))

	_, err = p.RequestBuffers(context.Background())
	require.ErrorIs(t, err, ErrDestroyed)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(StatusDestroyed)))

	count, err := testutil.GatherAndCount(reg, "shufflepool_readpool_wait_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateUninitialized: "uninitialized",
		StateInitialized:   "initialized",
		StateDestroyed:     "destroyed",
		State(9):           "unknown",
	} {
		assert.Equal(t, want, state.String(), fmt.Sprint(int(state)))
	}
}
