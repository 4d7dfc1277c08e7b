// Package workload drives a read buffer pool with synthetic shuffle readers.
//
// Each reader repeatedly requests a batch, fills every segment as a sequential
// read would, holds the batch for a while and recycles it. The driver is used by
// the bench command and by tests that exercise the pool under contention.
package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/shufflepool/internal/logger"
	"github.com/marmos91/shufflepool/internal/telemetry"
	"github.com/marmos91/shufflepool/pkg/readpool"
)

// Pool is the part of *readpool.Pool the driver uses.
type Pool interface {
	ID() string
	RequestBuffers(ctx context.Context) ([]*readpool.Segment, error)
	RecycleAll(segs []*readpool.Segment) error
}

// Config configures a workload run.
type Config struct {
	// Readers is the number of concurrent readers.
	Readers int

	// Duration bounds the run. The run also ends when ctx is done.
	Duration time.Duration

	// HoldTime is how long a reader keeps a batch before recycling it.
	HoldTime time.Duration

	// Touch fills every byte of each batch and checks it is unchanged before
	// recycling, which detects batches handed to two readers at once.
	Touch bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Readers < 1 {
		return fmt.Errorf("readers must be at least 1, got %d", c.Readers)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	}
	if c.HoldTime < 0 {
		return fmt.Errorf("hold time must not be negative, got %v", c.HoldTime)
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	Readers   int
	Batches   uint64
	Timeouts  uint64
	Bytes     int64
	MaxWait   time.Duration
	MeanWait  time.Duration
	Elapsed   time.Duration
	Destroyed bool
}

// Throughput returns the bytes handed out per second of the run.
func (r Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds()
}

// ErrCorruption is returned when a touched batch was modified while its reader
// held it.
var ErrCorruption = errors.New("batch modified while held")

type readerStats struct {
	batches   uint64
	timeouts  uint64
	bytes     int64
	totalWait time.Duration
	maxWait   time.Duration
	destroyed bool
}

// Run drives pool with cfg.Readers readers until cfg.Duration elapses, ctx is
// done or the pool is destroyed. Every batch a reader obtains is recycled before
// Run returns.
//
// Request timeouts are counted and the reader retries. Any other pool error
// ends the run and is returned.
func Run(ctx context.Context, pool Pool, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	lc := logger.NewLogContext(pool.ID())
	logger.InfoCtx(logger.WithContext(ctx, lc), "Workload started",
		"readers", cfg.Readers,
		logger.KeyDuration, cfg.Duration.Milliseconds(),
		"hold_ms", cfg.HoldTime.Milliseconds(),
		"touch", cfg.Touch,
	)

	stats := make([]readerStats, cfg.Readers)
	g, gctx := errgroup.WithContext(runCtx)
	start := time.Now()

	for i := 0; i < cfg.Readers; i++ {
		r := &reader{
			id:    i,
			pool:  pool,
			cfg:   cfg,
			stats: &stats[i],
		}
		g.Go(func() error {
			return r.run(logger.WithContext(gctx, lc.WithReader(r.id)))
		})
	}

	err := g.Wait()
	report := merge(stats)
	report.Readers = cfg.Readers
	report.Elapsed = time.Since(start)

	if err != nil {
		logger.ErrorCtx(logger.WithContext(ctx, lc), "Workload failed", logger.Err(err))
		return report, err
	}

	logger.InfoCtx(logger.WithContext(ctx, lc), "Workload finished",
		"batches", report.Batches,
		"timeouts", report.Timeouts,
		logger.WaitMs(report.MaxWait),
		logger.KeyDuration, report.Elapsed.Milliseconds(),
	)
	return report, nil
}

func merge(stats []readerStats) Report {
	var r Report
	var totalWait time.Duration
	for _, s := range stats {
		r.Batches += s.batches
		r.Timeouts += s.timeouts
		r.Bytes += s.bytes
		totalWait += s.totalWait
		r.MaxWait = max(r.MaxWait, s.maxWait)
		r.Destroyed = r.Destroyed || s.destroyed
	}
	if attempts := r.Batches + r.Timeouts; attempts > 0 {
		r.MeanWait = totalWait / time.Duration(attempts)
	}
	return r
}

type reader struct {
	id    int
	pool  Pool
	cfg   Config
	stats *readerStats
}

func (r *reader) run(ctx context.Context) error {
	for ctx.Err() == nil {
		done, err := r.batch(ctx)
		if done || err != nil {
			return err
		}
	}
	return nil
}

// batch performs one request/fill/hold/recycle cycle. done reports that the
// reader should stop without error.
func (r *reader) batch(ctx context.Context) (done bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanWorkloadBatch, telemetry.Reader(r.id))
	defer span.End()

	start := time.Now()
	segs, err := r.pool.RequestBuffers(ctx)
	waited := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, readpool.ErrTimeout):
		r.observeWait(waited)
		r.stats.timeouts++
		logger.DebugCtx(ctx, "Batch request timed out", logger.WaitMs(waited))
		return false, nil
	case errors.Is(err, readpool.ErrDestroyed):
		r.stats.destroyed = true
		logger.DebugCtx(ctx, "Pool destroyed, reader stopping")
		return true, nil
	case ctx.Err() != nil:
		// The run ended while waiting
		return true, nil
	default:
		telemetry.RecordError(ctx, err)
		return true, fmt.Errorf("reader %d: %w", r.id, err)
	}
	r.observeWait(waited)

	var n int64
	if r.cfg.Touch {
		fill(segs, r.pattern())
	}
	for _, s := range segs {
		n += int64(s.Size())
	}

	r.hold(ctx)

	var corrupt error
	if r.cfg.Touch {
		corrupt = r.verify(segs)
	}

	// Recycle even when corrupted so the pool stays balanced
	if err := r.pool.RecycleAll(segs); err != nil {
		telemetry.RecordError(ctx, err)
		return true, fmt.Errorf("reader %d: recycle: %w", r.id, err)
	}
	if corrupt != nil {
		telemetry.RecordError(ctx, corrupt)
		return true, corrupt
	}

	r.stats.batches++
	r.stats.bytes += n
	span.SetAttributes(telemetry.Buffers(len(segs)), telemetry.WaitMs(float64(waited.Microseconds())/1000.0))
	return false, nil
}

func (r *reader) observeWait(d time.Duration) {
	r.stats.totalWait += d
	r.stats.maxWait = max(r.stats.maxWait, d)
}

// hold keeps the batch for HoldTime or until ctx is done.
func (r *reader) hold(ctx context.Context) {
	if r.cfg.HoldTime <= 0 {
		return
	}
	timer := time.NewTimer(r.cfg.HoldTime)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// pattern is a non-zero byte unique to the reader modulo 255.
func (r *reader) pattern() byte {
	return byte(r.id%255) + 1
}

func (r *reader) verify(segs []*readpool.Segment) error {
	want := r.pattern()
	for _, s := range segs {
		for i, b := range s.Bytes() {
			if b != want {
				return fmt.Errorf("%w: reader %d segment %d offset %d: got %#x, want %#x",
					ErrCorruption, r.id, s.ID(), i, b, want)
			}
		}
	}
	return nil
}

// fill writes b to every byte of segs, as a sequential read into the batch would.
func fill(segs []*readpool.Segment, b byte) {
	for _, s := range segs {
		buf := s.Bytes()
		for i := range buf {
			buf[i] = b
		}
	}
}
