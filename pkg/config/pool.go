package config

import (
	"fmt"

	"github.com/marmos91/shufflepool/pkg/readpool"
)

// PoolKeys returns the configuration keys quoted by pool error messages.
// The off-heap budget keys are left empty: this configuration has no separate
// framework or task memory budget, so the pool falls back to neutral advice.
func PoolKeys() readpool.ConfigKeys {
	return readpool.ConfigKeys{
		ReadMemory:  "pool.total_bytes",
		SegmentSize: "pool.buffer_size",
	}
}

// Options converts the pool section into readpool.Options, building the
// configured allocator. metrics may be nil.
func (c PoolConfig) Options(metrics *readpool.Metrics) (readpool.Options, error) {
	alloc, err := readpool.NewAllocator(c.Allocator, c.LockMemory)
	if err != nil {
		return readpool.Options{}, fmt.Errorf("pool allocator: %w", err)
	}

	return readpool.Options{
		TotalBytes:     c.TotalBytes.Int64(),
		BufferSize:     c.BufferSize.Int(),
		RequestTimeout: c.RequestTimeout,
		Allocator:      alloc,
		Metrics:        metrics,
		Keys:           PoolKeys(),
	}, nil
}

// NewPool creates a pool from the pool section.
func (c PoolConfig) NewPool(metrics *readpool.Metrics) (*readpool.Pool, error) {
	opts, err := c.Options(metrics)
	if err != nil {
		return nil, err
	}
	return readpool.New(opts)
}

// Plan computes the capacity plan of the pool section without creating a pool.
func (c PoolConfig) Plan() (readpool.Plan, error) {
	return readpool.NewPlan(c.TotalBytes.Int64(), c.BufferSize.Int(), PoolKeys())
}
