package readpool

import (
	"fmt"
	"math"
)

// BytesPerRequest is the amount of memory handed out by a single request.
// 8MiB gives the reader enough contiguous buffers for efficient sequential reads.
const BytesPerRequest = 8 << 20

// maxNumBuffers caps the buffer count at what a 32-bit counter can represent.
const maxNumBuffers = math.MaxInt32

// Plan is the capacity plan derived from the pool's memory configuration.
// It is computed once and never changes.
type Plan struct {
	TotalBytes           int64
	BufferSize           int
	NumTotalBuffers      int
	NumBuffersPerRequest int
}

// NewPlan validates totalBytes and bufferSize and derives the buffer counts.
func NewPlan(totalBytes int64, bufferSize int, keys ConfigKeys) (Plan, error) {
	if totalBytes <= 0 {
		return Plan{}, &ConfigError{Field: "TotalBytes", Message: "total memory size must be positive"}
	}
	if bufferSize <= 0 {
		return Plan{}, &ConfigError{Field: "BufferSize", Message: "size of buffer must be positive"}
	}
	if totalBytes < int64(bufferSize) {
		return Plan{}, &ConfigError{
			Field: "TotalBytes",
			Message: fmt.Sprintf("%s must be no smaller than %s, please increase %s to at least %d bytes",
				keys.readMemory(), keys.segmentSize(), keys.readMemory(), bufferSize),
		}
	}

	numTotal := int(min(totalBytes/int64(bufferSize), maxNumBuffers))
	perRequest := min(numTotal, max(1, BytesPerRequest/bufferSize))

	return Plan{
		TotalBytes:           totalBytes,
		BufferSize:           bufferSize,
		NumTotalBuffers:      numTotal,
		NumBuffersPerRequest: perRequest,
	}, nil
}

// MaxConcurrentRequests is how many full batches can be outstanding at once.
func (p Plan) MaxConcurrentRequests() int {
	if p.NumBuffersPerRequest <= 0 {
		return 0
	}
	return p.NumTotalBuffers / p.NumBuffersPerRequest
}

// PooledBytes is the memory actually allocated by the pool, which can be less than
// TotalBytes when it is not a multiple of BufferSize.
func (p Plan) PooledBytes() int64 {
	return int64(p.NumTotalBuffers) * int64(p.BufferSize)
}
