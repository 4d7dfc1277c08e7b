package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for pool spans.
const (
	AttrPoolID      = "readpool.id"
	AttrBuffers     = "readpool.buffers"
	AttrBufferSize  = "readpool.buffer_size"
	AttrAvailable   = "readpool.available"
	AttrWaitMs      = "readpool.wait_ms"
	AttrOutcome     = "readpool.outcome"
	AttrReader      = "workload.reader"
	AttrAllocBytes  = "readpool.bytes_allocated"
	AttrMissedBytes = "readpool.bytes_missing"
)

// Span names.
const (
	SpanRequestBuffers = "readpool.request_buffers"
	SpanInitialize     = "readpool.initialize"
	SpanWorkloadBatch  = "workload.batch"
)

// PoolID returns the pool identifier attribute.
func PoolID(id string) attribute.KeyValue { return attribute.String(AttrPoolID, id) }

// Buffers returns a buffer count attribute.
func Buffers(n int) attribute.KeyValue { return attribute.Int(AttrBuffers, n) }

// BufferSize returns the buffer size attribute.
func BufferSize(n int) attribute.KeyValue { return attribute.Int(AttrBufferSize, n) }

// Available returns the free buffer count attribute.
func Available(n int) attribute.KeyValue { return attribute.Int(AttrAvailable, n) }

// WaitMs returns the wait time attribute in milliseconds.
func WaitMs(ms float64) attribute.KeyValue { return attribute.Float64(AttrWaitMs, ms) }

// Outcome returns the request outcome attribute.
func Outcome(status string) attribute.KeyValue { return attribute.String(AttrOutcome, status) }

// Reader returns the workload reader attribute.
func Reader(n int) attribute.KeyValue { return attribute.Int(AttrReader, n) }

// BytesAllocated returns the attribute for memory secured before a failed allocation.
func BytesAllocated(n int64) attribute.KeyValue { return attribute.Int64(AttrAllocBytes, n) }

// BytesMissing returns the attribute for memory still needed after a failed allocation.
func BytesMissing(n int64) attribute.KeyValue { return attribute.Int64(AttrMissedBytes, n) }
