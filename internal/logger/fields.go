package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently so pool logs can be aggregated and queried.
const (
	KeyTraceID = "trace_id" // OpenTelemetry trace ID
	KeySpanID  = "span_id"  // OpenTelemetry span ID

	KeyPoolID     = "pool_id"     // Pool instance identifier
	KeyReader     = "reader"      // Workload reader index
	KeyState      = "state"       // Pool lifecycle state
	KeyBuffers    = "buffers"     // Number of buffers involved
	KeyBufferSize = "buffer_size" // Size of one buffer in bytes
	KeyPerRequest = "per_request" // Buffers handed out per request
	KeyAvailable  = "available"   // Free buffers in the pool

	KeyBytesAllocated = "bytes_allocated" // Bytes allocated before a failure
	KeyBytesMissing   = "bytes_missing"   // Bytes still needed after a failure

	KeyWaitMs    = "wait_ms"     // Time spent blocked, in milliseconds
	KeyTimeout   = "timeout"     // Configured request timeout
	KeyAllocator = "allocator"   // Allocator kind
	KeyError     = "error"       // Error message
	KeyDuration  = "duration_ms" // Operation duration in milliseconds
)

// PoolID returns a slog.Attr for the pool instance identifier
func PoolID(id string) slog.Attr {
	return slog.String(KeyPoolID, id)
}

// Buffers returns a slog.Attr for a buffer count
func Buffers(n int) slog.Attr {
	return slog.Int(KeyBuffers, n)
}

// BufferSize returns a slog.Attr for the buffer size
func BufferSize(n int) slog.Attr {
	return slog.Int(KeyBufferSize, n)
}

// Available returns a slog.Attr for the free buffer count
func Available(n int) slog.Attr {
	return slog.Int(KeyAvailable, n)
}

// WaitMs returns a slog.Attr for a wait duration in milliseconds
func WaitMs(d time.Duration) slog.Attr {
	return slog.Float64(KeyWaitMs, float64(d.Microseconds())/1000.0)
}

// Err returns a slog.Attr for an error; a nil error yields an empty attribute,
// which handlers skip.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
