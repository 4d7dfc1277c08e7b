package logger

import (
	"context"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields.
type LogContext struct {
	TraceID string // OpenTelemetry trace ID
	SpanID  string // OpenTelemetry span ID
	PoolID  string // Pool instance the request targets
	Reader  int    // Workload reader index, -1 when not applicable
}

// NewLogContext creates a LogContext for the given pool.
func NewLogContext(poolID string) *LogContext {
	return &LogContext{PoolID: poolID, Reader: -1}
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// WithReader returns a copy with the reader index set
func (lc *LogContext) WithReader(reader int) *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	clone.Reader = reader
	return &clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	clone.TraceID = traceID
	clone.SpanID = spanID
	return &clone
}
