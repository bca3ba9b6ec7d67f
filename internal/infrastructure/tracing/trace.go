package tracing

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const traceIDKey ctxKey = iota

// TraceID identifies one request through the control plane and into the
// kernel's logs.
type TraceID string

// NewTraceID mints a fresh identifier.
func NewTraceID() TraceID {
	return TraceID(uuid.NewString())
}

// WithTraceID attaches a trace identifier to the context.
func WithTraceID(ctx context.Context, id TraceID) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// FromContext extracts the trace identifier, empty if none was attached.
func FromContext(ctx context.Context) TraceID {
	if id, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return id
	}
	return ""
}
