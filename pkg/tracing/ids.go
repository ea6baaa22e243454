package tracing

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDOf returns the trace id of the activity tree whose root has id.
func TraceIDOf(root uuid.UUID) trace.TraceID {
	return trace.TraceID(root)
}

// SpanIDOf returns the span id of the activity with id. Both halves of the
// id are folded together, so sequential and random ids both spread.
func SpanIDOf(id uuid.UUID) trace.SpanID {
	v := binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:])
	if v == 0 {
		v = 1
	}
	var sid trace.SpanID
	binary.BigEndian.PutUint64(sid[:], v)
	return sid
}

type idsKey struct{}

type spanIDs struct {
	trace trace.TraceID
	span  trace.SpanID
}

// WithSpanIDs makes the next span started with ctx on a provider using
// IDGenerator take the given ids.
func WithSpanIDs(ctx context.Context, tid trace.TraceID, sid trace.SpanID) context.Context {
	return context.WithValue(ctx, idsKey{}, spanIDs{trace: tid, span: sid})
}

// IDGenerator hands out the ids placed in the context by WithSpanIDs and
// random ones otherwise. Providers built by NewTracerProvider use it.
type IDGenerator struct{}

var _ sdktrace.IDGenerator = IDGenerator{}

// NewIDs implements sdktrace.IDGenerator.
func (IDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	if ids, ok := ctx.Value(idsKey{}).(spanIDs); ok && ids.trace.IsValid() {
		return ids.trace, ids.span
	}
	return TraceIDOf(uuid.New()), SpanIDOf(uuid.New())
}

// NewSpanID implements sdktrace.IDGenerator.
func (IDGenerator) NewSpanID(ctx context.Context, _ trace.TraceID) trace.SpanID {
	if ids, ok := ctx.Value(idsKey{}).(spanIDs); ok {
		return ids.span
	}
	return SpanIDOf(uuid.New())
}
