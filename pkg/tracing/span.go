package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on mirrored activity spans and their events.
const (
	ActivityIDKey = attribute.Key("trail.activity.id")
	ParentIDKey   = attribute.Key("trail.activity.parent_id")
	DepthKey      = attribute.Key("trail.activity.depth")
	FlowKey       = attribute.Key("trail.activity.flow")
	InstanceKey   = attribute.Key("trail.instance")
	EventIDKey    = attribute.Key("trail.event.id")
	LevelKey      = attribute.Key("trail.level")
	StatusKey     = attribute.Key("trail.status")
	TraceKey      = attribute.Key("trail.trace")
	MessageKey    = attribute.Key("trail.message")
	ElapsedKey    = attribute.Key("trail.elapsed")
	DetailsKey    = attribute.Key("trail.details")
	AttachmentKey = attribute.Key("trail.attachment")
)

// StartSpan creates a span with the trail tracer of the global provider,
// linked to the span in ctx.
//
// Example:
//
//	ctx, span := tracing.StartSpan(ctx, "import",
//	    trace.WithAttributes(tracing.ActivityIDKey.String(id)))
//	defer span.End()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer(nil).Start(ctx, name, opts...)
}

// SpanFromContext retrieves the current span from the context.
// Returns a no-op span if no span is present in the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ContextWithSpan returns a new context with the given span.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	return trace.ContextWithSpan(ctx, span)
}

// SetSpanError marks the span as errored with description msg, recording err
// as an event when it is not nil.
func SetSpanError(span trace.Span, msg string, err error) {
	if err != nil {
		span.RecordError(err)
		if msg == "" {
			msg = err.Error()
		}
	}
	span.SetStatus(codes.Error, msg)
}

// ActivityAttributes returns the attributes identifying an activity span.
// An empty parentID is omitted.
func ActivityAttributes(activityID, parentID string, depth int, flow uint64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		ActivityIDKey.String(activityID),
		DepthKey.Int(depth),
		FlowKey.Int64(int64(flow)),
	}
	if parentID != "" {
		attrs = append(attrs, ParentIDKey.String(parentID))
	}
	return attrs
}
