// Package otelsink mirrors activity records as OpenTelemetry spans.
//
// The first record of an activity starts its span, back-dated to the
// activity start (the record timestamp minus its elapsed time). Span and
// trace ids are derived from the activity ids (see tracing.IDGenerator), so
// a child links to its parent whether or not the parent's span has started
// yet. Records without a root id fall back to the parent's open span, or
// become a root carrying the parent id as an attribute. Non-terminal records
// become span events and the terminal record ends the span with an Ok or
// Error status.
//
// The mirror is in-process only: spans live in this sink until their
// activity ends, and the sink never fails an append. Records seen before are
// ignored, so a retried append does not duplicate events or spans.
//
// Example usage:
//
//	tp, shutdown, err := tracing.NewTracerProvider(ctx, cfg.Tracing, "importer", version)
//	if err != nil {
//	    return err
//	}
//	defer shutdown(ctx)
//
//	mirror := otelsink.New(tp)
//	defer mirror.Close(ctx)
//	d := sink.NewDispatcher(sink.NewMulti(pgSink, mirror))
package otelsink

import (
	"context"
	"sync"
	"time"

	"github.com/Combine-Capital/trail/pkg/ident"
	"github.com/Combine-Capital/trail/pkg/record"
	"github.com/Combine-Capital/trail/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Sink turns records into spans.
type Sink struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[ident.ID]openSpan
	seen  map[string]struct{}
	order []string
}

// seenLimit caps how many record ids the sink remembers for deduplication.
const seenLimit = 8192

type openSpan struct {
	ctx  context.Context
	span trace.Span
}

// New creates a mirror sink creating spans with tp. A nil tp uses the global
// provider. tp should use tracing.IDGenerator, as providers from
// tracing.NewTracerProvider do; otherwise spans whose parent has not started
// yet point at a parent span that never appears.
func New(tp trace.TracerProvider) *Sink {
	return &Sink{
		tracer: tracing.Tracer(tp),
		spans:  make(map[ident.ID]openSpan),
		seen:   make(map[string]struct{}),
	}
}

// Name implements sink.Named.
func (s *Sink) Name() string {
	return "otel"
}

// Append mirrors rec.
func (s *Sink) Append(_ context.Context, rec record.Record) error {
	m := rec.Meta
	if m.ActivityID == ident.Nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remember(rec) {
		return nil
	}

	open, ok := s.spans[m.ActivityID]
	if !ok {
		open = s.start(rec)
	}

	if !m.Terminal {
		open.span.AddEvent(eventName(m), trace.WithTimestamp(m.Timestamp), trace.WithAttributes(eventAttributes(rec)...))
		s.spans[m.ActivityID] = open
		return nil
	}

	open.span.SetAttributes(eventAttributes(rec)...)
	if failed(m) {
		msg := rec.Text(record.FieldMessage)
		if msg == "" {
			msg = string(m.Status)
		}
		tracing.SetSpanError(open.span, msg, nil)
	} else {
		open.span.SetStatus(codes.Ok, "")
	}
	open.span.End(trace.WithTimestamp(m.Timestamp))
	delete(s.spans, m.ActivityID)
	return nil
}

// AppendBatch mirrors recs in order.
func (s *Sink) AppendBatch(ctx context.Context, recs []record.Record) error {
	for _, rec := range recs {
		_ = s.Append(ctx, rec)
	}
	return nil
}

// Open returns the number of activities with a started but unended span.
func (s *Sink) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spans)
}

// Close ends the spans of activities that never reported a terminal record.
func (s *Sink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, open := range s.spans {
		open.span.SetAttributes(tracing.StatusKey.String("unfinished"))
		open.span.End(trace.WithTimestamp(now))
		delete(s.spans, id)
	}
	return nil
}

// remember reports whether rec is new to the sink. The terminal record is
// keyed by its activity, so nothing of an ended activity is mirrored again.
// It must be called with s.mu held.
func (s *Sink) remember(rec record.Record) bool {
	key := rec.Meta.ActivityID.String()
	if !rec.Meta.Terminal {
		key = rec.Text(record.FieldUniqueID)
	}
	if _, ended := s.seen[rec.Meta.ActivityID.String()]; ended {
		return false
	}
	if key == "" {
		return true
	}
	if _, ok := s.seen[key]; ok {
		return false
	}

	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	for len(s.order) > seenLimit {
		delete(s.seen, s.order[0])
		s.order[0] = ""
		s.order = s.order[1:]
	}
	return true
}

// parentContext returns the context a span for m starts from: it carries the
// span's own ids and, for a child, its parent's span context.
func (s *Sink) parentContext(m record.Meta) context.Context {
	ctx := context.Background()
	sid := tracing.SpanIDOf(m.ActivityID)

	if m.ParentID == ident.Nil {
		return tracing.WithSpanIDs(ctx, tracing.TraceIDOf(m.ActivityID), sid)
	}
	if parent, ok := s.spans[m.ParentID]; ok {
		return tracing.WithSpanIDs(parent.ctx, parent.span.SpanContext().TraceID(), sid)
	}
	if m.RootID == ident.Nil {
		return tracing.WithSpanIDs(ctx, tracing.TraceIDOf(m.ActivityID), sid)
	}

	tid := tracing.TraceIDOf(m.RootID)
	psc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     tracing.SpanIDOf(m.ParentID),
		TraceFlags: trace.FlagsSampled,
	})
	return tracing.WithSpanIDs(trace.ContextWithSpanContext(ctx, psc), tid, sid)
}

// start must be called with s.mu held.
func (s *Sink) start(rec record.Record) openSpan {
	m := rec.Meta

	parentCtx := s.parentContext(m)
	parentID := ""
	if m.ParentID != ident.Nil {
		parentID = m.ParentID.String()
	}

	attrs := tracing.ActivityAttributes(m.ActivityID.String(), parentID, m.Depth, m.Flow)
	if instance := rec.Text(record.FieldInstance); instance != "" {
		attrs = append(attrs, tracing.InstanceKey.String(instance))
	}

	ctx, span := s.tracer.Start(parentCtx, m.Activity,
		trace.WithTimestamp(m.Timestamp.Add(-m.Elapsed)),
		trace.WithAttributes(attrs...),
	)
	open := openSpan{ctx: ctx, span: span}
	s.spans[m.ActivityID] = open
	return open
}

func failed(m record.Meta) bool {
	return m.Status == record.StatusFailed || m.Level >= record.LevelError
}

func eventName(m record.Meta) string {
	if m.Trace != "" {
		return m.Trace
	}
	return "event"
}

func eventAttributes(rec record.Record) []attribute.KeyValue {
	m := rec.Meta
	attrs := []attribute.KeyValue{
		tracing.LevelKey.String(m.Level.String()),
		tracing.ElapsedKey.Float64(record.ElapsedSeconds(m.Elapsed).InexactFloat64()),
	}
	if !m.Terminal {
		attrs = append(attrs, tracing.EventIDKey.String(rec.Text(record.FieldUniqueID)))
	}
	if m.Trace != "" {
		attrs = append(attrs, tracing.TraceKey.String(m.Trace))
	}
	if m.Status != record.StatusNone {
		attrs = append(attrs, tracing.StatusKey.String(string(m.Status)))
	}
	for _, f := range []struct {
		field record.Field
		key   attribute.Key
	}{
		{record.FieldMessage, tracing.MessageKey},
		{record.FieldDetails, tracing.DetailsKey},
		{record.FieldAttachment, tracing.AttachmentKey},
	} {
		if text := rec.Text(f.field); text != "" {
			attrs = append(attrs, f.key.String(text))
		}
	}
	return attrs
}
