// Package activity traces hierarchical units of work.
//
// A Tracer opens Activities. Each activity gets a fresh identifier, remembers
// the activity it was opened under and measures its elapsed time from a
// monotonic clock. Events emitted on an activity are serialized into records
// and handed to a sink; closing the activity emits its terminal event.
//
// The current activity travels in a context.Context. Every logical flow of
// work keeps its own LIFO stack of open activities, so activities must be
// closed innermost first. Goroutines that open activities from a shared
// context are moved to a stack of their own automatically; Fork does the same
// explicitly.
//
// Example usage:
//
//	tracer := activity.New(dispatcher)
//
//	err := tracer.Run(ctx, "Import", func(ctx context.Context, imp *activity.Activity) error {
//	    _ = imp.Info("Starting")
//	    return tracer.Run(ctx, "Validate", func(ctx context.Context, v *activity.Activity) error {
//	        return v.Warn("Slow row", activity.WithDetail("row", 17))
//	    })
//	})
package activity

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/ident"
	"github.com/Combine-Capital/trail/pkg/logging"
	"github.com/Combine-Capital/trail/pkg/metrics"
	"github.com/Combine-Capital/trail/pkg/record"
)

// Deliverer accepts records for persistence. *sink.Dispatcher implements it.
// Deliver must not fail the caller.
type Deliverer interface {
	Deliver(ctx context.Context, rec record.Record)
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, rec record.Record)

// Deliver calls f(ctx, rec).
func (f DelivererFunc) Deliver(ctx context.Context, rec record.Record) {
	f(ctx, rec)
}

// Tracer opens activities and turns their events into records.
type Tracer struct {
	out      Deliverer
	mapping  record.Mapping
	ids      ident.Allocator
	clock    Clock
	instance string
	minLevel record.Level
	begin    bool
	logger   *logging.Logger
	metrics  *metrics.SinkMetrics
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithMapping selects the column layout of produced records.
func WithMapping(m record.Mapping) TracerOption {
	return func(t *Tracer) { t.mapping = m }
}

// WithAllocator replaces the random identifier allocator.
func WithAllocator(a ident.Allocator) TracerOption {
	return func(t *Tracer) { t.ids = a }
}

// WithClock replaces the system clock.
func WithClock(c Clock) TracerOption {
	return func(t *Tracer) { t.clock = c }
}

// WithInstance tags every record with the producing process.
func WithInstance(instance string) TracerOption {
	return func(t *Tracer) { t.instance = instance }
}

// WithMinLevel drops non-terminal events below l before they are serialized.
func WithMinLevel(l record.Level) TracerOption {
	return func(t *Tracer) { t.minLevel = l }
}

// WithBeginEvents emits a "started" event for every opened activity.
func WithBeginEvents(on bool) TracerOption {
	return func(t *Tracer) { t.begin = on }
}

// WithLogger sets the logger for tracing diagnostics and delivery failures.
// Without it the logger carried by the context is used.
func WithLogger(l *logging.Logger) TracerOption {
	return func(t *Tracer) { t.logger = l }
}

// WithMetrics sets the metrics updated as activities open and close.
func WithMetrics(m *metrics.SinkMetrics) TracerOption {
	return func(t *Tracer) { t.metrics = m }
}

// FromConfig translates the tracer configuration into options.
func FromConfig(cfg config.TracerConfig) ([]TracerOption, error) {
	opts := []TracerOption{
		WithInstance(cfg.Instance),
		WithBeginEvents(cfg.BeginEvents),
	}
	if cfg.MinLevel != "" {
		l, err := record.ParseLevel(cfg.MinLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithMinLevel(l))
	}
	return opts, nil
}

// New creates a tracer that hands its records to out.
func New(out Deliverer, opts ...TracerOption) *Tracer {
	t := &Tracer{
		out:      out,
		mapping:  record.DefaultMapping,
		ids:      ident.Random{},
		clock:    SystemClock{},
		minLevel: record.LevelDebug,
		metrics:  metrics.Standard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mapping returns the column layout of produced records.
func (t *Tracer) Mapping() record.Mapping {
	return t.mapping
}

// Open starts an activity below the context's current activity, or below
// the WithParent option, or as a root. The returned context carries the new
// activity.
//
// Open fails with an *errors.InconsistentContextError while a close on the
// context's flow is still unresolved. It panics with an
// *errors.IdentityExhaustionError if no identifier can be allocated.
func (t *Tracer) Open(ctx context.Context, name string, opts ...Option) (context.Context, *Activity, error) {
	return t.open(ctx, name, opts)
}

// open is called directly by Open and Run so that the caller two frames up
// is the code being traced.
func (t *Tracer) open(ctx context.Context, name string, opts []Option) (context.Context, *Activity, error) {
	if strings.TrimSpace(name) == "" {
		return ctx, nil, errors.NewInvalidInput("name", "activity name must not be empty")
	}
	o := buildOptions(opts)

	sc := scopeFrom(ctx)
	parent, fl := sc.act, sc.flow
	if o.parent != nil && o.parent != parent {
		parent, fl = o.parent, o.parent.flow
	}

	a := &Activity{
		tracer: t,
		id:     ident.MustNew(t.ids),
		parent: parent,
		name:   name,
		start:  t.clock.Now(),
		tags:   o.tags,
	}
	a.rootID = a.id
	if parent != nil {
		a.parentID = parent.id
		a.rootID = parent.rootID
		a.depth = parent.depth + 1
		parent.adopt(a)
	}

	if err := t.place(fl, parent, a); err != nil {
		if parent != nil {
			parent.release(a)
		}
		return ctx, nil, err
	}

	t.metrics.ActivityOpened()

	ctx = withScope(ctx, scope{act: a, flow: a.flow})
	parentText := ""
	if parent != nil {
		parentText = parent.id.String()
	}
	ctx = logging.WithActivity(ctx, a.id.String(), parentText, name)

	if t.begin || o.begin {
		details := map[string]any{}
		if _, file, line, ok := runtime.Caller(2); ok {
			details["source"] = map[string]any{"file": filepath.Base(file), "line": line}
		}
		for k, v := range o.details {
			details[k] = v
		}
		t.record(ctx, a, record.LevelInfo, o.message, options{
			status:  record.StatusStarted,
			trace:   TraceBegin,
			details: details,
		})
	}

	return ctx, a, nil
}

// place pushes a on fl, or on a new flow when parent is not innermost on fl
// because a sibling is open elsewhere.
func (t *Tracer) place(fl *flow, parent, a *Activity) error {
	if fl != nil {
		ok, err := fl.push(parent, a)
		if err != nil || ok {
			return err
		}
	}
	_, err := newFlow(parent).push(parent, a)
	return err
}

// Close finishes a. It must be the innermost open activity of its flow and
// have no open children on any other flow; otherwise nothing changes and an
// *errors.NestingViolationError is returned. Closing an activity twice is a
// nesting violation too.
//
// On success the terminal event is emitted unless one was emitted already:
// "completed" when err is nil, "failed" at error level with err's text in the
// attachment otherwise.
func (t *Tracer) Close(a *Activity, err error) error {
	if a == nil {
		return errors.NewNoActiveActivity("close")
	}
	if perr := a.finish(); perr != nil {
		return perr
	}
	if a.parent != nil {
		a.parent.release(a)
	}
	t.metrics.ActivityClosed()

	if !a.claimTerminal() {
		return nil
	}

	o := options{status: record.StatusCompleted, trace: TraceEnd, err: err}
	level := record.LevelInfo
	if err != nil {
		o.status, o.trace = record.StatusFailed, TraceError
		level = record.LevelError
	}
	t.record(context.Background(), a, level, "", o)
	return nil
}

// Run opens an activity, calls fn and closes the activity on every exit path.
// fn's error is returned unchanged and fails the activity. A panic in fn
// fails the activity and is re-raised.
//
// Tracing problems never change the outcome: if the activity cannot be
// opened, fn runs with a nil *Activity (whose methods do nothing) and the
// problem is logged.
func (t *Tracer) Run(ctx context.Context, name string, fn func(context.Context, *Activity) error, opts ...Option) (err error) {
	actx, a, oerr := t.open(ctx, name, opts)
	if oerr != nil {
		t.log(ctx).Warn().Err(oerr).Str(logging.Activity, name).Msg("activity not traced")
		return fn(ctx, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			t.closeQuietly(a, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		t.closeQuietly(a, err)
	}()

	return fn(actx, a)
}

func (t *Tracer) closeQuietly(a *Activity, err error) {
	if cerr := t.Close(a, err); cerr != nil {
		t.log(context.Background()).Warn().
			Err(cerr).
			Str(logging.ActivityID, a.id.String()).
			Str(logging.Activity, a.name).
			Msg("activity close refused")
	}
}

// Emit records an event on the context's current activity. It fails with
// errors.ErrNoActiveActivity when ctx carries none.
func (t *Tracer) Emit(ctx context.Context, level record.Level, msg string, opts ...Option) (Event, error) {
	a, ok := Current(ctx)
	if !ok {
		return Event{}, errors.NewNoActiveActivity("emit")
	}
	return t.emit(ctx, a, level, msg, opts)
}

// EmitTo records an event on a. Emitting on a closed activity fails with an
// *errors.InvalidInputError. A terminal status is honored once per activity;
// later terminal events are ignored.
func (t *Tracer) EmitTo(a *Activity, level record.Level, msg string, opts ...Option) (Event, error) {
	if a == nil {
		return Event{}, errors.NewNoActiveActivity("emit")
	}
	return t.emit(context.Background(), a, level, msg, opts)
}

func (t *Tracer) emit(ctx context.Context, a *Activity, level record.Level, msg string, opts []Option) (Event, error) {
	if a.Closed() {
		return Event{}, errors.NewInvalidInput("activity", fmt.Sprintf("%s (%s) is closed", a.name, a.id))
	}

	o := buildOptions(opts)
	if o.status.Terminal() && !a.claimTerminal() {
		return Event{}, nil
	}
	if o.trace == "" {
		o.trace = TraceInfo
		if level >= record.LevelError {
			o.trace = TraceError
		}
	}
	return t.record(ctx, a, level, msg, o)
}

// record builds the event, serializes it and delivers the record. Events
// below the minimum level are built but not serialized, unless terminal.
func (t *Tracer) record(ctx context.Context, a *Activity, level record.Level, msg string, o options) (Event, error) {
	now := t.clock.Now()
	terminal := o.status.Terminal()

	ev := Event{
		ID:         a.id,
		Timestamp:  now,
		Level:      level,
		Status:     o.status,
		Trace:      o.trace,
		Elapsed:    since(a.start, now),
		Message:    msg,
		Details:    mergeDetails(a.tags, o.details),
		Attachment: o.attachment,
		Err:        o.err,
		Terminal:   terminal,
	}
	if !terminal {
		ev.ID = ident.MustNew(t.ids)
	}

	if level < t.minLevel && !terminal {
		return ev, nil
	}

	rec, err := record.Serialize(a.snapshot(), ev, t.mapping)
	if err != nil {
		t.log(ctx).Error().
			Err(err).
			Str(logging.ActivityID, a.id.String()).
			Str(logging.Activity, a.name).
			Msg("event not serialized")
		return ev, err
	}

	if t.logger != nil {
		ctx = logging.WithLogger(ctx, t.logger)
	}
	t.out.Deliver(ctx, rec)
	return ev, nil
}

func (t *Tracer) log(ctx context.Context) *logging.Logger {
	if t.logger != nil {
		return t.logger
	}
	return logging.FromContext(ctx)
}

func mergeDetails(tags, details map[string]any) map[string]any {
	if len(tags) == 0 {
		return details
	}
	out := make(map[string]any, len(tags)+len(details))
	for k, v := range tags {
		out[k] = v
	}
	for k, v := range details {
		out[k] = v
	}
	return out
}
