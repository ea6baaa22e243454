package activity

import (
	"sync"
	"time"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/ident"
	"github.com/Combine-Capital/trail/pkg/record"
)

// Activity is a named, timed unit of work. It is created by Tracer.Open and
// finished by Close. All methods are safe for concurrent use, and the event
// methods, Elapsed and Close are no-ops on a nil *Activity so that code run by
// Tracer.Run keeps working when tracing could not start.
type Activity struct {
	tracer   *Tracer
	id       ident.ID
	parent   *Activity
	parentID ident.ID
	rootID   ident.ID
	name     string
	start    time.Time
	depth    int
	tags     map[string]any
	flow     *flow

	mu       sync.Mutex
	closed   bool
	terminal bool
	children []*Activity // open children, on any flow
}

// ID returns the activity identifier.
func (a *Activity) ID() ident.ID {
	return a.id
}

// ParentID returns the identifier of the enclosing activity, ident.Nil for a root.
func (a *Activity) ParentID() ident.ID {
	return a.parentID
}

// Parent returns the enclosing activity, nil for a root.
func (a *Activity) Parent() *Activity {
	return a.parent
}

// Name returns the activity name.
func (a *Activity) Name() string {
	return a.name
}

// Depth returns 0 for a root activity and one more than its parent otherwise.
func (a *Activity) Depth() int {
	return a.depth
}

// Start returns when the activity was opened.
func (a *Activity) Start() time.Time {
	return a.start
}

// Elapsed returns the time since the activity was opened, never negative.
func (a *Activity) Elapsed() time.Duration {
	if a == nil {
		return 0
	}
	return since(a.start, a.tracer.clock.Now())
}

// Closed reports whether Close has succeeded.
func (a *Activity) Closed() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Close finishes the activity. See Tracer.Close.
func (a *Activity) Close(err error) error {
	if a == nil {
		return nil
	}
	return a.tracer.Close(a, err)
}

// Emit records an event on the activity. See Tracer.EmitTo.
func (a *Activity) Emit(level record.Level, msg string, opts ...Option) (Event, error) {
	if a == nil {
		return Event{}, nil
	}
	return a.tracer.EmitTo(a, level, msg, opts...)
}

func (a *Activity) emit(level record.Level, trace, msg string, opts []Option) error {
	if a == nil {
		return nil
	}
	opts = append([]Option{WithTrace(trace)}, opts...)
	_, err := a.tracer.EmitTo(a, level, msg, opts...)
	return err
}

// Debug emits a debug event.
func (a *Activity) Debug(msg string, opts ...Option) error {
	return a.emit(record.LevelDebug, TraceInfo, msg, opts)
}

// Info emits an info event.
func (a *Activity) Info(msg string, opts ...Option) error {
	return a.emit(record.LevelInfo, TraceInfo, msg, opts)
}

// Warn emits a warning event.
func (a *Activity) Warn(msg string, opts ...Option) error {
	return a.emit(record.LevelWarn, TraceInfo, msg, opts)
}

// Error emits an error event carrying err in its attachment. The activity
// keeps running; use Close(err) to fail it.
func (a *Activity) Error(msg string, err error, opts ...Option) error {
	return a.emit(record.LevelError, TraceError, msg, append(opts, WithError(err)))
}

// Item records that one unit of the activity's input was processed.
func (a *Activity) Item(msg string, opts ...Option) error {
	return a.emit(record.LevelInfo, TraceItem, msg, opts)
}

// Skip records that one unit of input was deliberately not processed.
func (a *Activity) Skip(msg string, opts ...Option) error {
	return a.emit(record.LevelInfo, TraceSkip, msg, opts)
}

// Branch records a decision taken by the activity.
func (a *Activity) Branch(msg string, opts ...Option) error {
	return a.emit(record.LevelDebug, TraceBranch, msg, opts)
}

// Metric emits the statistics of c as event details.
func (a *Activity) Metric(c *Counter, opts ...Option) error {
	if a == nil {
		return nil
	}
	stats := c.Stats()
	opts = append([]Option{WithDetails(stats.Details())}, opts...)
	return a.emit(record.LevelInfo, TraceMetric, stats.Name, opts)
}

// Abort ends the activity early with a canceled terminal event. The activity
// stays open; Close must still be called but emits nothing further.
func (a *Activity) Abort(msg string, opts ...Option) error {
	if a == nil {
		return nil
	}
	opts = append([]Option{WithTrace(TraceAbort), WithStatus(record.StatusCanceled)}, opts...)
	_, err := a.tracer.EmitTo(a, record.LevelWarn, msg, opts...)
	return err
}

// snapshot captures what the serializer needs.
func (a *Activity) snapshot() record.Snapshot {
	return record.Snapshot{
		ID:       a.id,
		ParentID: a.parentID,
		RootID:   a.rootID,
		Name:     a.name,
		Instance: a.tracer.instance,
		Depth:    a.depth,
		Flow:     a.flow.id,
	}
}

// adopt registers child as open below a.
func (a *Activity) adopt(child *Activity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.children = append(a.children, child)
}

// release forgets child once it is closed or failed to open.
func (a *Activity) release(child *Activity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, c := range a.children {
		if c == child {
			a.children = append(a.children[:i], a.children[i+1:]...)
			return
		}
	}
}

// finish pops a from its flow and marks it closed. It fails with a
// NestingViolationError while a is not innermost on its flow or while any
// of its children is open, wherever that child runs.
func (a *Activity) finish() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.children); n > 0 && !a.closed && a.flow.isTop(a) {
		return errors.NewNestingViolation(a.name, a.id.String(), a.children[n-1].id.String())
	}
	if err := a.flow.pop(a); err != nil {
		return err
	}
	a.closed = true
	return nil
}

// claimTerminal reports whether the caller may emit the terminal event.
// It returns true exactly once per activity.
func (a *Activity) claimTerminal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.terminal {
		return false
	}
	a.terminal = true
	return true
}
