package activity

import (
	"github.com/Combine-Capital/trail/pkg/record"
)

// Trace names used by the shorthand emitters.
const (
	TraceBegin  = "begin"
	TraceInfo   = "info"
	TraceItem   = "item"
	TraceSkip   = "skip"
	TraceMetric = "metric"
	TraceBranch = "branch"
	TraceAbort  = "abort"
	TraceEnd    = "end"
	TraceError  = "error"
)

// Lazy defers computing a detail or attachment value until the event is
// serialized. Events dropped by level filtering never call it.
type Lazy = record.Lazy

// Event is the event handed to the serializer.
type Event = record.Event

// Option configures an Open call or an emitted event. Options that do not
// apply to the call they are passed to are ignored.
type Option func(*options)

type options struct {
	// open
	parent *Activity
	begin  bool
	tags   map[string]any

	// event and begin event
	status     record.Status
	trace      string
	message    string
	details    map[string]any
	attachment any
	err        error
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithParent opens the activity below p instead of the context's current activity.
func WithParent(p *Activity) Option {
	return func(o *options) { o.parent = p }
}

// WithBegin emits a "started" event when the activity opens.
func WithBegin() Option {
	return func(o *options) { o.begin = true }
}

// WithTags attaches key/value pairs to the details of every event of the
// activity, including its terminal event.
func WithTags(tags map[string]any) Option {
	return func(o *options) {
		if o.tags == nil {
			o.tags = make(map[string]any, len(tags))
		}
		for k, v := range tags {
			o.tags[k] = v
		}
	}
}

// WithMessage sets the message of the begin event.
func WithMessage(msg string) Option {
	return func(o *options) { o.message = msg }
}

// WithStatus sets the event status.
func WithStatus(s record.Status) Option {
	return func(o *options) { o.status = s }
}

// WithTrace sets the trace name of the event.
func WithTrace(trace string) Option {
	return func(o *options) { o.trace = trace }
}

// WithDetails merges details into the event's details.
func WithDetails(details map[string]any) Option {
	return func(o *options) {
		for k, v := range details {
			WithDetail(k, v)(o)
		}
	}
}

// WithDetail sets one detail. v may be a Lazy.
func WithDetail(key string, v any) Option {
	return func(o *options) {
		if o.details == nil {
			o.details = make(map[string]any)
		}
		o.details[key] = v
	}
}

// WithAttachment sets the event attachment. Strings and byte slices are
// stored as they are, errors and Stringers as text, anything else as JSON.
// v may be a Lazy.
func WithAttachment(v any) Option {
	return func(o *options) { o.attachment = v }
}

// WithError appends err's text to the attachment.
func WithError(err error) Option {
	return func(o *options) { o.err = err }
}
