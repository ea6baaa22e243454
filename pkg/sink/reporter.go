package sink

import (
	"context"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/logging"
	"github.com/Combine-Capital/trail/pkg/record"
	"github.com/rs/zerolog"
)

// Failure describes a record that did not reach its sink.
type Failure struct {
	Record   record.Record
	Sink     string
	Err      error
	Kind     errors.SinkErrorKind
	Attempts uint

	// Dropped is set when the record was discarded before any append, for
	// instance because the delivery queue was full or the dispatcher closed.
	Dropped bool
}

// Reporter receives every undeliverable record exactly once.
type Reporter interface {
	Report(ctx context.Context, f Failure)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, f Failure)

// Report calls fn(ctx, f).
func (fn ReporterFunc) Report(ctx context.Context, f Failure) {
	fn(ctx, f)
}

// LogReporter writes failures to a structured log. Records whose sink
// rejected them for good are logged with contract_break=true.
type LogReporter struct {
	logger *logging.Logger
}

// NewLogReporter creates a reporter that logs to logger. A nil logger means
// the logger carried by the context of each report.
func NewLogReporter(logger *logging.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs f. Dropped records are logged at warn level, everything else
// at error level.
func (r *LogReporter) Report(ctx context.Context, f Failure) {
	logger := r.logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	var ev *zerolog.Event
	if f.Dropped {
		ev = logger.Warn()
	} else {
		ev = logger.Error()
	}

	meta := f.Record.Meta
	ev = ev.Err(f.Err).
		Str(logging.Sink, f.Sink).
		Str(logging.Kind, f.Kind.String()).
		Uint(logging.Attempt, f.Attempts).
		Str(logging.ActivityID, meta.ActivityID.String()).
		Str(logging.Activity, meta.Activity).
		Str(logging.Trace, meta.Trace).
		Str("status", string(meta.Status)).
		Str("record_message", f.Record.Text(record.FieldMessage))

	if f.Kind != 0 && !f.Kind.Retryable() {
		ev = ev.Bool(logging.ContractBreak, true)
	}

	switch {
	case f.Dropped:
		ev.Msg("record dropped")
	default:
		ev.Msg("record not persisted")
	}
}
