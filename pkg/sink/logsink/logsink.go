// Package logsink renders records as human readable log lines.
//
// Each record becomes one zerolog event at the record's level. The message is
// the classic trace line
//
//	.. Validate | info | 1.500s | Slow row | {"row":17} | node://<parent_id>/<unique_id> |
//
// where the dots show the activity's nesting depth. The record's identifiers
// are attached as structured fields as well, so JSON output stays queryable.
//
// Example usage:
//
//	logger := logging.New(cfg.Log)
//	d := sink.NewDispatcher(logsink.New(logger))
package logsink

import (
	"context"
	"strings"

	"github.com/Combine-Capital/trail/pkg/ident"
	"github.com/Combine-Capital/trail/pkg/logging"
	"github.com/Combine-Capital/trail/pkg/record"
	"github.com/rs/zerolog"
)

// DefaultIndent is repeated once per nesting level.
const DefaultIndent = "."

// Sink writes records to a logger. It never fails.
type Sink struct {
	logger *logging.Logger
	indent string
}

// Option configures a Sink.
type Option func(*Sink)

// WithIndent sets the string repeated per nesting level.
func WithIndent(indent string) Option {
	return func(s *Sink) {
		s.indent = indent
	}
}

// New creates a sink writing through logger.
func New(logger *logging.Logger, opts ...Option) *Sink {
	s := &Sink{logger: logger.WithComponent("trace"), indent: DefaultIndent}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements sink.Named.
func (s *Sink) Name() string {
	return "log"
}

// Append logs rec.
func (s *Sink) Append(_ context.Context, rec record.Record) error {
	m := rec.Meta
	event := s.logger.WithLevel(zerologLevel(m.Level)).
		Str(logging.ActivityID, m.ActivityID.String()).
		Str(logging.Activity, m.Activity).
		Int(logging.Depth, m.Depth)
	if m.ParentID != ident.Nil {
		event = event.Str(logging.ParentID, m.ParentID.String())
	}
	if m.Trace != "" {
		event = event.Str(logging.Trace, m.Trace)
	}
	if m.Status != record.StatusNone {
		event = event.Str("status", string(m.Status))
	}
	event.Msg(Line(rec, s.indent))
	return nil
}

// AppendBatch logs recs in order.
func (s *Sink) AppendBatch(ctx context.Context, recs []record.Record) error {
	for _, rec := range recs {
		_ = s.Append(ctx, rec)
	}
	return nil
}

// Line formats rec as a trace line. Columns the record's mapping lacks
// render empty.
func Line(rec record.Record, indent string) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(indent, rec.Meta.Depth+1))
	b.WriteByte(' ')
	b.WriteString(rec.Meta.Activity)
	b.WriteString(" | ")
	b.WriteString(rec.Meta.Trace)
	b.WriteString(" | ")
	b.WriteString(record.FormatValue(record.ElapsedSeconds(rec.Meta.Elapsed)))
	b.WriteString("s | ")
	b.WriteString(rec.Text(record.FieldMessage))
	b.WriteString(" | ")
	b.WriteString(rec.Text(record.FieldDetails))
	b.WriteString(" | node://")
	b.WriteString(rec.Text(record.FieldParentID))
	b.WriteByte('/')
	b.WriteString(rec.Text(record.FieldUniqueID))
	b.WriteString(" | ")
	b.WriteString(rec.Text(record.FieldAttachment))
	return b.String()
}

func zerologLevel(l record.Level) zerolog.Level {
	switch {
	case l >= record.LevelCritical:
		return zerolog.FatalLevel
	case l >= record.LevelError:
		return zerolog.ErrorLevel
	case l >= record.LevelWarn:
		return zerolog.WarnLevel
	case l >= record.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
