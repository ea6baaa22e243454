// Package sink delivers serialized records to durable stores.
//
// A Sink appends one record at a time; a BatchSink can also append several
// records atomically. Sinks return classified *errors.SinkError values so the
// Dispatcher can tell a store that is briefly unreachable (ConnectionFailure,
// retried) from one that will never accept the row (SchemaMismatch,
// ConstraintViolation, reported at once).
//
// Business code never sees sink errors: the Tracer hands every record to a
// Dispatcher, which retries, and reports each record that could not be
// delivered exactly once to its Reporter.
//
// Example usage with the in-memory backend:
//
//	mem := sink.NewMemory()
//	d := sink.NewDispatcher(mem, sink.WithWorkers(0))
//	defer d.Close(ctx)
//
// Example usage with middleware:
//
//	s := sink.Wrap(pgSink,
//	    sink.WithRecovery(),
//	    sink.WithTimeout(2*time.Second),
//	    sink.WithLogging(logger),
//	)
package sink

import (
	"context"
	"fmt"

	"github.com/Combine-Capital/trail/pkg/record"
)

// Sink appends records to a store. Implementations must be safe for
// concurrent use.
type Sink interface {
	// Append persists one record. Failures are *errors.SinkError values.
	Append(ctx context.Context, rec record.Record) error
}

// BatchSink is a Sink that can persist several records in one all-or-nothing
// operation.
type BatchSink interface {
	Sink

	// AppendBatch persists recs atomically: on error none of them is stored.
	AppendBatch(ctx context.Context, recs []record.Record) error
}

// Named is implemented by sinks that report a stable name for logs and metrics.
type Named interface {
	Name() string
}

// NameOf returns the name a sink reports, or its type name.
func NameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, rec record.Record) error

// Append calls f(ctx, rec).
func (f Func) Append(ctx context.Context, rec record.Record) error {
	return f(ctx, rec)
}

// Name implements Named.
func (f Func) Name() string {
	return "func"
}
