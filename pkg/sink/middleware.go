package sink

import (
	"context"
	"time"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/logging"
	"github.com/Combine-Capital/trail/pkg/record"
)

// Middleware wraps a Sink to add cross-cutting concerns like timeouts,
// panic recovery and logging.
type Middleware func(Sink) Sink

// Wrap applies middleware to s so that the first middleware given is the
// outermost wrapper.
func Wrap(s Sink, middlewares ...Middleware) Sink {
	for i := len(middlewares) - 1; i >= 0; i-- {
		s = middlewares[i](s)
	}
	return s
}

// interceptor runs around one append or batch append. call performs the
// wrapped operation with the context it is given.
type interceptor func(ctx context.Context, recs []record.Record, call func(context.Context) error) error

// wrapped applies an interceptor to Append.
type wrapped struct {
	next Sink
	in   interceptor
}

// wrappedBatch also applies the interceptor to AppendBatch.
type wrappedBatch struct {
	*wrapped
	batch BatchSink
}

// intercept wraps next, keeping its BatchSink capability.
func intercept(next Sink, in interceptor) Sink {
	w := &wrapped{next: next, in: in}
	if b, ok := next.(BatchSink); ok {
		return &wrappedBatch{wrapped: w, batch: b}
	}
	return w
}

func (w *wrapped) Append(ctx context.Context, rec record.Record) error {
	return w.in(ctx, []record.Record{rec}, func(ctx context.Context) error {
		return w.next.Append(ctx, rec)
	})
}

func (w *wrapped) Name() string {
	return NameOf(w.next)
}

// Unwrap returns the wrapped sink.
func (w *wrapped) Unwrap() Sink {
	return w.next
}

func (w *wrappedBatch) AppendBatch(ctx context.Context, recs []record.Record) error {
	return w.in(ctx, recs, func(ctx context.Context) error {
		return w.batch.AppendBatch(ctx, recs)
	})
}

// WithTimeout bounds every append. An append that does not finish in time
// fails with ConnectionFailure.
//
// Example:
//
//	s := sink.Wrap(pgSink, sink.WithTimeout(2*time.Second))
func WithTimeout(timeout time.Duration) Middleware {
	return func(next Sink) Sink {
		name := NameOf(next)
		return intercept(next, func(ctx context.Context, _ []record.Record, call func(context.Context) error) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := call(ctx)
			if err != nil && ctx.Err() == context.DeadlineExceeded && !errors.IsSink(err) {
				return errors.NewSinkError(errors.ConnectionFailure, name, err)
			}
			return err
		})
	}
}

// WithRecovery converts a panicking append into a SchemaMismatch error, so a
// faulty sink cannot take down the delivery goroutine.
func WithRecovery() Middleware {
	return func(next Sink) Sink {
		name := NameOf(next)
		return intercept(next, func(ctx context.Context, _ []record.Record, call func(context.Context) error) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.NewSinkErrorf(errors.SchemaMismatch, name, "append panicked: %v", r)
				}
			}()
			return call(ctx)
		})
	}
}

// WithLogging logs every append at debug level and every failure at warn
// level. Failures are still returned; reporting them is the Dispatcher's job.
func WithLogging(logger *logging.Logger) Middleware {
	return func(next Sink) Sink {
		name := NameOf(next)
		return intercept(next, func(ctx context.Context, recs []record.Record, call func(context.Context) error) error {
			start := time.Now()
			err := call(ctx)
			duration := time.Since(start)

			if err != nil {
				logger.Warn().
					Err(err).
					Str(logging.Sink, name).
					Str(logging.Kind, errors.SinkKind(err).String()).
					Int("records", len(recs)).
					Int64(logging.Duration, duration.Milliseconds()).
					Msg("append failed")
				return err
			}

			logger.Debug().
				Str(logging.Sink, name).
				Int("records", len(recs)).
				Int64(logging.Duration, duration.Milliseconds()).
				Msg("records appended")
			return nil
		})
	}
}
