package sink

import (
	"context"
	"sync"
	"time"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/metrics"
	"github.com/Combine-Capital/trail/pkg/record"
	"github.com/Combine-Capital/trail/pkg/retry"
)

// Reasons a record is dropped before delivery.
const (
	DropQueueFull = "queue_full"
	DropClosed    = "closed"
)

// ErrQueueFull is reported for records dropped because their shard's queue was full.
var ErrQueueFull = errors.NewTemporary("delivery queue is full", nil)

// ErrDispatcherClosed is reported for records delivered after Close.
var ErrDispatcherClosed = errors.NewPermanent("dispatcher is closed", nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of delivery goroutines. 0 delivers
// synchronously on the caller's goroutine.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) { d.workers = n }
}

// WithQueueSize sets the per-worker queue length.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queueSize = n }
}

// WithBatchSize lets a worker append up to n queued records in one
// AppendBatch call when the sink is a BatchSink.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) { d.batchSize = n }
}

// WithRetry sets the retry configuration. Its Notify hook is kept and called
// after the dispatcher's own bookkeeping.
func WithRetry(cfg retry.Config) Option {
	return func(d *Dispatcher) { d.retry = cfg }
}

// WithReporter sets where undeliverable records are reported.
func WithReporter(r Reporter) Option {
	return func(d *Dispatcher) { d.reporter = r }
}

// WithSinkMetrics sets the metrics the dispatcher records to. By default the
// standard metrics are used when they are initialized.
func WithSinkMetrics(m *metrics.SinkMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithName overrides the sink name used in logs and metrics.
func WithName(name string) Option {
	return func(d *Dispatcher) { d.name = name }
}

// FromConfig translates the dispatch configuration into options.
func FromConfig(cfg config.DispatchConfig) []Option {
	workers := cfg.Workers
	if cfg.Synchronous {
		workers = 0
	}
	return []Option{
		WithWorkers(workers),
		WithQueueSize(cfg.QueueSize),
		WithRetry(retry.FromDispatch(cfg)),
	}
}

// job is one queued record, or a flush marker when done is set.
type job struct {
	ctx  context.Context
	rec  record.Record
	done chan struct{}
}

// Dispatcher decouples record production from sink I/O. Records of one flow
// are delivered in the order they were handed over; records of different
// flows may interleave. Deliver never fails: every record that cannot be
// persisted is reported exactly once to the Reporter.
type Dispatcher struct {
	sink      Sink
	name      string
	workers   int
	queueSize int
	batchSize int
	retry     retry.Config
	reporter  Reporter
	metrics   *metrics.SinkMetrics

	mu     sync.RWMutex
	closed bool
	shards []chan job
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher for s and starts its workers.
//
// Example:
//
//	d := sink.NewDispatcher(pgSink, sink.FromConfig(cfg.Dispatch)...)
//	defer d.Close(ctx)
func NewDispatcher(s Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:      Wrap(s, WithRecovery()),
		name:      NameOf(s),
		workers:   4,
		queueSize: 1024,
		batchSize: 1,
		retry:     retry.Config{MaxAttempts: 5, Policy: retry.PolicyConnection},
		metrics:   metrics.Standard(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.reporter == nil {
		d.reporter = NewLogReporter(nil)
	}
	if d.queueSize < 1 {
		d.queueSize = 1
	}
	if d.batchSize < 1 {
		d.batchSize = 1
	}
	if d.retry.PolicyFunc == nil && d.retry.Policy != retry.PolicyNone {
		d.retry.Policy = retry.PolicyConnection
	}

	d.shards = make([]chan job, d.workers)
	for i := range d.shards {
		d.shards[i] = make(chan job, d.queueSize)
		d.wg.Add(1)
		go d.run(d.shards[i])
	}
	return d
}

// Name returns the name of the sink being served.
func (d *Dispatcher) Name() string {
	return d.name
}

// Deliver hands rec over for persistence. It never blocks on sink I/O unless
// the dispatcher is synchronous, and never returns an error.
func (d *Dispatcher) Deliver(ctx context.Context, rec record.Record) {
	ctx = context.WithoutCancel(ctx)

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.drop(ctx, rec, DropClosed, ErrDispatcherClosed)
		return
	}

	if d.workers == 0 {
		d.mu.RUnlock()
		d.deliver(ctx, rec)
		return
	}

	select {
	case d.shards[rec.Meta.Flow%uint64(d.workers)] <- job{ctx: ctx, rec: rec}:
		d.mu.RUnlock()
	default:
		d.mu.RUnlock()
		d.drop(ctx, rec, DropQueueFull, ErrQueueFull)
	}
}

// Flush waits until every record handed over before the call has been
// delivered or reported.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil
	}

	markers := make([]chan struct{}, 0, len(d.shards))
	for _, shard := range d.shards {
		done := make(chan struct{})
		select {
		case shard <- job{done: done}:
			markers = append(markers, done)
		case <-ctx.Done():
			d.mu.RUnlock()
			return errors.Wrap(ctx.Err(), "flush cancelled")
		}
	}
	d.mu.RUnlock()

	for _, done := range markers {
		select {
		case <-done:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "flush cancelled")
		}
	}
	return nil
}

// Close stops accepting records, delivers everything already queued and
// stops the workers. Records delivered after Close are reported as dropped.
// The sink itself is not closed.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, shard := range d.shards {
		close(shard)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "dispatcher close cancelled")
	}
}

// Check implements the health.Checker interface by delegating to the sink.
func (d *Dispatcher) Check(ctx context.Context) error {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return errors.NewPermanent("dispatcher is closed", nil)
	}

	if c, ok := unwrapSink(d.sink).(interface{ Check(context.Context) error }); ok {
		return c.Check(ctx)
	}
	return nil
}

// run serves one shard until its queue is closed.
func (d *Dispatcher) run(queue chan job) {
	defer d.wg.Done()

	batch := make([]job, 0, d.batchSize)
	for j := range queue {
		if j.done != nil {
			close(j.done)
			continue
		}

		batch = append(batch[:0], j)
		var marker chan struct{}
	drain:
		for len(batch) < d.batchSize {
			select {
			case next, ok := <-queue:
				if !ok {
					break drain
				}
				if next.done != nil {
					marker = next.done
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		d.deliverBatch(batch)
		if marker != nil {
			close(marker)
		}
	}
}

// deliverBatch appends several records at once when the sink allows it and
// falls back to one append per record when the batch is rejected for a
// reason other than connectivity.
func (d *Dispatcher) deliverBatch(batch []job) {
	bs, ok := d.sink.(BatchSink)
	if len(batch) == 1 || !ok {
		for _, j := range batch {
			d.deliver(j.ctx, j.rec)
		}
		return
	}

	recs := make([]record.Record, len(batch))
	for i, j := range batch {
		recs[i] = j.rec
	}

	ctx := batch[0].ctx
	attempts, err := d.attempt(ctx, func() error {
		return bs.AppendBatch(ctx, recs)
	})
	if err == nil {
		d.metrics.Appended(d.name, len(recs))
		return
	}

	if errors.IsConnectionFailure(err) {
		for _, j := range batch {
			d.fail(j.ctx, j.rec, err, attempts)
		}
		return
	}

	for _, j := range batch {
		d.deliver(j.ctx, j.rec)
	}
}

// deliver appends one record with retries and reports it if it cannot be stored.
func (d *Dispatcher) deliver(ctx context.Context, rec record.Record) {
	attempts, err := d.attempt(ctx, func() error {
		return d.sink.Append(ctx, rec)
	})
	if err == nil {
		d.metrics.Appended(d.name, 1)
		return
	}
	d.fail(ctx, rec, err, attempts)
}

// attempt runs fn under the retry policy and returns how often it ran.
func (d *Dispatcher) attempt(ctx context.Context, fn func() error) (uint, error) {
	cfg := d.retry
	notify := cfg.Notify
	cfg.Notify = func(err error, attempt uint, delay time.Duration) {
		d.metrics.Retried(d.name)
		if notify != nil {
			notify(err, attempt, delay)
		}
	}

	var attempts uint
	err := retry.Do(ctx, cfg, func() error {
		attempts++
		start := time.Now()
		err := fn()
		d.metrics.ObserveAppend(d.name, time.Since(start))
		return err
	})
	return attempts, err
}

func (d *Dispatcher) fail(ctx context.Context, rec record.Record, err error, attempts uint) {
	kind := errors.SinkKind(err)
	d.metrics.Failed(d.name, kind.String())
	d.reporter.Report(ctx, Failure{
		Record:   rec,
		Sink:     d.name,
		Err:      err,
		Kind:     kind,
		Attempts: attempts,
	})
}

func (d *Dispatcher) drop(ctx context.Context, rec record.Record, reason string, err error) {
	d.metrics.Dropped(reason)
	d.reporter.Report(ctx, Failure{
		Record:  rec,
		Sink:    d.name,
		Err:     err,
		Dropped: true,
	})
}

// unwrapSink strips middleware wrappers.
func unwrapSink(s Sink) Sink {
	for {
		u, ok := s.(interface{ Unwrap() Sink })
		if !ok {
			return s
		}
		s = u.Unwrap()
	}
}
