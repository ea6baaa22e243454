// Package bootstrap wires a complete tracing pipeline from configuration:
// logger, metrics, the OpenTelemetry provider, the configured sink, the
// delivery dispatcher and the activity tracer.
//
// Example:
//
//	cfg := config.MustLoad("trail.yaml", "TRAIL")
//	b, err := bootstrap.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Cleanup(ctx)
//
//	err = b.Tracer.Run(ctx, "Import", func(ctx context.Context, a *activity.Activity) error {
//	    return a.Info("Starting")
//	})
package bootstrap

import (
	"context"
	"io"

	"github.com/Combine-Capital/trail/pkg/activity"
	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/database"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/health"
	"github.com/Combine-Capital/trail/pkg/logging"
	"github.com/Combine-Capital/trail/pkg/metrics"
	"github.com/Combine-Capital/trail/pkg/record"
	"github.com/Combine-Capital/trail/pkg/sink"
	"github.com/Combine-Capital/trail/pkg/sink/logsink"
	"github.com/Combine-Capital/trail/pkg/sink/otelsink"
	"github.com/Combine-Capital/trail/pkg/sink/redissink"
	"github.com/Combine-Capital/trail/pkg/sink/sqlsink"
	"github.com/Combine-Capital/trail/pkg/tracing"
	"go.opentelemetry.io/otel/trace"
)

// Bootstrap holds the initialized components.
type Bootstrap struct {
	Config         *config.Config
	Logger         *logging.Logger
	TracerProvider trace.TracerProvider
	Health         *health.Health
	Mapping        record.Mapping

	// Sink is the configured backend, fanned out to the span mirror when
	// sink.mirror is set.
	Sink sink.Sink

	// Schema manages the destination table of SQL backends, nil otherwise.
	Schema *sqlsink.Schema

	Dispatcher *sink.Dispatcher
	Tracer     *activity.Tracer

	cleanup []func(context.Context) error
}

// Option is a functional option for configuring bootstrap behavior.
type Option func(*options)

type options struct {
	skipMetrics    bool
	skipTracing    bool
	skipLogger     bool
	logWriter      io.Writer
	tracerProvider trace.TracerProvider
	sink           sink.Sink
	reporter       sink.Reporter
}

// WithoutMetrics disables metrics initialization.
func WithoutMetrics() Option {
	return func(o *options) {
		o.skipMetrics = true
	}
}

// WithoutTracing disables the OpenTelemetry provider and the span mirror.
func WithoutTracing() Option {
	return func(o *options) {
		o.skipTracing = true
	}
}

// WithoutLogger discards all diagnostics.
func WithoutLogger() Option {
	return func(o *options) {
		o.skipLogger = true
	}
}

// WithLogWriter sends the logger output to w instead of log.output.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) {
		o.logWriter = w
	}
}

// WithTracerProvider uses tp for the span mirror instead of building an
// OTLP provider from tracing config.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithSink replaces the backend selected by sink.backend.
func WithSink(s sink.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithReporter replaces the log reporter receiving undeliverable records.
func WithReporter(r sink.Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

// New initializes every component in dependency order. On failure the
// components already started are cleaned up.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Bootstrap, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	b := &Bootstrap{
		Config:  cfg,
		Health:  health.New(),
		cleanup: make([]func(context.Context) error, 0),
	}

	if err := b.init(ctx, o); err != nil {
		_ = b.Cleanup(ctx)
		return nil, err
	}
	return b, nil
}

func (b *Bootstrap) init(ctx context.Context, o *options) error {
	cfg := b.Config

	switch {
	case o.skipLogger:
		b.Logger = logging.Nop()
	case o.logWriter != nil:
		b.Logger = logging.NewWithWriter(cfg.Log, o.logWriter)
	default:
		b.Logger = logging.New(cfg.Log)
	}
	b.Logger.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("backend", cfg.Sink.Backend).
		Msg("trail starting")

	if !o.skipMetrics && cfg.Metrics.Enabled {
		if err := b.initMetrics(); err != nil {
			return err
		}
	}

	if !o.skipTracing {
		if err := b.initTracing(ctx, o); err != nil {
			return err
		}
	}

	mapping, err := MappingFromConfig(cfg.Sink)
	if err != nil {
		return err
	}
	b.Mapping = mapping

	s := o.sink
	if s == nil {
		if s, err = b.openSink(ctx); err != nil {
			return err
		}
	}
	b.registerChecker("sink", s)

	if cfg.Sink.Mirror && b.TracerProvider != nil {
		mirror := otelsink.New(b.TracerProvider)
		b.AddCleanup(mirror.Close)
		s = sink.NewMulti(s, mirror)
	}
	b.Sink = s

	reporter := o.reporter
	if reporter == nil {
		reporter = sink.NewLogReporter(b.Logger.WithComponent("dispatcher"))
	}
	dispatchOpts := append(sink.FromConfig(cfg.Dispatch),
		sink.WithReporter(reporter),
		sink.WithSinkMetrics(metrics.Standard()),
	)
	b.Dispatcher = sink.NewDispatcher(sink.Wrap(s, sink.WithLogging(b.Logger.WithComponent("sink"))), dispatchOpts...)
	b.AddCleanup(b.Dispatcher.Close)
	b.Health.RegisterChecker("dispatcher", b.Dispatcher)

	tracerOpts, err := activity.FromConfig(cfg.Tracer)
	if err != nil {
		return err
	}
	tracerOpts = append(tracerOpts,
		activity.WithMapping(mapping),
		activity.WithLogger(b.Logger.WithComponent("tracer")),
		activity.WithMetrics(metrics.Standard()),
	)
	b.Tracer = activity.New(b.Dispatcher, tracerOpts...)
	return nil
}

func (b *Bootstrap) initMetrics() error {
	cfg := b.Config.Metrics
	if err := metrics.Init(metrics.MetricsConfig{
		Enabled:   cfg.Enabled,
		Port:      cfg.Port,
		Path:      cfg.Path,
		Namespace: cfg.Namespace,
	}); err != nil {
		return errors.Wrap(err, "failed to initialize metrics")
	}
	b.AddCleanup(metrics.Shutdown)

	if err := metrics.InitStandardMetrics(cfg.Namespace); err != nil {
		return errors.Wrap(err, "failed to register sink metrics")
	}
	metrics.Handle("/health/live", b.Health.LivenessHandler())
	metrics.Handle("/health/ready", b.Health.ReadinessHandler())

	b.Logger.Info().
		Int("port", cfg.Port).
		Str("path", cfg.Path).
		Msg("Metrics initialized")
	return nil
}

func (b *Bootstrap) initTracing(ctx context.Context, o *options) error {
	if o.tracerProvider != nil {
		b.TracerProvider = o.tracerProvider
		return nil
	}
	cfg := b.Config
	if !cfg.Tracing.Enabled {
		return nil
	}

	tp, shutdown, err := tracing.NewTracerProvider(ctx, cfg.Tracing, cfg.Service.Name, cfg.Service.Version)
	if err != nil {
		return errors.Wrap(err, "failed to initialize tracing")
	}
	b.TracerProvider = tp
	b.AddCleanup(shutdown)

	b.Logger.Info().
		Str("endpoint", cfg.Tracing.Endpoint).
		Float64("sample_rate", cfg.Tracing.SampleRate).
		Msg("Tracing initialized")
	return nil
}

// openSink connects the backend named by sink.backend.
func (b *Bootstrap) openSink(ctx context.Context) (sink.Sink, error) {
	cfg := b.Config

	switch cfg.Sink.Backend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		b.AddCleanup(func(context.Context) error {
			pool.Close()
			return nil
		})
		b.Health.RegisterChecker("database", pool)
		return b.openSQLSink(ctx, sqlsink.NewPgxExecutor(pool), sqlsink.Postgres)

	case config.BackendSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		b.AddCleanup(func(context.Context) error {
			return db.Close()
		})
		return b.openSQLSink(ctx, sqlsink.NewSQLExecutor(db), sqlsink.SQLite)

	case config.BackendRedis:
		s, err := redissink.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		b.AddCleanup(func(context.Context) error {
			return s.Close()
		})
		return s, nil

	case config.BackendLog:
		return logsink.New(b.Logger), nil

	case config.BackendMemory:
		mem := sink.NewMemory()
		b.AddCleanup(func(context.Context) error {
			return mem.Close()
		})
		return mem, nil

	default:
		return nil, errors.NewInvalidInput("sink.backend", "unknown backend "+cfg.Sink.Backend)
	}
}

func (b *Bootstrap) openSQLSink(ctx context.Context, exec sqlsink.Executor, d sqlsink.Dialect) (sink.Sink, error) {
	s, err := sqlsink.New(exec,
		sqlsink.WithDialect(d),
		sqlsink.WithTable(b.Config.Sink.Table),
		sqlsink.WithMapping(b.Mapping),
	)
	if err != nil {
		return nil, err
	}
	b.Schema = s.Schema()

	if b.Config.Sink.CreateTable {
		if err := b.Schema.Create(ctx); err != nil {
			return nil, err
		}
		b.Logger.Info().Str("table", s.Table()).Str("schema", b.Mapping.Version).Msg("Table ensured")
	}
	return s, nil
}

func (b *Bootstrap) registerChecker(name string, s sink.Sink) {
	if c, ok := s.(health.Checker); ok {
		b.Health.RegisterChecker(name, c)
	}
}

// MappingFromConfig resolves the schema revision and applies the column
// renames of the sink configuration.
func MappingFromConfig(cfg config.SinkConfig) (record.Mapping, error) {
	revision := cfg.Schema
	if revision == "" {
		revision = record.DefaultMapping.Version
	}
	m, err := record.LookupRevision(revision)
	if err != nil {
		return record.Mapping{}, err
	}
	return m.Customize(cfg.Columns)
}

// Cleanup flushes pending records and shuts every component down in reverse
// order of initialization. Errors are logged and cleanup continues.
func (b *Bootstrap) Cleanup(ctx context.Context) error {
	var errs []error
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](ctx); err != nil {
			if b.Logger != nil {
				b.Logger.Error().Err(err).Msg("Cleanup error")
			}
			errs = append(errs, err)
		}
	}
	b.cleanup = nil

	if b.Logger != nil {
		b.Logger.Info().Msg("Cleanup completed")
	}
	return errors.Join(errs...)
}

// AddCleanup adds a cleanup function to be executed during Cleanup.
// Cleanup functions are executed in reverse order (LIFO).
func (b *Bootstrap) AddCleanup(fn func(context.Context) error) {
	b.cleanup = append(b.cleanup, fn)
}
