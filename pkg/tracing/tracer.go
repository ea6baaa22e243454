// Package tracing sets up OpenTelemetry for the span mirror of activity
// records. It builds an OTLP (gRPC or HTTP) exporting TracerProvider and
// holds the attribute vocabulary shared by the mirror sink.
//
// Example usage:
//
//	cfg := config.TracingConfig{
//	    Enabled:    true,
//	    Endpoint:   "localhost:4317",
//	    SampleRate: 0.1,
//	    ExportMode: "grpc",
//	}
//	tp, shutdown, err := tracing.NewTracerProvider(ctx, cfg, "importer", "1.4.0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer shutdown(ctx)
package tracing

import (
	"context"
	"time"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
)

// InstrumentationName names the tracer spans are created with.
const InstrumentationName = "github.com/Combine-Capital/trail"

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(context.Context) error

// NewTracerProvider creates a TracerProvider exporting over OTLP and installs
// it as the global provider.
//
// If tracing is disabled in config, it returns a provider without exporter and
// a no-op shutdown function.
func NewTracerProvider(ctx context.Context, cfg config.TracingConfig, serviceName, version string) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	if !cfg.Enabled {
		noopShutdown := func(context.Context) error { return nil }
		return sdktrace.NewTracerProvider(sdktrace.WithIDGenerator(IDGenerator{})), noopShutdown, nil
	}

	if cfg.Endpoint == "" {
		return nil, nil, errors.NewInvalidInput("tracing.endpoint", "endpoint is required when tracing is enabled")
	}

	svcName := cfg.ServiceName
	if svcName == "" {
		svcName = serviceName
	}
	if svcName == "" {
		return nil, nil, errors.NewInvalidInput("tracing.service_name", "service name is required for tracing")
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceNameKey.String(svcName)),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	}
	if version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersionKey.String(version)))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironmentNameKey.String(cfg.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create resource")
	}

	var exporter sdktrace.SpanExporter
	switch cfg.ExportMode {
	case "http":
		exporter, err = createHTTPExporter(ctx, cfg)
	case "grpc", "":
		exporter, err = createGRPCExporter(ctx, cfg)
	default:
		return nil, nil, errors.NewInvalidInput("tracing.export_mode", "unsupported export mode "+cfg.ExportMode+" (use 'grpc' or 'http')")
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create exporter")
	}

	batchTimeout := 5 * time.Second
	if cfg.BatchTimeout > 0 {
		batchTimeout = cfg.BatchTimeout
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithIDGenerator(IDGenerator{}),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(batchTimeout),
		),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		return tp.Shutdown(shutdownCtx)
	}

	return tp, shutdown, nil
}

func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func createGRPCExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createHTTPExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

// Tracer returns the trail tracer of tp, or of the global provider when tp
// is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}
