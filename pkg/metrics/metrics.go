// Package metrics provides Prometheus metrics collection with standardized naming conventions.
// It supports counters, gauges, and histograms with label validation and duplicate prevention,
// and a standard set of sink metrics (see SinkMetrics) that makes persistent delivery
// failures observable.
//
// Example usage:
//
//	// Initialize metrics with configuration
//	if err := metrics.Init(cfg.Metrics); err != nil {
//	    log.Fatal(err)
//	}
//	defer metrics.Shutdown(context.Background())
//
//	// Create a custom counter
//	counter, _ := metrics.NewCounter(metrics.CounterOpts{
//	    Namespace: "importer",
//	    Subsystem: "rows",
//	    Name:      "total",
//	    Help:      "Total number of rows imported",
//	    Labels:    []string{"file"},
//	})
//	counter.Inc("a.csv")
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// registry is the global Prometheus registry for all metrics
	registry *prometheus.Registry

	// registryMu protects concurrent access to registry initialization
	registryMu sync.RWMutex

	// initialized tracks whether Init() has been called
	initialized bool

	// server is the HTTP server for the metrics endpoint
	server *http.Server

	// serveMux routes the metrics server; Handle adds routes to it
	serveMux *http.ServeMux

	// serverMu protects concurrent access to server
	serverMu sync.Mutex
)

// Init creates the global registry. When cfg.Enabled it also registers the
// Go and process collectors and serves the registry on cfg.Port and cfg.Path.
// The listener is bound before Init returns, so a port in use is reported
// here. Calls after the first successful one are no-ops.
func Init(cfg MetricsConfig) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if initialized {
		return nil
	}

	reg := prometheus.NewRegistry()
	if !cfg.Enabled {
		registry, initialized = reg, true
		return nil
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return errors.NewTemporary(fmt.Sprintf("metrics listener on port %d", cfg.Port), err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	serverMu.Lock()
	server = srv
	serverMu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()

	registry, serveMux, initialized = reg, mux, true
	return nil
}

// Shutdown stops the metrics server, waiting for in-flight scrapes until
// ctx is done.
func Shutdown(ctx context.Context) error {
	serverMu.Lock()
	defer serverMu.Unlock()

	if server == nil {
		return nil
	}

	err := server.Shutdown(ctx)
	server = nil
	return err
}

// Handle registers an extra route, such as health probes, on the metrics
// server. It reports false when no server is running.
func Handle(pattern string, handler http.Handler) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if serveMux == nil {
		return false
	}
	serveMux.Handle(pattern, handler)
	return true
}

// Registry returns the global registry, nil before Init.
func Registry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// IsInitialized reports whether Init has succeeded.
func IsInitialized() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return initialized
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   // Whether metrics collection is enabled
	Port      int    // HTTP server port for /metrics endpoint
	Path      string // HTTP path for metrics endpoint
	Namespace string // Metric prefix/namespace
}

// DefaultMetricsConfig returns a MetricsConfig with sensible defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "trail",
	}
}
