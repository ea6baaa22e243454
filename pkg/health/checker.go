// Package health aggregates the health of the stores records are delivered to.
// It backs the `trail health` command and the liveness and readiness probes
// served next to the metrics endpoint.
//
// Example usage:
//
//	h := health.New()
//	h.RegisterChecker("sink", pgSink)
//	h.RegisterChecker("dispatcher", dispatcher)
//
//	http.HandleFunc("/health/live", h.LivenessHandler())
//	http.HandleFunc("/health/ready", h.ReadinessHandler())
//
// Liveness checks verify the process is running (no dependency checks).
// Readiness checks verify all registered components are healthy.
package health

import (
	"context"
)

// Checker is implemented by sinks, the database pool and the dispatcher.
type Checker interface {
	// Check performs a health check on the component.
	// It should verify connectivity and basic functionality with a reasonable timeout.
	// Returns nil if the component is healthy, or an error describing the problem.
	// The context may include a timeout, which the implementation must respect.
	Check(ctx context.Context) error
}

// CheckerFunc is a function adapter that implements the Checker interface.
// This allows simple functions to be used as health checkers.
type CheckerFunc func(ctx context.Context) error

// Check implements the Checker interface by calling the function.
func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}
