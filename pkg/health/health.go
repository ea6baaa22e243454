package health

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/Combine-Capital/trail/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Aggregate and per-check statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	CheckOK         = "ok"
	CheckError      = "error"
)

// Health runs registered checkers concurrently, with a per-check timeout and
// a short result cache so probes hitting it in a loop do not hammer the sink.
type Health struct {
	mu       sync.RWMutex
	checkers map[string]Checker

	cacheMu     sync.Mutex
	cached      *HealthResult
	cacheExpiry time.Time
	cacheTTL    time.Duration

	checkTimeout time.Duration
}

// HealthResult is the outcome of one Check.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one checker.
type CheckResult struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// New creates a Health with a 5s check timeout and a 1s result cache.
func New() *Health {
	return NewWithConfig(5*time.Second, time.Second)
}

// NewWithConfig creates a Health with the given check timeout and cache TTL.
// A zero TTL disables caching.
func NewWithConfig(checkTimeout, cacheTTL time.Duration) *Health {
	return &Health{
		checkers:     make(map[string]Checker),
		checkTimeout: checkTimeout,
		cacheTTL:     cacheTTL,
	}
}

// RegisterChecker registers checker under name, replacing any previous one.
func (h *Health) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// UnregisterChecker removes the checker registered under name and reports
// whether there was one.
func (h *Health) UnregisterChecker(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.checkers[name]
	delete(h.checkers, name)
	return ok
}

// Names returns the registered checker names in sorted order.
func (h *Health) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every checker and aggregates the outcome. A result younger than
// the cache TTL is returned as is.
func (h *Health) Check(ctx context.Context) *HealthResult {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()

	if h.cached != nil && time.Now().Before(h.cacheExpiry) {
		return h.cached
	}
	h.cached = h.run(ctx)
	h.cacheExpiry = time.Now().Add(h.cacheTTL)
	return h.cached
}

// ClearCache forces the next Check to run the checkers.
func (h *Health) ClearCache() {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	h.cached = nil
	h.cacheExpiry = time.Time{}
}

// IsHealthy reports whether every checker passes.
func (h *Health) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Status == StatusHealthy
}

// CheckComponent runs the checker registered under name.
func (h *Health) CheckComponent(ctx context.Context, name string) error {
	h.mu.RLock()
	checker, ok := h.checkers[name]
	h.mu.RUnlock()

	if !ok {
		return errors.NewNotFound("health checker", name)
	}

	ctx, cancel := h.bound(ctx)
	defer cancel()
	return checker.Check(ctx)
}

func (h *Health) run(ctx context.Context) *HealthResult {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	result := &HealthResult{Status: StatusHealthy, Checks: make(map[string]CheckResult, len(checkers))}

	// Checker errors are results, not group errors, so one failing sink
	// never cancels the others.
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for name, c := range checkers {
		g.Go(func() error {
			cr := h.runOne(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			result.Checks[name] = cr
			if cr.Status != CheckOK {
				result.Status = StatusUnhealthy
			}
			return nil
		})
	}
	_ = g.Wait()

	return result
}

func (h *Health) runOne(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := h.bound(ctx)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	cr := CheckResult{Status: CheckOK, LatencyMS: float64(time.Since(start).Microseconds()) / 1000}
	if err != nil {
		cr.Status, cr.Message = CheckError, err.Error()
	}
	return cr
}

// bound applies the check timeout unless ctx already has a deadline.
func (h *Health) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || h.checkTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.checkTimeout)
}

// WriteJSON writes the result as indented JSON.
func (r *HealthResult) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
