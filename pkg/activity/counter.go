package activity

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Counter measures a repeated operation: how often it ran and how long each
// run took. It is safe for concurrent use.
//
// Example:
//
//	rows := activity.NewCounter("rows")
//	for _, r := range input {
//	    stop := rows.Start()
//	    process(r)
//	    stop()
//	}
//	_ = act.Metric(rows)
type Counter struct {
	name  string
	clock Clock

	mu    sync.Mutex
	first time.Time
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// CounterStats is a point-in-time view of a Counter.
type CounterStats struct {
	Name   string
	Count  int64
	Total  time.Duration
	Span   time.Duration // from the first measurement to the snapshot
	Avg    time.Duration
	Min    time.Duration
	Max    time.Duration
	PerSec float64
	PerMin float64
}

// NewCounter creates a counter using the system clock.
func NewCounter(name string) *Counter {
	return NewCounterWithClock(name, SystemClock{})
}

// NewCounterWithClock creates a counter reading time from c.
func NewCounterWithClock(name string, c Clock) *Counter {
	return &Counter{name: name, clock: c}
}

// Start begins measuring one item; the returned function ends it.
func (c *Counter) Start() func() {
	start := c.clock.Now()
	return func() {
		c.Add(since(start, c.clock.Now()))
	}
}

// Measure runs fn as one measured item.
func (c *Counter) Measure(fn func()) {
	stop := c.Start()
	defer stop()
	fn()
}

// Add records one item that took d.
func (c *Counter) Add(d time.Duration) {
	if d < 0 {
		d = 0
	}
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		c.first = now.Add(-d)
		c.min, c.max = d, d
	}
	c.count++
	c.total += d
	if d < c.min {
		c.min = d
	}
	if d > c.max {
		c.max = d
	}
}

// Stats returns the counter's statistics so far.
func (c *Counter) Stats() CounterStats {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := CounterStats{Name: c.name, Count: c.count, Total: c.total, Min: c.min, Max: c.max}
	if c.count == 0 {
		return s
	}
	s.Avg = c.total / time.Duration(c.count)
	s.Span = since(c.first, now)
	if s.Span > 0 {
		s.PerSec = float64(c.count) / s.Span.Seconds()
		s.PerMin = s.PerSec * 60
	}
	return s
}

// Details renders the statistics as event details, durations in seconds
// rounded to milliseconds.
func (s CounterStats) Details() map[string]any {
	seconds := func(d time.Duration) float64 {
		return decimal.New(d.Nanoseconds(), -9).Round(3).InexactFloat64()
	}
	rate := func(f float64) float64 {
		return decimal.NewFromFloat(f).Round(3).InexactFloat64()
	}
	return map[string]any{
		"counter":          s.Name,
		"count":            s.Count,
		"elapsed":          seconds(s.Total),
		"avg":              seconds(s.Avg),
		"min":              seconds(s.Min),
		"max":              seconds(s.Max),
		"items_per_second": rate(s.PerSec),
		"items_per_minute": rate(s.PerMin),
	}
}
