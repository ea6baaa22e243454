package metrics

import (
	"sync"
	"time"
)

// SinkMetrics groups the standard delivery metrics. All methods are safe to
// call on a nil *SinkMetrics, so callers need not check whether metrics are
// enabled.
type SinkMetrics struct {
	appended   *Counter
	failures   *Counter
	retries    *Counter
	dropped    *Counter
	latency    *Histogram
	activities *Gauge
}

var (
	standard *SinkMetrics

	// Ensure standard metrics are initialized only once
	standardMetricsOnce sync.Once
)

// InitStandardMetrics registers the standard sink metrics under namespace.
// It is safe to call multiple times - subsequent calls are no-ops.
func InitStandardMetrics(namespace string) error {
	var initErr error

	standardMetricsOnce.Do(func() {
		m := &SinkMetrics{}

		m.appended, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "records_appended_total",
			Help:      "Records durably appended to a sink",
			Labels:    []string{"sink"},
		})
		if initErr != nil {
			return
		}

		m.failures, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "append_failures_total",
			Help:      "Records whose delivery failed for good, by failure kind",
			Labels:    []string{"sink", "kind"},
		})
		if initErr != nil {
			return
		}

		m.retries, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "append_retries_total",
			Help:      "Append attempts repeated after a connection failure",
			Labels:    []string{"sink"},
		})
		if initErr != nil {
			return
		}

		m.dropped, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "records_dropped_total",
			Help:      "Records discarded before any append was attempted",
			Labels:    []string{"reason"},
		})
		if initErr != nil {
			return
		}

		m.latency, initErr = NewHistogram(HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "append_duration_seconds",
			Help:      "Time spent in a single append or batch append",
			Labels:    []string{"sink"},
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		})
		if initErr != nil {
			return
		}

		m.activities, initErr = NewGauge(GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracer",
			Name:      "activities_open",
			Help:      "Activities opened and not yet closed",
		})
		if initErr != nil {
			return
		}

		standard = m
	})

	return initErr
}

// Standard returns the standard sink metrics, or nil if InitStandardMetrics
// has not succeeded.
func Standard() *SinkMetrics {
	return standard
}

// Appended counts n records delivered to sink.
func (m *SinkMetrics) Appended(sink string, n int) {
	if m == nil {
		return
	}
	m.appended.Add(float64(n), sink)
}

// Failed counts a record whose delivery failed for good.
func (m *SinkMetrics) Failed(sink, kind string) {
	if m == nil {
		return
	}
	m.failures.Inc(sink, kind)
}

// Retried counts a repeated append attempt.
func (m *SinkMetrics) Retried(sink string) {
	if m == nil {
		return
	}
	m.retries.Inc(sink)
}

// Dropped counts a record discarded before delivery.
func (m *SinkMetrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.Inc(reason)
}

// ObserveAppend records the duration of one append call.
func (m *SinkMetrics) ObserveAppend(sink string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds(), sink)
}

// ActivityOpened increments the open activities gauge.
func (m *SinkMetrics) ActivityOpened() {
	if m == nil {
		return
	}
	m.activities.Inc()
}

// ActivityClosed decrements the open activities gauge.
func (m *SinkMetrics) ActivityClosed() {
	if m == nil {
		return
	}
	m.activities.Dec()
}
