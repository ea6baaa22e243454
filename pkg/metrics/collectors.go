package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	validMetricName = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	validLabelName  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// Opts names a metric. The registered name is "{namespace}_{subsystem}_{name}".
type Opts struct {
	Namespace string   // e.g. "trail"
	Subsystem string   // e.g. "sink", "tracer"
	Name      string   // e.g. "records_appended_total"
	Help      string   // Human-readable help text
	Labels    []string // Label names, in the order values are passed
}

// CounterOpts specifies options for creating a counter.
type CounterOpts = Opts

// GaugeOpts specifies options for creating a gauge.
type GaugeOpts = Opts

// HistogramOpts specifies options for creating a histogram.
type HistogramOpts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Labels    []string
	Buckets   []float64 // nil selects prometheus.DefBuckets
}

func (o HistogramOpts) opts() Opts {
	return Opts{Namespace: o.Namespace, Subsystem: o.Subsystem, Name: o.Name, Help: o.Help, Labels: o.Labels}
}

// FullName returns the name the metric is exported under.
func (o Opts) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{o.Namespace, o.Subsystem, o.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "_")
}

// validate checks o against the Prometheus naming rules.
func (o Opts) validate() error {
	name := o.FullName()
	if !validMetricName.MatchString(name) {
		return errors.NewInvalidInput("metric name", fmt.Sprintf("%q must match %s", name, validMetricName))
	}
	for _, label := range o.Labels {
		if !validLabelName.MatchString(label) {
			return errors.NewInvalidInput("label name", fmt.Sprintf("%q must match %s", label, validLabelName))
		}
		if strings.HasPrefix(label, "__") {
			return errors.NewInvalidInput("label name", fmt.Sprintf("%q is reserved", label))
		}
	}
	return nil
}

// register validates o, builds the collector and adds it to the global
// registry. A name registered twice is an error.
func register[C prometheus.Collector](kind string, o Opts, build func() C) (C, error) {
	var zero C
	if !IsInitialized() {
		return zero, errors.NewPermanent("metrics not initialized, call Init() first", nil)
	}
	if err := o.validate(); err != nil {
		return zero, err
	}

	c := build()

	registryMu.RLock()
	err := registry.Register(c)
	registryMu.RUnlock()
	if err != nil {
		return zero, errors.Wrapf(err, "failed to register %s %s", kind, o.FullName())
	}
	return c, nil
}

// Counter is a labelled Prometheus counter.
type Counter struct {
	vec *prometheus.CounterVec
}

// NewCounter creates and registers a counter with the global registry.
func NewCounter(opts CounterOpts) (*Counter, error) {
	vec, err := register("counter", opts, func() *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      opts.Name,
			Help:      opts.Help,
		}, opts.Labels)
	})
	if err != nil {
		return nil, err
	}
	return &Counter{vec: vec}, nil
}

// Inc adds 1 for the given label values.
func (c *Counter) Inc(labelValues ...string) {
	c.vec.WithLabelValues(labelValues...).Inc()
}

// Add adds a non-negative value for the given label values.
func (c *Counter) Add(value float64, labelValues ...string) {
	c.vec.WithLabelValues(labelValues...).Add(value)
}

// WithLabelValues returns the counter of one label combination.
func (c *Counter) WithLabelValues(labelValues ...string) prometheus.Counter {
	return c.vec.WithLabelValues(labelValues...)
}

// Gauge is a labelled Prometheus gauge.
type Gauge struct {
	vec *prometheus.GaugeVec
}

// NewGauge creates and registers a gauge with the global registry.
func NewGauge(opts GaugeOpts) (*Gauge, error) {
	vec, err := register("gauge", opts, func() *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      opts.Name,
			Help:      opts.Help,
		}, opts.Labels)
	})
	if err != nil {
		return nil, err
	}
	return &Gauge{vec: vec}, nil
}

// Set sets the gauge for the given label values.
func (g *Gauge) Set(value float64, labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Set(value)
}

// Inc adds 1 for the given label values.
func (g *Gauge) Inc(labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Inc()
}

// Dec subtracts 1 for the given label values.
func (g *Gauge) Dec(labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Dec()
}

// WithLabelValues returns the gauge of one label combination.
func (g *Gauge) WithLabelValues(labelValues ...string) prometheus.Gauge {
	return g.vec.WithLabelValues(labelValues...)
}

// Histogram is a labelled Prometheus histogram.
type Histogram struct {
	vec *prometheus.HistogramVec
}

// NewHistogram creates and registers a histogram with the global registry.
func NewHistogram(opts HistogramOpts) (*Histogram, error) {
	buckets := opts.Buckets
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	vec, err := register("histogram", opts.opts(), func() *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      opts.Name,
			Help:      opts.Help,
			Buckets:   buckets,
		}, opts.Labels)
	})
	if err != nil {
		return nil, err
	}
	return &Histogram{vec: vec}, nil
}

// Observe adds one observation for the given label values.
func (h *Histogram) Observe(value float64, labelValues ...string) {
	h.vec.WithLabelValues(labelValues...).Observe(value)
}

// WithLabelValues returns the observer of one label combination.
func (h *Histogram) WithLabelValues(labelValues ...string) prometheus.Observer {
	return h.vec.WithLabelValues(labelValues...)
}
