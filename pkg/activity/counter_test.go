package activity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Combine-Capital/trail/pkg/record"
)

func TestCounterStats(t *testing.T) {
	clock := NewManualClock(epoch)
	c := NewCounterWithClock("rows", clock)

	if s := c.Stats(); s.Count != 0 || s.Avg != 0 || s.PerSec != 0 {
		t.Errorf("empty Stats() = %+v, want zero values", s)
	}

	for _, d := range []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 200 * time.Millisecond} {
		stop := c.Start()
		clock.Advance(d)
		stop()
	}
	clock.Advance(400 * time.Millisecond)

	s := c.Stats()
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Count", s.Count, int64(3)},
		{"Total", s.Total, 600 * time.Millisecond},
		{"Avg", s.Avg, 200 * time.Millisecond},
		{"Min", s.Min, 100 * time.Millisecond},
		{"Max", s.Max, 300 * time.Millisecond},
		{"Span", s.Span, time.Second},
		{"PerSec", s.PerSec, 3.0},
		{"PerMin", s.PerMin, 180.0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("Stats().%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	details := s.Details()
	if details["avg"] != 0.2 || details["items_per_minute"] != 180.0 || details["counter"] != "rows" {
		t.Errorf("Details() = %v", details)
	}
}

func TestCounterMeasureClampsNegative(t *testing.T) {
	clock := NewManualClock(epoch)
	c := NewCounterWithClock("steps", clock)

	c.Measure(func() { clock.Advance(-time.Second) })
	c.Add(-time.Minute)

	if s := c.Stats(); s.Count != 2 || s.Total != 0 || s.Min != 0 {
		t.Errorf("Stats() = %+v, want two zero-length items", s)
	}
}

func TestActivityMetric(t *testing.T) {
	tracer, mem, clock := newTestTracer()
	_, a, _ := tracer.Open(context.Background(), "load")

	c := NewCounterWithClock("rows", clock)
	c.Measure(func() { clock.Advance(250 * time.Millisecond) })
	if err := a.Metric(c); err != nil {
		t.Fatalf("Metric() error = %v", err)
	}

	recs := mem.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Meta.Trace != TraceMetric || rec.Text(record.FieldMessage) != "rows" {
		t.Errorf("metric = %s/%s, want metric/rows", rec.Meta.Trace, rec.Text(record.FieldMessage))
	}

	var details map[string]any
	if err := json.Unmarshal([]byte(rec.Text(record.FieldDetails)), &details); err != nil {
		t.Fatalf("details = %q: %v", rec.Text(record.FieldDetails), err)
	}
	if details["count"] != 1.0 || details["elapsed"] != 0.25 {
		t.Errorf("details = %v, want count 1 and elapsed 0.25", details)
	}
}
