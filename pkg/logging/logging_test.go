package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	return logEntry
}

// TestNew verifies logger creation with different configurations
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
		want zerolog.Level
	}{
		{
			name: "debug level",
			cfg:  config.LogConfig{Level: "debug", Format: "json", Output: "stdout"},
			want: zerolog.DebugLevel,
		},
		{
			name: "warn level on stderr",
			cfg:  config.LogConfig{Level: "warn", Format: "json", Output: "stderr"},
			want: zerolog.WarnLevel,
		},
		{
			name: "error level in console format",
			cfg:  config.LogConfig{Level: "error", Format: "console", Output: "stdout"},
			want: zerolog.ErrorLevel,
		},
		{
			name: "default level",
			cfg:  config.LogConfig{Level: "invalid", Format: "json", Output: "stdout"},
			want: zerolog.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.cfg)
			if logger.Level() != tt.want {
				t.Errorf("New() level = %v, want %v", logger.Level(), tt.want)
			}
		})
	}
}

// TestLogLevels verifies all log levels work correctly
func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LogConfig{Level: "debug"}, &buf)

	tests := []struct {
		name    string
		logFunc func() *zerolog.Event
		wantStr string
	}{
		{name: "debug", logFunc: logger.Debug, wantStr: `"level":"debug"`},
		{name: "info", logFunc: logger.Info, wantStr: `"level":"info"`},
		{name: "warn", logFunc: logger.Warn, wantStr: `"level":"warn"`},
		{name: "error", logFunc: logger.Error, wantStr: `"level":"error"`},
		{name: "fatal without exit", logFunc: func() *zerolog.Event { return logger.WithLevel(zerolog.FatalLevel) }, wantStr: `"level":"fatal"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc().Msg("test message")

			got := buf.String()
			if !strings.Contains(got, tt.wantStr) {
				t.Errorf("log output = %v, want to contain %v", got, tt.wantStr)
			}
			if !strings.Contains(got, "test message") {
				t.Errorf("log output = %v, want to contain 'test message'", got)
			}
		})
	}
}

// TestWithComponent verifies component field is added
func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{zlog: zerolog.New(&buf)}

	logger.WithComponent("dispatcher").Info().Msg("test")

	if comp := decode(t, &buf)[Component]; comp != "dispatcher" {
		t.Errorf("component = %v, want 'dispatcher'", comp)
	}
}

func TestWithActivity(t *testing.T) {
	tests := []struct {
		name       string
		parentID   string
		wantParent bool
	}{
		{name: "root activity omits parent", parentID: "", wantParent: false},
		{name: "child activity has parent", parentID: "p-1", wantParent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := &Logger{zlog: zerolog.New(&buf)}

			logger.WithActivity("a-1", tt.parentID, "Import").Info().Msg("test")

			entry := decode(t, &buf)
			if entry[ActivityID] != "a-1" {
				t.Errorf("activity_id = %v, want a-1", entry[ActivityID])
			}
			if entry[Activity] != "Import" {
				t.Errorf("activity = %v, want Import", entry[Activity])
			}
			if _, ok := entry[ParentID]; ok != tt.wantParent {
				t.Errorf("parent_id present = %v, want %v", ok, tt.wantParent)
			}
		})
	}
}

// TestWithFields verifies multiple fields are added
func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{zlog: zerolog.New(&buf)}

	logger.WithFields(map[string]interface{}{
		Sink:    "postgres",
		Attempt: 3,
	}).Info().Msg("test")

	entry := decode(t, &buf)
	if entry[Sink] != "postgres" {
		t.Errorf("sink = %v, want postgres", entry[Sink])
	}
	if got, ok := entry[Attempt].(float64); !ok || int(got) != 3 {
		t.Errorf("attempt = %v, want 3", entry[Attempt])
	}
}

// TestContextPropagation verifies logger context propagation
func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{zlog: zerolog.New(&buf)}

	ctx := context.Background()
	ctx = WithLogger(ctx, logger)
	ctx = WithActivity(ctx, "a-2", "a-1", "Validate")

	if got := GetActivityID(ctx); got != "a-2" {
		t.Errorf("GetActivityID() = %v, want 'a-2'", got)
	}

	Ctx(ctx).Info().Msg("test")

	entry := decode(t, &buf)
	if entry[ActivityID] != "a-2" {
		t.Errorf("activity_id = %v, want 'a-2'", entry[ActivityID])
	}
	if entry[ParentID] != "a-1" {
		t.Errorf("parent_id = %v, want 'a-1'", entry[ParentID])
	}
	if entry[Activity] != "Validate" {
		t.Errorf("activity = %v, want 'Validate'", entry[Activity])
	}
}

// TestFromContextNoLogger verifies default logger is returned when none in context
func TestFromContextNoLogger(t *testing.T) {
	if logger := FromContext(context.Background()); logger == nil {
		t.Error("FromContext() returned nil, want default logger")
	}
	if got := GetActivityID(context.Background()); got != "" {
		t.Errorf("GetActivityID() = %q, want empty", got)
	}
}

// TestSetLevel verifies SetLevel changes log level
func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{zlog: zerolog.New(&buf).Level(zerolog.InfoLevel)}

	logger.Debug().Msg("debug message")
	if buf.Len() > 0 {
		t.Error("debug message logged at info level")
	}

	logger.SetLevel(zerolog.DebugLevel)
	logger.Debug().Msg("debug message")
	if !bytes.Contains(buf.Bytes(), []byte("debug message")) {
		t.Error("debug message not logged after changing level")
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error().Msg("discarded")
	if logger.Level() != zerolog.Disabled {
		t.Errorf("Nop().Level() = %v, want %v", logger.Level(), zerolog.Disabled)
	}
}

// TestParseLevel verifies log level parsing
func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"info", "info", zerolog.InfoLevel},
		{"warn", "warn", zerolog.WarnLevel},
		{"warning", "warning", zerolog.WarnLevel},
		{"error", "error", zerolog.ErrorLevel},
		{"critical", "critical", zerolog.FatalLevel},
		{"panic", "panic", zerolog.PanicLevel},
		{"invalid", "invalid", zerolog.InfoLevel},
		{"uppercase", "INFO", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.want {
				t.Errorf("ParseLevel(%v) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

// BenchmarkContextPropagation benchmarks context-based logging
func BenchmarkContextPropagation(b *testing.B) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LogConfig{Level: "info"}, &buf)

	ctx := WithActivity(WithLogger(context.Background(), logger), "a-1", "", "Import")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		FromContext(ctx).Info().Msg("test message")
	}
}
