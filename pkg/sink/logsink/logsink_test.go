package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/logging"
	"github.com/Combine-Capital/trail/pkg/record"
	"github.com/google/uuid"
)

var (
	importID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	validateID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	eventID    = uuid.MustParse("00000000-0000-0000-0000-000000000003")
)

func serialize(t *testing.T, s record.Snapshot, e record.Event) record.Record {
	t.Helper()
	rec, err := record.Serialize(s, e, record.RevisionUnique)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	return rec
}

func TestLine(t *testing.T) {
	validate := record.Snapshot{ID: validateID, ParentID: importID, Name: "Validate", Depth: 1}

	tests := []struct {
		name   string
		rec    record.Record
		indent string
		want   string
	}{
		{
			name: "event with details",
			rec: serialize(t, validate, record.Event{
				ID: eventID, Level: record.LevelWarn, Trace: "info", Message: "Slow row",
				Elapsed: 1500 * time.Millisecond, Details: map[string]any{"row": 17},
			}),
			indent: DefaultIndent,
			want: `.. Validate | info | 1.500s | Slow row | {"row":17} | ` +
				`node://00000000-0000-0000-0000-000000000002/00000000-0000-0000-0000-000000000003 | `,
		},
		{
			name: "terminal root with error",
			rec: serialize(t, record.Snapshot{ID: importID, Name: "Import"}, record.Event{
				Level: record.LevelError, Trace: "error", Elapsed: 2010 * time.Millisecond,
				Err: errors.New("boom"), Terminal: true,
			}),
			indent: "-",
			want:   "- Import | error | 2.010s |  |  | node:///00000000-0000-0000-0000-000000000001 | boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Line(tt.rec, tt.indent); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppend(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	s := New(logger)

	recs := []record.Record{
		serialize(t, record.Snapshot{ID: importID, Name: "Import"}, record.Event{
			ID: eventID, Level: record.LevelDebug, Trace: "info", Message: "Starting",
		}),
		serialize(t, record.Snapshot{ID: validateID, ParentID: importID, Name: "Validate", Depth: 1}, record.Event{
			Level: record.LevelError, Status: record.StatusFailed, Trace: "error", Terminal: true,
		}),
	}
	if err := s.AppendBatch(context.Background(), recs); err != nil {
		t.Fatalf("AppendBatch() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d lines, want 2: %s", len(lines), buf.String())
	}

	tests := []struct {
		line   string
		fields map[string]any
	}{
		{lines[0], map[string]any{
			"level":            "debug",
			logging.Activity:   "Import",
			logging.ActivityID: importID.String(),
			logging.Trace:      "info",
			logging.Component:  "trace",
		}},
		{lines[1], map[string]any{
			"level":          "error",
			logging.Activity: "Validate",
			logging.ParentID: importID.String(),
			logging.Depth:    float64(1),
			"status":         "failed",
		}},
	}
	for i, tt := range tests {
		var got map[string]any
		if err := json.Unmarshal([]byte(tt.line), &got); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		for k, want := range tt.fields {
			if got[k] != want {
				t.Errorf("line %d field %s = %v, want %v", i, k, got[k], want)
			}
		}
		if msg, _ := got["message"].(string); !strings.Contains(msg, "node://") {
			t.Errorf("line %d message = %q, want a trace line", i, msg)
		}
	}
	if _, ok := mustDecode(t, lines[0])[logging.ParentID]; ok {
		t.Error("root record logged a parent_id")
	}
}

func TestAppendRespectsLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	s := New(logging.NewWithWriter(config.LogConfig{Level: "warn", Format: "json"}, &buf))

	rec := serialize(t, record.Snapshot{ID: importID, Name: "Import"}, record.Event{
		ID: eventID, Level: record.LevelInfo, Trace: "info", Message: "quiet",
	})
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("logged %q below the logger level", buf.String())
	}
}

func mustDecode(t *testing.T, line string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatal(err)
	}
	return out
}
