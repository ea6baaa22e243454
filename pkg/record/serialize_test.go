package record

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/ident"
	"github.com/shopspring/decimal"
)

func mustParse(s string) ident.ID {
	id, err := ident.Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

var (
	importID   = mustParse("00000000-0000-0000-0000-00000000000a")
	validateID = mustParse("00000000-0000-0000-0000-00000000000b")
	eventID    = mustParse("00000000-0000-0000-0000-0000000000e1")
	stamp      = time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
)

func validateSnapshot() Snapshot {
	return Snapshot{ID: validateID, ParentID: importID, Name: "Validate", Instance: "worker-1:42", Depth: 2, Flow: 7}
}

type stringer struct{}

func (stringer) String() string { return "stringer" }

func TestSerializeAddressing(t *testing.T) {
	tests := []struct {
		name       string
		snapshot   Snapshot
		event      Event
		wantUnique any
		wantParent any
	}{
		{
			name:       "event hangs under its activity",
			snapshot:   validateSnapshot(),
			event:      Event{ID: eventID, Timestamp: stamp, Level: LevelWarn, Message: "Slow row"},
			wantUnique: eventID.String(),
			wantParent: validateID.String(),
		},
		{
			name:       "terminal event is the activity node",
			snapshot:   validateSnapshot(),
			event:      Event{ID: validateID, Timestamp: stamp, Level: LevelInfo, Status: StatusCompleted, Terminal: true},
			wantUnique: validateID.String(),
			wantParent: importID.String(),
		},
		{
			name:       "terminal event of a root has no parent",
			snapshot:   Snapshot{ID: importID, Name: "Import", Depth: 1},
			event:      Event{ID: importID, Timestamp: stamp, Level: LevelInfo, Status: StatusCompleted, Terminal: true},
			wantUnique: importID.String(),
			wantParent: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Serialize(tt.snapshot, tt.event, RevisionUnique)
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			if got, _ := rec.Get(FieldUniqueID); got != tt.wantUnique {
				t.Errorf("unique_id = %v, want %v", got, tt.wantUnique)
			}
			if got, _ := rec.Get(FieldParentID); got != tt.wantParent {
				t.Errorf("parent_id = %v, want %v", got, tt.wantParent)
			}
		})
	}
}

func TestSerializeRevisionUnique(t *testing.T) {
	e := Event{
		ID:         eventID,
		Timestamp:  stamp,
		Level:      LevelWarn,
		Trace:      "ITEM",
		Elapsed:    1234567 * time.Microsecond,
		Message:    "Slow row",
		Details:    map[string]any{"row": 17, "file": "a.csv"},
		Attachment: "raw line",
	}

	rec, err := Serialize(validateSnapshot(), e, RevisionUnique)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	wantColumns := []string{"parent_id", "unique_id", "timestamp", "activity", "trace", "level", "elapsed", "message", "details", "attachment"}
	if got := rec.Columns(); !reflect.DeepEqual(got, wantColumns) {
		t.Fatalf("Columns() = %v, want %v", got, wantColumns)
	}

	named := rec.Named()
	if got := named["timestamp"].(time.Time); !got.Equal(time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC)) {
		t.Errorf("timestamp = %v, want millisecond precision", got)
	}
	if got := named["trace"]; got != "item" {
		t.Errorf("trace = %v, want item", got)
	}
	if got := named["level"]; got != "warn" {
		t.Errorf("level = %v, want warn", got)
	}
	if got := named["elapsed"].(decimal.Decimal).String(); got != "1.235" {
		t.Errorf("elapsed = %v, want 1.235", got)
	}
	if got := named["details"]; got != `{"file":"a.csv","row":17}` {
		t.Errorf("details = %v, want sorted JSON", got)
	}
	if got := named["attachment"]; got != "raw line" {
		t.Errorf("attachment = %v, want raw line", got)
	}
	if rec.Version != "v2" {
		t.Errorf("Version = %v, want v2", rec.Version)
	}
	if rec.Meta.Depth != 2 || rec.Meta.Flow != 7 {
		t.Errorf("Meta = %+v, want depth 2 flow 7", rec.Meta)
	}
}

func TestSerializeRevisions(t *testing.T) {
	e := Event{ID: validateID, Timestamp: stamp, Level: LevelError, Status: StatusFailed, Elapsed: 2500 * time.Millisecond, Terminal: true}

	tests := []struct {
		name    string
		mapping Mapping
		want    map[string]any
	}{
		{
			name:    "node revision",
			mapping: RevisionNode,
			want: map[string]any{
				"nodeId":  validateID.String(),
				"prevId":  importID.String(),
				"scope":   "Validate",
				"status":  "failed",
				"elapsed": 2.5,
			},
		},
		{
			name:    "scope revision",
			mapping: RevisionScope,
			want: map[string]any{
				"node":   validateID.String(),
				"parent": importID.String(),
				"scope":  "Validate",
				"status": "failed",
				"level":  "error",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Serialize(validateSnapshot(), e, tt.mapping)
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			named := rec.Named()
			if len(named) != len(tt.mapping.Columns) {
				t.Errorf("len(Named()) = %d, want %d", len(named), len(tt.mapping.Columns))
			}
			for column, want := range tt.want {
				if got := named[column]; got != want {
					t.Errorf("%s = %v, want %v", column, got, want)
				}
			}
		})
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	e := Event{
		ID:        eventID,
		Timestamp: stamp,
		Level:     LevelInfo,
		Message:   "Starting",
		Details: map[string]any{
			"z": []int{3, 2, 1},
			"a": map[string]any{"y": 1, "x": 2},
			"m": Lazy(func() any { return "computed" }),
		},
	}

	first, err := Serialize(validateSnapshot(), e, RevisionUnique)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Serialize(validateSnapshot(), e, RevisionUnique)
		if err != nil {
			t.Fatalf("Serialize() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Serialize() is not deterministic:\n%+v\n%+v", first, again)
		}
	}
	if got := first.Text(FieldDetails); got != `{"a":{"x":2,"y":1},"m":"computed","z":[3,2,1]}` {
		t.Errorf("details = %v", got)
	}
}

func TestSerializeTruncatesBoundedText(t *testing.T) {
	snap := validateSnapshot()
	snap.Name = strings.Repeat("ä", 250)
	e := Event{ID: eventID, Timestamp: stamp, Level: LevelInfo, Trace: strings.Repeat("t", 80), Message: strings.Repeat("m", 1500)}

	rec, err := Serialize(snap, e, RevisionUnique)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	tests := []struct {
		field Field
		want  int
	}{
		{FieldActivity, 200},
		{FieldTrace, 50},
		{FieldMessage, 1000},
	}
	for _, tt := range tests {
		if got := len([]rune(rec.Text(tt.field))); got != tt.want {
			t.Errorf("len(%s) = %d, want %d", tt.field, got, tt.want)
		}
	}
}

func TestSerializeNulls(t *testing.T) {
	rec, err := Serialize(Snapshot{ID: importID, Name: "Import"}, Event{ID: eventID, Timestamp: stamp, Level: LevelInfo}, RevisionUnique)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	for _, field := range []Field{FieldTrace, FieldMessage, FieldDetails, FieldAttachment} {
		if v, _ := rec.Get(field); v != nil {
			t.Errorf("%s = %v, want NULL", field, v)
		}
	}
	if got := rec.Text(FieldElapsed); got != "0.000" {
		t.Errorf("elapsed = %v, want 0.000", got)
	}
}

func TestSerializeAttachment(t *testing.T) {
	tests := []struct {
		name       string
		attachment any
		err        error
		want       any
	}{
		{name: "string", attachment: "text", want: "text"},
		{name: "bytes", attachment: []byte("bytes"), want: "bytes"},
		{name: "stringer", attachment: stringer{}, want: "stringer"},
		{name: "struct as JSON", attachment: struct {
			Row int `json:"row"`
		}{Row: 3}, want: `{"row":3}`},
		{name: "lazy", attachment: Lazy(func() any { return "late" }), want: "late"},
		{name: "error only", err: fmt.Errorf("boom"), want: "boom"},
		{name: "attachment and error", attachment: "context", err: fmt.Errorf("boom"), want: "context\nboom"},
		{name: "nothing", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{ID: eventID, Timestamp: stamp, Level: LevelInfo, Attachment: tt.attachment, Err: tt.err}
			rec, err := Serialize(validateSnapshot(), e, RevisionUnique)
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			if got, _ := rec.Get(FieldAttachment); got != tt.want {
				t.Errorf("attachment = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSerializeErrors(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		event    Event
	}{
		{name: "empty activity name", snapshot: Snapshot{ID: importID}, event: Event{ID: eventID, Timestamp: stamp}},
		{name: "missing event id", snapshot: validateSnapshot(), event: Event{Timestamp: stamp}},
		{name: "unencodable details", snapshot: validateSnapshot(), event: Event{ID: eventID, Timestamp: stamp, Details: map[string]any{"ch": make(chan int)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Serialize(tt.snapshot, tt.event, RevisionUnique); !errors.IsInvalidInput(err) {
				t.Errorf("Serialize() error = %v, want invalid input", err)
			}
		})
	}
}

func TestSerializeInstanceAndConst(t *testing.T) {
	m, err := RevisionUnique.Customize(map[string]string{"instance": "instance"})
	if err != nil {
		t.Fatalf("Customize() error = %v", err)
	}
	m = m.WithConst("env", "staging")

	rec, err := Serialize(validateSnapshot(), Event{ID: eventID, Timestamp: stamp, Level: LevelInfo}, m)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	named := rec.Named()
	if named["instance"] != "worker-1:42" {
		t.Errorf("instance = %v, want worker-1:42", named["instance"])
	}
	if named["env"] != "staging" {
		t.Errorf("env = %v, want staging", named["env"])
	}
}

func TestElapsedSeconds(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0.000"},
		{"rounds to milliseconds", 1500*time.Millisecond + 499*time.Microsecond, "1.500"},
		{"rounds half up", 2*time.Second + 2500*time.Microsecond, "2.003"},
		{"largest storable", MaxElapsed, "9999999.999"},
		{"clamped", MaxElapsed + time.Hour, "9999999.999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ElapsedSeconds(tt.d).StringFixed(ElapsedPlaces); got != tt.want {
				t.Errorf("ElapsedSeconds(%v) = %s, want %s", tt.d, got, tt.want)
			}
		})
	}
}

func TestSerializeRootID(t *testing.T) {
	ev := Event{ID: eventID, Timestamp: stamp, Level: LevelInfo}

	tests := []struct {
		name     string
		snapshot Snapshot
		want     ident.ID
	}{
		{"root is its own root", Snapshot{ID: importID, Name: "Import"}, importID},
		{"child keeps the given root", Snapshot{ID: validateID, ParentID: importID, RootID: importID, Name: "Validate"}, importID},
		{"child without root stays unknown", validateSnapshot(), ident.Nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Serialize(tt.snapshot, ev, RevisionUnique)
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			if rec.Meta.RootID != tt.want {
				t.Errorf("RootID = %v, want %v", rec.Meta.RootID, tt.want)
			}
		})
	}
}
