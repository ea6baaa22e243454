// Package record turns activity events into persistable records.
//
// A Record is produced by Serialize from a snapshot of the owning activity and
// the event, following a Mapping that names the column of every logical field.
// Sinks bind a record by column name only, so the same event can be written to
// any of the historical table layouts (see RevisionNode, RevisionUnique and
// RevisionScope) or to a custom one.
//
// Records form a tree addressed by unique_id and parent_id. An activity's
// terminal event carries the activity id as unique_id and the enclosing
// activity as parent_id; every other event gets a fresh unique_id and points
// at its activity:
//
//	Import            unique_id=A  parent_id=NULL   (completed)
//	├── "Starting"    unique_id=e1 parent_id=A
//	└── Validate      unique_id=B  parent_id=A      (completed)
//	    └── "Slow row" unique_id=e2 parent_id=B
package record

import (
	"time"

	"github.com/Combine-Capital/trail/pkg/ident"
)

// Snapshot is the part of an activity a record needs.
type Snapshot struct {
	ID       ident.ID
	ParentID ident.ID // ident.Nil for a root
	RootID   ident.ID // root of the activity tree; ID itself for a root
	Name     string
	Instance string
	Depth    int
	Flow     uint64
}

// Lazy defers building a payload until the record is serialized.
type Lazy func() any

// Event is an immutable trace event.
type Event struct {
	ID        ident.ID
	Timestamp time.Time
	Level     Level
	Status    Status
	Trace     string
	Elapsed   time.Duration
	Message   string
	// Details is encoded as a JSON object with sorted keys. Lazy values are
	// resolved first.
	Details map[string]any
	// Attachment is stored as text: strings and byte slices verbatim, errors
	// and Stringers through their methods, anything else as JSON.
	Attachment any
	// Err is appended to the attachment text.
	Err error
	// Terminal marks the event that ends its activity.
	Terminal bool
}

// Value is one bound column of a record. V is nil for SQL NULL, a string for
// uuid and text columns, a time.Time for timestamps, a decimal.Decimal for
// decimal columns and a float64 for float columns.
type Value struct {
	Field  Field
	Column string
	Type   ColumnType
	V      any
}

// Meta carries what sinks may need beyond the mapped columns. It is never
// persisted by SQL sinks.
type Meta struct {
	ActivityID ident.ID
	ParentID   ident.ID
	RootID     ident.ID
	Activity   string
	Depth      int
	Flow       uint64
	Level      Level
	Status     Status
	Trace      string
	Elapsed    time.Duration
	Timestamp  time.Time
	Terminal   bool
}

// Record is a serialized event ready for a sink.
type Record struct {
	Version string
	Values  []Value
	Meta    Meta
}

// Get returns the value bound to a logical field.
func (r Record) Get(f Field) (any, bool) {
	for _, v := range r.Values {
		if v.Field == f {
			return v.V, true
		}
	}
	return nil, false
}

// Text returns the value of a logical field formatted as text, empty when
// the field is unmapped or NULL.
func (r Record) Text(f Field) string {
	v, ok := r.Get(f)
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// Columns returns the column names in mapping order.
func (r Record) Columns() []string {
	out := make([]string, len(r.Values))
	for i, v := range r.Values {
		out[i] = v.Column
	}
	return out
}

// Named returns the record as column name to value.
func (r Record) Named() map[string]any {
	out := make(map[string]any, len(r.Values))
	for _, v := range r.Values {
		out[v.Column] = v.V
	}
	return out
}
