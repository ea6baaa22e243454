package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Combine-Capital/trail/pkg/errors"
)

// Field is a logical record field, independent of any persisted column name.
type Field int

const (
	FieldParentID Field = iota + 1
	FieldUniqueID
	FieldTimestamp
	FieldActivity
	FieldTrace
	FieldLevel
	FieldStatus
	FieldElapsed
	FieldMessage
	FieldDetails
	FieldAttachment
	FieldInstance
	// FieldConst writes Column.Value verbatim, for deployment tags.
	FieldConst
)

var fieldNames = map[Field]string{
	FieldParentID:   "parent_id",
	FieldUniqueID:   "unique_id",
	FieldTimestamp:  "timestamp",
	FieldActivity:   "activity",
	FieldTrace:      "trace",
	FieldLevel:      "level",
	FieldStatus:     "status",
	FieldElapsed:    "elapsed",
	FieldMessage:    "message",
	FieldDetails:    "details",
	FieldAttachment: "attachment",
	FieldInstance:   "instance",
	FieldConst:      "const",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// ParseField resolves a logical field name.
func ParseField(name string) (Field, error) {
	for f, n := range fieldNames {
		if n == strings.ToLower(name) {
			return f, nil
		}
	}
	return 0, errors.NewInvalidInput("field", fmt.Sprintf("unknown field %q", name))
}

// ColumnType is the persisted type of a column.
type ColumnType int

const (
	TypeUUID ColumnType = iota + 1
	TypeTimestamp
	TypeText
	TypeDecimal
	TypeFloat
)

func (t ColumnType) String() string {
	switch t {
	case TypeUUID:
		return "uuid"
	case TypeTimestamp:
		return "timestamp"
	case TypeText:
		return "text"
	case TypeDecimal:
		return "decimal"
	case TypeFloat:
		return "float"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Column maps one logical field to one persisted column.
type Column struct {
	Field    Field
	Name     string
	Type     ColumnType
	MaxLen   int  // text columns only, 0 is unbounded
	Nullable bool // false columns are NOT NULL
	Value    string
}

// Mapping is a versioned, ordered field to column table. Records are always
// bound by column name, the order only fixes DDL and output layout.
type Mapping struct {
	Version string
	Columns []Column
}

// RevisionNode is the oldest layout: nodeId/prevId addressing, a status
// column and elapsed seconds as a float.
var RevisionNode = Mapping{
	Version: "v1",
	Columns: []Column{
		{Field: FieldUniqueID, Name: "nodeId", Type: TypeUUID},
		{Field: FieldParentID, Name: "prevId", Type: TypeUUID, Nullable: true},
		{Field: FieldTimestamp, Name: "timestamp", Type: TypeTimestamp},
		{Field: FieldActivity, Name: "scope", Type: TypeText, MaxLen: 200},
		{Field: FieldStatus, Name: "status", Type: TypeText, MaxLen: 50, Nullable: true},
		{Field: FieldElapsed, Name: "elapsed", Type: TypeFloat, Nullable: true},
		{Field: FieldMessage, Name: "message", Type: TypeText, MaxLen: 1000, Nullable: true},
		{Field: FieldDetails, Name: "details", Type: TypeText, Nullable: true},
		{Field: FieldAttachment, Name: "attachment", Type: TypeText, Nullable: true},
	},
}

// RevisionUnique is the current layout with unique_id/parent_id addressing,
// trace and level columns and decimal(10,3) elapsed seconds.
var RevisionUnique = Mapping{
	Version: "v2",
	Columns: []Column{
		{Field: FieldParentID, Name: "parent_id", Type: TypeUUID, Nullable: true},
		{Field: FieldUniqueID, Name: "unique_id", Type: TypeUUID},
		{Field: FieldTimestamp, Name: "timestamp", Type: TypeTimestamp},
		{Field: FieldActivity, Name: "activity", Type: TypeText, MaxLen: 200},
		{Field: FieldTrace, Name: "trace", Type: TypeText, MaxLen: 50, Nullable: true},
		{Field: FieldLevel, Name: "level", Type: TypeText, MaxLen: 50},
		{Field: FieldElapsed, Name: "elapsed", Type: TypeDecimal, Nullable: true},
		{Field: FieldMessage, Name: "message", Type: TypeText, MaxLen: 1000, Nullable: true},
		{Field: FieldDetails, Name: "details", Type: TypeText, Nullable: true},
		{Field: FieldAttachment, Name: "attachment", Type: TypeText, Nullable: true},
	},
}

// RevisionScope uses node/parent addressing with scope and status columns.
var RevisionScope = Mapping{
	Version: "v3",
	Columns: []Column{
		{Field: FieldUniqueID, Name: "node", Type: TypeUUID},
		{Field: FieldParentID, Name: "parent", Type: TypeUUID, Nullable: true},
		{Field: FieldTimestamp, Name: "timestamp", Type: TypeTimestamp},
		{Field: FieldActivity, Name: "scope", Type: TypeText, MaxLen: 200},
		{Field: FieldStatus, Name: "status", Type: TypeText, MaxLen: 50, Nullable: true},
		{Field: FieldLevel, Name: "level", Type: TypeText, MaxLen: 50},
		{Field: FieldElapsed, Name: "elapsed", Type: TypeDecimal, Nullable: true},
		{Field: FieldMessage, Name: "message", Type: TypeText, MaxLen: 1000, Nullable: true},
		{Field: FieldDetails, Name: "details", Type: TypeText, Nullable: true},
		{Field: FieldAttachment, Name: "attachment", Type: TypeText, Nullable: true},
	},
}

// DefaultMapping is the revision used when none is configured.
var DefaultMapping = RevisionUnique

var revisions = map[string]Mapping{
	RevisionNode.Version:   RevisionNode,
	RevisionUnique.Version: RevisionUnique,
	RevisionScope.Version:  RevisionScope,
}

// LookupRevision returns a copy of a built-in revision.
func LookupRevision(version string) (Mapping, error) {
	m, ok := revisions[strings.ToLower(version)]
	if !ok {
		return Mapping{}, errors.NewNotFound("schema revision", version)
	}
	return m.clone(), nil
}

// Revisions lists the built-in revision versions in order.
func Revisions() []string {
	out := make([]string, 0, len(revisions))
	for v := range revisions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (m Mapping) clone() Mapping {
	cols := make([]Column, len(m.Columns))
	copy(cols, m.Columns)
	return Mapping{Version: m.Version, Columns: cols}
}

// Column returns the column a field is mapped to.
func (m Mapping) Column(f Field) (Column, bool) {
	for _, c := range m.Columns {
		if c.Field == f {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns the column names in mapping order.
func (m Mapping) Names() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// optionalColumns are added by Customize when a mapping lacks them.
var optionalColumns = map[Field]Column{
	FieldInstance: {Field: FieldInstance, Name: "instance", Type: TypeText, MaxLen: 200, Nullable: true},
	FieldStatus:   {Field: FieldStatus, Name: "status", Type: TypeText, MaxLen: 50, Nullable: true},
	FieldTrace:    {Field: FieldTrace, Name: "trace", Type: TypeText, MaxLen: 50, Nullable: true},
	FieldLevel:    {Field: FieldLevel, Name: "level", Type: TypeText, MaxLen: 50, Nullable: true},
}

// Customize returns a copy of m with columns renamed. Keys are logical field
// names, values the column names to use. Naming an optional field the mapping
// does not carry (instance, status, trace, level) appends it. The version gets
// a "+custom" suffix so the result is never mistaken for a built-in revision.
func (m Mapping) Customize(columns map[string]string) (Mapping, error) {
	if len(columns) == 0 {
		return m.clone(), nil
	}
	out := m.clone()

	keys := make([]string, 0, len(columns))
	for k := range columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := columns[key]
		f, err := ParseField(key)
		if err != nil {
			return Mapping{}, err
		}
		idx := -1
		for i, c := range out.Columns {
			if c.Field == f {
				idx = i
				break
			}
		}
		if idx >= 0 {
			out.Columns[idx].Name = name
			continue
		}
		col, ok := optionalColumns[f]
		if !ok {
			return Mapping{}, errors.NewInvalidInput("columns", fmt.Sprintf("field %s cannot be added to revision %s", key, m.Version))
		}
		col.Name = name
		out.Columns = append(out.Columns, col)
	}
	out.Version = m.Version + "+custom"
	return out, out.Validate()
}

// WithConst returns a copy of m with a constant text column appended.
func (m Mapping) WithConst(name, value string) Mapping {
	out := m.clone()
	out.Columns = append(out.Columns, Column{Field: FieldConst, Name: name, Type: TypeText, Nullable: true, Value: value})
	return out
}

var allowedTypes = map[Field][]ColumnType{
	FieldParentID:   {TypeUUID, TypeText},
	FieldUniqueID:   {TypeUUID, TypeText},
	FieldTimestamp:  {TypeTimestamp},
	FieldActivity:   {TypeText},
	FieldTrace:      {TypeText},
	FieldLevel:      {TypeText},
	FieldStatus:     {TypeText},
	FieldElapsed:    {TypeDecimal, TypeFloat},
	FieldMessage:    {TypeText},
	FieldDetails:    {TypeText},
	FieldAttachment: {TypeText},
	FieldInstance:   {TypeText},
	FieldConst:      {TypeText},
}

// Validate checks that the mapping can address a record: every column has a
// name and a type its field can take, no name or field repeats, and the
// unique_id, timestamp and activity fields are present.
func (m Mapping) Validate() error {
	if m.Version == "" {
		return errors.NewInvalidInput("mapping", "version is required")
	}
	names := make(map[string]bool, len(m.Columns))
	fields := make(map[Field]bool, len(m.Columns))
	for _, c := range m.Columns {
		if c.Name == "" {
			return errors.NewInvalidInput("mapping", fmt.Sprintf("field %s has no column name", c.Field))
		}
		lower := strings.ToLower(c.Name)
		if names[lower] {
			return errors.NewInvalidInput("mapping", fmt.Sprintf("column %q is mapped twice", c.Name))
		}
		names[lower] = true

		allowed, ok := allowedTypes[c.Field]
		if !ok {
			return errors.NewInvalidInput("mapping", fmt.Sprintf("column %q has unknown field %s", c.Name, c.Field))
		}
		if !containsType(allowed, c.Type) {
			return errors.NewInvalidInput("mapping", fmt.Sprintf("column %q cannot hold %s as %s", c.Name, c.Field, c.Type))
		}
		if c.Field != FieldConst {
			if fields[c.Field] {
				return errors.NewInvalidInput("mapping", fmt.Sprintf("field %s is mapped twice", c.Field))
			}
			fields[c.Field] = true
		}
	}
	for _, required := range []Field{FieldUniqueID, FieldTimestamp, FieldActivity} {
		if !fields[required] {
			return errors.NewInvalidInput("mapping", fmt.Sprintf("field %s is not mapped", required))
		}
	}
	return nil
}

func containsType(types []ColumnType, t ColumnType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
