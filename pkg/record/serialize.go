package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/ident"
	"github.com/shopspring/decimal"
)

// ElapsedPlaces is the number of decimal places elapsed seconds are kept with.
const ElapsedPlaces = 3

// TimestampLayout is the textual form of persisted timestamps.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Serialize converts an event of the snapshotted activity into a record laid
// out by m. It is deterministic: equal inputs give equal records.
func Serialize(s Snapshot, e Event, m Mapping) (Record, error) {
	if s.Name == "" {
		return Record{}, errors.NewInvalidInput("activity", "name is required")
	}

	uniqueID, parentID := e.ID, s.ID
	if e.Terminal {
		uniqueID, parentID = s.ID, s.ParentID
	}
	if uniqueID == ident.Nil {
		return Record{}, errors.NewInvalidInput("unique_id", "event has no id")
	}

	details, err := encodeDetails(e.Details)
	if err != nil {
		return Record{}, err
	}
	attachment, err := encodeAttachment(e.Attachment, e.Err)
	if err != nil {
		return Record{}, err
	}

	elapsed := e.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := ElapsedSeconds(elapsed)

	root := s.RootID
	if root == ident.Nil && s.ParentID == ident.Nil {
		root = s.ID
	}

	rec := Record{
		Version: m.Version,
		Values:  make([]Value, 0, len(m.Columns)),
		Meta: Meta{
			ActivityID: s.ID,
			ParentID:   s.ParentID,
			RootID:     root,
			Activity:   s.Name,
			Depth:      s.Depth,
			Flow:       s.Flow,
			Level:      e.Level,
			Status:     e.Status,
			Trace:      strings.ToLower(e.Trace),
			Elapsed:    elapsed,
			Timestamp:  normalizeTime(e.Timestamp),
			Terminal:   e.Terminal,
		},
	}

	for _, c := range m.Columns {
		var v any
		switch c.Field {
		case FieldParentID:
			v = idValue(parentID)
		case FieldUniqueID:
			v = idValue(uniqueID)
		case FieldTimestamp:
			v = rec.Meta.Timestamp
		case FieldActivity:
			v = s.Name
		case FieldTrace:
			v = optionalText(rec.Meta.Trace)
		case FieldLevel:
			v = strings.ToLower(e.Level.String())
		case FieldStatus:
			v = optionalText(string(e.Status))
		case FieldElapsed:
			if c.Type == TypeFloat {
				v = seconds.InexactFloat64()
			} else {
				v = seconds
			}
		case FieldMessage:
			v = optionalText(e.Message)
		case FieldDetails:
			v = optionalText(details)
		case FieldAttachment:
			v = optionalText(attachment)
		case FieldInstance:
			v = optionalText(s.Instance)
		case FieldConst:
			v = optionalText(c.Value)
		default:
			return Record{}, errors.NewInvalidInput("mapping", fmt.Sprintf("column %q has unknown field %s", c.Name, c.Field))
		}
		if str, ok := v.(string); ok && c.MaxLen > 0 {
			v = truncate(str, c.MaxLen)
		}
		rec.Values = append(rec.Values, Value{Field: c.Field, Column: c.Name, Type: c.Type, V: v})
	}
	return rec, nil
}

// MaxElapsed is the largest elapsed time a DECIMAL(10,3) column holds,
// 9,999,999.999 seconds (about 115 days).
const MaxElapsed = 9_999_999_999 * time.Millisecond

// ElapsedSeconds converts d to seconds rounded to ElapsedPlaces. Durations
// above MaxElapsed are clamped to it.
func ElapsedSeconds(d time.Duration) decimal.Decimal {
	if d > MaxElapsed {
		d = MaxElapsed
	}
	return decimal.New(d.Nanoseconds(), -9).Round(ElapsedPlaces)
}

// FormatValue renders a record value as text. NULL renders empty.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(TimestampLayout)
	case decimal.Decimal:
		return val.StringFixed(ElapsedPlaces)
	case float64:
		return decimal.NewFromFloat(val).StringFixed(ElapsedPlaces)
	default:
		return fmt.Sprint(val)
	}
}

func normalizeTime(t time.Time) time.Time {
	return t.Round(0).UTC().Truncate(time.Millisecond)
}

func idValue(id ident.ID) any {
	if id == ident.Nil {
		return nil
	}
	return id.String()
}

func optionalText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func encodeDetails(details map[string]any) (string, error) {
	if len(details) == 0 {
		return "", nil
	}
	resolved := make(map[string]any, len(details))
	for k, v := range details {
		if lazy, ok := v.(Lazy); ok {
			v = lazy()
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		resolved[k] = v
	}
	return marshal(resolved, "details")
}

func encodeAttachment(attachment any, cause error) (string, error) {
	if lazy, ok := attachment.(Lazy); ok {
		attachment = lazy()
	}

	var text string
	switch a := attachment.(type) {
	case nil:
	case string:
		text = a
	case []byte:
		text = string(a)
	case error:
		text = a.Error()
	case fmt.Stringer:
		text = a.String()
	default:
		encoded, err := marshal(a, "attachment")
		if err != nil {
			return "", err
		}
		text = encoded
	}

	if cause != nil {
		if text != "" {
			text += "\n"
		}
		text += cause.Error()
	}
	return text, nil
}

// marshal encodes v as compact JSON without HTML escaping. Map keys are
// sorted by encoding/json, which keeps the output deterministic.
func marshal(v any, field string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", errors.NewInvalidInputWithCause(field, "cannot encode as JSON", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
