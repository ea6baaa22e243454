// Package logging provides structured logging with zerolog for trail.
// It supports configurable log levels, output formats (JSON/console), and automatic
// enrichment with the activity a context belongs to, so that library diagnostics
// (dropped records, sink failures) can be correlated with persisted events.
//
// Example usage:
//
//	cfg := config.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//	logger := logging.New(cfg)
//	logger.Warn().Str(logging.Sink, "postgres").Msg("append retried")
package logging

// Standard field names for structured logging.
const (
	// ActivityID is the field name for the id of the current activity.
	ActivityID = "activity_id"

	// ParentID is the field name for the id of the enclosing activity.
	ParentID = "parent_id"

	// Activity is the field name for the activity name.
	Activity = "activity"

	// Trace is the field name for an event's trace name (begin, item, end...).
	Trace = "trace"

	// Elapsed is the field name for elapsed seconds since the activity started.
	Elapsed = "elapsed"

	// Depth is the field name for the nesting depth of an activity.
	Depth = "depth"

	// ServiceName is the field name for the service generating the log.
	ServiceName = "service_name"

	// Instance is the field name for the process instance tag.
	Instance = "instance"

	// Error is the field name for error information.
	Error = "error"

	// Sink is the field name for the sink a record was delivered to.
	Sink = "sink"

	// Kind is the field name for a classified sink failure kind.
	Kind = "kind"

	// Attempt is the field name for a delivery attempt number.
	Attempt = "attempt"

	// ContractBreak marks failures that retrying cannot fix.
	ContractBreak = "contract_break"

	// Duration is the field name for operation duration.
	Duration = "duration_ms"

	// Component is the field name for the component/package generating the log.
	Component = "component"
)
