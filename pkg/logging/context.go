package logging

import (
	"context"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/rs/zerolog"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	loggerContextKey   = contextKey("trail.logger")
	activityContextKey = contextKey("trail.activity")
)

// activityFields is what the tracer records about the current activity.
type activityFields struct {
	id     string
	parent string
	name   string
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts a logger from the context.
// If no logger is found, it returns a default logger. The returned logger
// carries the fields of the activity stored with WithActivity, if any.
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(loggerContextKey).(*Logger)
	if !ok {
		logger = New(defaultLogConfig())
	}
	if f, ok := ctx.Value(activityContextKey).(activityFields); ok {
		return logger.WithActivity(f.id, f.parent, f.name)
	}
	return logger
}

// defaultLogConfig returns a default log configuration.
func defaultLogConfig() config.LogConfig {
	return config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}
}

// WithActivity records the current activity in the context for log enrichment.
func WithActivity(ctx context.Context, activityID, parentID, name string) context.Context {
	return context.WithValue(ctx, activityContextKey, activityFields{id: activityID, parent: parentID, name: name})
}

// GetActivityID retrieves the current activity id from the context.
func GetActivityID(ctx context.Context) string {
	if f, ok := ctx.Value(activityContextKey).(activityFields); ok {
		return f.id
	}
	return ""
}

// Ctx returns the context's logger as a *zerolog.Logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	return FromContext(ctx).GetZerolog()
}
