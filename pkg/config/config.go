// Package config provides configuration management for trail.
// It supports loading configuration from YAML files, JSON files, and environment variables
// with automatic validation and default value application.
//
// Example usage:
//
//	cfg, err := config.Load("trail.yaml", "TRAIL")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Or panic on error:
//	cfg := config.MustLoad("trail.yaml", "TRAIL")
package config

import (
	"time"
)

// Sink backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendLog      = "log"
	BackendMemory   = "memory"
)

// Config represents the complete configuration for a trail deployment.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Tracer   TracerConfig   `mapstructure:"tracer"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Database DatabaseConfig `mapstructure:"database"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServiceConfig contains general service information.
type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"` // development, staging, production
}

// TracerConfig controls how activities and events are produced.
type TracerConfig struct {
	// Instance identifies this process in every persisted row.
	// Default: hostname:pid.
	Instance string `mapstructure:"instance"`

	// MinLevel drops events below this level before they are serialized.
	// Default: "debug".
	MinLevel string `mapstructure:"min_level"`

	// BeginEvents emits a "started" event when an activity opens. Off by
	// default, so every activity persists exactly one terminal row.
	BeginEvents bool `mapstructure:"begin_events"`
}

// SinkConfig selects where records go and how they are shaped.
type SinkConfig struct {
	// Backend is one of "postgres", "sqlite", "redis", "log" or "memory".
	// Default: "log".
	Backend string `mapstructure:"backend"`

	// Table is the destination table for SQL backends.
	// Default: "trace_log".
	Table string `mapstructure:"table"`

	// Schema is the mapping revision: "v1", "v2" or "v3".
	// Default: "v2".
	Schema string `mapstructure:"schema"`

	// Columns renames columns of the selected revision, keyed by logical field
	// name (for example "unique_id: node_uuid").
	Columns map[string]string `mapstructure:"columns"`

	// CreateTable creates the destination table on startup if it is missing.
	CreateTable bool `mapstructure:"create_table"`

	// Mirror also exports activities as OpenTelemetry spans when tracing is enabled.
	Mirror bool `mapstructure:"mirror"`
}

// DispatchConfig controls asynchronous delivery and retries.
type DispatchConfig struct {
	// Workers is the number of delivery goroutines. 0 delivers synchronously.
	// Default: 4.
	Workers int `mapstructure:"workers"`

	// QueueSize is the per-worker buffer. Records are dropped and reported when it is full.
	// Default: 1024.
	QueueSize int `mapstructure:"queue_size"`

	// MaxAttempts bounds delivery attempts for connection failures.
	// Default: 5.
	MaxAttempts uint `mapstructure:"max_attempts"`

	// InitialBackoff is the delay before the first retry.
	// Default: 100 milliseconds.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// MaxBackoff caps the delay between retries.
	// Default: 5 seconds.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`

	// MaxElapsed caps the total time spent on one record.
	// Default: 30 seconds.
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`

	// Synchronous forces synchronous delivery even when Workers is set.
	Synchronous bool `mapstructure:"synchronous"`
}

// DatabaseConfig contains PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"` // disable, require, verify-ca, verify-full
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// SQLiteConfig contains the embedded SQLite database configuration.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" keeps everything in process.
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	MaxConns    int           `mapstructure:"max_conns"`
}

// RedisConfig contains the Redis stream sink configuration.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Stream       string        `mapstructure:"stream"`
	MaxLen       int64         `mapstructure:"max_len"` // approximate stream trim length, 0 keeps everything
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// LogConfig contains structured logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Port      int    `mapstructure:"port"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"` // Metric prefix
}

// TracingConfig contains OpenTelemetry configuration for the span mirror.
type TracingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Endpoint     string        `mapstructure:"endpoint"`      // OTLP endpoint (e.g., "localhost:4317")
	SampleRate   float64       `mapstructure:"sample_rate"`   // 0.0 to 1.0
	ServiceName  string        `mapstructure:"service_name"`  // Override service name for traces
	Environment  string        `mapstructure:"environment"`   // Environment tag
	ExportMode   string        `mapstructure:"export_mode"`   // "grpc" or "http"
	Insecure     bool          `mapstructure:"insecure"`      // Use insecure connection
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // Batch export timeout
}
