package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

var validLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true, "critical": true,
}

// Validate validates the configuration and returns an error if any required fields are missing
// or have invalid values.
func Validate(cfg *Config) error {
	switch cfg.Sink.Backend {
	case BackendPostgres:
		if cfg.Database.Host == "" {
			return fmt.Errorf("database.host is required when sink.backend is postgres")
		}
	case BackendSQLite:
		if cfg.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when sink.backend is sqlite")
		}
	case BackendRedis:
		if cfg.Redis.Host == "" {
			return fmt.Errorf("redis.host is required when sink.backend is redis")
		}
	case BackendLog, BackendMemory:
	default:
		return fmt.Errorf("sink.backend must be one of postgres, sqlite, redis, log, memory (got %q)", cfg.Sink.Backend)
	}

	switch cfg.Sink.Schema {
	case "v1", "v2", "v3":
	default:
		return fmt.Errorf("sink.schema must be v1, v2 or v3 (got %q)", cfg.Sink.Schema)
	}

	if !validLevels[strings.ToLower(cfg.Tracer.MinLevel)] {
		return fmt.Errorf("tracer.min_level %q is not a known level", cfg.Tracer.MinLevel)
	}

	// Validate Database config (if used)
	if cfg.Database.Host != "" {
		if cfg.Database.Port == 0 {
			return fmt.Errorf("database.port is required when database.host is set")
		}
		if cfg.Database.User == "" {
			return fmt.Errorf("database.user is required when database.host is set")
		}
		if cfg.Database.Database == "" {
			return fmt.Errorf("database.database is required when database.host is set")
		}
	}

	// Validate Redis config (if used)
	if cfg.Redis.Host != "" {
		if cfg.Redis.Port == 0 {
			return fmt.Errorf("redis.port is required when redis.host is set")
		}
		if cfg.Redis.Stream == "" {
			return fmt.Errorf("redis.stream is required when redis.host is set")
		}
	}

	if cfg.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must not be negative")
	}
	if cfg.Dispatch.MaxBackoff < cfg.Dispatch.InitialBackoff {
		return fmt.Errorf("dispatch.max_backoff must be at least dispatch.initial_backoff")
	}

	// Validate Tracing config (if enabled)
	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0")
		}
	}

	// Validate Metrics config (if enabled)
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == 0 {
			return fmt.Errorf("metrics.port is required when metrics are enabled")
		}
	}

	return nil
}

// applyDefaults applies default values to the configuration where values are not set.
func applyDefaults(cfg *Config) {
	// Service defaults
	if cfg.Service.Env == "" {
		cfg.Service.Env = "development"
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = "trail"
	}

	// Tracer defaults
	if cfg.Tracer.Instance == "" {
		cfg.Tracer.Instance = DefaultInstance()
	}
	if cfg.Tracer.MinLevel == "" {
		cfg.Tracer.MinLevel = "debug"
	}

	// Sink defaults
	if cfg.Sink.Backend == "" {
		cfg.Sink.Backend = BackendLog
	}
	if cfg.Sink.Table == "" {
		cfg.Sink.Table = "trace_log"
	}
	if cfg.Sink.Schema == "" {
		cfg.Sink.Schema = "v2"
	}

	// Dispatch defaults
	if cfg.Dispatch.Workers == 0 && !cfg.Dispatch.Synchronous {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.Synchronous {
		cfg.Dispatch.Workers = 0
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 1024
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 5
	}
	if cfg.Dispatch.InitialBackoff == 0 {
		cfg.Dispatch.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.Dispatch.MaxBackoff == 0 {
		cfg.Dispatch.MaxBackoff = 5 * time.Second
	}
	if cfg.Dispatch.MaxElapsed == 0 {
		cfg.Dispatch.MaxElapsed = 30 * time.Second
	}

	// Database defaults
	if cfg.Database.Port == 0 && cfg.Database.Host != "" {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 1
	}
	if cfg.Database.MaxConnLifetime == 0 {
		cfg.Database.MaxConnLifetime = time.Hour
	}
	if cfg.Database.MaxConnIdleTime == 0 {
		cfg.Database.MaxConnIdleTime = 10 * time.Minute
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 30 * time.Second
	}
	if cfg.Database.QueryTimeout == 0 {
		cfg.Database.QueryTimeout = 30 * time.Second
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "prefer"
	}

	// SQLite defaults
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = 5 * time.Second
	}
	if cfg.SQLite.MaxConns == 0 {
		cfg.SQLite.MaxConns = 1
	}

	// Redis defaults
	if cfg.Redis.Port == 0 && cfg.Redis.Host != "" {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = "trail:events"
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}

	// Log defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	// Metrics defaults
	if cfg.Metrics.Port == 0 && cfg.Metrics.Enabled {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = cfg.Service.Name
	}

	// Tracing defaults
	if cfg.Tracing.SampleRate == 0 && cfg.Tracing.Enabled {
		cfg.Tracing.SampleRate = 1.0
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.Service.Name
	}
	if cfg.Tracing.Environment == "" {
		cfg.Tracing.Environment = cfg.Service.Env
	}
	if cfg.Tracing.ExportMode == "" {
		cfg.Tracing.ExportMode = "grpc"
	}
	if cfg.Tracing.BatchTimeout == 0 {
		cfg.Tracing.BatchTimeout = 5 * time.Second
	}
}

// DefaultInstance returns "hostname:pid" for the running process.
func DefaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
