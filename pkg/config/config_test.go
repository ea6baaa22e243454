package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoad verifies configuration loading from YAML file
func TestLoad(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "trail.yaml")

	configContent := `
service:
  name: importer
  version: 1.0.0
  env: development

tracer:
  instance: worker-1
  min_level: info

sink:
  backend: postgres
  table: activity_log
  schema: v3
  create_table: true
  columns:
    message: msg

dispatch:
  workers: 2
  max_attempts: 3
  initial_backoff: 50ms
  max_backoff: 1s

database:
  host: localhost
  port: 5432
  database: testdb
  user: testuser
  password: testpass
  ssl_mode: disable

log:
  level: debug
  format: json

metrics:
  enabled: true
  port: 9090
  path: /metrics

tracing:
  enabled: true
  endpoint: localhost:4317
  sample_rate: 0.5
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify loaded values
	if cfg.Service.Name != "importer" {
		t.Errorf("Service.Name = %v, want %v", cfg.Service.Name, "importer")
	}
	if cfg.Tracer.Instance != "worker-1" {
		t.Errorf("Tracer.Instance = %v, want %v", cfg.Tracer.Instance, "worker-1")
	}
	if cfg.Sink.Backend != BackendPostgres {
		t.Errorf("Sink.Backend = %v, want %v", cfg.Sink.Backend, BackendPostgres)
	}
	if cfg.Sink.Table != "activity_log" {
		t.Errorf("Sink.Table = %v, want %v", cfg.Sink.Table, "activity_log")
	}
	if cfg.Sink.Schema != "v3" {
		t.Errorf("Sink.Schema = %v, want %v", cfg.Sink.Schema, "v3")
	}
	if cfg.Sink.Columns["message"] != "msg" {
		t.Errorf("Sink.Columns[message] = %v, want %v", cfg.Sink.Columns["message"], "msg")
	}
	if cfg.Dispatch.Workers != 2 {
		t.Errorf("Dispatch.Workers = %v, want %v", cfg.Dispatch.Workers, 2)
	}
	if cfg.Dispatch.InitialBackoff != 50*time.Millisecond {
		t.Errorf("Dispatch.InitialBackoff = %v, want %v", cfg.Dispatch.InitialBackoff, 50*time.Millisecond)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %v, want %v", cfg.Database.Host, "localhost")
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing.SampleRate = %v, want %v", cfg.Tracing.SampleRate, 0.5)
	}
}

// TestLoadFromEnv verifies loading configuration from environment variables
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRAIL_SINK_BACKEND", "sqlite")
	t.Setenv("TRAIL_SQLITE_PATH", ":memory:")
	t.Setenv("TRAIL_SINK_SCHEMA", "v1")
	t.Setenv("TRAIL_DISPATCH_SYNCHRONOUS", "true")

	cfg, err := LoadFromEnv("TRAIL")
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Sink.Backend != BackendSQLite {
		t.Errorf("Sink.Backend = %v, want %v", cfg.Sink.Backend, BackendSQLite)
	}
	if cfg.SQLite.Path != ":memory:" {
		t.Errorf("SQLite.Path = %v, want %v", cfg.SQLite.Path, ":memory:")
	}
	if cfg.Sink.Schema != "v1" {
		t.Errorf("Sink.Schema = %v, want %v", cfg.Sink.Schema, "v1")
	}
	if cfg.Dispatch.Workers != 0 {
		t.Errorf("Dispatch.Workers = %v, want 0 for synchronous delivery", cfg.Dispatch.Workers)
	}
}

// TestMustLoad verifies MustLoad panics on error
func TestMustLoad(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustLoad() should panic on invalid config")
		}
	}()

	// This should panic because file doesn't exist
	MustLoad("/nonexistent/path/trail.yaml", "")
}

// TestMustLoadSuccess verifies MustLoad returns config on success
func TestMustLoadSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "trail.yaml")

	configContent := `
sink:
  backend: memory
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := MustLoad(configPath, "")
	if cfg == nil {
		t.Fatal("MustLoad() returned nil")
	}
	if cfg.Sink.Backend != BackendMemory {
		t.Errorf("Sink.Backend = %v, want %v", cfg.Sink.Backend, BackendMemory)
	}
}

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// TestValidate verifies configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Sink.Backend = "kafka" },
			wantErr: "sink.backend",
		},
		{
			name:    "unknown schema",
			mutate:  func(c *Config) { c.Sink.Schema = "v9" },
			wantErr: "sink.schema",
		},
		{
			name:    "unknown min level",
			mutate:  func(c *Config) { c.Tracer.MinLevel = "chatty" },
			wantErr: "tracer.min_level",
		},
		{
			name:    "postgres without host",
			mutate:  func(c *Config) { c.Sink.Backend = BackendPostgres },
			wantErr: "database.host",
		},
		{
			name: "database missing user",
			mutate: func(c *Config) {
				c.Sink.Backend = BackendPostgres
				c.Database = DatabaseConfig{Host: "localhost", Port: 5432, Database: "db"}
			},
			wantErr: "database.user",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Sink.Backend = BackendSQLite },
			wantErr: "sqlite.path",
		},
		{
			name:    "redis without host",
			mutate:  func(c *Config) { c.Sink.Backend = BackendRedis },
			wantErr: "redis.host",
		},
		{
			name: "redis missing port",
			mutate: func(c *Config) {
				c.Sink.Backend = BackendRedis
				c.Redis.Host = "localhost"
				c.Redis.Port = 0
			},
			wantErr: "redis.port",
		},
		{
			name:    "negative workers",
			mutate:  func(c *Config) { c.Dispatch.Workers = -1 },
			wantErr: "dispatch.workers",
		},
		{
			name: "backoff bounds inverted",
			mutate: func(c *Config) {
				c.Dispatch.InitialBackoff = time.Second
				c.Dispatch.MaxBackoff = time.Millisecond
			},
			wantErr: "dispatch.max_backoff",
		},
		{
			name:    "tracing enabled without endpoint",
			mutate:  func(c *Config) { c.Tracing.Enabled = true },
			wantErr: "tracing.endpoint",
		},
		{
			name: "tracing sample rate too high",
			mutate: func(c *Config) {
				c.Tracing = TracingConfig{Enabled: true, Endpoint: "localhost:4317", SampleRate: 1.5}
			},
			wantErr: "tracing.sample_rate",
		},
		{
			name: "metrics enabled without port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 0
			},
			wantErr: "metrics.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// TestApplyDefaults verifies default value application
func TestApplyDefaults(t *testing.T) {
	cfg := &Config{
		Service: ServiceConfig{
			Name: "importer",
		},
	}

	applyDefaults(cfg)

	if cfg.Service.Env != "development" {
		t.Errorf("Service.Env = %v, want %v", cfg.Service.Env, "development")
	}
	if cfg.Tracer.Instance == "" || !strings.Contains(cfg.Tracer.Instance, ":") {
		t.Errorf("Tracer.Instance = %q, want hostname:pid", cfg.Tracer.Instance)
	}
	if cfg.Tracer.MinLevel != "debug" {
		t.Errorf("Tracer.MinLevel = %v, want %v", cfg.Tracer.MinLevel, "debug")
	}

	// Verify sink defaults
	if cfg.Sink.Backend != BackendLog {
		t.Errorf("Sink.Backend = %v, want %v", cfg.Sink.Backend, BackendLog)
	}
	if cfg.Sink.Table != "trace_log" {
		t.Errorf("Sink.Table = %v, want %v", cfg.Sink.Table, "trace_log")
	}
	if cfg.Sink.Schema != "v2" {
		t.Errorf("Sink.Schema = %v, want %v", cfg.Sink.Schema, "v2")
	}

	// Verify dispatch defaults
	if cfg.Dispatch.Workers != 4 {
		t.Errorf("Dispatch.Workers = %v, want %v", cfg.Dispatch.Workers, 4)
	}
	if cfg.Dispatch.MaxAttempts != 5 {
		t.Errorf("Dispatch.MaxAttempts = %v, want %v", cfg.Dispatch.MaxAttempts, 5)
	}
	if cfg.Dispatch.InitialBackoff != 100*time.Millisecond {
		t.Errorf("Dispatch.InitialBackoff = %v, want %v", cfg.Dispatch.InitialBackoff, 100*time.Millisecond)
	}

	// Verify log defaults
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %v, want %v", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %v, want %v", cfg.Log.Format, "json")
	}
	if cfg.Log.Output != "stdout" {
		t.Errorf("Log.Output = %v, want %v", cfg.Log.Output, "stdout")
	}

	// Verify metrics defaults
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %v, want %v", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Metrics.Namespace != "importer" {
		t.Errorf("Metrics.Namespace = %v, want %v", cfg.Metrics.Namespace, "importer")
	}

	// Verify tracing defaults
	if cfg.Tracing.ExportMode != "grpc" {
		t.Errorf("Tracing.ExportMode = %v, want %v", cfg.Tracing.ExportMode, "grpc")
	}
}

// TestApplyDefaultsWithDatabase verifies database-specific defaults
func TestApplyDefaultsWithDatabase(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host: "localhost",
		},
	}

	applyDefaults(cfg)

	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %v, want %v", cfg.Database.Port, 5432)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("Database.MaxConns = %v, want %v", cfg.Database.MaxConns, 10)
	}
	if cfg.Database.SSLMode != "prefer" {
		t.Errorf("Database.SSLMode = %v, want %v", cfg.Database.SSLMode, "prefer")
	}
}

// TestApplyDefaultsWithRedis verifies redis-specific defaults
func TestApplyDefaultsWithRedis(t *testing.T) {
	cfg := &Config{
		Redis: RedisConfig{
			Host: "localhost",
		},
	}

	applyDefaults(cfg)

	if cfg.Redis.Port != 6379 {
		t.Errorf("Redis.Port = %v, want %v", cfg.Redis.Port, 6379)
	}
	if cfg.Redis.Stream != "trail:events" {
		t.Errorf("Redis.Stream = %v, want %v", cfg.Redis.Stream, "trail:events")
	}
	if cfg.Redis.PoolSize != 10 {
		t.Errorf("Redis.PoolSize = %v, want %v", cfg.Redis.PoolSize, 10)
	}
}

// TestApplyDefaultsWithTracing verifies tracing-specific defaults
func TestApplyDefaultsWithTracing(t *testing.T) {
	cfg := &Config{
		Service: ServiceConfig{Name: "importer", Env: "production"},
		Tracing: TracingConfig{Enabled: true, Endpoint: "localhost:4317"},
	}

	applyDefaults(cfg)

	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %v, want %v", cfg.Tracing.SampleRate, 1.0)
	}
	if cfg.Tracing.ServiceName != "importer" {
		t.Errorf("Tracing.ServiceName = %v, want %v", cfg.Tracing.ServiceName, "importer")
	}
	if cfg.Tracing.Environment != "production" {
		t.Errorf("Tracing.Environment = %v, want %v", cfg.Tracing.Environment, "production")
	}
	if cfg.Tracing.BatchTimeout != 5*time.Second {
		t.Errorf("Tracing.BatchTimeout = %v, want %v", cfg.Tracing.BatchTimeout, 5*time.Second)
	}
}

// TestEnvVarOverride verifies environment variables override file config
func TestEnvVarOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "trail.yaml")

	configContent := `
sink:
  backend: memory
  table: from_file
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Set env var to override file config
	t.Setenv("TEST_SINK_TABLE", "from_env")

	cfg, err := Load(configPath, "TEST")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Env var should override file value
	if cfg.Sink.Table != "from_env" {
		t.Errorf("Sink.Table = %v, want %v (env var should override)", cfg.Sink.Table, "from_env")
	}
}
