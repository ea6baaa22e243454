//go:build integration

// Package integration runs the sinks against real PostgreSQL and Redis servers.
//
// Run with:
//
//	docker run --rm -d -p 5432:5432 -e POSTGRES_PASSWORD=postgres -e POSTGRES_DB=trail_test postgres:16
//	docker run --rm -d -p 6379:6379 redis:7
//	go test -tags integration ./test/integration/...
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Combine-Capital/trail/pkg/activity"
	"github.com/Combine-Capital/trail/pkg/bootstrap"
	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/database"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/ident"
	"github.com/Combine-Capital/trail/pkg/record"
	"github.com/Combine-Capital/trail/pkg/sink/sqlsink"
)

func databaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:           "localhost",
		Port:           5432,
		Database:       "trail_test",
		User:           "postgres",
		Password:       "postgres",
		SSLMode:        "disable",
		MaxConns:       10,
		MinConns:       2,
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   5 * time.Second,
	}
}

// setupDatabase creates a database pool for testing.
func setupDatabase(t *testing.T, ctx context.Context) *database.Pool {
	t.Helper()

	pool, err := database.NewPool(ctx, databaseConfig())
	if err != nil {
		t.Fatalf("Failed to create database pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// setupTable creates a fresh trace table and returns a sink writing to it.
func setupTable(t *testing.T, ctx context.Context, pool *database.Pool, table string, m record.Mapping) *sqlsink.Sink {
	t.Helper()

	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+sqlsink.Postgres.Quote(table)); err != nil {
		t.Fatalf("Failed to drop table: %v", err)
	}
	s, err := sqlsink.New(sqlsink.NewPgxExecutor(pool), sqlsink.WithTable(table), sqlsink.WithMapping(m))
	if err != nil {
		t.Fatalf("sqlsink.New() error = %v", err)
	}
	if err := s.Schema().Create(ctx); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+sqlsink.Postgres.Quote(table))
	})
	return s
}

func serialize(t *testing.T, m record.Mapping, parent ident.ID, msg string) record.Record {
	t.Helper()
	rec, err := record.Serialize(
		record.Snapshot{ID: ident.New(), ParentID: parent, Name: "Import", Instance: "it:1"},
		record.Event{ID: ident.New(), Level: record.LevelInfo, Trace: "info", Message: msg,
			Elapsed: 250 * time.Millisecond, Timestamp: time.Now()},
		m,
	)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	return rec
}

func TestDatabaseConnection(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}
	if err := database.CheckHealth(ctx, pool); err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
}

func TestSinkAppend(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)

	for _, rev := range record.Revisions() {
		t.Run(rev, func(t *testing.T) {
			m, err := record.LookupRevision(rev)
			if err != nil {
				t.Fatal(err)
			}
			table := "trail_it_" + rev
			s := setupTable(t, ctx, pool, table, m)

			rec := serialize(t, m, ident.Nil, "Starting")
			if err := s.Append(ctx, rec); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			var count int
			if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+sqlsink.Postgres.Quote(table)).Scan(&count); err != nil {
				t.Fatalf("count query failed: %v", err)
			}
			if count != 1 {
				t.Errorf("rows = %d, want 1", count)
			}
		})
	}
}

func TestSinkAppendBatch(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	s := setupTable(t, ctx, pool, "trail_it_batch", record.DefaultMapping)

	parent := ident.New()
	recs := make([]record.Record, 5)
	for i := range recs {
		recs[i] = serialize(t, record.DefaultMapping, parent, fmt.Sprintf("row %d", i))
	}
	if err := s.AppendBatch(ctx, recs); err != nil {
		t.Fatalf("AppendBatch() error = %v", err)
	}

	var count int
	err := pool.QueryRow(ctx, `SELECT count(*) FROM "trail_it_batch" WHERE parent_id = $1`, parent).Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 5 {
		t.Errorf("rows = %d, want 5", count)
	}
}

func TestSinkErrorClassification(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	s := setupTable(t, ctx, pool, "trail_it_errors", record.DefaultMapping)

	rec := serialize(t, record.DefaultMapping, ident.Nil, "once")
	if err := s.Append(ctx, rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(ctx, rec); !errors.IsConstraintViolation(err) {
		t.Errorf("duplicate Append() error = %v, want constraint violation", err)
	}

	if _, err := pool.Exec(ctx, `ALTER TABLE "trail_it_errors" DROP COLUMN "details"`); err != nil {
		t.Fatalf("Failed to alter table: %v", err)
	}
	rec = serialize(t, record.DefaultMapping, ident.Nil, "after alter")
	if err := s.Append(ctx, rec); !errors.IsSchemaMismatch(err) {
		t.Errorf("Append() after dropping a column error = %v, want schema mismatch", err)
	}
}

func TestSinkTruncate(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	s := setupTable(t, ctx, pool, "trail_it_truncate", record.DefaultMapping)

	if err := s.Append(ctx, serialize(t, record.DefaultMapping, ident.Nil, "gone")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Schema().Truncate(ctx); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM "trail_it_truncate"`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("rows after truncate = %d, want 0", count)
	}
}

func TestBootstrapPostgres(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS "trail_it_tree"`); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS "trail_it_tree"`) })

	cfg := &config.Config{
		Tracer:   config.TracerConfig{Instance: "it:1", MinLevel: "debug"},
		Sink:     config.SinkConfig{Backend: config.BackendPostgres, Table: "trail_it_tree", Schema: "v2", CreateTable: true},
		Dispatch: config.DispatchConfig{Workers: 2, QueueSize: 16, MaxAttempts: 3, InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, MaxElapsed: time.Second},
		Database: databaseConfig(),
	}
	b, err := bootstrap.New(ctx, cfg, bootstrap.WithoutMetrics(), bootstrap.WithoutTracing(), bootstrap.WithoutLogger())
	if err != nil {
		t.Fatalf("bootstrap.New() error = %v", err)
	}

	var importID ident.ID
	err = b.Tracer.Run(ctx, "Import", func(ctx context.Context, imp *activity.Activity) error {
		importID = imp.ID()
		return b.Tracer.Run(ctx, "Validate", func(ctx context.Context, v *activity.Activity) error {
			return v.Warn("Slow row", activity.WithDetail("row", 17))
		})
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := b.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	// Import's terminal row is addressed by its activity id with a NULL parent.
	var parent *ident.ID
	err = pool.QueryRow(ctx, `SELECT parent_id FROM "trail_it_tree" WHERE unique_id = $1`, importID).Scan(&parent)
	if err != nil {
		t.Fatalf("root row query failed: %v", err)
	}
	if parent != nil {
		t.Errorf("root parent_id = %v, want NULL", *parent)
	}

	var children int
	err = pool.QueryRow(ctx, `SELECT count(*) FROM "trail_it_tree" WHERE parent_id = $1`, importID).Scan(&children)
	if err != nil {
		t.Fatalf("child query failed: %v", err)
	}
	if children != 1 {
		t.Errorf("rows under Import = %d, want 1 (the Validate terminal)", children)
	}
}
