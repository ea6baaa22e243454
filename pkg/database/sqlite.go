package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteDriver is the database/sql driver name of modernc.org/sqlite.
const SQLiteDriver = "sqlite"

// OpenSQLite opens the embedded SQLite database described by cfg and checks
// that it can be used.
//
// An in-memory database (":memory:") exists per connection, so it is always
// opened with a single connection.
func OpenSQLite(ctx context.Context, cfg config.SQLiteConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, errors.NewInvalidInput("sqlite.path", "path is required")
	}

	db, err := sql.Open(SQLiteDriver, SQLiteDSN(cfg))
	if err != nil {
		return nil, errors.NewInvalidInputWithCause("sqlite.path", "cannot open database", err)
	}

	maxConns := cfg.MaxConns
	if isMemory(cfg.Path) || maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	if isMemory(cfg.Path) {
		// closing the last connection would discard the database
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.NewTemporary("failed to open sqlite database", err)
	}
	return db, nil
}

// SQLiteDSN builds the modernc.org/sqlite data source name for cfg.
func SQLiteDSN(cfg config.SQLiteConfig) string {
	params := url.Values{}
	if cfg.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	}
	if !isMemory(cfg.Path) {
		params.Add("_pragma", "journal_mode(WAL)")
	}

	dsn := cfg.Path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if len(params) == 0 {
		return dsn
	}
	return dsn + "?" + params.Encode()
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
