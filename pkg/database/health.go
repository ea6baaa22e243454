package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Combine-Capital/trail/pkg/errors"
)

// healthTimeout bounds a health check when the caller's context has no deadline.
const healthTimeout = 5 * time.Second

func withHealthTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, healthTimeout)
}

// CheckHealth runs SELECT 1 against db. Failures are temporary errors.
func CheckHealth(ctx context.Context, db Database) error {
	ctx, cancel := withHealthTimeout(ctx)
	defer cancel()

	var result int
	if err := db.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return errors.NewTemporary("database health check failed", err)
	}
	if result != 1 {
		return errors.NewTemporary(fmt.Sprintf("database health check returned %d", result), nil)
	}
	return nil
}

// PingWithTimeout pings the database, giving up after timeout.
func (p *Pool) PingWithTimeout(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Ping(ctx)
}

// Check implements health.Checker. Besides connectivity it reports a pool
// whose connections are all in use, since appends would then queue behind
// them.
func (p *Pool) Check(ctx context.Context) error {
	if err := CheckHealth(ctx, p); err != nil {
		return err
	}
	if stats := p.Stats(); stats != nil && poolExhausted(stats.AcquireCount(), stats.IdleConns(), stats.TotalConns(), stats.MaxConns()) {
		return errors.NewTemporary(fmt.Sprintf("connection pool exhausted: %d/%d connections in use",
			stats.TotalConns(), stats.MaxConns()), nil)
	}
	return nil
}

func poolExhausted(acquired int64, idle, total, max int32) bool {
	return acquired > 0 && idle == 0 && total == max
}

// CheckSQL pings a database/sql handle.
func CheckSQL(ctx context.Context, db *sql.DB) error {
	ctx, cancel := withHealthTimeout(ctx)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.NewTemporary("database health check failed", err)
	}
	return nil
}
