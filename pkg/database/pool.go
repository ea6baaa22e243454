package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Combine-Capital/trail/pkg/config"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolInterface is the subset of *pgxpool.Pool the Pool uses. It lets tests
// substitute pgxmock.
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Pool is a PostgreSQL connection pool. Statements run outside a transaction
// get the configured query timeout unless the context already has a deadline.
type Pool struct {
	pool         PoolInterface
	stat         func() *pgxpool.Stat
	queryTimeout time.Duration
}

// NewPool connects to PostgreSQL with the configured limits and verifies the
// connection with a ping. A database that cannot be reached is reported as a
// temporary error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, errors.NewInvalidInputWithCause("database", "invalid connection settings", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.NewTemporary("failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewTemporary("failed to ping database", err)
	}

	return &Pool{pool: pool, stat: pool.Stat, queryTimeout: cfg.QueryTimeout}, nil
}

// NewPoolFrom wraps an existing pool, typically a pgxmock pool in tests.
func NewPoolFrom(p PoolInterface, queryTimeout time.Duration) *Pool {
	return &Pool{pool: p, queryTimeout: queryTimeout}
}

// buildConnString constructs a PostgreSQL keyword/value connection string.
func buildConnString(cfg config.DatabaseConfig) string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s",
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.User,
		cfg.Password,
	)
	if cfg.SSLMode != "" {
		connStr += fmt.Sprintf(" sslmode=%s", cfg.SSLMode)
	}
	if cfg.ConnectTimeout > 0 {
		connStr += fmt.Sprintf(" connect_timeout=%d", int(cfg.ConnectTimeout.Seconds()))
	}
	return connStr
}

// bound applies the query timeout when ctx has no deadline of its own.
func (p *Pool) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}

// Query executes a query that returns rows. The query timeout does not apply
// because the rows outlive the call.
func (p *Pool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query that is expected to return at most one row.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a statement that doesn't return rows.
func (p *Pool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	return p.pool.Exec(ctx, sql, args...)
}

// Ping verifies a connection to the database is still alive.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// Stats returns connection pool statistics, nil when the pool is not backed
// by pgxpool.
func (p *Pool) Stats() *pgxpool.Stat {
	if p.stat == nil {
		return nil
	}
	return p.stat()
}

var _ PoolInterface = (*pgxpool.Pool)(nil)
