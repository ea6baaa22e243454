package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/Combine-Capital/trail/pkg/database"
	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/jackc/pgx/v5"
)

// NamedArgs binds statement parameters by name. Keys are parameter names
// without the dialect's placeholder prefix.
type NamedArgs map[string]any

// Executor runs a statement. It is the only thing a Sink needs from a store.
type Executor interface {
	Exec(ctx context.Context, query string, args NamedArgs) error
}

// Transactor is an Executor that can run several statements atomically.
type Transactor interface {
	Executor

	// InTx calls fn with an executor bound to one transaction, committing when
	// fn returns nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(Executor) error) error
}

// PgxExecutor runs statements through pgx, binding arguments as
// pgx.NamedArgs so that @name placeholders are rewritten by the driver.
type PgxExecutor struct {
	db database.Database
}

// NewPgxExecutor creates an executor over a pool or a transaction.
func NewPgxExecutor(db database.Database) *PgxExecutor {
	return &PgxExecutor{db: db}
}

// Exec implements Executor.
func (e *PgxExecutor) Exec(ctx context.Context, query string, args NamedArgs) error {
	var err error
	if args == nil {
		_, err = e.db.Exec(ctx, query)
	} else {
		_, err = e.db.Exec(ctx, query, pgx.NamedArgs(args))
	}
	return err
}

// ErrNoTransaction is returned by InTx when the executor's database can
// neither open a transaction nor is one.
var ErrNoTransaction = errors.NewPermanent("executor cannot run statements in a transaction", nil)

// beginner is a database that can open transactions besides *database.Pool.
type beginner interface {
	Begin(ctx context.Context) (database.Transaction, error)
}

// InTx implements Transactor. Over a *database.Pool, or any database with a
// Begin method, it opens a transaction. Over a database.Transaction it runs
// fn in that transaction. Anything else fails with ErrNoTransaction before
// fn runs.
func (e *PgxExecutor) InTx(ctx context.Context, fn func(Executor) error) error {
	switch db := e.db.(type) {
	case *database.Pool:
		return db.WithTransaction(ctx, func(tx database.Transaction) error {
			return fn(&PgxExecutor{db: tx})
		})
	case database.Transaction:
		return fn(e)
	case beginner:
		tx, err := db.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(&PgxExecutor{db: tx}); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("failed to rollback transaction (original error: %w): %v", err, rbErr)
			}
			return err
		}
		return tx.Commit(ctx)
	default:
		return ErrNoTransaction
	}
}

// Check implements the health.Checker interface.
func (e *PgxExecutor) Check(ctx context.Context) error {
	if c, ok := e.db.(interface{ Check(context.Context) error }); ok {
		return c.Check(ctx)
	}
	return database.CheckHealth(ctx, e.db)
}

// sqlConn is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLExecutor runs statements through database/sql, binding arguments with
// sql.Named. It serves the embedded SQLite driver and any other
// database/sql driver that supports named parameters.
type SQLExecutor struct {
	db   *sql.DB
	conn sqlConn
}

// NewSQLExecutor creates an executor over db.
func NewSQLExecutor(db *sql.DB) *SQLExecutor {
	return &SQLExecutor{db: db, conn: db}
}

// Exec implements Executor. Arguments are passed in name order.
func (e *SQLExecutor) Exec(ctx context.Context, query string, args NamedArgs) error {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	bound := make([]any, len(names))
	for i, name := range names {
		bound[i] = sql.Named(name, args[name])
	}
	_, err := e.conn.ExecContext(ctx, query, bound...)
	return err
}

// InTx implements Transactor.
func (e *SQLExecutor) InTx(ctx context.Context, fn func(Executor) error) error {
	if e.db == nil {
		return fn(e)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&SQLExecutor{conn: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w): %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Check implements the health.Checker interface.
func (e *SQLExecutor) Check(ctx context.Context) error {
	if e.db == nil {
		return nil
	}
	return database.CheckSQL(ctx, e.db)
}
