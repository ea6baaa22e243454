// Package database opens the stores the SQL sinks write to: a pgx connection
// pool for PostgreSQL and a database/sql handle for the embedded SQLite
// driver.
//
// Example usage:
//
//	pool, err := database.NewPool(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.WithTransaction(ctx, func(tx database.Transaction) error {
//	    _, err := tx.Exec(ctx, "INSERT INTO trace_log (unique_id, activity) VALUES (@id, @activity)",
//	        pgx.NamedArgs{"id": id, "activity": "Import"})
//	    return err
//	})
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is implemented by both Pool and Transaction, so statements can be
// written once and run inside or outside a transaction.
type Database interface {
	// Query executes a query that returns rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)

	// QueryRow executes a query that is expected to return at most one row.
	// Errors are deferred until Row's Scan method is called.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row

	// Exec executes a statement that doesn't return rows. A single
	// pgx.NamedArgs argument binds @name placeholders.
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Transaction extends Database with transaction control methods.
type Transaction interface {
	Database

	// Commit commits the transaction.
	Commit(ctx context.Context) error

	// Rollback aborts the transaction.
	Rollback(ctx context.Context) error
}

// TransactionFunc performs statements within a transaction. Returning an
// error rolls the transaction back; returning nil commits it.
type TransactionFunc func(tx Transaction) error
