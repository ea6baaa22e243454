package sqlsink

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"strings"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Classifier maps a driver error to a sink error kind. It returns zero when
// it does not recognize the error.
type Classifier func(err error) errors.SinkErrorKind

// Classify recognizes PostgreSQL and SQLite errors, network errors and
// context expiry. Errors no classifier recognizes are treated as connection
// failures, so they are retried a bounded number of times before being
// reported.
func Classify(err error) errors.SinkErrorKind {
	for _, c := range []Classifier{ClassifyPostgres, ClassifySQLite, classifyTransport, classifyMessage} {
		if kind := c(err); kind != 0 {
			return kind
		}
	}
	return errors.ConnectionFailure
}

// ClassifyPostgres classifies errors by their SQLSTATE code.
func ClassifyPostgres(err error) errors.SinkErrorKind {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errors.ConnectionFailure
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
			return errors.ConnectionFailure
		}
		return 0
	}

	switch pgErr.Code {
	case "42703", // undefined_column
		"42P01", // undefined_table
		"22001", // string_data_right_truncation
		"42804": // datatype_mismatch
		return errors.SchemaMismatch
	}

	switch {
	case strings.HasPrefix(pgErr.Code, "23"): // integrity constraint violation
		return errors.ConstraintViolation
	case strings.HasPrefix(pgErr.Code, "08"), // connection exception
		strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
		strings.HasPrefix(pgErr.Code, "57"), // operator intervention
		pgErr.Code == "40001",               // serialization_failure
		pgErr.Code == "40P01":               // deadlock_detected
		return errors.ConnectionFailure
	case strings.HasPrefix(pgErr.Code, "22"), // data exception
		strings.HasPrefix(pgErr.Code, "42"): // syntax error or access rule violation
		return errors.SchemaMismatch
	}
	return errors.ConnectionFailure
}

// ClassifySQLite classifies errors of modernc.org/sqlite by result code.
func ClassifySQLite(err error) errors.SinkErrorKind {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0
	}

	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return errors.ConstraintViolation
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN,
		sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL, sqlite3.SQLITE_PROTOCOL:
		return errors.ConnectionFailure
	case sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG, sqlite3.SQLITE_RANGE:
		return errors.SchemaMismatch
	}
	// SQLITE_ERROR covers missing tables and columns; the message tells.
	return classifyMessage(err)
}

func classifyTransport(err error) errors.SinkErrorKind {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr):
		return errors.ConnectionFailure
	}
	return 0
}

var messageKinds = []struct {
	fragment string
	kind     errors.SinkErrorKind
}{
	{"no such table", errors.SchemaMismatch},
	{"no such column", errors.SchemaMismatch},
	{"has no column named", errors.SchemaMismatch},
	{"does not exist", errors.SchemaMismatch},
	{"invalid column name", errors.SchemaMismatch},
	{"invalid object name", errors.SchemaMismatch},
	{"would be truncated", errors.SchemaMismatch},
	{"constraint failed", errors.ConstraintViolation},
	{"duplicate key", errors.ConstraintViolation},
	{"violation of unique key", errors.ConstraintViolation},
	{"violation of primary key", errors.ConstraintViolation},
	{"cannot insert the value null", errors.ConstraintViolation},
	{"connection refused", errors.ConnectionFailure},
	{"connection reset", errors.ConnectionFailure},
	{"broken pipe", errors.ConnectionFailure},
	{"database is locked", errors.ConnectionFailure},
}

// classifyMessage recognizes errors by text, for drivers without typed errors.
func classifyMessage(err error) errors.SinkErrorKind {
	msg := strings.ToLower(err.Error())
	for _, mk := range messageKinds {
		if strings.Contains(msg, mk.fragment) {
			return mk.kind
		}
	}
	return 0
}
