// Package sqlsink persists records as rows of a relational table.
//
// A Sink renders one parameterized INSERT per mapping and binds every record
// by column name. Statements run through an Executor: PgxExecutor for
// PostgreSQL through pgx, SQLExecutor for database/sql drivers such as the
// embedded SQLite driver. Driver errors are classified into sink error kinds
// so that only connection failures are retried.
//
// Example usage:
//
//	pool, _ := database.NewPool(ctx, cfg.Database)
//	s, err := sqlsink.New(sqlsink.NewPgxExecutor(pool),
//	    sqlsink.WithTable("trace_log"),
//	    sqlsink.WithMapping(record.RevisionUnique),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := s.Schema().Create(ctx); err != nil {
//	    return err
//	}
package sqlsink

import (
	"context"
	"strings"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/record"
)

// DefaultTable is the table records go to unless WithTable is given.
const DefaultTable = "trace_log"

// Sink appends records to a table.
type Sink struct {
	exec     Executor
	dialect  Dialect
	table    string
	mapping  record.Mapping
	name     string
	classify Classifier

	insert string
	params []string
}

// Option configures a Sink.
type Option func(*Sink)

// WithDialect selects the SQL dialect. Default: Postgres.
func WithDialect(d Dialect) Option {
	return func(s *Sink) { s.dialect = d }
}

// WithTable sets the destination table, optionally schema-qualified.
func WithTable(table string) Option {
	return func(s *Sink) { s.table = table }
}

// WithMapping sets the column layout of the table. Records are expected to
// carry exactly these columns.
func WithMapping(m record.Mapping) Option {
	return func(s *Sink) { s.mapping = m }
}

// WithName sets the name reported in logs and metrics. Default: the dialect name.
func WithName(name string) Option {
	return func(s *Sink) { s.name = name }
}

// WithClassifier replaces the driver error classifier.
func WithClassifier(c Classifier) Option {
	return func(s *Sink) { s.classify = c }
}

// New creates a sink writing through exec.
func New(exec Executor, opts ...Option) (*Sink, error) {
	s := &Sink{
		exec:     exec,
		dialect:  Postgres,
		table:    DefaultTable,
		mapping:  record.DefaultMapping,
		classify: Classify,
	}
	for _, opt := range opts {
		opt(s)
	}

	if exec == nil {
		return nil, errors.NewInvalidInput("executor", "executor is required")
	}
	if strings.TrimSpace(s.table) == "" {
		return nil, errors.NewInvalidInput("table", "table name is required")
	}
	if err := s.mapping.Validate(); err != nil {
		return nil, err
	}
	if s.name == "" {
		s.name = s.dialect.Name()
	}

	s.insert, s.params = BuildInsert(s.dialect, s.table, s.mapping)
	return s, nil
}

// Name implements sink.Named.
func (s *Sink) Name() string {
	return s.name
}

// Table returns the destination table.
func (s *Sink) Table() string {
	return s.table
}

// Mapping returns the column layout of the table.
func (s *Sink) Mapping() record.Mapping {
	return s.mapping
}

// InsertSQL returns the statement every append runs.
func (s *Sink) InsertSQL() string {
	return s.insert
}

// Schema returns the lifecycle operations of the destination table.
func (s *Sink) Schema() *Schema {
	return NewSchema(s.exec, s.dialect, s.table, s.mapping)
}

// Append inserts rec. A record whose columns differ from the table's fails
// with SchemaMismatch before the store is contacted.
func (s *Sink) Append(ctx context.Context, rec record.Record) error {
	args, err := s.bind(rec)
	if err != nil {
		return err
	}
	if err := s.exec.Exec(ctx, s.insert, args); err != nil {
		return s.wrap(err)
	}
	return nil
}

// AppendBatch inserts recs in one transaction, so either all of them are
// stored or none. An executor that cannot run a transaction stores nothing
// and fails with a permanent error wrapping ErrNoTransaction; the dispatcher
// then appends the records one by one.
func (s *Sink) AppendBatch(ctx context.Context, recs []record.Record) error {
	tx, ok := s.exec.(Transactor)
	if !ok {
		return errors.Wrap(ErrNoTransaction, s.name)
	}

	bound := make([]NamedArgs, len(recs))
	for i, rec := range recs {
		args, err := s.bind(rec)
		if err != nil {
			return err
		}
		bound[i] = args
	}

	insertAll := func(exec Executor) error {
		for _, args := range bound {
			if err := exec.Exec(ctx, s.insert, args); err != nil {
				return err
			}
		}
		return nil
	}

	if err := tx.InTx(ctx, insertAll); err != nil {
		if errors.Is(err, ErrNoTransaction) {
			return errors.Wrap(err, s.name)
		}
		return s.wrap(err)
	}
	return nil
}

// Check implements the health.Checker interface when the executor does.
func (s *Sink) Check(ctx context.Context) error {
	if c, ok := s.exec.(interface{ Check(context.Context) error }); ok {
		return c.Check(ctx)
	}
	return nil
}

// bind maps a record's values onto the insert parameters.
func (s *Sink) bind(rec record.Record) (NamedArgs, error) {
	named := rec.Named()
	args := make(NamedArgs, len(s.params))
	for i, c := range s.mapping.Columns {
		v, ok := named[c.Name]
		if !ok {
			return nil, errors.NewSinkErrorf(errors.SchemaMismatch, s.name,
				"record %s has no column %q required by table %s (%s)", rec.Version, c.Name, s.table, s.mapping.Version)
		}
		args[s.params[i]] = v
	}
	if len(named) != len(s.mapping.Columns) {
		for col := range named {
			if !s.hasColumn(col) {
				return nil, errors.NewSinkErrorf(errors.SchemaMismatch, s.name,
					"record %s column %q does not exist in table %s (%s)", rec.Version, col, s.table, s.mapping.Version)
			}
		}
	}
	return args, nil
}

func (s *Sink) hasColumn(name string) bool {
	for _, c := range s.mapping.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (s *Sink) wrap(err error) error {
	if errors.IsSink(err) {
		return err
	}
	kind := s.classify(err)
	if kind == 0 {
		kind = errors.ConnectionFailure
	}
	return errors.NewSinkError(kind, s.name, err)
}
