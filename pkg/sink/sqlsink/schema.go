package sqlsink

import (
	"context"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/record"
)

// Schema manages the destination table. The table belongs to the operator;
// these operations exist for tooling and tests.
type Schema struct {
	exec    Executor
	dialect Dialect
	table   string
	mapping record.Mapping
}

// NewSchema describes table laid out by m.
func NewSchema(exec Executor, d Dialect, table string, m record.Mapping) *Schema {
	return &Schema{exec: exec, dialect: d, table: table, mapping: m}
}

// DDL returns the idempotent CREATE TABLE statement.
func (s *Schema) DDL() string {
	return s.dialect.CreateTable(s.table, s.mapping)
}

// Create creates the table if it does not exist.
func (s *Schema) Create(ctx context.Context) error {
	if err := s.exec.Exec(ctx, s.DDL(), nil); err != nil {
		return errors.Wrapf(err, "failed to create table %s", s.table)
	}
	return nil
}

// Truncate removes every row of the table.
func (s *Schema) Truncate(ctx context.Context) error {
	if err := s.exec.Exec(ctx, s.dialect.TruncateTable(s.table), nil); err != nil {
		return errors.Wrapf(err, "failed to truncate table %s", s.table)
	}
	return nil
}
