package sqlsink

import (
	"fmt"
	"strings"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/record"
)

// Dialect renders the statements a Sink and its Schema run.
type Dialect interface {
	// Name identifies the dialect in logs, metrics and configuration.
	Name() string
	// Quote quotes a possibly schema-qualified identifier.
	Quote(ident string) string
	// Placeholder returns the parameter reference for a named argument.
	Placeholder(param string) string
	// ColumnType returns the DDL type of a mapped column.
	ColumnType(c record.Column) string
	// CreateTable returns an idempotent CREATE TABLE statement.
	CreateTable(table string, m record.Mapping) string
	// TruncateTable returns a statement removing every row of table.
	TruncateTable(table string) string
}

type dialect struct {
	name      string
	quoteOpen string
	quoteEnd  string
	types     map[record.ColumnType]string
	varchar   func(n int) string
	text      string
	create    func(d *dialect, table, body string) string
	truncate  func(d *dialect, table string) string
}

var (
	// Postgres renders PostgreSQL statements for pgx.
	Postgres Dialect = &dialect{
		name:      "postgres",
		quoteOpen: `"`,
		quoteEnd:  `"`,
		types: map[record.ColumnType]string{
			record.TypeUUID:      "UUID",
			record.TypeTimestamp: "TIMESTAMP(3)",
			record.TypeDecimal:   "DECIMAL(10,3)",
			record.TypeFloat:     "DOUBLE PRECISION",
		},
		varchar: func(n int) string { return fmt.Sprintf("VARCHAR(%d)", n) },
		text:    "TEXT",
		create: func(d *dialect, table, body string) string {
			return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", d.Quote(table), body)
		},
		truncate: func(d *dialect, table string) string {
			return "TRUNCATE TABLE " + d.Quote(table)
		},
	}

	// SQLite renders statements for the embedded SQLite driver.
	SQLite Dialect = &dialect{
		name:      "sqlite",
		quoteOpen: `"`,
		quoteEnd:  `"`,
		types: map[record.ColumnType]string{
			record.TypeUUID:      "TEXT",
			record.TypeTimestamp: "DATETIME",
			record.TypeDecimal:   "DECIMAL(10,3)",
			record.TypeFloat:     "REAL",
		},
		varchar: func(n int) string { return fmt.Sprintf("VARCHAR(%d)", n) },
		text:    "TEXT",
		create: func(d *dialect, table, body string) string {
			return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", d.Quote(table), body)
		},
		truncate: func(d *dialect, table string) string {
			return "DELETE FROM " + d.Quote(table)
		},
	}

	// SQLServer renders Microsoft SQL Server statements. No driver is bundled;
	// pair it with an SQLExecutor over any database/sql driver for SQL Server.
	SQLServer Dialect = &dialect{
		name:      "sqlserver",
		quoteOpen: "[",
		quoteEnd:  "]",
		types: map[record.ColumnType]string{
			record.TypeUUID:      "UNIQUEIDENTIFIER",
			record.TypeTimestamp: "DATETIME2(3)",
			record.TypeDecimal:   "DECIMAL(10,3)",
			record.TypeFloat:     "FLOAT",
		},
		varchar: func(n int) string { return fmt.Sprintf("NVARCHAR(%d)", n) },
		text:    "NVARCHAR(MAX)",
		create: func(d *dialect, table, body string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n%s\n)",
				strings.ReplaceAll(table, "'", "''"), d.Quote(table), body)
		},
		truncate: func(d *dialect, table string) string {
			return "TRUNCATE TABLE " + d.Quote(table)
		},
	}
)

// LookupDialect returns the dialect with the given name.
func LookupDialect(name string) (Dialect, error) {
	for _, d := range []Dialect{Postgres, SQLite, SQLServer} {
		if d.Name() == strings.ToLower(name) {
			return d, nil
		}
	}
	return nil, errors.NewNotFound("sql dialect", name)
}

func (d *dialect) Name() string {
	return d.name
}

func (d *dialect) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(p, d.quoteEnd, d.quoteEnd+d.quoteEnd)
		parts[i] = d.quoteOpen + p + d.quoteEnd
	}
	return strings.Join(parts, ".")
}

func (d *dialect) Placeholder(param string) string {
	return "@" + param
}

func (d *dialect) ColumnType(c record.Column) string {
	if c.Type == record.TypeText {
		if c.MaxLen > 0 {
			return d.varchar(c.MaxLen)
		}
		return d.text
	}
	return d.types[c.Type]
}

func (d *dialect) CreateTable(table string, m record.Mapping) string {
	lines := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		null := "NULL"
		switch {
		case c.Field == record.FieldUniqueID:
			null = "NOT NULL UNIQUE"
		case !c.Nullable:
			null = "NOT NULL"
		}
		lines[i] = fmt.Sprintf("\t%s %s %s", d.Quote(c.Name), d.ColumnType(c), null)
	}
	return d.create(d, table, strings.Join(lines, ",\n"))
}

func (d *dialect) TruncateTable(table string) string {
	return d.truncate(d, table)
}

// BuildInsert renders the parameterized INSERT for m and returns the
// parameter name bound to each column, in mapping order.
func BuildInsert(d Dialect, table string, m record.Mapping) (string, []string) {
	cols := make([]string, len(m.Columns))
	values := make([]string, len(m.Columns))
	params := make([]string, len(m.Columns))
	used := make(map[string]bool, len(m.Columns))

	for i, c := range m.Columns {
		p := paramName(c.Name)
		if used[p] {
			p = fmt.Sprintf("%s_%d", p, i)
		}
		used[p] = true

		cols[i] = d.Quote(c.Name)
		values[i] = d.Placeholder(p)
		params[i] = p
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table), strings.Join(cols, ", "), strings.Join(values, ", "))
	return query, params
}

// paramName turns a column name into a placeholder-safe parameter name.
func paramName(column string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(column) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "p_" + name
	}
	return name
}
