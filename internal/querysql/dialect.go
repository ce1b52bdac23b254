package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/nestql/internal/ir"
)

// Dialect defines the SQL dialect-specific behavior for rendering and for
// the join strategy the compiler picks.
type Dialect interface {
	// Name returns the dialect name for logging and configuration.
	Name() string

	// QuoteIdentifier quotes a table, column or alias name.
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for the given index (1-based).
	Placeholder(index int) string

	// SupportsLateral reports whether a derived table in a JOIN may
	// reference columns of tables to its left. Without it the compiler
	// projects correlation columns out of the derived table and joins on them.
	SupportsLateral() bool

	// ValuesRow returns the row constructor keyword for VALUES lists
	// ("" or "ROW"). An ok of false means the dialect cannot name VALUES
	// columns in a FROM clause and key tables are built with UNION ALL.
	ValuesRow() (keyword string, ok bool)

	// KeyCast returns the type a batch key parameter is cast to inside a
	// VALUES list, or "" for no cast.
	KeyCast(v ir.IRValue) string

	// WriteStringJoin writes a string aggregation of arg separated by sep.
	WriteStringJoin(b *strings.Builder, writeArg func(), sep string)
}

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) SupportsLateral() bool { return true }

func (d *PostgresDialect) ValuesRow() (string, bool) { return "", true }

// KeyCast gives VALUES columns a concrete type; untyped parameters would
// otherwise resolve to text and fail to compare with integer keys.
func (d *PostgresDialect) KeyCast(v ir.IRValue) string {
	switch v.(type) {
	case ir.IRInt:
		return "BIGINT"
	case ir.IRBool:
		return "BOOLEAN"
	case ir.IRString:
		return "TEXT"
	default:
		return ""
	}
}

func (d *PostgresDialect) WriteStringJoin(b *strings.Builder, writeArg func(), sep string) {
	b.WriteString("string_agg(CAST(")
	writeArg()
	b.WriteString(" AS TEXT), ")
	writeStringLiteral(b, sep)
	b.WriteString(")")
}

// MySQLDialect implements Dialect for MySQL 8.0.14 and later.
type MySQLDialect struct{}

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *MySQLDialect) Placeholder(index int) string { return "?" }

func (d *MySQLDialect) SupportsLateral() bool { return true }

func (d *MySQLDialect) ValuesRow() (string, bool) { return "ROW", true }

func (d *MySQLDialect) KeyCast(v ir.IRValue) string { return "" }

func (d *MySQLDialect) WriteStringJoin(b *strings.Builder, writeArg func(), sep string) {
	b.WriteString("GROUP_CONCAT(")
	writeArg()
	b.WriteString(" SEPARATOR ")
	writeStringLiteral(b, sep)
	b.WriteString(")")
}

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *SQLiteDialect) Placeholder(index int) string { return "?" }

func (d *SQLiteDialect) SupportsLateral() bool { return false }

func (d *SQLiteDialect) ValuesRow() (string, bool) { return "", false }

func (d *SQLiteDialect) KeyCast(v ir.IRValue) string { return "" }

func (d *SQLiteDialect) WriteStringJoin(b *strings.Builder, writeArg func(), sep string) {
	b.WriteString("group_concat(")
	writeArg()
	b.WriteString(", ")
	writeStringLiteral(b, sep)
	b.WriteString(")")
}

// writeStringLiteral writes a single-quoted SQL string, doubling quotes.
func writeStringLiteral(b *strings.Builder, s string) {
	b.WriteString("'")
	b.WriteString(strings.ReplaceAll(s, "'", "''"))
	b.WriteString("'")
}

var (
	// Postgres is the singleton PostgreSQL dialect.
	Postgres Dialect = &PostgresDialect{}

	// MySQL is the singleton MySQL dialect.
	MySQL Dialect = &MySQLDialect{}

	// SQLite is the singleton SQLite dialect.
	SQLite Dialect = &SQLiteDialect{}
)

// ParseDialect returns the dialect registered under name.
// Accepted names: postgres (postgresql, pg), mysql, sqlite (sqlite3).
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q (want postgres, mysql or sqlite)", name)
	}
}
