package store

import (
	"context"
	"strings"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// ColumnType maps a type's storage kind to the database DDL type.
	ColumnType(storageKind string, precision, scale int) string

	// AutoIDColumn is the DDL type of a generated 64-bit primary key.
	AutoIDColumn() string

	// SystemTablesSQL returns the DDL for the editor's own tables.
	SystemTablesSQL() string

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, q Querier, tableName string) (bool, error)

	// GetColumns returns existing column names (lowercased) and types for a table.
	GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error)

	// ArrayParam encodes a string slice for storage.
	// PostgreSQL: returns the slice as-is (pgx handles TEXT[]).
	// SQLite: JSON-encodes to string.
	ArrayParam(values []string) any

	// ScanArray decodes a TEXT[] (PostgreSQL) or JSON string (SQLite) into []string.
	ScanArray(src any) ([]string, error)

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// rebind rewrites each ? in query as the dialect's numbered placeholder.
func rebind(d Dialect, query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// quoteIdent quotes a table or column name for DDL. Both dialects accept
// ANSI double-quoted identifiers.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
