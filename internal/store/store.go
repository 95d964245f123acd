// Package store persists schema definitions, drafts, audits and accounts in
// PostgreSQL or SQLite, and compiles entities into physical tables.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "modernc.org/sqlite"             // Register sqlite as database/sql driver

	"mds-backend/internal/config"
	"mds-backend/internal/metadata"
)

var ErrNotFound = errors.New("not found")
var ErrUniqueViolation = errors.New("unique constraint violation")

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store wraps a database connection and dialect.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	types   *metadata.TypeRegistry
}

// New opens the database described by cfg. types resolves column types when
// entities are compiled.
func New(ctx context.Context, cfg config.DatabaseConfig, types *metadata.TypeRegistry) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	dialect := NewDialect(driver)

	dsn := cfg.DSN()
	if cfg.IsSQLite() {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn += "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	return open(ctx, dialect, dsn, cfg.PoolSize, types)
}

// Open connects with an explicit driver ("postgres" or "sqlite") and DSN.
func Open(ctx context.Context, driver, dsn string, types *metadata.TypeRegistry) (*Store, error) {
	return open(ctx, NewDialect(driver), dsn, 0, types)
}

func open(ctx context.Context, dialect Dialect, dsn string, poolSize int, types *metadata.TypeRegistry) (*Store, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect.Name() == "sqlite" {
		// Single writer; every unit of work holds the only connection.
		db.SetMaxOpenConns(1)
	} else if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{DB: db, Dialect: dialect, types: types}, nil
}

// Close closes the database connection.
func (s *Store) Close() {
	s.DB.Close()
}

// Exec executes a statement and returns the number of rows affected.
func Exec(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error) {
	result, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MapError maps a database error to a well-known sentinel error using the store's dialect.
func MapError(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	return dialect.MapError(err)
}
