package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) AutoIDColumn() string { return "BIGSERIAL PRIMARY KEY" }

func (d *PostgresDialect) ColumnType(storageKind string, precision, scale int) string {
	switch storageKind {
	case "text":
		return "TEXT"
	case "int":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "decimal":
		if precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale)
		}
		return "NUMERIC"
	case "boolean":
		return "BOOLEAN"
	case "timestamp":
		return "TIMESTAMPTZ"
	case "date":
		return "DATE"
	case "time":
		return "TIME"
	case "json":
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, q Querier, tableName string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = current_schema())`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, q Querier, tableName string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) ArrayParam(values []string) any {
	if values == nil {
		return []string{}
	}
	return values
}

func (d *PostgresDialect) ScanArray(src any) ([]string, error) {
	if src == nil {
		return []string{}, nil
	}
	switch v := src.(type) {
	case []string:
		return v, nil
	case []byte:
		// pgx/stdlib returns TEXT[] as a string like {admin,user}
		return parsePgArray(string(v))
	case string:
		return parsePgArray(v)
	default:
		return []string{}, nil
	}
}

// parsePgArray parses a PostgreSQL array literal like {admin,user} into []string.
func parsePgArray(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		return []string{}, nil
	}
	if strings.HasPrefix(s, "[") {
		var result []string
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil, fmt.Errorf("scan array: %w", err)
		}
		return result, nil
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		parts := strings.Split(s[1:len(s)-1], ",")
		result := make([]string, len(parts))
		for i, p := range parts {
			result[i] = strings.Trim(strings.TrimSpace(p), `"`)
		}
		return result, nil
	}
	return []string{s}, nil
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- PostgreSQL DDL ---

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _schemas (
    id          BIGSERIAL PRIMARY KEY,
    kind        TEXT NOT NULL CHECK (kind IN ('entity', 'draft')),
    class_name  TEXT NOT NULL,
    parent_id   BIGINT REFERENCES _schemas(id) ON DELETE CASCADE,
    owner       TEXT,
    revision    TEXT NOT NULL DEFAULT '',
    body        JSONB NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_schemas_class_name ON _schemas(class_name) WHERE kind = 'entity';
CREATE UNIQUE INDEX IF NOT EXISTS idx_schemas_draft_owner ON _schemas(parent_id, owner) WHERE kind = 'draft';

CREATE TABLE IF NOT EXISTS _entity_audits (
    id          UUID PRIMARY KEY,
    entity_id   BIGINT NOT NULL,
    class_name  TEXT NOT NULL,
    owner       TEXT NOT NULL,
    revision    TEXT NOT NULL,
    body        JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_entity_audits_entity ON _entity_audits(entity_id, created_at);

CREATE TABLE IF NOT EXISTS _users (
    username      TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    roles         TEXT[] DEFAULT '{}',
    active        BOOLEAN DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _refresh_tokens (
    token      TEXT PRIMARY KEY,
    username   TEXT NOT NULL REFERENCES _users(username) ON DELETE CASCADE,
    expires_at BIGINT NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires ON _refresh_tokens(expires_at);
`
