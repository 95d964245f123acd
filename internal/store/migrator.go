package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"mds-backend/internal/metadata"
	"mds-backend/internal/schema"
)

// Migrator compiles entity definitions into tables. It implements
// schema.Compiler and issues its DDL on the unit of work's transaction.
type Migrator struct {
	q       Querier
	dialect Dialect
	types   *metadata.TypeRegistry
}

func NewMigrator(q Querier, dialect Dialect, types *metadata.TypeRegistry) *Migrator {
	return &Migrator{q: q, dialect: dialect, types: types}
}

// ConstructEntity ensures the entity's table matches its definition.
// Creates the table if it doesn't exist, or adds missing columns. Columns are
// never dropped or retyped. Entities without fields are skipped.
func (m *Migrator) ConstructEntity(ctx context.Context, e *metadata.Entity) error {
	if len(e.Fields) == 0 {
		return nil
	}
	table := e.TableName()

	exists, err := m.dialect.TableExists(ctx, m.q, table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		err = m.createTable(ctx, e, table)
	} else {
		err = m.alterTable(ctx, e, table)
	}
	if err != nil {
		return err
	}

	if err := m.createIndexes(ctx, e, table); err != nil {
		return fmt.Errorf("create indexes for %s: %w", table, err)
	}
	slog.InfoContext(ctx, "entity constructed", "class", e.ClassName, "table", table, "created", !exists)
	return nil
}

func (m *Migrator) createTable(ctx context.Context, e *metadata.Entity, table string) error {
	var cols []string
	if e.GetField(metadata.IDFieldName) == nil {
		cols = append(cols, quoteIdent(metadata.IDFieldName)+" "+m.dialect.AutoIDColumn())
	}
	for _, f := range e.Fields {
		col, err := m.buildColumnDef(f, true)
		if err != nil {
			return err
		}
		cols = append(cols, col)
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", quoteIdent(table), strings.Join(cols, ",\n  "))
	if _, err := m.q.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, e *metadata.Entity, table string) error {
	existing, err := m.dialect.GetColumns(ctx, m.q, table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", table, err)
	}

	for _, f := range e.Fields {
		if _, ok := existing[columnName(f)]; ok {
			continue
		}
		// Existing rows have no value, so added columns are always nullable.
		col, err := m.buildColumnDef(f, false)
		if err != nil {
			return err
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), col)
		if _, err := m.q.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, f.Name, err)
		}
	}
	return nil
}

func (m *Migrator) buildColumnDef(f *metadata.Field, creating bool) (string, error) {
	name := columnName(f)
	if name == metadata.IDFieldName && f.IsAuto() {
		return quoteIdent(name) + " " + m.dialect.AutoIDColumn(), nil
	}

	t, ok := m.types.Resolve(f.TypeClass)
	if !ok {
		return "", fmt.Errorf("%w: %s (field %s)", schema.ErrNoSuchType, f.TypeClass, f.Name)
	}
	col := quoteIdent(name) + " " + m.dialect.ColumnType(t.StorageKind, intSetting(f, "precision"), intSetting(f, "scale"))
	if creating && f.Required {
		col += " NOT NULL"
	}
	return col, nil
}

func (m *Migrator) createIndexes(ctx context.Context, e *metadata.Entity, table string) error {
	for _, l := range e.Lookups {
		var cols []string
		for _, id := range l.FieldIDs {
			if f := e.GetFieldByID(id); f != nil {
				cols = append(cols, quoteIdent(columnName(f)))
			}
		}
		if len(cols) == 0 {
			continue
		}
		idx := fmt.Sprintf("idx_%s_%s", table, strings.ToLower(l.Name))
		ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", quoteIdent(idx), quoteIdent(table), strings.Join(cols, ", "))
		if _, err := m.q.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create index %s: %w", idx, err)
		}
	}
	return nil
}

func columnName(f *metadata.Field) string {
	return strings.ToLower(f.Name)
}

func intSetting(f *metadata.Field, name string) int {
	s := f.Setting(name)
	if s == nil {
		return 0
	}
	n, err := strconv.Atoi(s.Value)
	if err != nil {
		return 0
	}
	return n
}
