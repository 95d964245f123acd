package store

import (
	"context"
	"fmt"

	"mds-backend/internal/schema"
)

// Do implements schema.UnitOfWork. Every repository and the migrator share
// one transaction; DDL issued by the migrator rolls back with it.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos schema.Repos) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	repos := schema.Repos{
		Entities: &entityRepo{q: tx, d: s.Dialect},
		Drafts:   &draftRepo{q: tx, d: s.Dialect},
		Audits:   &auditRepo{q: tx, d: s.Dialect},
		Compiler: NewMigrator(tx, s.Dialect, s.types),
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
