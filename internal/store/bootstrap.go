package store

import (
	"context"
	"fmt"
	"log/slog"

	"mds-backend/internal/auth"
)

const (
	defaultAdminUser     = "admin"
	defaultAdminPassword = "changeme"
)

// Bootstrap creates the editor's own tables and seeds an admin account when
// no account exists yet.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	if err := s.seedAdminUser(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context) error {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(defaultAdminPassword)
	if err != nil {
		return err
	}
	if err := s.CreateUser(ctx, auth.User{
		Username:     defaultAdminUser,
		PasswordHash: hash,
		Roles:        []string{"admin"},
		Active:       true,
	}); err != nil {
		return err
	}

	slog.WarnContext(ctx, "default admin user created, change the password immediately",
		"username", defaultAdminUser, "password", defaultAdminPassword)
	return nil
}
