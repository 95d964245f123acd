package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mds-backend/internal/auth"
)

// FindUser implements auth.UserStore.
func (s *Store) FindUser(ctx context.Context, username string) (*auth.User, error) {
	var (
		u     auth.User
		roles any
	)
	err := s.DB.QueryRowContext(ctx,
		rebind(s.Dialect, "SELECT username, password_hash, roles, active FROM _users WHERE username = ?"),
		username,
	).Scan(&u.Username, &u.PasswordHash, &roles, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", username, err)
	}
	if u.Roles, err = s.Dialect.ScanArray(roles); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts an account. A taken username maps to ErrUniqueViolation.
func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.DB.ExecContext(ctx,
		rebind(s.Dialect, "INSERT INTO _users (username, password_hash, roles, active) VALUES (?, ?, ?, ?)"),
		u.Username, u.PasswordHash, s.Dialect.ArrayParam(u.Roles), u.Active,
	)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, MapError(s.Dialect, err))
	}
	return nil
}

// Expiry times are stored as unix seconds so both dialects scan them the same way.

func (s *Store) SaveRefreshToken(ctx context.Context, token, username string, expiresAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		rebind(s.Dialect, "INSERT INTO _refresh_tokens (token, username, expires_at) VALUES (?, ?, ?)"),
		token, username, expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	var (
		username string
		expires  int64
	)
	err := s.DB.QueryRowContext(ctx,
		rebind(s.Dialect, "DELETE FROM _refresh_tokens WHERE token = ? RETURNING username, expires_at"),
		token,
	).Scan(&username, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("consume refresh token: %w", err)
	}
	return username, time.Unix(expires, 0), nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	if _, err := s.DB.ExecContext(ctx, rebind(s.Dialect, "DELETE FROM _refresh_tokens WHERE token = ?"), token); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
