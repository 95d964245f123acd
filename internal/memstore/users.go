package memstore

import (
	"context"
	"time"

	"mds-backend/internal/auth"
)

func (s *Store) FindUser(_ context.Context, username string) (*auth.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp, nil
}

func (s *Store) SaveRefreshToken(_ context.Context, token, username string, expiresAt time.Time) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	s.tokens[token] = refreshToken{username: username, expiresAt: expiresAt}
	return nil
}

func (s *Store) ConsumeRefreshToken(_ context.Context, token string) (string, time.Time, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	rt, ok := s.tokens[token]
	if !ok {
		return "", time.Time{}, nil
	}
	delete(s.tokens, token)
	return rt.username, rt.expiresAt, nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, token string) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	delete(s.tokens, token)
	return nil
}
