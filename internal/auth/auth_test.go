package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"mds-backend/internal/httperr"
)

type fakeUsers struct {
	mu     sync.Mutex
	users  map[string]*User
	tokens map[string]time.Time
	owners map[string]string
}

func newFakeUsers(t *testing.T, users ...User) *fakeUsers {
	t.Helper()
	f := &fakeUsers{users: map[string]*User{}, tokens: map[string]time.Time{}, owners: map[string]string{}}
	for i := range users {
		u := users[i]
		f.users[u.Username] = &u
	}
	return f
}

func (f *fakeUsers) FindUser(_ context.Context, username string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[username], nil
}

func (f *fakeUsers) SaveRefreshToken(_ context.Context, token, username string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = expiresAt
	f.owners[token] = username
	return nil
}

func (f *fakeUsers) ConsumeRefreshToken(_ context.Context, token string) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[token]
	if !ok {
		return "", time.Time{}, nil
	}
	exp := f.tokens[token]
	delete(f.owners, token)
	delete(f.tokens, token)
	return owner, exp, nil
}

func (f *fakeUsers) RevokeRefreshToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.owners, token)
	delete(f.tokens, token)
	return nil
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", 0, 0)
	tok, err := iss.AccessToken("alice", []string{"admin"})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "alice" || len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := NewIssuer("other", 0, 0).Parse(tok); err == nil {
		t.Fatal("expected signature mismatch")
	}
	if _, err := iss.Parse(tok + "x"); err == nil {
		t.Fatal("expected tampered token to fail")
	}

	anon, _ := iss.AccessToken("", nil)
	if _, err := iss.Parse(anon); err == nil {
		t.Fatal("expected token without subject to fail")
	}

	expired, _ := NewIssuer("secret", time.Nanosecond, 0).AccessToken("alice", nil)
	time.Sleep(time.Millisecond)
	if _, err := iss.Parse(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("changeme")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword("changeme", hash) {
		t.Fatal("expected password to match")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("expected wrong password to fail")
	}
}

func newAuthApp(t *testing.T) (*fiber.App, *Issuer) {
	t.Helper()
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	users := newFakeUsers(t,
		User{Username: "alice", PasswordHash: hash, Roles: []string{"admin"}, Active: true},
		User{Username: "bob", PasswordHash: hash, Roles: []string{"admin"}, Active: false},
		User{Username: "carol", PasswordHash: hash, Active: true},
	)
	iss := NewIssuer("secret", 0, 0)
	app := fiber.New(fiber.Config{ErrorHandler: httperr.Handler})
	RegisterRoutes(app, NewHandler(users, iss))
	admin := app.Group("/api/admin", Middleware(iss), RequireAdmin())
	admin.Get("/whoami", func(c *fiber.Ctx) error { return c.SendString(Actor(c)) })
	return app, iss
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func tokens(t *testing.T, out map[string]any) (string, string) {
	t.Helper()
	data, ok := out["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data in %v", out)
	}
	return data["access_token"].(string), data["refresh_token"].(string)
}

func TestLoginRefreshLogout(t *testing.T) {
	app, _ := newAuthApp(t)

	status, out := post(t, app, "/api/auth/login", `{"username":"alice","password":"pw"}`)
	if status != 200 {
		t.Fatalf("login: expected 200, got %d %v", status, out)
	}
	access, refresh := tokens(t, out)
	if access == "" || refresh == "" {
		t.Fatal("expected both tokens")
	}

	status, out = post(t, app, "/api/auth/refresh", `{"refresh_token":"`+refresh+`"}`)
	if status != 200 {
		t.Fatalf("refresh: expected 200, got %d %v", status, out)
	}
	_, rotated := tokens(t, out)
	if rotated == refresh {
		t.Fatal("expected a new refresh token")
	}

	status, _ = post(t, app, "/api/auth/refresh", `{"refresh_token":"`+refresh+`"}`)
	if status != 401 {
		t.Fatalf("reused refresh token: expected 401, got %d", status)
	}

	status, _ = post(t, app, "/api/auth/logout", `{"refresh_token":"`+rotated+`"}`)
	if status != 200 {
		t.Fatalf("logout: expected 200, got %d", status)
	}
	status, _ = post(t, app, "/api/auth/refresh", `{"refresh_token":"`+rotated+`"}`)
	if status != 401 {
		t.Fatalf("revoked refresh token: expected 401, got %d", status)
	}
}

func TestLoginRejects(t *testing.T) {
	app, _ := newAuthApp(t)
	tests := map[string]string{
		"wrong password": `{"username":"alice","password":"nope"}`,
		"unknown user":   `{"username":"dave","password":"pw"}`,
		"inactive":       `{"username":"bob","password":"pw"}`,
		"missing fields": `{"username":"alice"}`,
	}
	for name, body := range tests {
		status, out := post(t, app, "/api/auth/login", body)
		if status != 401 {
			t.Fatalf("%s: expected 401, got %d", name, status)
		}
		errBody, _ := out["error"].(map[string]any)
		if errBody["code"] != "UNAUTHORIZED" {
			t.Fatalf("%s: expected UNAUTHORIZED, got %v", name, out)
		}
	}
}

func TestMiddleware(t *testing.T) {
	app, iss := newAuthApp(t)

	get := func(header string) (int, string) {
		req, _ := http.NewRequest("GET", "/api/admin/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	admin, _ := iss.AccessToken("alice", []string{"admin"})
	if status, body := get("Bearer " + admin); status != 200 || body != "alice" {
		t.Fatalf("admin: got %d %q", status, body)
	}

	user, _ := iss.AccessToken("carol", nil)
	if status, _ := get("Bearer " + user); status != 403 {
		t.Fatalf("non-admin: expected 403, got %d", status)
	}

	for _, h := range []string{"", "Token " + admin, "Bearer garbage"} {
		if status, _ := get(h); status != 401 {
			t.Fatalf("%q: expected 401, got %d", h, status)
		}
	}
}
