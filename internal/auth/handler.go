package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"mds-backend/internal/httperr"
)

// Handler serves the login endpoints.
type Handler struct {
	users  UserStore
	issuer *Issuer
}

func NewHandler(users UserStore, issuer *Issuer) *Handler {
	return &Handler{users: users, issuer: issuer}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return httperr.InvalidPayload("Invalid request body")
	}
	if body.Username == "" || body.Password == "" {
		return httperr.Unauthorized("Username and password are required")
	}

	ctx := c.UserContext()
	user, err := h.users.FindUser(ctx, body.Username)
	if err != nil {
		return err
	}
	if user == nil || !CheckPassword(body.Password, user.PasswordHash) {
		return httperr.Unauthorized("Invalid username or password")
	}
	if !user.Active {
		return httperr.Unauthorized("Account is disabled")
	}

	pair, err := h.issue(ctx, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. Refresh tokens are single use.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return httperr.InvalidPayload("Invalid request body")
	}
	if body.RefreshToken == "" {
		return httperr.Unauthorized("Refresh token is required")
	}

	ctx := c.UserContext()
	username, expiresAt, err := h.users.ConsumeRefreshToken(ctx, body.RefreshToken)
	if err != nil {
		return err
	}
	if username == "" {
		return httperr.Unauthorized("Invalid refresh token")
	}
	if time.Now().After(expiresAt) {
		return httperr.Unauthorized("Refresh token expired")
	}

	user, err := h.users.FindUser(ctx, username)
	if err != nil {
		return err
	}
	if user == nil || !user.Active {
		return httperr.Unauthorized("Account is disabled")
	}

	pair, err := h.issue(ctx, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return httperr.InvalidPayload("Invalid request body")
	}
	if body.RefreshToken == "" {
		return httperr.Unauthorized("Refresh token is required")
	}
	if err := h.users.RevokeRefreshToken(c.UserContext(), body.RefreshToken); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers auth routes on the given Fiber app. The
// middlewares guard login and refresh only.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	guarded := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler(nil), middleware...), h)
	}
	g := app.Group("/api/auth")
	g.Post("/login", guarded(h.Login)...)
	g.Post("/refresh", guarded(h.Refresh)...)
	g.Post("/logout", h.Logout)
}

func (h *Handler) issue(ctx context.Context, user *User) (*TokenPair, error) {
	access, err := h.issuer.AccessToken(user.Username, user.Roles)
	if err != nil {
		return nil, httperr.Internal("Failed to generate access token")
	}

	refresh := GenerateRefreshToken()
	if err := h.users.SaveRefreshToken(ctx, refresh, user.Username, h.issuer.RefreshExpiry()); err != nil {
		slog.ErrorContext(ctx, "store refresh token", "user", user.Username, "err", err)
		return nil, httperr.Internal("Failed to store refresh token")
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
