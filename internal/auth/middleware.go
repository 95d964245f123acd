package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"mds-backend/internal/httperr"
	"mds-backend/internal/metadata"
)

// Middleware returns a Fiber middleware that validates JWT tokens
// and sets the UserContext on the request.
func Middleware(issuer *Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return httperr.Unauthorized("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return httperr.Unauthorized("Invalid auth header format")
		}

		claims, err := issuer.Parse(parts[1])
		if err != nil {
			return httperr.Unauthorized("Invalid or expired token")
		}

		c.Locals("user", &metadata.UserContext{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})
		return c.Next()
	}
}

// RequireAdmin checks the authenticated user has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return httperr.Unauthorized("Missing auth token")
		}
		if !user.IsAdmin() {
			return httperr.Forbidden("Admin access required")
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

// Actor returns the authenticated username, or "" when there is none.
func Actor(c *fiber.Ctx) string {
	return GetUser(c).Actor()
}
