package middleware

import (
	"strings"

	"go-stock-ledger/internal/model"
	"go-stock-ledger/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Locals keys set by RequireAuth.
const (
	LocalToken    = "token"
	LocalUserID   = "user_id"
	LocalUsername = "username"
	LocalRole     = "role"
)

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.Fields(c.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// RequireAuth resolves the bearer token against the session registry and
// sets the session in context for downstream handlers.
func RequireAuth(auth service.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization token"})
		}

		token, ok := BearerToken(c)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization format. Use: Bearer <token>"})
		}

		sess, err := auth.Validate(token)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired session"})
		}

		c.Locals(LocalToken, token)
		c.Locals(LocalUserID, sess.UserID.String())
		c.Locals(LocalUsername, sess.Username)
		c.Locals(LocalRole, sess.Role)

		return c.Next()
	}
}

// RequireCapability rejects the request early when the session's role lacks
// the capability. Services check again on their own.
func RequireCapability(capability model.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(LocalRole).(model.Role)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
		}
		if !role.Can(capability) {
			return c.Status(403).JSON(fiber.Map{
				"error": "Forbidden: requires '" + string(capability) + "' capability",
			})
		}
		return c.Next()
	}
}

// RequireWebSocket guards the websocket upgrade. Browsers cannot set headers
// on the handshake, so the token comes from the "token" query parameter.
func RequireWebSocket(gate service.Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			token, _ = BearerToken(c)
		}
		sess, err := gate.Authorize(token, model.CapViewStock)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired session"})
		}
		c.Locals(LocalUsername, sess.Username)
		return c.Next()
	}
}
