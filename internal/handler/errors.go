package handler

import (
	"errors"
	"log/slog"

	"go-stock-ledger/internal/middleware"
	"go-stock-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	var ve *service.ValidationError
	var ise *service.InsufficientStockError

	switch {
	case errors.As(err, &ve):
		body := fiber.Map{"error": ve.Message, "kind": ve.Kind}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		if ve.Line > 0 {
			body["line"] = ve.Line
		}
		if ve.ItemID != nil {
			body["item_id"] = ve.ItemID
		}
		return c.Status(400).JSON(body)
	case errors.As(err, &ise):
		return c.Status(422).JSON(fiber.Map{"error": "Insufficient stock", "shortfalls": ise.Shortfalls})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Status(401).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUnauthenticated):
		return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired session"})
	case errors.Is(err, service.ErrForbidden):
		return c.Status(403).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrDuplicate),
		errors.Is(err, service.ErrInUse):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	}

	slog.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
	return c.Status(500).JSON(fiber.Map{"error": "Internal Server Error"})
}

func getToken(c *fiber.Ctx) string {
	token, _ := c.Locals(middleware.LocalToken).(string)
	return token
}
