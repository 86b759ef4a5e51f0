package handler

import (
	"strings"

	"go-stock-ledger/internal/repository"
	"go-stock-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
)

type AuditHandler struct {
	service service.AuditService
}

func NewAuditHandler(s service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetAuditLogs returns the audit trail, newest first.
// Query params: username, action, limit
func (h *AuditHandler) GetAuditLogs(c *fiber.Ctx) error {
	filter := repository.AuditFilter{
		Username: c.Query("username"),
		Action:   strings.ToUpper(c.Query("action")),
		Limit:    c.QueryInt("limit", 0),
	}
	logs, err := h.service.ListAuditLogs(getToken(c), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(logs)
}
