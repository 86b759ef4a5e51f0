package handler

import (
	"go-stock-ledger/internal/model"

	"github.com/gofiber/fiber/v2"
)

type RoleHandler struct{}

func NewRoleHandler() *RoleHandler {
	return &RoleHandler{}
}

type roleResponse struct {
	Name         model.Role         `json:"name"`
	Capabilities []model.Capability `json:"capabilities"`
}

// GetRoles returns every role with its capabilities
// GET /api/v1/roles
func (h *RoleHandler) GetRoles(c *fiber.Ctx) error {
	roles := make([]roleResponse, 0, len(model.AllRoles))
	for _, r := range model.AllRoles {
		roles = append(roles, roleResponse{Name: r, Capabilities: model.RoleCapabilities[r]})
	}
	return c.JSON(roles)
}
