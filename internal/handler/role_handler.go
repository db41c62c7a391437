package handler

import (
	"supplychain-ledger/internal/repository"
	"supplychain-ledger/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

type RoleHandler struct {
	roleRepo repository.RoleRepository
	log      *logger.Logger
}

func NewRoleHandler(roleRepo repository.RoleRepository, log *logger.Logger) *RoleHandler {
	return &RoleHandler{roleRepo: roleRepo, log: log.Named("http.roles")}
}

// GetRoles returns all roles with their privileges
// GET /api/v1/roles
func (h *RoleHandler) GetRoles(c *fiber.Ctx) error {
	roles, err := h.roleRepo.FindAll(c.UserContext())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to fetch roles")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{"kind": "storage_unavailable", "message": "failed to fetch roles"},
		})
	}
	return c.JSON(fiber.Map{"roles": roles})
}
