package middleware

import (
	"context"
	"strings"

	"supplychain-ledger/internal/model"
	"supplychain-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
)

const principalKey = "principal"

// PrincipalResolver turns a bearer token into a Principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (model.Principal, error)
}

// RequireAuth validates the bearer token and stores the caller's Principal in Locals.
func RequireAuth(auth PrincipalResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "missing authorization token")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return unauthorized(c, "invalid authorization format, use: Bearer <token>")
		}

		principal, err := auth.Resolve(c.UserContext(), parts[1])
		if err != nil {
			le := service.AsLedgerError(err)
			if le.Kind == service.KindUnauthenticated {
				return unauthorized(c, le.Message())
			}
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": fiber.Map{"kind": le.Kind, "message": le.Message()},
			})
		}

		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// RequirePrivilege checks the authenticated caller's role against the permission table.
func RequirePrivilege(perms *service.PermissionTable, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFrom(c)
		if !ok {
			return unauthorized(c, "authentication required")
		}
		if !perms.Allows(principal.Role, action) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": fiber.Map{"kind": service.KindForbidden, "message": "requires '" + action + "' privilege"},
			})
		}
		return c.Next()
	}
}

// PrincipalFrom returns the Principal set by RequireAuth.
func PrincipalFrom(c *fiber.Ctx) (model.Principal, bool) {
	p, ok := c.Locals(principalKey).(model.Principal)
	return p, ok
}

func unauthorized(c *fiber.Ctx, msg string) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{"kind": service.KindUnauthenticated, "message": msg},
	})
}
