package handler

import (
	"supplychain-ledger/internal/service"
	"supplychain-ledger/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case service.KindForbidden:
		return fiber.StatusForbidden
	case service.KindNotFound:
		return fiber.StatusNotFound
	case service.KindDuplicateID, service.KindConflict:
		return fiber.StatusConflict
	case service.KindInvalidInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusServiceUnavailable
	}
}

// writeError renders err as {"error": {"kind", "message"}}. Wrapped storage
// detail goes to the log only.
func writeError(c *fiber.Ctx, log *logger.Logger, err error) error {
	le := service.AsLedgerError(err)
	status := statusFor(le.Kind)
	if status == fiber.StatusServiceUnavailable {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	if status == fiber.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	}
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{"kind": le.Kind, "message": le.Message()},
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{"kind": service.KindInvalidInput, "message": msg},
	})
}
