package handler

import (
	"github.com/gofiber/fiber/v2"
)

// Err renders the JSON error envelope used by every API endpoint.
func Err(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// ErrInternal renders a 500 with the standard envelope.
func ErrInternal(c *fiber.Ctx, msg string) error {
	return Err(c, fiber.StatusInternalServerError, msg)
}
