package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HandleHealth reports that the API is up.
func HandleHealth(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "OK",
		"message": "API is running",
		"time":    time.Now().Format(time.RFC3339),
	})
}
