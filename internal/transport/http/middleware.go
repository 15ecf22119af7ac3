package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/vani-inventory/internal/session"
)

func NewAuthMiddleware(tokens *session.Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid header format"})
		}

		claims, err := tokens.Validate(parts[1])
		if err != nil {
			return c.Status(mapErrorStatus(err)).JSON(fiber.Map{"error": "Unauthorized: Invalid token"})
		}

		c.Locals("tokenId", claims.ID)
		return c.Next()
	}
}
