// internal/middleware/player_context.go
package middleware

import (
	"log"
	"strings"

	"geobets-core-service/utils"

	"github.com/gofiber/fiber/v2"
)

// PlayerContextMiddleware extracts the wallet address the Gateway verified a
// signature for. Routes that mutate bets or games are grouped under this, so
// handlers can trust c.Locals("player_address") to be a well-formed address.
func PlayerContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		address := strings.TrimSpace(c.Get("X-Player-Address"))
		if address == "" {
			log.Printf("❌ [PLAYER_CTX] X-Player-Address required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Player-Address — request must come through gateway with a verified wallet",
			})
		}

		if !utils.IsHexAddress(address) {
			log.Printf("❌ [PLAYER_CTX] Malformed address %q on %s", address, c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "validation_error",
			})
		}

		// Attach to ctx for handlers
		c.Locals("player_address", utils.NormalizeAddress(address))

		return c.Next()
	}
}

// PlayerAddress reads the address placed by PlayerContextMiddleware.
func PlayerAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals("player_address").(string)
	return addr
}
