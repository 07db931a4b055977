package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/banwatch/backend/internal/config"
)

const OwnerIDKey = "owner_id"

// APIKeyAuth resolves the calling owner from the presented API key. The admin
// key maps to an empty owner id, which the service layer treats as
// administrative (sees every owner's tasks). With no keys configured the
// middleware is a pass-through for local development.
func APIKeyAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Auth.AdminAPIKey == "" && len(cfg.Auth.APIKeys) == 0 {
			c.Locals(OwnerIDKey, "")
			return c.Next()
		}

		token := c.Get("X-API-Key")
		if token == "" {
			auth := c.Get("Authorization")
			const prefix = "Bearer "
			if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
				token = auth[len(prefix):]
			}
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		if cfg.Auth.AdminAPIKey != "" && token == cfg.Auth.AdminAPIKey {
			c.Locals(OwnerIDKey, "")
			return c.Next()
		}

		if owner, ok := cfg.Auth.APIKeys[token]; ok {
			c.Locals(OwnerIDKey, owner)
			return c.Next()
		}

		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "unauthorized",
		})
	}
}

// OwnerFromContext returns the owner id set by APIKeyAuth; empty means
// administrative scope.
func OwnerFromContext(c *fiber.Ctx) string {
	owner, _ := c.Locals(OwnerIDKey).(string)
	return owner
}
