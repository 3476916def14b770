package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/krishkalaria12/pix-stash/auth"
)

const userIDKey = "userID"

// AuthMiddleware resolves the bearer token (or JWT cookie fallback) to a
// user id and stores it in the request locals. Requests without a valid
// token never reach the route handlers.
func AuthMiddleware(authSvc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		var tokenStr string

		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			tokenStr = c.Cookies("JWT")
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization token",
			})
		}

		userID, err := authSvc.ParseUserID(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// UserID returns the authenticated caller's id set by AuthMiddleware.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(userIDKey).(uint)
	return id
}
