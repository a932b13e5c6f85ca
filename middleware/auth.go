package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailsprint/models"
)

// RequireUser resolves the caller from the X-User-ID header set by the
// authenticating gateway in front of this service, and loads the user into
// the request context. Requests without a valid user are rejected.
func RequireUser(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-User-ID")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid user identity",
			})
		}

		var user models.User
		if err := db.First(&user, uint(id)).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unknown user",
			})
		}

		c.Locals("user", &user)
		return c.Next()
	}
}
