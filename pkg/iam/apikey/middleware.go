package apikey

import (
	"github.com/gofiber/fiber/v2"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// HeaderAPIKey carries the scoped key on integration requests.
const HeaderAPIKey = "X-API-Key"

// RequireScope guards an integration route with a scoped API key. The check
// is stateless: structure, embedded expiry and scope, no store round-trip.
// Malformed or expired keys get 401; a live key for the wrong scope gets 403
// and must not be retried with the same key.
func RequireScope(validator KeyValidator, requiredScope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rawKey := c.Get(HeaderAPIKey)
		if rawKey == "" {
			return respondError(c, iam.ErrUnauthorized().WithDetail("reason", "missing "+HeaderAPIKey+" header"))
		}

		userID, err := validator.ValidateKey(rawKey, requiredScope)
		if err != nil {
			return respondError(c, err)
		}

		c.Locals(string(kernel.AuthContextKey), &kernel.AuthContext{
			UserID:   userID,
			Scopes:   []string{requiredScope},
			IsAPIKey: true,
		})

		return c.Next()
	}
}

func respondError(c *fiber.Ctx, err error) error {
	var e *errx.Error
	if errx.As(err, &e) {
		return c.Status(e.HTTPStatus).JSON(e.ToHTTPResponse())
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
	})
}
