package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator resolves an access token and device to a user. Browsers cannot attach
// headers to an EventSource, so the stream authenticates from query parameters.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*Identity, error)
}

// Identity is the validated caller.
type Identity struct {
	UserID   string   `json:"user_id"`
	DeviceID string   `json:"device_id"`
	Roles    []string `json:"roles"`
}

// SSEAuthMiddleware validates the `token` and `device_id` query parameters. When the gateway
// already forwarded X-User-ID the request passes through unchanged.
func SSEAuthMiddleware(validator TokenValidator, log *zap.Logger) fiber.Handler {
	log = log.Named("sse_auth")
	return func(c *fiber.Ctx) error {
		if userID := strings.TrimSpace(c.Get("X-User-ID")); userID != "" {
			c.Locals(LocalUserID, userID)
			c.Locals(LocalUserRoles, splitRoles(c.Get("X-User-Roles")))
			return c.Next()
		}

		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token or device_id in query",
				"code":  "invalid_request",
			})
		}
		if validator == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized", "code": "unauthorized"})
		}

		id, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.Warn("❌ Stream token rejected", zap.String("device_id", deviceID), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized", "code": "unauthorized"})
		}

		c.Locals(LocalUserID, id.UserID)
		c.Locals(LocalUserRoles, id.Roles)
		c.Locals(LocalDeviceID, id.DeviceID)
		return c.Next()
	}
}
