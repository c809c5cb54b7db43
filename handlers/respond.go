package handlers

import (
	"strconv"

	"civic-rewards/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError writes err as {"error", "code"} with the status of its ServiceError kind.
// Anything that is not a ServiceError is logged and reported as a 500.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	se := services.AsServiceError(err)
	if se.Kind == services.KindInternal {
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	code := se.Code
	if code == "" {
		code = string(se.Kind)
	}
	body := fiber.Map{"error": se.Message, "code": code}
	if len(se.Details) > 0 {
		body["details"] = se.Details
	}
	return c.Status(se.StatusCode()).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "code": string(services.KindInvalidRequest)})
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
