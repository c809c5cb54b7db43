package handlers

import (
	"civic-rewards/middleware"
	"civic-rewards/models"
	"civic-rewards/services"
	"civic-rewards/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminAPI serves the official/admin endpoints.
type AdminAPI struct {
	Ledger  *services.Ledger
	Credits *services.CreditLedger
	log     *zap.Logger
}

func NewAdminAPI(ledger *services.Ledger, credits *services.CreditLedger, log *zap.Logger) *AdminAPI {
	return &AdminAPI{Ledger: ledger, Credits: credits, log: log.Named("admin_api")}
}

func SetupAdminRoutes(app *fiber.App, api *AdminAPI, log *zap.Logger) {
	admin := app.Group("/s/admin",
		middleware.UserContextMiddleware(log),
		middleware.RequireRole(models.RoleAdmin, models.RoleOfficial))

	admin.Post("/points/adjust", api.adjustPoints)
	admin.Post("/credits/:code/use", api.markCreditUsed)
}

type adjustRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=255"`
}

func (a *AdminAPI) adjustPoints(c *fiber.Ctx) error {
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	profile, err := a.Ledger.AdjustPoints(c.UserContext(), req.UserID, req.Delta, req.Reason)
	if err != nil {
		return respondError(c, a.log, err)
	}
	a.log.Info("🛠️ Points adjusted",
		zap.String("by", middleware.UserID(c)),
		zap.String("user_id", req.UserID),
		zap.Int64("delta", req.Delta),
		zap.String("reason", req.Reason))
	return c.JSON(profile)
}

type useCreditRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

func (a *AdminAPI) markCreditUsed(c *fiber.Ctx) error {
	var req useCreditRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	credit, err := a.Credits.MarkUsed(c.UserContext(), c.Params("code"), req.Notes)
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(credit)
}
