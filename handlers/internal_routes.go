package handlers

import (
	"context"
	"fmt"

	"civic-rewards/services"
	"civic-rewards/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// InternalAPI receives triggers from the other platform services (issues, events, forum).
// It sits behind the gateway token only; there is no end-user context.
type InternalAPI struct {
	Ledger     *services.Ledger
	Fanout     *services.Fanout
	Dispatcher *services.Dispatcher
	log        *zap.Logger
}

func NewInternalAPI(ledger *services.Ledger, fanout *services.Fanout, dispatcher *services.Dispatcher, log *zap.Logger) *InternalAPI {
	return &InternalAPI{Ledger: ledger, Fanout: fanout, Dispatcher: dispatcher, log: log.Named("internal_api")}
}

func SetupInternalRoutes(app *fiber.App, api *InternalAPI) {
	internal := app.Group("/internal")
	internal.Post("/points/award", api.awardPoints)
	internal.Post("/events/created", api.eventCreated)
	internal.Post("/events/updates", api.eventUpdated)
}

type awardRequest struct {
	UserID       string         `json:"user_id" validate:"required"`
	ActivityType string         `json:"activity_type" validate:"required"`
	Description  string         `json:"description" validate:"max=500"`
	Metadata     map[string]any `json:"metadata"`
}

// awardPoints answers 200 for unknown activity types too; points_awarded is then null.
func (a *InternalAPI) awardPoints(c *fiber.Ctx) error {
	var req awardRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	points, err := a.Ledger.AwardPoints(c.UserContext(), req.UserID, req.ActivityType, req.Description, req.Metadata)
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(fiber.Map{
		"user_id":        req.UserID,
		"activity_type":  req.ActivityType,
		"points_awarded": points,
	})
}

func (a *InternalAPI) eventCreated(c *fiber.Ctx) error {
	var ev services.EventCreated
	if err := c.BodyParser(&ev); err != nil {
		return badRequest(c, "invalid JSON")
	}
	if err := utils.ValidateStruct(ev); err != nil {
		return badRequest(c, err.Error())
	}

	return a.enqueue(c, fmt.Sprintf("event_created:%s", ev.EventID), func(ctx context.Context) {
		report, err := a.Fanout.OnEventCreated(ctx, ev)
		a.logReport("event_created", ev.EventID, report, err)
	})
}

func (a *InternalAPI) eventUpdated(c *fiber.Ctx) error {
	var up services.EventUpdated
	if err := c.BodyParser(&up); err != nil {
		return badRequest(c, "invalid JSON")
	}
	if err := utils.ValidateStruct(up); err != nil {
		return badRequest(c, err.Error())
	}

	return a.enqueue(c, fmt.Sprintf("event_updated:%s", up.EventID), func(ctx context.Context) {
		report, err := a.Fanout.OnEventUpdated(ctx, up)
		a.logReport("event_updated", up.EventID, report, err)
	})
}

func (a *InternalAPI) enqueue(c *fiber.Ctx, name string, job func(ctx context.Context)) error {
	if !a.Dispatcher.Submit(name, job) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "notification queue is full, retry later",
			"code":  "unavailable",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}

func (a *InternalAPI) logReport(kind, eventID string, report *services.FanoutReport, err error) {
	if err != nil {
		a.log.Error("fan-out failed", zap.String("kind", kind), zap.String("event_id", eventID), zap.Error(err))
		return
	}
	a.log.Info("📬 Fan-out finished",
		zap.String("kind", kind),
		zap.String("event_id", eventID),
		zap.Int("recipients", report.Recipients),
		zap.Int("in_app", report.InApp),
		zap.Int("whatsapp_sent", report.WhatsAppSent),
		zap.Int("whatsapp_skipped", report.WhatsAppSkipped),
		zap.Int("failed", report.Failed))
}
