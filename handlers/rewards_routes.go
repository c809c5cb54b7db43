package handlers

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"civic-rewards/middleware"
	"civic-rewards/models"
	"civic-rewards/services"
	"civic-rewards/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxProofSize = 10 << 20

// ProofStore uploads a redemption proof and returns its public URL.
type ProofStore interface {
	UploadFile(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error)
}

// RewardsAPI serves the citizen-facing rewards and notification endpoints.
type RewardsAPI struct {
	Ledger  *services.Ledger
	Credits *services.CreditLedger
	Board   *services.Leaderboard
	Inbox   *services.NotificationService
	Proofs  ProofStore // nil disables proof uploads

	StreamInterval time.Duration
	log            *zap.Logger
}

func NewRewardsAPI(ledger *services.Ledger, credits *services.CreditLedger, board *services.Leaderboard, inbox *services.NotificationService, proofs ProofStore, log *zap.Logger) *RewardsAPI {
	return &RewardsAPI{
		Ledger:         ledger,
		Credits:        credits,
		Board:          board,
		Inbox:          inbox,
		Proofs:         proofs,
		StreamInterval: 2 * time.Second,
		log:            log.Named("rewards_api"),
	}
}

// SetupRewardsRoutes registers the public catalog routes, the /user routes (gateway user
// context required) and the notification stream.
func SetupRewardsRoutes(app *fiber.App, api *RewardsAPI, validator middleware.TokenValidator, log *zap.Logger) {
	app.Get("/levels", api.listLevels)
	app.Get("/achievements", api.listAchievements)
	app.Get("/leaderboard", api.leaderboard)
	app.Get("/community/stats", api.communityStats)

	// EventSource clients cannot send X-User-ID, so the stream authenticates on its own
	app.Get("/notifications/stream", middleware.SSEAuthMiddleware(validator, log), api.streamNotifications)

	user := app.Group("/user", middleware.UserContextMiddleware(log))

	user.Get("/civic-profile", api.civicProfile)
	user.Get("/civic-profile/activities", api.activities)
	user.Get("/achievements", api.userAchievements)

	user.Get("/credits", api.creditBalance)
	user.Get("/credits/history", api.creditHistory)
	user.Get("/credits/active", api.activeRedemptions)
	user.Post("/credits/redeem", api.redeem)
	user.Post("/credits/:code/proof", api.uploadProof)

	user.Get("/notifications", api.listNotifications)
	user.Get("/notifications/counts", api.notificationCounts)
	user.Patch("/notifications/:id/read", api.markRead)
	user.Post("/notifications/read-all", api.markAllRead)
}

// civicProfile creates the profile on first visit and counts the visit towards the streak.
func (a *RewardsAPI) civicProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := middleware.UserID(c)

	if _, err := a.Ledger.EnsureProfile(ctx, userID); err != nil {
		return respondError(c, a.log, err)
	}
	profile, err := a.Ledger.UpdateStreak(ctx, userID)
	if err != nil {
		return respondError(c, a.log, err)
	}

	next, err := a.Ledger.NextLevel(ctx, profile)
	if err != nil {
		return respondError(c, a.log, err)
	}
	resp := fiber.Map{"profile": profile, "next_level": next}
	if next != nil {
		resp["points_to_next_level"] = max(next.MinPoints-profile.TotalPoints, 0)
	}
	return c.JSON(resp)
}

func (a *RewardsAPI) activities(c *fiber.Ctx) error {
	out, err := a.Ledger.Activities(c.UserContext(), middleware.UserID(c), queryInt(c, "limit", 50))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(out)
}

func (a *RewardsAPI) listLevels(c *fiber.Ctx) error {
	levels, err := a.Ledger.Levels(c.UserContext())
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(levels)
}

// listAchievements shows progress when the gateway forwarded a user.
func (a *RewardsAPI) listAchievements(c *fiber.Ctx) error {
	out, err := a.Ledger.Achievements(c.UserContext(), strings.TrimSpace(c.Get("X-User-ID")))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(out)
}

func (a *RewardsAPI) userAchievements(c *fiber.Ctx) error {
	out, err := a.Ledger.UserAchievements(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(out)
}

func (a *RewardsAPI) leaderboard(c *fiber.Ctx) error {
	out, err := a.Board.Top(c.UserContext(), c.Query("period", services.PeriodAll), queryInt(c, "limit", 100))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(fiber.Map{"period": c.Query("period", services.PeriodAll), "entries": out})
}

func (a *RewardsAPI) communityStats(c *fiber.Ctx) error {
	stats, err := a.Board.Stats(c.UserContext())
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(stats)
}

func (a *RewardsAPI) creditBalance(c *fiber.Ctx) error {
	out, err := a.Credits.Balance(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(out)
}

func (a *RewardsAPI) creditHistory(c *fiber.Ctx) error {
	out, err := a.Credits.History(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(out)
}

func (a *RewardsAPI) activeRedemptions(c *fiber.Ctx) error {
	out, err := a.Credits.ActiveRedemptions(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(out)
}

type redeemRequest struct {
	CreditType  string `json:"credit_type" validate:"required"`
	RedeemedFor string `json:"redeemed_for" validate:"max=255"`
}

func (a *RewardsAPI) redeem(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	credit, err := a.Credits.Redeem(c.UserContext(), middleware.UserID(c), models.CreditType(req.CreditType), req.RedeemedFor)
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":         fmt.Sprintf("Successfully redeemed %s", credit.CreditType.Label()),
		"redemption_code": credit.RedemptionCode,
		"credit":          services.CreditView{CommunityCredit: *credit, Status: credit.Status(time.Now())},
	})
}

func (a *RewardsAPI) uploadProof(c *fiber.Ctx) error {
	if a.Proofs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "proof uploads are not configured",
			"code":  "unavailable",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	if file.Size > maxProofSize {
		return badRequest(c, "file exceeds 10MB")
	}

	code := strings.ToUpper(c.Params("code"))
	if _, err := a.Credits.FindOwned(c.UserContext(), middleware.UserID(c), code); err != nil {
		return respondError(c, a.log, err)
	}

	key := fmt.Sprintf("proofs/%s/%s%s", code, uuid.NewString(), strings.ToLower(filepath.Ext(file.Filename)))
	url, err := a.Proofs.UploadFile(c.UserContext(), file, key)
	if err != nil {
		a.log.Error("proof upload failed", zap.String("code", code), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upload failed", "code": "upstream"})
	}

	credit, err := a.Credits.AttachProof(c.UserContext(), middleware.UserID(c), code, url)
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(credit)
}

func (a *RewardsAPI) listNotifications(c *fiber.Ctx) error {
	out, err := a.Inbox.List(c.UserContext(), middleware.UserID(c), c.QueryBool("unread_only"), queryInt(c, "limit", 50))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(out)
}

func (a *RewardsAPI) notificationCounts(c *fiber.Ctx) error {
	out, err := a.Inbox.Counts(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(out)
}

func (a *RewardsAPI) markRead(c *fiber.Ctx) error {
	n, err := a.Inbox.MarkRead(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(n)
}

func (a *RewardsAPI) markAllRead(c *fiber.Ctx) error {
	n, err := a.Inbox.MarkAllRead(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, a.log, err)
	}
	return c.JSON(fiber.Map{"marked_read": n})
}

func (a *RewardsAPI) streamNotifications(c *fiber.Ctx) error {
	return a.Inbox.StreamNotificationsSSE(c, middleware.UserID(c), a.StreamInterval)
}
