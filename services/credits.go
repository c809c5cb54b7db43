package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civic-rewards/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCodeAttempts = 5

// CreditLedger spends and grants community credits.
type CreditLedger struct {
	DB      *gorm.DB
	Catalog Catalog
	Sink    NotificationSink
	Now     func() time.Time

	log *zap.Logger
}

func NewCreditLedger(db *gorm.DB, catalog Catalog, sink NotificationSink, log *zap.Logger) *CreditLedger {
	return &CreditLedger{DB: db, Catalog: catalog, Sink: sink, Now: time.Now, log: log.Named("credits")}
}

// RedemptionStatus derives the status of a redemption at now.
func RedemptionStatus(c *models.CommunityCredit, now time.Time) models.RedemptionStatus {
	return models.StatusAt(c.IsUsed, c.ExpiresAt, now)
}

// CreditView is a redemption with its derived status.
type CreditView struct {
	models.CommunityCredit
	Status models.RedemptionStatus `json:"status"`
}

func (s *CreditLedger) view(credits []models.CommunityCredit) []CreditView {
	now := s.Now()
	out := make([]CreditView, 0, len(credits))
	for _, c := range credits {
		out = append(out, CreditView{CommunityCredit: c, Status: RedemptionStatus(&c, now)})
	}
	return out
}

// Redeem spends the catalog cost of creditType and issues a redemption code. The debit and
// the redemption row are written in one transaction; the debit is conditional on the
// balance so concurrent redemptions cannot overdraw.
func (s *CreditLedger) Redeem(ctx context.Context, userID string, creditType models.CreditType, redeemedFor string) (*models.CommunityCredit, error) {
	cost, ok := s.Catalog.CostOf(creditType)
	if !ok {
		return nil, ErrInvalidCreditType
	}
	if strings.TrimSpace(redeemedFor) == "" {
		redeemedFor = creditType.Label()
	}

	var credit *models.CommunityCredit
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.CivicProfile
		if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return fmt.Errorf("load profile: %w", err)
		}
		if profile.CommunityCredits < cost {
			return insufficientBalance(profile.CommunityCredits, cost)
		}

		res := tx.Model(&models.CivicProfile{}).
			Where("id = ? AND community_credits >= ?", profile.ID, cost).
			Update("community_credits", gorm.Expr("community_credits - ?", cost))
		if res.Error != nil {
			return fmt.Errorf("debit credits: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var balance int64
			if err := tx.Model(&models.CivicProfile{}).Where("id = ?", profile.ID).Select("community_credits").Scan(&balance).Error; err != nil {
				return fmt.Errorf("reload balance: %w", err)
			}
			return insufficientBalance(balance, cost)
		}

		code, err := s.uniqueCode(tx)
		if err != nil {
			return err
		}

		now := s.Now()
		credit = &models.CommunityCredit{
			UserID:         userID,
			CreditType:     creditType,
			CreditsSpent:   cost,
			RedeemedFor:    redeemedFor,
			RedemptionCode: code,
			RedeemedAt:     now,
			ExpiresAt:      now.Add(s.Catalog.RedemptionTTL),
		}
		if err := tx.Create(credit).Error; err != nil {
			return fmt.Errorf("create redemption: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, &models.Notification{
		RecipientID: userID,
		Type:        models.NotificationCreditRedeemed,
		Title:       "🎁 Credit Redeemed!",
		Message:     fmt.Sprintf("You redeemed %d credits for %s", cost, creditType.Label()),
		ContentType: "credit",
		ObjectID:    credit.ID,
		Data: map[string]any{
			"credit_type":     string(creditType),
			"cost":            cost,
			"redemption_code": credit.RedemptionCode,
		},
	})
	s.log.Info("🎁 Credits redeemed",
		zap.String("user_id", userID),
		zap.String("credit_type", string(creditType)),
		zap.Int64("cost", cost),
		zap.String("code", credit.RedemptionCode))
	return credit, nil
}

func (s *CreditLedger) uniqueCode(tx *gorm.DB) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := newRedemptionCode(s.Catalog.CodeLength)
		var n int64
		if err := tx.Model(&models.CommunityCredit{}).Where("redemption_code = ?", code).Count(&n).Error; err != nil {
			return "", fmt.Errorf("check redemption code: %w", err)
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", &ServiceError{Kind: KindConflict, Message: "could not allocate a unique redemption code"}
}

func newRedemptionCode(length int) string {
	if length <= 0 {
		length = 8
	}
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if length > len(raw) {
		length = len(raw)
	}
	return raw[:length]
}

// RedemptionOption is one entry of the redemption catalog as seen by a user.
type RedemptionOption struct {
	Type      models.CreditType `json:"type"`
	Label     string            `json:"label"`
	Cost      int64             `json:"cost"`
	CanAfford bool              `json:"can_afford"`
}

// CreditBalance is the wallet view: balance, unused redemptions and what the balance buys.
type CreditBalance struct {
	Balance           int64              `json:"balance"`
	Credits           []CreditView       `json:"credits"`
	RedemptionOptions []RedemptionOption `json:"redemption_options"`
}

// Balance never fails for a user without a profile; it reports a zero balance.
func (s *CreditLedger) Balance(ctx context.Context, userID string) (*CreditBalance, error) {
	var balance int64
	if err := s.DB.WithContext(ctx).Model(&models.CivicProfile{}).
		Where("user_id = ?", userID).
		Select("community_credits").
		Scan(&balance).Error; err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	var unused []models.CommunityCredit
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND is_used = ?", userID, false).
		Order("redeemed_at DESC").
		Find(&unused).Error; err != nil {
		return nil, fmt.Errorf("load redemptions: %w", err)
	}

	options := make([]RedemptionOption, 0, len(models.CreditTypes))
	for _, t := range models.CreditTypes {
		cost, ok := s.Catalog.CostOf(t)
		if !ok {
			continue
		}
		options = append(options, RedemptionOption{Type: t, Label: t.Label(), Cost: cost, CanAfford: balance >= cost})
	}

	return &CreditBalance{Balance: balance, Credits: s.view(unused), RedemptionOptions: options}, nil
}

// History lists every redemption of the user, newest first.
func (s *CreditLedger) History(ctx context.Context, userID string) ([]CreditView, error) {
	var credits []models.CommunityCredit
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("redeemed_at DESC").Find(&credits).Error; err != nil {
		return nil, err
	}
	return s.view(credits), nil
}

// ActiveRedemptions lists unused, unexpired redemptions of the user.
func (s *CreditLedger) ActiveRedemptions(ctx context.Context, userID string) ([]CreditView, error) {
	var credits []models.CommunityCredit
	if err := s.DB.WithContext(ctx).
		Where("user_id = ? AND is_used = ? AND expires_at > ?", userID, false, s.Now()).
		Order("expires_at ASC").
		Find(&credits).Error; err != nil {
		return nil, err
	}
	return s.view(credits), nil
}

func (s *CreditLedger) findByCode(tx *gorm.DB, code string) (*models.CommunityCredit, error) {
	var c models.CommunityCredit
	if err := tx.Where("redemption_code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}
	return &c, nil
}

// MarkUsed records that a city official honored a redemption code.
func (s *CreditLedger) MarkUsed(ctx context.Context, code, notes string) (*models.CommunityCredit, error) {
	var credit *models.CommunityCredit
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.findByCode(tx, code)
		if err != nil {
			return err
		}

		now := s.Now()
		switch RedemptionStatus(c, now) {
		case models.RedemptionRedeemed:
			return ErrRedemptionUsed
		case models.RedemptionExpired:
			return ErrRedemptionExpired
		}

		updates := map[string]any{"is_used": true, "used_at": now}
		if notes != "" {
			updates["notes"] = notes
		}
		res := tx.Model(&models.CommunityCredit{}).Where("id = ? AND is_used = ?", c.ID, false).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("mark used: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrRedemptionUsed
		}

		c.IsUsed = true
		c.UsedAt = &now
		if notes != "" {
			c.Notes = notes
		}
		credit = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credit, nil
}

// FindOwned returns the user's redemption for code. Codes owned by someone else are reported
// as not found.
func (s *CreditLedger) FindOwned(ctx context.Context, userID, code string) (*models.CommunityCredit, error) {
	c, err := s.findByCode(s.DB.WithContext(ctx), code)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrRedemptionNotFound
	}
	return c, nil
}

// AttachProof stores the URL of an uploaded proof document on the user's redemption.
func (s *CreditLedger) AttachProof(ctx context.Context, userID, code, url string) (*models.CommunityCredit, error) {
	c, err := s.FindOwned(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(c).Update("proof_url", url).Error; err != nil {
		return nil, fmt.Errorf("attach proof: %w", err)
	}
	c.ProofURL = url
	return c, nil
}

// GrantCredits adds amount to the user's balance outside of a level-up.
func (s *CreditLedger) GrantCredits(ctx context.Context, userID string, amount int64, reason string) error {
	if amount <= 0 {
		return NewValidationError("amount must be positive", nil)
	}
	res := s.DB.WithContext(ctx).Model(&models.CivicProfile{}).
		Where("user_id = ?", userID).
		Update("community_credits", gorm.Expr("community_credits + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("grant credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}

	s.notify(ctx, &models.Notification{
		RecipientID: userID,
		Type:        models.NotificationMonthlyCredits,
		Title:       "💳 Community Credits Added",
		Message:     fmt.Sprintf("You received %d community credits: %s", amount, reason),
		ContentType: "credit",
		Data:        map[string]any{"amount": amount, "reason": reason},
	})
	return nil
}

func (s *CreditLedger) notify(ctx context.Context, n *models.Notification) {
	if s.Sink == nil {
		return
	}
	if err := s.Sink.CreateNotification(ctx, n); err != nil {
		s.log.Error("failed to create notification",
			zap.String("user_id", n.RecipientID),
			zap.String("type", n.Type),
			zap.Error(err))
	}
}
