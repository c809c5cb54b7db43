package services

import (
	"context"
	"fmt"

	"civic-rewards/models"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// CounterFor returns the profile counter an achievement criterion is measured against.
// Unknown kinds count as zero and never unlock.
func CounterFor(p *models.CivicProfile, kind models.CriterionKind) int64 {
	switch kind {
	case models.CriterionIssues:
		return p.IssuesReported
	case models.CriterionResolved:
		return p.IssuesResolved
	case models.CriterionEvents:
		return p.EventsAttended
	case models.CriterionForum:
		return p.ForumContributions
	case models.CriterionStreak:
		return int64(p.CurrentStreakDays)
	default:
		return 0
	}
}

// EvaluateAchievements unlocks every achievement the user currently qualifies for.
func (l *Ledger) EvaluateAchievements(ctx context.Context, userID string) (*models.CivicProfile, error) {
	return l.mutate(ctx, userID, func(*change) error { return nil })
}

// evaluate unlocks, in one pass, every active achievement whose threshold the profile meets.
// The (user_id, achievement_id) unique index decides whether an unlock happened, so a
// repeated or concurrent evaluation never awards twice.
func (l *Ledger) evaluate(c *change) error {
	var achievements []models.Achievement
	if err := c.tx.Where("is_active = ?", true).Order("criterion_value ASC").Find(&achievements).Error; err != nil {
		return fmt.Errorf("load achievements: %w", err)
	}

	p := c.profile
	var unlocked []models.Achievement
	for _, a := range achievements {
		if p.HasAchievement(a.ID) || CounterFor(p, a.CriterionType) < a.CriterionValue {
			continue
		}

		ua := models.UserAchievement{UserID: p.UserID, AchievementID: a.ID}
		res := c.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ua)
		if res.Error != nil {
			return fmt.Errorf("unlock %s: %w", a.Code, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		unlocked = append(unlocked, a)
	}
	if len(unlocked) == 0 {
		return nil
	}

	ids := append([]string{}, p.AchievementsUnlocked...)
	for _, a := range unlocked {
		if a.PointsReward != 0 {
			if err := c.addPoints(a.PointsReward, ActivityAchievementUnlocked,
				fmt.Sprintf("Achievement unlocked: %s", a.Name),
				map[string]any{"achievement_id": a.ID}); err != nil {
				return err
			}
		}
		if a.CreditsReward != 0 {
			if err := c.increment("community_credits", a.CreditsReward); err != nil {
				return err
			}
		}
		ids = append(ids, a.ID)

		c.notify(&models.Notification{
			Type:        models.NotificationAchievementUnlocked,
			Title:       fmt.Sprintf("🏆 Achievement Unlocked: %s", a.Name),
			Message:     fmt.Sprintf("You earned %d points and %d credits!", a.PointsReward, a.CreditsReward),
			Priority:    models.PriorityMedium,
			ContentType: "achievement",
			ObjectID:    a.ID,
			Data: map[string]any{
				"achievement_id":   a.ID,
				"achievement_name": a.Name,
				"rarity":           a.Rarity,
			},
		})
		l.log.Info("🎖️ Achievement unlocked",
			zap.String("user_id", p.UserID),
			zap.String("achievement", a.Code))
	}

	if err := c.tx.Model(&models.CivicProfile{}).
		Where("id = ?", p.ID).
		Select("achievements_unlocked").
		Updates(models.CivicProfile{AchievementsUnlocked: ids}).Error; err != nil {
		return fmt.Errorf("record unlocked achievements: %w", err)
	}
	if err := c.reload(); err != nil {
		return err
	}

	// bonus points can cross a level threshold
	return l.detectLevelUp(c)
}

// AchievementProgress is an achievement with the caller's standing against it.
type AchievementProgress struct {
	models.Achievement
	Unlocked bool  `json:"unlocked"`
	Progress int64 `json:"progress"`
}

// Achievements lists active achievements with the user's progress towards each.
func (l *Ledger) Achievements(ctx context.Context, userID string) ([]AchievementProgress, error) {
	var achievements []models.Achievement
	if err := l.DB.WithContext(ctx).Where("is_active = ?", true).Order("criterion_type, criterion_value").Find(&achievements).Error; err != nil {
		return nil, err
	}

	var p models.CivicProfile
	if err := l.DB.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}

	out := make([]AchievementProgress, 0, len(achievements))
	for _, a := range achievements {
		progress := CounterFor(&p, a.CriterionType)
		if progress > a.CriterionValue {
			progress = a.CriterionValue
		}
		out = append(out, AchievementProgress{
			Achievement: a,
			Unlocked:    p.HasAchievement(a.ID),
			Progress:    progress,
		})
	}
	return out, nil
}

// UserAchievements returns the user's unlocks, most recent first.
func (l *Ledger) UserAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	var out []models.UserAchievement
	err := l.DB.WithContext(ctx).
		Preload("Achievement").
		Where("user_id = ?", userID).
		Order("unlocked_at DESC").
		Find(&out).Error
	return out, err
}
