package services

import (
	"context"
	"fmt"

	"civic-rewards/models"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedCatalog upserts the level ladder and achievement set from the catalog. Achievements
// are keyed by the slug of their name, so renaming one creates a new row.
func SeedCatalog(ctx context.Context, db *gorm.DB, catalog Catalog, log *zap.Logger) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range catalog.Levels {
			lvl := models.Level{
				Level:              def.Level,
				Name:               def.Name,
				MinPoints:          def.MinPoints,
				Icon:               def.Icon,
				Color:              def.Color,
				PriorityResponse:   def.PriorityResponse,
				DirectMessaging:    def.DirectMessaging,
				EventPriority:      def.EventPriority,
				ConsultationAccess: def.ConsultationAccess,
				CommunityCredits:   def.CommunityCredits,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "level"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "min_points", "icon", "color", "priority_response",
					"direct_messaging", "event_priority", "consultation_access", "community_credits",
				}),
			}).Create(&lvl).Error; err != nil {
				return fmt.Errorf("seed level %d: %w", def.Level, err)
			}
		}

		for _, def := range catalog.Achievements {
			a := models.Achievement{
				Code:               slug.Make(def.Name),
				Name:               def.Name,
				Description:        def.Description,
				Icon:               def.Icon,
				CriterionType:      def.Criterion,
				CriterionValue:     def.Threshold,
				PointsReward:       def.Points,
				CreditsReward:      def.Credits,
				Rarity:             def.Rarity,
				SpecialRecognition: def.SpecialRecognition,
				IsActive:           true,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "code"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "description", "icon", "criterion_type", "criterion_value",
					"points_reward", "credits_reward", "rarity", "special_recognition", "is_active",
				}),
			}).Create(&a).Error; err != nil {
				return fmt.Errorf("seed achievement %q: %w", def.Name, err)
			}
		}

		log.Info("🌱 Rewards catalog seeded",
			zap.Int("levels", len(catalog.Levels)),
			zap.Int("achievements", len(catalog.Achievements)))
		return nil
	})
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CivicProfile{},
		&models.Level{},
		&models.CivicActivity{},
		&models.Achievement{},
		&models.UserAchievement{},
		&models.CommunityCredit{},
		&models.Notification{},
		&models.Citizen{},
		&models.NotificationPreference{},
		&models.EventRSVP{},
		&models.EventVolunteer{},
	)
}
