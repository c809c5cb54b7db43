package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CriterionKind names the profile counter an achievement is measured against.
type CriterionKind string

const (
	CriterionIssues   CriterionKind = "issues"
	CriterionResolved CriterionKind = "resolved"
	CriterionEvents   CriterionKind = "events"
	CriterionForum    CriterionKind = "forum"
	CriterionStreak   CriterionKind = "streak"
)

// Achievement: static definition (seeded, looked up by Code)
type Achievement struct {
	ID                 string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Code               string        `gorm:"uniqueIndex;not null" json:"code"` // slug of the name, e.g. "first-report"
	Name               string        `gorm:"not null" json:"name"`
	Description        string        `json:"description"`
	Icon               string        `gorm:"size:16" json:"icon"`
	CriterionType      CriterionKind `gorm:"size:32;not null" json:"criteria_type"`
	CriterionValue     int64         `gorm:"not null" json:"criteria_value"`
	PointsReward       int64         `gorm:"not null;default:0" json:"points_reward"`
	CreditsReward      int64         `gorm:"not null;default:0" json:"credits_reward"`
	Rarity             string        `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	SpecialRecognition bool          `json:"special_recognition"`
	IsActive           bool          `gorm:"not null" json:"is_active"`
	CreatedAt          time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (a *Achievement) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// UserAchievement: unlocked instance. At most one row per (user, achievement).
type UserAchievement struct {
	ID            string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string      `gorm:"uniqueIndex:idx_user_achievement;not null" json:"user_id"`
	AchievementID string      `gorm:"uniqueIndex:idx_user_achievement;not null" json:"achievement_id"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement"`
	UnlockedAt    time.Time   `gorm:"autoCreateTime" json:"unlocked_at"`
}

func (u *UserAchievement) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
