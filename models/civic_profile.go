package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CivicProfile is the per-user aggregate of points, level, credits and engagement counters.
// Counters only ever grow; TotalPoints decreases only through an explicit admin correction.
type CivicProfile struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // links to the accounts service

	// Core progression
	TotalPoints  int64 `json:"total_points" gorm:"not null;default:0"`
	CurrentLevel *int  `json:"current_level"` // nil means below level 1

	// Activity counters
	IssuesReported     int64 `json:"issues_reported" gorm:"not null;default:0"`
	IssuesResolved     int64 `json:"issues_resolved" gorm:"not null;default:0"`
	EventsAttended     int64 `json:"events_attended" gorm:"not null;default:0"`
	ForumContributions int64 `json:"forum_contributions" gorm:"not null;default:0"`

	// Real-world benefits
	CommunityCredits int64 `json:"community_credits" gorm:"not null;default:0"`
	PriorityStatus   bool  `json:"priority_status" gorm:"not null;default:false"`

	// Streaks
	CurrentStreakDays int        `json:"current_streak_days" gorm:"not null;default:0"`
	LongestStreakDays int        `json:"longest_streak_days" gorm:"not null;default:0"`
	LastActivityDate  *time.Time `json:"last_activity_date,omitempty" gorm:"type:date"`

	// Mirrors the user_achievements rows for this user; written in the same transaction.
	AchievementsUnlocked []string `json:"achievements_unlocked" gorm:"serializer:json;type:text"`

	Timestamps
}

func (CivicProfile) TableName() string {
	return "civic_profiles"
}

func (p *CivicProfile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.AchievementsUnlocked == nil {
		p.AchievementsUnlocked = []string{}
	}
	return nil
}

// LevelNumber returns the current level, 0 when the profile is below level 1.
func (p *CivicProfile) LevelNumber() int {
	if p.CurrentLevel == nil {
		return 0
	}
	return *p.CurrentLevel
}

// HasAchievement reports whether the achievement ID is already in the unlocked list.
func (p *CivicProfile) HasAchievement(achievementID string) bool {
	for _, id := range p.AchievementsUnlocked {
		if id == achievementID {
			return true
		}
	}
	return false
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
