package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CivicActivity is an append-only audit entry behind the points balance.
type CivicActivity struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string         `gorm:"index:idx_activity_user_created,priority:1;not null" json:"user_id"`
	ActivityType string         `gorm:"size:50;not null;index" json:"activity_type"`
	PointsEarned int64          `gorm:"not null" json:"points_earned"`
	Description  string         `gorm:"type:text" json:"description"`
	Metadata     map[string]any `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index:idx_activity_user_created,priority:2" json:"created_at"`
}

func (CivicActivity) TableName() string {
	return "civic_activities"
}

func (a *CivicActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
