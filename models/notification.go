package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification types emitted by this service
const (
	NotificationLevelUp             = "level_up"
	NotificationAchievementUnlocked = "achievement_unlocked"
	NotificationCreditRedeemed      = "credit_redeemed"
	NotificationNewEvent            = "new_event"
	NotificationEventUpdate         = "event_update"
	NotificationMonthlyCredits      = "monthly_credits"
	NotificationRedemptionExpiring  = "redemption_expiring"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Notification is an in-app message for one recipient.
type Notification struct {
	ID          string               `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RecipientID string               `gorm:"index:idx_notification_recipient_read,priority:1;not null" json:"recipient_id"`
	Type        string               `gorm:"size:50;not null;index:idx_notification_type_created,priority:1" json:"type"`
	Title       string               `gorm:"size:200;not null" json:"title"`
	Message     string               `gorm:"type:text" json:"message"`
	Priority    NotificationPriority `gorm:"size:20;not null;default:'medium'" json:"priority"`
	ContentType string               `gorm:"size:50" json:"content_type,omitempty"` // 'event', 'credit', 'achievement'
	ObjectID    string               `gorm:"size:100" json:"object_id,omitempty"`
	Data        map[string]any       `gorm:"serializer:json;type:text" json:"data,omitempty"`
	IsRead      bool                 `gorm:"not null;default:false;index:idx_notification_recipient_read,priority:2" json:"is_read"`
	CreatedAt   time.Time            `gorm:"autoCreateTime;index:idx_notification_type_created,priority:2" json:"created_at"`
	ReadAt      *time.Time           `json:"read_at,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	return nil
}
