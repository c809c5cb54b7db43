package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles as issued by the accounts service
const (
	RoleCitizen  = "citizen"
	RoleOfficial = "official"
	RoleAdmin    = "admin"
)

// Citizen is a local snapshot of the accounts service user, used to resolve fan-out
// recipients and their contact address. Populated by the citizen sync worker.
type Citizen struct {
	UserID      string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `gorm:"index" json:"email,omitempty"`
	Role        string    `gorm:"size:20;not null;default:'citizen';index" json:"role"`
	PhoneNumber string    `gorm:"size:20" json:"phone_number,omitempty"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Citizen) TableName() string {
	return "citizens"
}

// NotificationPreference holds the per-user outbound channel settings. Quiet hours are
// wall-clock "HH:MM" strings in the service time zone.
type NotificationPreference struct {
	UserID string `gorm:"primaryKey;type:varchar(36)" json:"user_id"`

	WhatsAppEnabled        bool `gorm:"column:whatsapp_enabled;not null;default:false" json:"whatsapp_enabled"`
	WhatsAppVerified       bool `gorm:"column:whatsapp_verified;not null;default:false" json:"whatsapp_verified"`
	WhatsAppEventReminders bool `gorm:"column:whatsapp_event_reminders;not null" json:"whatsapp_event_reminders"`

	QuietHoursEnabled bool   `gorm:"not null;default:false" json:"quiet_hours_enabled"`
	QuietHoursStart   string `gorm:"size:5" json:"quiet_hours_start,omitempty"` // e.g. "22:00"
	QuietHoursEnd     string `gorm:"size:5" json:"quiet_hours_end,omitempty"`   // e.g. "08:00"

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// DefaultNotificationPreference mirrors the accounts service defaults: WhatsApp off until
// the user verifies a number.
func DefaultNotificationPreference(userID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:                 userID,
		WhatsAppEventReminders: true,
	}
}

// RSVP statuses
const (
	RSVPAttending    = "attending"
	RSVPMaybe        = "maybe"
	RSVPNotAttending = "not_attending"
)

// EventRSVP mirrors an RSVP held by the events service.
type EventRSVP struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EventID    string    `gorm:"uniqueIndex:idx_rsvp_event_user;not null" json:"event_id"`
	UserID     string    `gorm:"uniqueIndex:idx_rsvp_event_user;not null" json:"user_id"`
	Status     string    `gorm:"size:20;not null" json:"status"`
	IsApproved bool      `gorm:"not null" json:"is_approved"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (EventRSVP) TableName() string {
	return "event_rsvps"
}

// EventVolunteer mirrors a volunteer sign-up held by the events service.
type EventVolunteer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"uniqueIndex:idx_volunteer_event_user;not null" json:"event_id"`
	UserID      string    `gorm:"uniqueIndex:idx_volunteer_event_user;not null" json:"user_id"`
	Role        string    `gorm:"size:100" json:"role,omitempty"`
	IsConfirmed bool      `gorm:"not null;default:false" json:"is_confirmed"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (EventVolunteer) TableName() string {
	return "event_volunteers"
}
