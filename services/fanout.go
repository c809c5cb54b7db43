package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civic-rewards/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventCreated is published by the events service after a new event is stored.
type EventCreated struct {
	EventID       string    `json:"event_id" validate:"required"`
	Title         string    `json:"title" validate:"required"`
	LocationName  string    `json:"location_name"`
	IsOnline      bool      `json:"is_online"`
	StartDate     time.Time `json:"start_date" validate:"required"`
	OrganizerID   string    `json:"organizer_id" validate:"required"`
	OrganizerName string    `json:"organizer_name"`
	OrganizerRole string    `json:"organizer_role" validate:"required"`
}

// Update types carried by EventUpdated
const (
	UpdateScheduleChange = "schedule_change"
	UpdateLocationChange = "location_change"
	UpdateCancellation   = "cancellation"
	UpdateReminder       = "reminder"
	UpdateImportant      = "important"
	UpdateGeneral        = "general"
)

// EventUpdated is published by the events service when an organizer posts an update.
type EventUpdated struct {
	EventID          string `json:"event_id" validate:"required"`
	EventTitle       string `json:"event_title" validate:"required"`
	UpdateType       string `json:"update_type" validate:"required"`
	Content          string `json:"content" validate:"required"`
	IsUrgent         bool   `json:"is_urgent"`
	NotifyAttendees  bool   `json:"notify_attendees"`
	NotifyVolunteers bool   `json:"notify_volunteers"`
}

// FanoutReport summarizes one fan-out run.
type FanoutReport struct {
	Recipients      int `json:"recipients"`
	InApp           int `json:"in_app"`
	WhatsAppSent    int `json:"whatsapp_sent"`
	WhatsAppSkipped int `json:"whatsapp_skipped"`
	Failed          int `json:"failed"`
}

// Fanout delivers event notifications to many recipients: in-app first, then WhatsApp for
// recipients who opted in. A failure for one recipient never stops the others.
type Fanout struct {
	DB        *gorm.DB
	Sink      NotificationSink
	Messenger Messenger
	Location  *time.Location
	Now       func() time.Time

	log *zap.Logger
}

func NewFanout(db *gorm.DB, sink NotificationSink, messenger Messenger, log *zap.Logger) *Fanout {
	return &Fanout{
		DB:        db,
		Sink:      sink,
		Messenger: messenger,
		Location:  time.UTC,
		Now:       time.Now,
		log:       log.Named("fanout"),
	}
}

type delivery struct {
	note     *models.Notification
	whatsapp string
}

// OnEventCreated notifies every active citizen about an event created by an official or
// admin. Events created by anyone else are ignored.
func (f *Fanout) OnEventCreated(ctx context.Context, ev EventCreated) (*FanoutReport, error) {
	report := &FanoutReport{}
	if ev.OrganizerRole != models.RoleOfficial && ev.OrganizerRole != models.RoleAdmin {
		return report, nil
	}

	var citizens []models.Citizen
	if err := f.DB.WithContext(ctx).
		Where("role = ? AND is_active = ?", models.RoleCitizen, true).
		Find(&citizens).Error; err != nil {
		return nil, fmt.Errorf("load citizens: %w", err)
	}

	f.log.Info("📣 New event fan-out",
		zap.String("event_id", ev.EventID),
		zap.String("organizer", ev.OrganizerName),
		zap.Int("recipients", len(citizens)))

	local := ev
	local.StartDate = ev.StartDate.In(f.location())
	body := NewEventMessage(local)
	for i := range citizens {
		f.deliver(ctx, &citizens[i], delivery{
			note: &models.Notification{
				Type:        models.NotificationNewEvent,
				Title:       fmt.Sprintf("New Event: %s", ev.Title),
				Message:     fmt.Sprintf("%s has created a new event. Check it out!", ev.OrganizerName),
				Priority:    models.PriorityMedium,
				ContentType: "event",
				ObjectID:    ev.EventID,
				Data: map[string]any{
					"event_id":    ev.EventID,
					"event_title": ev.Title,
					"organizer":   ev.OrganizerName,
					"start_date":  ev.StartDate.Format(time.RFC3339),
				},
			},
			whatsapp: body,
		}, report)
	}
	return report, nil
}

// OnEventUpdated notifies approved attendees and confirmed volunteers, as selected by the
// update's flags. A user who is both is notified once.
func (f *Fanout) OnEventUpdated(ctx context.Context, up EventUpdated) (*FanoutReport, error) {
	report := &FanoutReport{}

	ids, err := f.updateRecipients(ctx, up)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return report, nil
	}

	var citizens []models.Citizen
	if err := f.DB.WithContext(ctx).Where("user_id IN ?", ids).Find(&citizens).Error; err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	byID := make(map[string]*models.Citizen, len(citizens))
	for i := range citizens {
		byID[citizens[i].UserID] = &citizens[i]
	}

	f.log.Info("📣 Event update fan-out",
		zap.String("event_id", up.EventID),
		zap.String("update_type", up.UpdateType),
		zap.Int("recipients", len(ids)))

	priority := models.PriorityMedium
	if up.IsUrgent {
		priority = models.PriorityHigh
	}
	body := EventUpdateMessage(up)

	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			// not mirrored yet: in-app only
			c = &models.Citizen{UserID: id}
		}
		f.deliver(ctx, c, delivery{
			note: &models.Notification{
				Type:        models.NotificationEventUpdate,
				Title:       fmt.Sprintf("Event Update: %s", up.EventTitle),
				Message:     up.Content,
				Priority:    priority,
				ContentType: "event",
				ObjectID:    up.EventID,
				Data: map[string]any{
					"event_id":    up.EventID,
					"update_type": up.UpdateType,
					"is_urgent":   up.IsUrgent,
				},
			},
			whatsapp: body,
		}, report)
	}
	return report, nil
}

func (f *Fanout) updateRecipients(ctx context.Context, up EventUpdated) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	add := func(list []string) {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if up.NotifyAttendees {
		var attendees []string
		if err := f.DB.WithContext(ctx).Model(&models.EventRSVP{}).
			Where("event_id = ? AND status = ? AND is_approved = ?", up.EventID, models.RSVPAttending, true).
			Order("id").
			Pluck("user_id", &attendees).Error; err != nil {
			return nil, fmt.Errorf("load attendees: %w", err)
		}
		add(attendees)
	}
	if up.NotifyVolunteers {
		var volunteers []string
		if err := f.DB.WithContext(ctx).Model(&models.EventVolunteer{}).
			Where("event_id = ? AND is_confirmed = ?", up.EventID, true).
			Order("id").
			Pluck("user_id", &volunteers).Error; err != nil {
			return nil, fmt.Errorf("load volunteers: %w", err)
		}
		add(volunteers)
	}
	return ids, nil
}

// deliver handles one recipient. Errors and panics are logged and counted; they never
// escape to the caller.
func (f *Fanout) deliver(ctx context.Context, c *models.Citizen, d delivery, report *FanoutReport) {
	report.Recipients++
	defer func() {
		if r := recover(); r != nil {
			report.Failed++
			f.log.Error("recipient delivery panicked",
				zap.String("user_id", c.UserID),
				zap.Any("panic", r))
		}
	}()

	prefs, err := f.preferencesFor(ctx, c.UserID)
	if err != nil {
		report.Failed++
		f.log.Error("failed to load notification preferences", zap.String("user_id", c.UserID), zap.Error(err))
		return
	}

	d.note.RecipientID = c.UserID
	if err := f.Sink.CreateNotification(ctx, d.note); err != nil {
		report.Failed++
		f.log.Error("failed to create in-app notification",
			zap.String("user_id", c.UserID),
			zap.String("channel", "in_app"),
			zap.Error(err))
		return
	}
	report.InApp++

	if reason := f.whatsAppBlocked(c, prefs); reason != "" {
		report.WhatsAppSkipped++
		f.log.Debug("skipping whatsapp",
			zap.String("user_id", c.UserID),
			zap.String("channel", "whatsapp"),
			zap.String("reason", reason))
		return
	}

	if _, err := f.Messenger.SendMessage(ctx, c.PhoneNumber, d.whatsapp); err != nil {
		report.Failed++
		f.log.Warn("failed to send whatsapp",
			zap.String("user_id", c.UserID),
			zap.String("channel", "whatsapp"),
			zap.String("reason", err.Error()))
		return
	}
	report.WhatsAppSent++
}

// whatsAppBlocked returns why a WhatsApp message must not go out, or "" when it may.
func (f *Fanout) whatsAppBlocked(c *models.Citizen, prefs *models.NotificationPreference) string {
	switch {
	case f.Messenger == nil || !f.Messenger.Configured():
		return "channel not configured"
	case !prefs.WhatsAppEnabled || !prefs.WhatsAppVerified || !prefs.WhatsAppEventReminders:
		return "not opted in"
	case c.PhoneNumber == "":
		return "no phone number"
	case prefs.QuietHoursEnabled && prefs.QuietHoursStart != "" && prefs.QuietHoursEnd != "" &&
		InQuietHours(prefs.QuietHoursStart, prefs.QuietHoursEnd, f.Now().In(f.location())):
		return "quiet hours"
	}
	return ""
}

func (f *Fanout) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// preferencesFor loads the user's preferences, storing the defaults when none exist.
func (f *Fanout) preferencesFor(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	var prefs models.NotificationPreference
	err := f.DB.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	if err == nil {
		return &prefs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	defaults := models.DefaultNotificationPreference(userID)
	if err := f.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(defaults).Error; err != nil {
		return nil, err
	}
	return defaults, nil
}
