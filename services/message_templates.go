package services

import (
	"fmt"
)

var updateEmoji = map[string]string{
	UpdateScheduleChange: "⏰",
	UpdateLocationChange: "📍",
	UpdateCancellation:   "❌",
	UpdateReminder:       "🔔",
	UpdateImportant:      "⚠️",
	UpdateGeneral:        "ℹ️",
}

// NewEventMessage renders the WhatsApp announcement for a new event.
func NewEventMessage(ev EventCreated) string {
	location := ev.LocationName
	if ev.IsOnline {
		location = "Online Event"
	}
	return fmt.Sprintf("📅 *New Event Announced!*\n\n"+
		"*%s*\n\n"+
		"📍 *Location:* %s\n"+
		"🕒 *Date:* %s\n"+
		"👤 *Organizer:* %s\n\n"+
		"Check your Civic Platform dashboard for more details and to RSVP!",
		ev.Title, location, ev.StartDate.Format("January 02, 2006 at 03:04 PM"), ev.OrganizerName)
}

// EventUpdateMessage renders the WhatsApp message for an event update.
func EventUpdateMessage(up EventUpdated) string {
	emoji, ok := updateEmoji[up.UpdateType]
	if !ok {
		emoji = updateEmoji[UpdateGeneral]
	}
	return fmt.Sprintf("%s *Event Update*\n\n*%s*\n\n%s\n\nVisit your Civic Platform for full details.",
		emoji, up.EventTitle, up.Content)
}
