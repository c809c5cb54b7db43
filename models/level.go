package models

// Level is one rung of the static civic level ladder. Seeded at startup, never mutated by
// user actions.
type Level struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	Level     int    `gorm:"uniqueIndex;not null" json:"level"`
	Name      string `gorm:"not null" json:"name"`
	MinPoints int64  `gorm:"not null" json:"min_points"`
	Icon      string `gorm:"size:16" json:"icon"`
	Color     string `gorm:"size:7" json:"color"`

	// Benefits unlocked at this level
	PriorityResponse   bool  `json:"priority_response"`
	DirectMessaging    bool  `json:"direct_messaging"`
	EventPriority      bool  `json:"event_priority"`
	ConsultationAccess bool  `json:"consultation_access"`
	CommunityCredits   int64 `json:"community_credits"` // granted on reaching the level, and monthly when enabled
}

func (Level) TableName() string {
	return "civic_levels"
}
