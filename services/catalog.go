package services

import (
	"time"

	"civic-rewards/models"
)

// Activity types with a built-in point value
const (
	ActivityIssueReported   = "issue_reported"
	ActivityIssueResolved   = "issue_resolved"
	ActivityIssueVoted      = "issue_voted"
	ActivityEventAttended   = "event_attended"
	ActivityEventOrganized  = "event_organized"
	ActivityForumPost       = "forum_post"
	ActivityForumComment    = "forum_comment"
	ActivityPollVoted       = "poll_voted"
	ActivityPetitionSigned  = "petition_signed"
	ActivityVolunteerHour   = "volunteer_hour"
	ActivityProjectFeedback = "project_feedback"
	ActivityHelpfulVote     = "helpful_vote"
	ActivityStreak7Days     = "streak_7_days"
	ActivityStreak30Days    = "streak_30_days"
	ActivityStreak365Days   = "streak_365_days"

	// ledger-internal, never looked up in the points table
	ActivityAchievementUnlocked = "achievement_unlocked"
	ActivityAdminCorrection     = "admin_correction"
)

// LevelDef is one rung of the level ladder.
type LevelDef struct {
	Level              int
	Name               string
	MinPoints          int64
	Icon               string
	Color              string
	PriorityResponse   bool
	DirectMessaging    bool
	EventPriority      bool
	ConsultationAccess bool
	CommunityCredits   int64
}

// AchievementDef is a static counter-threshold rule.
type AchievementDef struct {
	Name               string
	Description        string
	Icon               string
	Criterion          models.CriterionKind
	Threshold          int64
	Points             int64
	Credits            int64
	Rarity             string
	SpecialRecognition bool
}

// Catalog is the static rewards configuration handed to the engines. It is loaded once at
// startup and never mutated.
type Catalog struct {
	Points        map[string]int64
	CreditCosts   map[models.CreditType]int64
	Levels        []LevelDef
	Achievements  []AchievementDef
	RedemptionTTL time.Duration
	CodeLength    int
}

func DefaultCatalog() Catalog {
	return Catalog{
		Points: map[string]int64{
			ActivityIssueReported:   10,
			ActivityIssueResolved:   50,
			ActivityIssueVoted:      2,
			ActivityEventAttended:   20,
			ActivityEventOrganized:  100,
			ActivityForumPost:       15,
			ActivityForumComment:    5,
			ActivityPollVoted:       5,
			ActivityPetitionSigned:  10,
			ActivityVolunteerHour:   10,
			ActivityProjectFeedback: 15,
			ActivityHelpfulVote:     3,
			ActivityStreak7Days:     50,
			ActivityStreak30Days:    200,
			ActivityStreak365Days:   1000,
		},
		CreditCosts: map[models.CreditType]int64{
			models.CreditTypeParking:      50,
			models.CreditTypePermit:       100,
			models.CreditTypeRecreation:   150,
			models.CreditTypeTransit:      75,
			models.CreditTypeEvent:        25,
			models.CreditTypeConsultation: 500,
			models.CreditTypeRecognition:  200,
		},
		Levels:        defaultLevels(),
		Achievements:  defaultAchievements(),
		RedemptionTTL: 90 * 24 * time.Hour,
		CodeLength:    8,
	}
}

func defaultLevels() []LevelDef {
	return []LevelDef{
		{Level: 1, Name: "New Citizen", MinPoints: 0, Icon: "🌱", Color: "#10B981", CommunityCredits: 10},
		{Level: 2, Name: "Active Neighbor", MinPoints: 100, Icon: "🏘️", Color: "#3B82F6", EventPriority: true, CommunityCredits: 25},
		{Level: 3, Name: "Community Helper", MinPoints: 300, Icon: "🤝", Color: "#6366F1", PriorityResponse: true, EventPriority: true, CommunityCredits: 50},
		{Level: 4, Name: "Civic Champion", MinPoints: 750, Icon: "🏆", Color: "#8B5CF6", PriorityResponse: true, DirectMessaging: true, EventPriority: true, CommunityCredits: 100},
		{Level: 5, Name: "Local Leader", MinPoints: 1500, Icon: "⭐", Color: "#EC4899", PriorityResponse: true, DirectMessaging: true, EventPriority: true, ConsultationAccess: true, CommunityCredits: 200},
		{Level: 6, Name: "City Ambassador", MinPoints: 3000, Icon: "👑", Color: "#F59E0B", PriorityResponse: true, DirectMessaging: true, EventPriority: true, ConsultationAccess: true, CommunityCredits: 500},
		{Level: 7, Name: "Urban Hero", MinPoints: 5000, Icon: "🦸", Color: "#EF4444", PriorityResponse: true, DirectMessaging: true, EventPriority: true, ConsultationAccess: true, CommunityCredits: 1000},
	}
}

func defaultAchievements() []AchievementDef {
	return []AchievementDef{
		{Name: "First Report", Description: "Report your first community issue", Icon: "📝", Criterion: models.CriterionIssues, Threshold: 1, Points: 20, Credits: 5, Rarity: "common"},
		{Name: "Problem Solver", Description: "Report 10 community issues", Icon: "🔧", Criterion: models.CriterionIssues, Threshold: 10, Points: 100, Credits: 25, Rarity: "rare"},
		{Name: "Change Maker", Description: "Have 5 of your reported issues resolved", Icon: "✨", Criterion: models.CriterionResolved, Threshold: 5, Points: 250, Credits: 100, Rarity: "epic"},
		{Name: "City Transformer", Description: "Have 25 of your reported issues resolved", Icon: "🌟", Criterion: models.CriterionResolved, Threshold: 25, Points: 1000, Credits: 500, Rarity: "legendary"},
		{Name: "Community Participant", Description: "Attend your first community event", Icon: "🎉", Criterion: models.CriterionEvents, Threshold: 1, Points: 30, Credits: 10, Rarity: "common"},
		{Name: "Event Enthusiast", Description: "Attend 10 community events", Icon: "🎊", Criterion: models.CriterionEvents, Threshold: 10, Points: 200, Credits: 50, Rarity: "rare"},
		{Name: "Super Volunteer", Description: "Attend 50 community events", Icon: "🦸‍♀️", Criterion: models.CriterionEvents, Threshold: 50, Points: 1500, Credits: 300, Rarity: "legendary"},
		{Name: "Voice Heard", Description: "Make your first forum contribution", Icon: "💬", Criterion: models.CriterionForum, Threshold: 1, Points: 15, Credits: 5, Rarity: "common"},
		{Name: "Discussion Leader", Description: "Make 50 forum contributions", Icon: "🗣️", Criterion: models.CriterionForum, Threshold: 50, Points: 300, Credits: 75, Rarity: "epic"},
		{Name: "Dedicated Week", Description: "Stay active 7 days in a row", Icon: "🔥", Criterion: models.CriterionStreak, Threshold: 7, Points: 100, Credits: 25, Rarity: "rare"},
		{Name: "Monthly Champion", Description: "Stay active 30 days in a row", Icon: "🏅", Criterion: models.CriterionStreak, Threshold: 30, Points: 500, Credits: 150, Rarity: "epic"},
		{Name: "Year-Round Hero", Description: "Stay active every day for a year", Icon: "🎖️", Criterion: models.CriterionStreak, Threshold: 365, Points: 5000, Credits: 2000, Rarity: "legendary", SpecialRecognition: true},
	}
}

// PointsFor returns the point value of activity; ok is false for unknown or zero-valued types.
func (c Catalog) PointsFor(activity string) (int64, bool) {
	v, ok := c.Points[activity]
	return v, ok && v != 0
}

// CostOf returns the redemption cost of t.
func (c Catalog) CostOf(t models.CreditType) (int64, bool) {
	if !t.Valid() {
		return 0, false
	}
	v, ok := c.CreditCosts[t]
	return v, ok
}

// WithOverrides returns a copy of c with non-empty overrides applied. Unknown credit types
// in costs are ignored.
func (c Catalog) WithOverrides(points, costs map[string]int64, ttlDays, codeLength int) Catalog {
	out := c
	out.Points = make(map[string]int64, len(c.Points))
	for k, v := range c.Points {
		out.Points[k] = v
	}
	for k, v := range points {
		out.Points[k] = v
	}

	out.CreditCosts = make(map[models.CreditType]int64, len(c.CreditCosts))
	for k, v := range c.CreditCosts {
		out.CreditCosts[k] = v
	}
	for k, v := range costs {
		if t := models.CreditType(k); t.Valid() {
			out.CreditCosts[t] = v
		}
	}

	if ttlDays > 0 {
		out.RedemptionTTL = time.Duration(ttlDays) * 24 * time.Hour
	}
	if codeLength > 0 && codeLength <= 20 {
		out.CodeLength = codeLength
	}
	return out
}
