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

// counter columns on civic_profiles
const (
	colIssuesReported     = "issues_reported"
	colIssuesResolved     = "issues_resolved"
	colEventsAttended     = "events_attended"
	colForumContributions = "forum_contributions"
)

var streakMilestones = map[int]string{
	7:   ActivityStreak7Days,
	30:  ActivityStreak30Days,
	365: ActivityStreak365Days,
}

// Ledger owns every write to a civic profile: points, counters, streaks, levels and
// achievement unlocks. Each public method is one transaction.
type Ledger struct {
	DB       *gorm.DB
	Catalog  Catalog
	Sink     NotificationSink
	Board    *Leaderboard
	Location *time.Location
	Now      func() time.Time

	log *zap.Logger
}

func NewLedger(db *gorm.DB, catalog Catalog, sink NotificationSink, log *zap.Logger) *Ledger {
	return &Ledger{
		DB:       db,
		Catalog:  catalog,
		Sink:     sink,
		Location: time.UTC,
		Now:      time.Now,
		log:      log.Named("ledger"),
	}
}

// change is the in-flight state of one profile mutation.
type change struct {
	tx      *gorm.DB
	profile *models.CivicProfile
	notes   []*models.Notification
}

func (c *change) notify(n *models.Notification) {
	n.RecipientID = c.profile.UserID
	c.notes = append(c.notes, n)
}

func (c *change) reload() error {
	var p models.CivicProfile
	if err := c.tx.Where("id = ?", c.profile.ID).First(&p).Error; err != nil {
		return fmt.Errorf("reload profile: %w", err)
	}
	c.profile = &p
	return nil
}

// addPoints bumps total_points and appends the matching activity row.
func (c *change) addPoints(points int64, activityType, description string, metadata map[string]any) error {
	if err := c.tx.Model(&models.CivicProfile{}).
		Where("id = ?", c.profile.ID).
		Update("total_points", gorm.Expr("total_points + ?", points)).Error; err != nil {
		return fmt.Errorf("increment points: %w", err)
	}

	activity := models.CivicActivity{
		UserID:       c.profile.UserID,
		ActivityType: activityType,
		PointsEarned: points,
		Description:  description,
		Metadata:     metadata,
	}
	if err := c.tx.Create(&activity).Error; err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (c *change) increment(column string, by int64) error {
	if err := c.tx.Model(&models.CivicProfile{}).
		Where("id = ?", c.profile.ID).
		Update(column, gorm.Expr(column+" + ?", by)).Error; err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// counterColumn maps an activity type to the engagement counter it feeds, if any.
func counterColumn(activityType string) (string, bool) {
	switch activityType {
	case ActivityIssueReported:
		return colIssuesReported, true
	case ActivityIssueResolved:
		return colIssuesResolved, true
	case ActivityEventAttended:
		return colEventsAttended, true
	case ActivityForumPost, ActivityForumComment, ActivityPollVoted:
		return colForumContributions, true
	}
	return "", false
}

// mutate runs fn inside a transaction and then, before commit, always re-runs level
// detection and achievement evaluation. Notifications queued on the change are delivered
// only after the commit succeeds.
func (l *Ledger) mutate(ctx context.Context, userID string, fn func(c *change) error) (*models.CivicProfile, error) {
	var ch *change
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := profileFor(tx, userID)
		if err != nil {
			return err
		}
		ch = &change{tx: tx, profile: profile}

		if err := fn(ch); err != nil {
			return err
		}
		if err := ch.reload(); err != nil {
			return err
		}
		if err := l.detectLevelUp(ch); err != nil {
			return err
		}
		return l.evaluate(ch)
	})
	if err != nil {
		return nil, err
	}

	l.deliver(ctx, ch.notes)
	if l.Board != nil {
		l.Board.Record(ctx, ch.profile.UserID, ch.profile.TotalPoints)
	}
	return ch.profile, nil
}

// profileFor fetches the user's profile, creating an empty one on first use.
func profileFor(tx *gorm.DB, userID string) (*models.CivicProfile, error) {
	var p models.CivicProfile
	err := tx.Where("user_id = ?", userID).First(&p).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	p = models.CivicProfile{UserID: userID, AchievementsUnlocked: []string{}}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	// a concurrent request may have won the insert
	var stored models.CivicProfile
	if err := tx.Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &stored, nil
}

// AwardPoints credits the catalog value of activityType to the user. Unknown activity types
// return (nil, nil) and write nothing.
func (l *Ledger) AwardPoints(ctx context.Context, userID, activityType, description string, metadata map[string]any) (*int64, error) {
	points, ok := l.Catalog.PointsFor(activityType)
	if !ok {
		l.log.Debug("ignoring unknown activity type",
			zap.String("user_id", userID),
			zap.String("activity_type", activityType))
		return nil, nil
	}

	profile, err := l.mutate(ctx, userID, func(c *change) error {
		if err := c.addPoints(points, activityType, description, metadata); err != nil {
			return err
		}
		if column, ok := counterColumn(activityType); ok {
			return c.increment(column, 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("🏅 Points awarded",
		zap.String("user_id", userID),
		zap.String("activity_type", activityType),
		zap.Int64("points", points),
		zap.Int64("total_points", profile.TotalPoints),
		zap.Int("level", profile.LevelNumber()))
	return &points, nil
}

// AdjustPoints applies an administrative correction. It is the only path that can lower
// total points; the level is never lowered.
func (l *Ledger) AdjustPoints(ctx context.Context, userID string, delta int64, reason string) (*models.CivicProfile, error) {
	if delta == 0 {
		return nil, NewValidationError("delta must be non-zero", nil)
	}
	return l.mutate(ctx, userID, func(c *change) error {
		if c.profile.TotalPoints+delta < 0 {
			delta = -c.profile.TotalPoints
		}
		return c.addPoints(delta, ActivityAdminCorrection, reason, map[string]any{"delta": delta})
	})
}

// UpdateStreak advances the daily activity streak. Calling it again on the same day is a
// no-op for the counters.
func (l *Ledger) UpdateStreak(ctx context.Context, userID string) (*models.CivicProfile, error) {
	today := civilDate(l.Now(), l.Location)

	return l.mutate(ctx, userID, func(c *change) error {
		p := c.profile
		current, longest := nextStreak(p.CurrentStreakDays, p.LongestStreakDays, p.LastActivityDate, today)

		if err := c.tx.Model(&models.CivicProfile{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{
				"current_streak_days": current,
				"longest_streak_days": longest,
				"last_activity_date":  today,
			}).Error; err != nil {
			return fmt.Errorf("update streak: %w", err)
		}

		if current == p.CurrentStreakDays && p.LastActivityDate != nil {
			return nil
		}
		activity, ok := streakMilestones[current]
		if !ok {
			return nil
		}
		points, ok := l.Catalog.PointsFor(activity)
		if !ok {
			return nil
		}
		return c.addPoints(points, activity, fmt.Sprintf("%d-day activity streak", current), map[string]any{"streak_days": current})
	})
}

// nextStreak computes the streak counters for an activity on today.
func nextStreak(current, longest int, last *time.Time, today time.Time) (int, int) {
	if last == nil {
		current = 1
	} else {
		switch days := daysBetween(*last, today); {
		case days == 1:
			current++
		case days > 1:
			current = 1
		}
	}
	if current > longest {
		longest = current
	}
	return current, longest
}

// civilDate returns the calendar date of t in loc as midnight UTC, the form stored in
// last_activity_date.
func civilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// EnsureProfile returns the user's profile, creating it and placing it on level 1 when the
// ladder allows that at its current points.
func (l *Ledger) EnsureProfile(ctx context.Context, userID string) (*models.CivicProfile, error) {
	var profile *models.CivicProfile
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := profileFor(tx, userID)
		if err != nil {
			return err
		}
		profile = p
		if p.CurrentLevel != nil {
			return nil
		}

		var first models.Level
		if err := tx.Where("level = ?", 1).First(&first).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if first.MinPoints > p.TotalPoints {
			return nil
		}
		if err := tx.Model(&models.CivicProfile{}).
			Where("id = ? AND current_level IS NULL", p.ID).
			Update("current_level", first.Level).Error; err != nil {
			return fmt.Errorf("assign first level: %w", err)
		}
		lvl := first.Level
		profile.CurrentLevel = &lvl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// GetProfile returns the stored profile or ErrProfileNotFound.
func (l *Ledger) GetProfile(ctx context.Context, userID string) (*models.CivicProfile, error) {
	var p models.CivicProfile
	if err := l.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

// detectLevelUp moves the profile to the highest level its points qualify for. Levels only
// ever go up.
func (l *Ledger) detectLevelUp(c *change) error {
	p := c.profile

	var next models.Level
	err := c.tx.Where("min_points <= ?", p.TotalPoints).Order("level DESC").First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find level: %w", err)
	}

	oldLevel := p.LevelNumber()
	if p.CurrentLevel != nil && next.Level <= oldLevel {
		return nil
	}

	res := c.tx.Model(&models.CivicProfile{}).
		Where("id = ?", p.ID).
		Where("current_level IS NULL OR current_level < ?", next.Level).
		Updates(map[string]any{
			"current_level":     next.Level,
			"community_credits": gorm.Expr("community_credits + ?", next.CommunityCredits),
			"priority_status":   next.PriorityResponse,
		})
	if res.Error != nil {
		return fmt.Errorf("level up: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	c.notify(&models.Notification{
		Type:        models.NotificationLevelUp,
		Title:       fmt.Sprintf("🎉 Level Up! Welcome to %s", next.Name),
		Message:     fmt.Sprintf("You've reached Level %d! You earned %d community credits.", next.Level, next.CommunityCredits),
		Priority:    models.PriorityMedium,
		ContentType: "level",
		ObjectID:    fmt.Sprint(next.Level),
		Data: map[string]any{
			"old_level":      oldLevel,
			"new_level":      next.Level,
			"credits_earned": next.CommunityCredits,
		},
	})
	l.log.Info("⬆️ Level up",
		zap.String("user_id", p.UserID),
		zap.Int("old_level", oldLevel),
		zap.Int("new_level", next.Level))

	return c.reload()
}

// deliver hands queued notifications to the sink. Failures are logged, never returned.
func (l *Ledger) deliver(ctx context.Context, notes []*models.Notification) {
	if l.Sink == nil {
		return
	}
	for _, n := range notes {
		if err := l.Sink.CreateNotification(ctx, n); err != nil {
			l.log.Error("failed to create notification",
				zap.String("user_id", n.RecipientID),
				zap.String("type", n.Type),
				zap.Error(err))
		}
	}
}

// Activities returns the user's most recent activity rows, newest first.
func (l *Ledger) Activities(ctx context.Context, userID string, limit int) ([]models.CivicActivity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.CivicActivity
	err := l.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Levels returns the ladder in ascending order.
func (l *Ledger) Levels(ctx context.Context) ([]models.Level, error) {
	var out []models.Level
	err := l.DB.WithContext(ctx).Order("level ASC").Find(&out).Error
	return out, err
}

// NextLevel returns the first level above the profile's current one, or nil at the top.
func (l *Ledger) NextLevel(ctx context.Context, p *models.CivicProfile) (*models.Level, error) {
	var next models.Level
	err := l.DB.WithContext(ctx).Where("level > ?", p.LevelNumber()).Order("level ASC").First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &next, nil
}
