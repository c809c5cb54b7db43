package services

import (
	"context"
	"fmt"
	"time"

	"civic-rewards/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Jobs holds the periodic maintenance tasks. Each method is safe to call directly.
type Jobs struct {
	DB      *gorm.DB
	Credits *CreditLedger
	Board   *Leaderboard
	Sink    NotificationSink
	Now     func() time.Time

	ReminderWindow time.Duration
	log            *zap.Logger
}

func NewJobs(db *gorm.DB, credits *CreditLedger, board *Leaderboard, sink NotificationSink, reminderDays int, log *zap.Logger) *Jobs {
	if reminderDays <= 0 {
		reminderDays = 7
	}
	return &Jobs{
		DB:             db,
		Credits:        credits,
		Board:          board,
		Sink:           sink,
		Now:            time.Now,
		ReminderWindow: time.Duration(reminderDays) * 24 * time.Hour,
		log:            log.Named("jobs"),
	}
}

// GrantMonthlyCredits gives every ranked profile its level's credit allowance. It returns
// how many profiles were credited.
func (j *Jobs) GrantMonthlyCredits(ctx context.Context) (int, error) {
	var rows []struct {
		UserID  string
		Name    string
		Credits int64
	}
	if err := j.DB.WithContext(ctx).
		Table("civic_profiles").
		Select("civic_profiles.user_id, civic_levels.name, civic_levels.community_credits AS credits").
		Joins("JOIN civic_levels ON civic_levels.level = civic_profiles.current_level").
		Where("civic_profiles.deleted_at IS NULL AND civic_levels.community_credits > 0").
		Scan(&rows).Error; err != nil {
		return 0, fmt.Errorf("load profiles for monthly grant: %w", err)
	}

	granted := 0
	for _, r := range rows {
		reason := fmt.Sprintf("monthly %s allowance", r.Name)
		if err := j.Credits.GrantCredits(ctx, r.UserID, r.Credits, reason); err != nil {
			j.log.Error("monthly grant failed", zap.String("user_id", r.UserID), zap.Error(err))
			continue
		}
		granted++
	}
	j.log.Info("💳 Monthly credits granted", zap.Int("profiles", granted))
	return granted, nil
}

// SendExpiryReminders notifies owners of active redemptions that expire inside the reminder
// window. Each redemption is reminded at most once.
func (j *Jobs) SendExpiryReminders(ctx context.Context) (int, error) {
	now := j.Now()
	var expiring []models.CommunityCredit
	if err := j.DB.WithContext(ctx).
		Where("is_used = ? AND reminder_sent_at IS NULL AND expires_at > ? AND expires_at <= ?", false, now, now.Add(j.ReminderWindow)).
		Find(&expiring).Error; err != nil {
		return 0, fmt.Errorf("load expiring redemptions: %w", err)
	}

	sent := 0
	for _, c := range expiring {
		days := int(c.ExpiresAt.Sub(now).Hours() / 24)
		n := &models.Notification{
			RecipientID: c.UserID,
			Type:        models.NotificationRedemptionExpiring,
			Title:       "⏳ Redemption Expiring Soon",
			Message:     fmt.Sprintf("Your %s (code %s) expires in %d day(s).", c.CreditType.Label(), c.RedemptionCode, days),
			Priority:    models.PriorityHigh,
			ContentType: "credit",
			ObjectID:    c.ID,
			Data: map[string]any{
				"redemption_code": c.RedemptionCode,
				"expires_at":      c.ExpiresAt.Format(time.RFC3339),
			},
		}
		if err := j.Sink.CreateNotification(ctx, n); err != nil {
			j.log.Error("expiry reminder failed", zap.String("user_id", c.UserID), zap.Error(err))
			continue
		}
		if err := j.DB.WithContext(ctx).Model(&models.CommunityCredit{}).
			Where("id = ?", c.ID).
			Update("reminder_sent_at", now).Error; err != nil {
			return sent, fmt.Errorf("mark reminder sent: %w", err)
		}
		sent++
	}
	return sent, nil
}

// Scheduler wires Jobs onto a gocron scheduler.
type Scheduler struct {
	sched gocron.Scheduler
	log   *zap.Logger
}

// StartScheduler registers the periodic jobs and starts the scheduler.
func StartScheduler(jobs *Jobs, loc *time.Location, monthlyGrant bool, log *zap.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	log = log.Named("scheduler")

	run := func(name string, fn func(ctx context.Context) error) func() {
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := fn(ctx); err != nil {
				log.Error("job failed", zap.String("job", name), zap.Error(err))
			}
		}
	}

	if monthlyGrant {
		if _, err := sched.NewJob(
			gocron.MonthlyJob(1, gocron.NewDaysOfTheMonth(1), gocron.NewAtTimes(gocron.NewAtTime(6, 0, 0))),
			gocron.NewTask(run("monthly_credits", func(ctx context.Context) error {
				_, err := jobs.GrantMonthlyCredits(ctx)
				return err
			})),
			gocron.WithName("monthly_credits"),
		); err != nil {
			return nil, fmt.Errorf("schedule monthly credits: %w", err)
		}
	}

	if _, err := sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(9, 0, 0))),
		gocron.NewTask(run("expiry_reminders", func(ctx context.Context) error {
			_, err := jobs.SendExpiryReminders(ctx)
			return err
		})),
		gocron.WithName("expiry_reminders"),
	); err != nil {
		return nil, fmt.Errorf("schedule expiry reminders: %w", err)
	}

	if jobs.Board != nil && jobs.Board.Redis != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(run("leaderboard_rebuild", jobs.Board.Rebuild)),
			gocron.WithName("leaderboard_rebuild"),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			return nil, fmt.Errorf("schedule leaderboard rebuild: %w", err)
		}
	}

	sched.Start()
	log.Info("⏰ Scheduler started", zap.Int("jobs", len(sched.Jobs())), zap.Bool("monthly_grant", monthlyGrant))
	return &Scheduler{sched: sched, log: log}, nil
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
