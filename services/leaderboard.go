package services

import (
	"context"
	"fmt"
	"time"

	"civic-rewards/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const leaderboardKey = "civic:leaderboard"

// Leaderboard periods
const (
	PeriodAll   = "all"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// LeaderboardEntry is one ranked row. Points is the all-time total for PeriodAll and the
// points earned inside the window otherwise.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	Points         int64  `json:"points"`
	TotalPoints    int64  `json:"total_points"`
	Level          int    `json:"level"`
	LevelName      string `json:"level_name"`
	IssuesResolved int64  `json:"issues_resolved"`
	EventsAttended int64  `json:"events_attended"`
}

// Leaderboard ranks citizens by points. The all-time ranking is cached in a Redis sorted set
// when Redis is configured; the database is always the fallback.
type Leaderboard struct {
	DB    *gorm.DB
	Redis *redis.Client
	Now   func() time.Time

	log *zap.Logger
}

func NewLeaderboard(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *Leaderboard {
	return &Leaderboard{DB: db, Redis: rdb, Now: time.Now, log: log.Named("leaderboard")}
}

// Record refreshes the user's cached total. Cache errors are logged only.
func (b *Leaderboard) Record(ctx context.Context, userID string, totalPoints int64) {
	if b == nil || b.Redis == nil {
		return
	}
	if err := b.Redis.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(totalPoints), Member: userID}).Err(); err != nil {
		b.log.Warn("failed to update leaderboard cache", zap.String("user_id", userID), zap.Error(err))
	}
}

// Top returns up to limit entries for period.
func (b *Leaderboard) Top(ctx context.Context, period string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var ranked []rankedUser
	var err error
	switch period {
	case "", PeriodAll:
		ranked, err = b.allTime(ctx, limit)
	case PeriodWeek:
		ranked, err = b.window(ctx, b.Now().AddDate(0, 0, -7), limit)
	case PeriodMonth:
		ranked, err = b.window(ctx, b.Now().AddDate(0, 0, -30), limit)
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown leaderboard period %q", period), nil)
	}
	if err != nil {
		return nil, err
	}
	return b.decorate(ctx, ranked)
}

type rankedUser struct {
	UserID string
	Points int64
}

func (b *Leaderboard) allTime(ctx context.Context, limit int) ([]rankedUser, error) {
	if b.Redis != nil {
		zs, err := b.Redis.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
		if err == nil && len(zs) > 0 {
			out := make([]rankedUser, 0, len(zs))
			for _, z := range zs {
				if id, ok := z.Member.(string); ok {
					out = append(out, rankedUser{UserID: id, Points: int64(z.Score)})
				}
			}
			return out, nil
		}
		if err != nil {
			b.log.Warn("leaderboard cache unavailable, using database", zap.Error(err))
		}
	}

	var out []rankedUser
	err := b.DB.WithContext(ctx).Model(&models.CivicProfile{}).
		Select("user_id, total_points AS points").
		Order("total_points DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func (b *Leaderboard) window(ctx context.Context, since time.Time, limit int) ([]rankedUser, error) {
	var out []rankedUser
	err := b.DB.WithContext(ctx).Model(&models.CivicActivity{}).
		Select("user_id, SUM(points_earned) AS points").
		Where("created_at >= ?", since).
		Group("user_id").
		Order("points DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func (b *Leaderboard) decorate(ctx context.Context, ranked []rankedUser) ([]LeaderboardEntry, error) {
	if len(ranked) == 0 {
		return []LeaderboardEntry{}, nil
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.UserID
	}

	var profiles []models.CivicProfile
	if err := b.DB.WithContext(ctx).Where("user_id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	byUser := make(map[string]*models.CivicProfile, len(profiles))
	for i := range profiles {
		byUser[profiles[i].UserID] = &profiles[i]
	}

	var citizens []models.Citizen
	if err := b.DB.WithContext(ctx).Where("user_id IN ?", ids).Find(&citizens).Error; err != nil {
		return nil, fmt.Errorf("load citizens: %w", err)
	}
	names := make(map[string]string, len(citizens))
	for _, c := range citizens {
		names[c.UserID] = c.FullName
	}

	var levels []models.Level
	if err := b.DB.WithContext(ctx).Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("load levels: %w", err)
	}
	levelNames := make(map[int]string, len(levels))
	for _, l := range levels {
		levelNames[l.Level] = l.Name
	}

	out := make([]LeaderboardEntry, 0, len(ranked))
	for i, r := range ranked {
		e := LeaderboardEntry{Rank: i + 1, UserID: r.UserID, UserName: names[r.UserID], Points: r.Points}
		if p, ok := byUser[r.UserID]; ok {
			e.TotalPoints = p.TotalPoints
			e.Level = p.LevelNumber()
			e.IssuesResolved = p.IssuesResolved
			e.EventsAttended = p.EventsAttended
		}
		e.LevelName = levelNames[e.Level]
		if e.LevelName == "" {
			e.LevelName = levelNames[1]
		}
		out = append(out, e)
	}
	return out, nil
}

// Rebuild replaces the cached ranking with the current database totals.
func (b *Leaderboard) Rebuild(ctx context.Context) error {
	if b.Redis == nil {
		return nil
	}
	tmpKey := leaderboardKey + ":rebuild"
	if err := b.Redis.Del(ctx, tmpKey).Err(); err != nil {
		return fmt.Errorf("clear rebuild key: %w", err)
	}

	var count int
	var rows []models.CivicProfile
	res := b.DB.WithContext(ctx).Select("user_id", "total_points").FindInBatches(&rows, 500, func(tx *gorm.DB, batch int) error {
		members := make([]redis.Z, 0, len(rows))
		for _, p := range rows {
			members = append(members, redis.Z{Score: float64(p.TotalPoints), Member: p.UserID})
		}
		count += len(members)
		return b.Redis.ZAdd(ctx, tmpKey, members...).Err()
	})
	if res.Error != nil {
		return fmt.Errorf("rebuild leaderboard: %w", res.Error)
	}
	if count == 0 {
		return b.Redis.Del(ctx, leaderboardKey).Err()
	}
	if err := b.Redis.Rename(ctx, tmpKey, leaderboardKey).Err(); err != nil {
		return fmt.Errorf("swap leaderboard: %w", err)
	}
	b.log.Info("🏁 Leaderboard cache rebuilt", zap.Int("profiles", count))
	return nil
}

// CommunityStats is the platform-wide engagement summary.
type CommunityStats struct {
	TotalUsers           int64   `json:"total_users"`
	TotalPointsEarned    int64   `json:"total_points_earned"`
	TotalActivities      int64   `json:"total_activities"`
	TotalCreditsRedeemed int64   `json:"total_credits_redeemed"`
	AveragePoints        float64 `json:"average_points"`
	AverageLevel         float64 `json:"average_level"`
	WeeklyActiveUsers    int64   `json:"weekly_active_users"`
}

func (b *Leaderboard) Stats(ctx context.Context) (*CommunityStats, error) {
	db := b.DB.WithContext(ctx)
	var s CommunityStats

	var agg struct {
		Users    int64
		Points   int64
		AvgPts   float64
		AvgLevel float64
	}
	if err := db.Model(&models.CivicProfile{}).
		Select("COUNT(*) AS users, COALESCE(SUM(total_points), 0) AS points, COALESCE(AVG(total_points), 0) AS avg_pts, COALESCE(AVG(current_level), 0) AS avg_level").
		Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("aggregate profiles: %w", err)
	}
	s.TotalUsers = agg.Users
	s.TotalPointsEarned = agg.Points
	s.AveragePoints = agg.AvgPts
	s.AverageLevel = agg.AvgLevel

	if err := db.Model(&models.CivicActivity{}).Count(&s.TotalActivities).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.CommunityCredit{}).Where("is_used = ?", true).Count(&s.TotalCreditsRedeemed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.CivicActivity{}).
		Where("created_at >= ?", b.Now().AddDate(0, 0, -7)).
		Distinct("user_id").
		Count(&s.WeeklyActiveUsers).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
