package services

import (
	"context"
	"testing"
	"time"

	"civic-rewards/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestJobs(env *testEnv) *Jobs {
	j := NewJobs(env.db, env.credits, nil, env.inbox, 7, zap.NewNop())
	j.Now = func() time.Time { return env.now }
	return j
}

func TestGrantMonthlyCredits(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	env.seedProfile(t, models.CivicProfile{UserID: "lvl2", CurrentLevel: intPtr(2), CommunityCredits: 5})
	env.seedProfile(t, models.CivicProfile{UserID: "lvl5", CurrentLevel: intPtr(5)})
	env.seedProfile(t, models.CivicProfile{UserID: "unranked"})

	granted, err := newTestJobs(env).GrantMonthlyCredits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, granted)

	assert.EqualValues(t, 30, env.profile(t, "lvl2").CommunityCredits)
	assert.EqualValues(t, 200, env.profile(t, "lvl5").CommunityCredits)
	assert.Zero(t, env.profile(t, "unranked").CommunityCredits)

	notes := env.notifications(t, "lvl2", models.NotificationMonthlyCredits)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "monthly Active Neighbor allowance")
}

func TestSendExpiryRemindersOncePerRedemption(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()

	credit := func(code string, expiresIn time.Duration, used bool) models.CommunityCredit {
		return models.CommunityCredit{
			UserID:         "u1",
			CreditType:     models.CreditTypeTransit,
			CreditsSpent:   75,
			RedemptionCode: code,
			RedeemedAt:     env.now.AddDate(0, -2, 0),
			ExpiresAt:      env.now.Add(expiresIn),
			IsUsed:         used,
		}
	}
	rows := []models.CommunityCredit{
		credit("SOON0001", 3*24*time.Hour, false),
		credit("LATER001", 30*24*time.Hour, false),
		credit("USED0001", 2*24*time.Hour, true),
		credit("PAST0001", -24*time.Hour, false),
	}
	require.NoError(t, env.db.Create(&rows).Error)

	jobs := newTestJobs(env)
	sent, err := jobs.SendExpiryReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	notes := env.notifications(t, "u1", models.NotificationRedemptionExpiring)
	require.Len(t, notes, 1)
	assert.Equal(t, "Your Public Transit Credit (code SOON0001) expires in 3 day(s).", notes[0].Message)

	sent, err = jobs.SendExpiryReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestStartSchedulerRegistersJobs(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	s, err := StartScheduler(newTestJobs(env), time.UTC, true, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.sched.Jobs(), 2)
	require.NoError(t, s.Shutdown())
}
