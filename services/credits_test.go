package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"civic-rewards/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`^[0-9A-F]{8}$`)

func TestRedeemDebitsAndIssuesCode(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CurrentLevel: intPtr(2), CommunityCredits: 60})

	credit, err := env.credits.Redeem(ctx, "u1", models.CreditTypeParking, "Downtown garage")
	require.NoError(t, err)

	assert.EqualValues(t, 50, credit.CreditsSpent)
	assert.Equal(t, "Downtown garage", credit.RedeemedFor)
	assert.Regexp(t, codePattern, credit.RedemptionCode)
	assert.WithinDuration(t, env.now.Add(90*24*time.Hour), credit.ExpiresAt, time.Second)
	assert.Equal(t, models.RedemptionActive, RedemptionStatus(credit, env.now))

	assert.EqualValues(t, 10, env.profile(t, "u1").CommunityCredits)

	notes := env.notifications(t, "u1", models.NotificationCreditRedeemed)
	require.Len(t, notes, 1)
	assert.Equal(t, "🎁 Credit Redeemed!", notes[0].Title)
	assert.Equal(t, "You redeemed 50 credits for Parking Fee Waiver", notes[0].Message)
	assert.Equal(t, credit.RedemptionCode, notes[0].Data["redemption_code"])
}

func TestRedeemDefaultsRedeemedForToLabel(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 30})

	credit, err := env.credits.Redeem(context.Background(), "u1", models.CreditTypeEvent, "  ")
	require.NoError(t, err)
	assert.Equal(t, "Event Ticket", credit.RedeemedFor)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 30})

	_, err := env.credits.Redeem(ctx, "u1", models.CreditTypeRecreation, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "Insufficient credits. You have 30, need 150", AsServiceError(err).Message)

	assert.EqualValues(t, 30, env.profile(t, "u1").CommunityCredits)
	var n int64
	env.db.Model(&models.CommunityCredit{}).Count(&n)
	assert.Zero(t, n)
}

func TestRedeemInvalidTypeAndMissingProfile(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()

	_, err := env.credits.Redeem(ctx, "u1", models.CreditType("spaceship"), "")
	assert.ErrorIs(t, err, ErrInvalidCreditType)

	_, err = env.credits.Redeem(ctx, "ghost", models.CreditTypeParking, "")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRedeemUntilEmpty(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 100})

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		c, err := env.credits.Redeem(ctx, "u1", models.CreditTypeEvent, "")
		require.NoError(t, err)
		assert.False(t, seen[c.RedemptionCode])
		seen[c.RedemptionCode] = true
	}

	_, err := env.credits.Redeem(ctx, "u1", models.CreditTypeEvent, "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Zero(t, env.profile(t, "u1").CommunityCredits)
}

func TestMarkUsed(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 100})

	credit, err := env.credits.Redeem(ctx, "u1", models.CreditTypeTransit, "")
	require.NoError(t, err)

	_, err = env.credits.MarkUsed(ctx, "NOPE0000", "")
	assert.ErrorIs(t, err, ErrRedemptionNotFound)

	used, err := env.credits.MarkUsed(ctx, credit.RedemptionCode, "verified at kiosk 3")
	require.NoError(t, err)
	assert.True(t, used.IsUsed)
	require.NotNil(t, used.UsedAt)
	assert.Equal(t, "verified at kiosk 3", used.Notes)

	_, err = env.credits.MarkUsed(ctx, credit.RedemptionCode, "")
	assert.ErrorIs(t, err, ErrRedemptionUsed)
}

func TestMarkUsedExpired(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()

	old := models.CommunityCredit{
		UserID:         "u1",
		CreditType:     models.CreditTypeParking,
		CreditsSpent:   50,
		RedemptionCode: "OLDC0DE1",
		RedeemedAt:     env.now.AddDate(0, -4, 0),
		ExpiresAt:      env.now.AddDate(0, 0, -1),
	}
	require.NoError(t, env.db.Create(&old).Error)

	_, err := env.credits.MarkUsed(ctx, "oldc0de1", "")
	assert.ErrorIs(t, err, ErrRedemptionExpired)

	history, err := env.credits.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RedemptionExpired, history[0].Status)

	active, err := env.credits.ActiveRedemptions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestBalanceListsAffordableOptions(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 80})

	b, err := env.credits.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 80, b.Balance)
	require.Len(t, b.RedemptionOptions, len(models.CreditTypes))

	affordable := map[models.CreditType]bool{}
	for _, o := range b.RedemptionOptions {
		affordable[o.Type] = o.CanAfford
	}
	assert.True(t, affordable[models.CreditTypeParking])
	assert.True(t, affordable[models.CreditTypeTransit])
	assert.False(t, affordable[models.CreditTypePermit])

	empty, err := env.credits.Balance(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Balance)
}

func TestAttachProofOnlyForOwner(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 50})

	credit, err := env.credits.Redeem(ctx, "u1", models.CreditTypeEvent, "")
	require.NoError(t, err)

	_, err = env.credits.FindOwned(ctx, "u2", credit.RedemptionCode)
	assert.ErrorIs(t, err, ErrRedemptionNotFound)
	_, err = env.credits.FindOwned(ctx, "u1", "NOSUCHCD")
	assert.ErrorIs(t, err, ErrRedemptionNotFound)
	owned, err := env.credits.FindOwned(ctx, "u1", strings.ToLower(credit.RedemptionCode))
	require.NoError(t, err)
	assert.Equal(t, credit.ID, owned.ID)

	_, err = env.credits.AttachProof(ctx, "u2", credit.RedemptionCode, "https://cdn.example.org/p.pdf")
	assert.ErrorIs(t, err, ErrRedemptionNotFound)

	got, err := env.credits.AttachProof(ctx, "u1", credit.RedemptionCode, "https://cdn.example.org/p.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/p.pdf", got.ProofURL)
}

func TestGrantCredits(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 5})

	require.NoError(t, env.credits.GrantCredits(ctx, "u1", 25, "Monthly level benefit"))
	assert.EqualValues(t, 30, env.profile(t, "u1").CommunityCredits)
	assert.Len(t, env.notifications(t, "u1", models.NotificationMonthlyCredits), 1)

	assert.ErrorIs(t, env.credits.GrantCredits(ctx, "ghost", 25, "x"), ErrProfileNotFound)
	assert.Error(t, env.credits.GrantCredits(ctx, "u1", 0, "x"))
}

func TestNewRedemptionCodeLength(t *testing.T) {
	assert.Len(t, newRedemptionCode(8), 8)
	assert.Len(t, newRedemptionCode(0), 8)
	assert.Len(t, newRedemptionCode(12), 12)
}

// loseDebitRace spends the balance down to remaining right before the conditional debit runs,
// as a concurrent redemption committing first would.
func loseDebitRace(t *testing.T, db *gorm.DB, userID string, remaining int64) {
	t.Helper()
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:lose_debit_race", func(d *gorm.DB) {
		if d.Statement.Table != "civic_profiles" {
			return
		}
		_, err := d.Statement.ConnPool.ExecContext(d.Statement.Context,
			"UPDATE civic_profiles SET community_credits = ? WHERE user_id = ?", remaining, userID)
		if err != nil {
			_ = d.AddError(err)
		}
	}))
}

func TestRedeemLostDebitReportsCurrentBalance(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 60})
	loseDebitRace(t, env.db, "u1", 20)

	_, err := env.credits.Redeem(context.Background(), "u1", models.CreditTypeParking, "")
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "You have 20, need 50")
}

func TestRedeemLostDebitBalanceReadFailure(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	env.seedProfile(t, models.CivicProfile{UserID: "u1", CommunityCredits: 60})
	loseDebitRace(t, env.db, "u1", 20)
	require.NoError(t, env.db.Callback().Row().Before("gorm:row").Register("test:fail_balance_read", func(d *gorm.DB) {
		if d.Statement.Table == "civic_profiles" {
			_ = d.AddError(errors.New("connection reset"))
		}
	}))

	_, err := env.credits.Redeem(context.Background(), "u1", models.CreditTypeParking, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "reload balance")
	assert.Contains(t, err.Error(), "connection reset")
	assert.EqualValues(t, 60, env.profile(t, "u1").CommunityCredits)
}
