package services

import (
	"context"
	"testing"
	"time"

	"civic-rewards/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationInbox(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, title := range []string{"one", "two", "three"} {
		require.NoError(t, env.inbox.CreateNotification(ctx, &models.Notification{
			RecipientID: "u1",
			Type:        models.NotificationNewEvent,
			Title:       title,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, env.inbox.CreateNotification(ctx, &models.Notification{RecipientID: "u2", Type: models.NotificationNewEvent, Title: "other"}))

	list, err := env.inbox.List(ctx, "u1", false, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "three", list[0].Title)
	assert.Equal(t, models.PriorityMedium, list[0].Priority)

	counts, err := env.inbox.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts.Total)
	assert.EqualValues(t, 3, counts.Unread)

	_, err = env.inbox.MarkRead(ctx, "u2", list[0].ID)
	assert.ErrorIs(t, err, ErrNotificationMissing)

	read, err := env.inbox.MarkRead(ctx, "u1", list[0].ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	_, err = env.inbox.MarkRead(ctx, "u1", list[0].ID)
	require.NoError(t, err)

	unread, err := env.inbox.List(ctx, "u1", true, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	n, err := env.inbox.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	counts, err = env.inbox.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts.Total)
	assert.Zero(t, counts.Unread)
}

func TestNotificationSinceAndLatest(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()

	latest, err := env.inbox.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, latest.CreatedAt.IsZero())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.inbox.CreateNotification(ctx, &models.Notification{
			RecipientID: "u1",
			Type:        models.NotificationLevelUp,
			Title:       "n",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	latest, err = env.inbox.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, latest.CreatedAt.Equal(base.Add(2*time.Second)))

	first, err := env.inbox.Since(ctx, "u1", InboxCursor{})
	require.NoError(t, err)
	require.Len(t, first, 3)

	fresh, err := env.inbox.Since(ctx, "u1", InboxCursor{CreatedAt: first[0].CreatedAt, ID: first[0].ID})
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestNotificationSinceKeepsSameInstantNotifications(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"n-a", "n-b"} {
		require.NoError(t, env.inbox.CreateNotification(ctx, &models.Notification{
			ID:          id,
			RecipientID: "u1",
			Type:        models.NotificationLevelUp,
			Title:       id,
			CreatedAt:   at,
		}))
	}

	latest, err := env.inbox.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "n-b", latest.ID)

	fresh, err := env.inbox.Since(ctx, "u1", InboxCursor{CreatedAt: at, ID: "n-a"})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "n-b", fresh[0].ID)

	none, err := env.inbox.Since(ctx, "u1", latest)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStreamStartsFromNowWhenLookupFails(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	ctx := context.Background()
	require.NoError(t, env.inbox.CreateNotification(ctx, &models.Notification{
		RecipientID: "u1",
		Type:        models.NotificationLevelUp,
		Title:       "old",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	cursor := env.inbox.streamStart(ctx, "u1")
	assert.WithinDuration(t, time.Now(), cursor.CreatedAt, 5*time.Second)
}

func TestCreateNotificationRequiresRecipient(t *testing.T) {
	env := newTestEnv(t, levelsOnly())
	assert.Error(t, env.inbox.CreateNotification(context.Background(), &models.Notification{Type: "x", Title: "x"}))
}
