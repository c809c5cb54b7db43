package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"civic-rewards/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Citizen{}, &models.NotificationPreference{}))
	return db
}

func TestCitizenSyncUpsertsCitizensAndPreferences(t *testing.T) {
	db := newTestDB(t)
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	var calls atomic.Int32
	var sinceSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, citizensEndpoint, r.URL.Path)
		assert.Equal(t, "svc-token", r.Header.Get("X-Service-Token"))
		sinceSeen = append(sinceSeen, r.URL.Query().Get("since"))

		var body citizenChangesResponse
		switch calls.Add(1) {
		case 1:
			body.Citizens = []RemoteCitizen{
				{
					ID: "c1", FullName: "Ana Lopez", Role: models.RoleCitizen, PhoneNumber: "+15550000001", IsActive: true,
					Preferences: &RemotePreferences{WhatsAppEnabled: true, WhatsAppVerified: true, WhatsAppEventReminders: true,
						QuietHoursEnabled: true, QuietHoursStart: "22:00", QuietHoursEnd: "07:00"},
					CreatedAt: t1, UpdatedAt: t1,
				},
				{ID: "o1", FullName: "Official", Role: models.RoleOfficial, IsActive: true, CreatedAt: t1, UpdatedAt: t2},
			}
		case 2:
			body.Citizens = []RemoteCitizen{
				{
					ID: "c1", FullName: "Ana Lopez", Role: models.RoleCitizen, PhoneNumber: "+15550000009", IsActive: false,
					Preferences: &RemotePreferences{WhatsAppEnabled: false},
					CreatedAt: t1, UpdatedAt: t2.Add(time.Minute),
				},
			}
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	w := NewCitizenSyncWorker(db, srv.URL, "svc-token", time.Minute, srv.Client(), zap.NewNop())
	ctx := context.Background()

	n, err := w.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var c models.Citizen
	require.NoError(t, db.First(&c, "user_id = ?", "c1").Error)
	assert.Equal(t, "+15550000001", c.PhoneNumber)
	assert.True(t, c.IsActive)

	var prefs models.NotificationPreference
	require.NoError(t, db.First(&prefs, "user_id = ?", "c1").Error)
	assert.True(t, prefs.WhatsAppVerified)
	assert.Equal(t, "22:00", prefs.QuietHoursStart)

	n, err = w.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.First(&c, "user_id = ?", "c1").Error)
	assert.Equal(t, "+15550000009", c.PhoneNumber)
	assert.False(t, c.IsActive)
	require.NoError(t, db.First(&prefs, "user_id = ?", "c1").Error)
	assert.False(t, prefs.WhatsAppEnabled)

	var count int64
	db.Model(&models.Citizen{}).Count(&count)
	assert.EqualValues(t, 2, count)

	require.Len(t, sinceSeen, 2)
	assert.Equal(t, time.Time{}.Format(time.RFC3339), sinceSeen[0])
	assert.Equal(t, t2.Format(time.RFC3339), sinceSeen[1])
}

func TestCitizenSyncReportsServiceErrors(t *testing.T) {
	db := newTestDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad token"))
	}))
	defer srv.Close()

	w := NewCitizenSyncWorker(db, srv.URL, "wrong", 0, srv.Client(), zap.NewNop())
	_, err := w.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
