package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"civic-rewards/models"

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

	require.NoError(t, AutoMigrate(db))
	return db
}

type testEnv struct {
	db      *gorm.DB
	inbox   *NotificationService
	ledger  *Ledger
	credits *CreditLedger
	now     time.Time
}

// levelsOnly is the default catalog without achievements, so point and credit arithmetic
// is not disturbed by bonus unlocks.
func levelsOnly() Catalog {
	c := DefaultCatalog()
	c.Achievements = nil
	return c
}

func newTestEnv(t *testing.T, catalog Catalog) *testEnv {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, SeedCatalog(context.Background(), db, catalog, zap.NewNop()))

	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	inbox := NewNotificationService(db, zap.NewNop())

	ledger := NewLedger(db, catalog, inbox, zap.NewNop())
	ledger.Now = func() time.Time { return now }

	credits := NewCreditLedger(db, catalog, inbox, zap.NewNop())
	credits.Now = func() time.Time { return now }

	return &testEnv{db: db, inbox: inbox, ledger: ledger, credits: credits, now: now}
}

func (e *testEnv) profile(t *testing.T, userID string) *models.CivicProfile {
	t.Helper()
	var p models.CivicProfile
	require.NoError(t, e.db.Where("user_id = ?", userID).First(&p).Error)
	return &p
}

// seedProfile stores a profile with the given state, bypassing the ledger.
func (e *testEnv) seedProfile(t *testing.T, p models.CivicProfile) *models.CivicProfile {
	t.Helper()
	require.NoError(t, e.db.Create(&p).Error)
	return &p
}

func (e *testEnv) notifications(t *testing.T, userID, kind string) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, e.db.Where("recipient_id = ? AND type = ?", userID, kind).Order("created_at").Find(&out).Error)
	return out
}

func intPtr(v int) *int { return &v }

// fakeMessenger records sends and fails or panics for selected numbers.
type fakeMessenger struct {
	mu         sync.Mutex
	configured bool
	failFor    map[string]bool
	panicFor   map[string]bool
	sent       []string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{configured: true, failFor: map[string]bool{}, panicFor: map[string]bool{}}
}

func (m *fakeMessenger) Configured() bool { return m.configured }

func (m *fakeMessenger) SendMessage(_ context.Context, to, _ string) (*SendResult, error) {
	if m.panicFor[to] {
		panic("messenger exploded")
	}
	if m.failFor[to] {
		return nil, errors.New("twilio returned 400: invalid number")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return &SendResult{MessageID: "SM" + to, Status: "queued"}, nil
}
