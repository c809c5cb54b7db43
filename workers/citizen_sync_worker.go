package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"civic-rewards/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const citizensEndpoint = "/api/v1/public/citizens"

// RemotePreferences is the notification settings block of a synced citizen.
type RemotePreferences struct {
	WhatsAppEnabled        bool   `json:"whatsapp_enabled"`
	WhatsAppVerified       bool   `json:"whatsapp_verified"`
	WhatsAppEventReminders bool   `json:"whatsapp_event_reminders"`
	QuietHoursEnabled      bool   `json:"quiet_hours_enabled"`
	QuietHoursStart        string `json:"quiet_hours_start"`
	QuietHoursEnd          string `json:"quiet_hours_end"`
}

// RemoteCitizen matches one entry of the accounts service change feed.
type RemoteCitizen struct {
	ID          string             `json:"id"`
	FullName    string             `json:"full_name"`
	Email       string             `json:"email"`
	Role        string             `json:"role"`
	PhoneNumber string             `json:"phone_number"`
	IsActive    bool               `json:"is_active"`
	Preferences *RemotePreferences `json:"notification_preferences,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type citizenChangesResponse struct {
	Citizens []RemoteCitizen `json:"citizens"`
}

// CitizenSyncWorker mirrors citizens and their notification preferences from the accounts
// service so fan-out can resolve recipients locally.
type CitizenSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	serviceToken string
	httpClient   *http.Client

	mu     sync.Mutex
	cursor time.Time

	log *zap.Logger
}

func NewCitizenSyncWorker(db *gorm.DB, baseURL, serviceToken string, interval time.Duration, client *http.Client, log *zap.Logger) *CitizenSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CitizenSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient:   client,
		log:          log.Named("citizen_sync"),
	}
}

// Start runs an initial backfill and then polls every interval until ctx is done.
func (w *CitizenSyncWorker) Start(ctx context.Context) {
	w.log.Info("🔁 Starting citizen sync worker", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *CitizenSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("⚠️ Initial citizen sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("❌ Citizen sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("⏹️ Citizen sync worker stopped")
			return
		}
	}
}

// SyncOnce pulls every change since the last seen update and upserts it. It returns the
// number of citizens stored.
func (w *CitizenSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	citizens, err := w.fetch(ctx, w.cursor)
	if err != nil {
		return 0, err
	}
	if len(citizens) == 0 {
		w.log.Debug("no citizen changes", zap.Time("since", w.cursor))
		return 0, nil
	}

	var upserted, failed int
	for _, rc := range citizens {
		if err := w.upsert(ctx, rc); err != nil {
			failed++
			w.log.Warn("failed to upsert citizen", zap.String("user_id", rc.ID), zap.Error(err))
			continue
		}
		upserted++
		if rc.UpdatedAt.After(w.cursor) {
			w.cursor = rc.UpdatedAt
		}
	}

	w.log.Info("✅ Citizens synced",
		zap.Int("received", len(citizens)),
		zap.Int("upserted", upserted),
		zap.Int("errors", failed),
		zap.Time("cursor", w.cursor))
	return upserted, nil
}

func (w *CitizenSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteCitizen, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(citizensEndpoint)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, string(body))
	}

	var out citizenChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}
	return out.Citizens, nil
}

func (w *CitizenSyncWorker) upsert(ctx context.Context, rc RemoteCitizen) error {
	role := rc.Role
	if role == "" {
		role = models.RoleCitizen
	}

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		citizen := models.Citizen{
			UserID:      rc.ID,
			FullName:    rc.FullName,
			Email:       rc.Email,
			Role:        role,
			PhoneNumber: rc.PhoneNumber,
			IsActive:    rc.IsActive,
			CreatedAt:   rc.CreatedAt,
			UpdatedAt:   rc.UpdatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"full_name", "email", "role", "phone_number", "is_active", "updated_at",
			}),
		}).Create(&citizen).Error; err != nil {
			return fmt.Errorf("upsert citizen: %w", err)
		}

		if rc.Preferences == nil {
			return nil
		}
		prefs := models.NotificationPreference{
			UserID:                 rc.ID,
			WhatsAppEnabled:        rc.Preferences.WhatsAppEnabled,
			WhatsAppVerified:       rc.Preferences.WhatsAppVerified,
			WhatsAppEventReminders: rc.Preferences.WhatsAppEventReminders,
			QuietHoursEnabled:      rc.Preferences.QuietHoursEnabled,
			QuietHoursStart:        rc.Preferences.QuietHoursStart,
			QuietHoursEnd:          rc.Preferences.QuietHoursEnd,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"whatsapp_enabled", "whatsapp_verified", "whatsapp_event_reminders",
				"quiet_hours_enabled", "quiet_hours_start", "quiet_hours_end", "updated_at",
			}),
		}).Create(&prefs).Error; err != nil {
			return fmt.Errorf("upsert notification preferences: %w", err)
		}
		return nil
	})
}
