package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civic-rewards/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationSink persists an in-app notification. The engines depend on this port only.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// NotificationService is the gorm-backed sink plus the read side of the inbox.
type NotificationService struct {
	DB  *gorm.DB
	log *zap.Logger
}

func NewNotificationService(db *gorm.DB, log *zap.Logger) *NotificationService {
	return &NotificationService{DB: db, log: log.Named("notifications")}
}

func (s *NotificationService) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.RecipientID == "" {
		return errors.New("notification recipient is required")
	}
	if err := s.DB.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.DB.WithContext(ctx).Where("recipient_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var out []models.Notification
	err := query.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// NotificationCounts backs the inbox badge.
type NotificationCounts struct {
	Total  int64 `json:"total_count"`
	Unread int64 `json:"unread_count"`
}

func (s *NotificationService) Counts(ctx context.Context, userID string) (*NotificationCounts, error) {
	var counts NotificationCounts
	base := s.DB.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", userID)

	if err := base.Session(&gorm.Session{}).Count(&counts.Total).Error; err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("is_read = ?", false).Count(&counts.Unread).Error; err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}
	return &counts, nil
}

// MarkRead marks one of the user's notifications as read. Marking an already-read
// notification is not an error.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.DB.WithContext(ctx).Where("id = ? AND recipient_id = ?", id, userID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationMissing
		}
		return nil, err
	}
	if n.IsRead {
		return &n, nil
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(&n).Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	n.IsRead = true
	n.ReadAt = &now
	return &n, nil
}

// MarkAllRead returns the number of notifications flipped to read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()})
	if res.Error != nil {
		return 0, fmt.Errorf("mark all read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// InboxCursor marks the last notification a reader has seen. ID breaks ties between
// notifications created in the same instant.
type InboxCursor struct {
	CreatedAt time.Time
	ID        string
}

// Since returns notifications after the cursor, oldest first.
func (s *NotificationService) Since(ctx context.Context, userID string, after InboxCursor) ([]models.Notification, error) {
	var out []models.Notification
	err := s.DB.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Where("created_at > ? OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// Latest returns the cursor of the newest notification, the zero cursor when there is none.
func (s *NotificationService) Latest(ctx context.Context, userID string) (InboxCursor, error) {
	var n models.Notification
	err := s.DB.WithContext(ctx).Where("recipient_id = ?", userID).Order("created_at DESC, id DESC").First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return InboxCursor{}, nil
	}
	if err != nil {
		return InboxCursor{}, err
	}
	return InboxCursor{CreatedAt: n.CreatedAt, ID: n.ID}, nil
}
