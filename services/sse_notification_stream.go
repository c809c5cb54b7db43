package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StreamNotificationsSSE pushes the user's new notifications as server-sent events,
// polling the inbox every interval.
func (s *NotificationService) StreamNotificationsSSE(c *fiber.Ctx, userID string, interval time.Duration) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	if interval <= 0 {
		interval = 2 * time.Second
	}
	done := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx := context.Background()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cursor := s.streamStart(ctx, userID)

		// initial keepalive comment
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-ticker.C:
				fresh, err := s.Since(ctx, userID, cursor)
				if err != nil {
					s.log.Warn("sse query failed", zap.String("user_id", userID), zap.Error(err))
					continue
				}
				if len(fresh) == 0 {
					w.WriteString(":\n\n")
				} else {
					last := fresh[len(fresh)-1]
					cursor = InboxCursor{CreatedAt: last.CreatedAt, ID: last.ID}
					for _, n := range fresh {
						payload, _ := json.Marshal(n)
						fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
					}
				}
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}
			case <-done:
				return
			}
		}
	})

	return nil
}

// streamStart positions a new stream after the newest stored notification. When that lookup
// fails the stream starts from now instead of replaying the whole inbox.
func (s *NotificationService) streamStart(ctx context.Context, userID string) InboxCursor {
	cursor, err := s.Latest(ctx, userID)
	if err != nil {
		s.log.Warn("sse init failed", zap.String("user_id", userID), zap.Error(err))
		return InboxCursor{CreatedAt: time.Now()}
	}
	return cursor
}
