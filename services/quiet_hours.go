package services

import (
	"fmt"
	"time"
)

// clockSeconds parses "HH:MM" (or "HH:MM:SS") into seconds after midnight.
func clockSeconds(s string) (int, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

// InQuietHours reports whether now, read as wall-clock time in its own location, falls inside
// the [start, end] window. A window whose start is not before its end wraps past midnight, so
// equal bounds cover the whole day. Unparseable bounds disable the window.
func InQuietHours(start, end string, now time.Time) bool {
	s, err := clockSeconds(start)
	if err != nil {
		return false
	}
	e, err := clockSeconds(end)
	if err != nil {
		return false
	}
	t := now.Hour()*3600 + now.Minute()*60 + now.Second()

	if s < e {
		return s <= t && t <= e
	}
	return t >= s || t <= e
}
