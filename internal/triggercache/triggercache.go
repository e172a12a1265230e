// Package triggercache debounces in-session display of fired reminders.
//
// A display is recorded per reminder id; ShouldDisplay refuses a reminder
// that was already shown on the current calendar day. Records older than
// Retention are dropped on every read. The cache is advisory: losing it can
// only cause a repeated toast, never a missed notification.
package triggercache

import (
	"context"
	"time"

	"equipment-reminders/internal/model"
)

// Retention is how long a display record is kept.
const Retention = 48 * time.Hour

// Cache is the per-session display record.
type Cache interface {
	ShouldDisplay(ctx context.Context, reminderID string, due time.Time, t model.ObligationType, today time.Time) (bool, error)
	RecordDisplay(ctx context.Context, reminderID string) error
}

// Store hands out the cache of one client session.
type Store interface {
	Session(id string) Cache
}

// dayBounds returns the instants at which the calendar day today starts and
// ends in loc.
func dayBounds(today time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := today.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
