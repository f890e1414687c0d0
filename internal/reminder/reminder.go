// Package reminder emits the month-end booking reminder: once per month, on
// the user's last local business day, at or after the user's configured local
// trigger time.
package reminder

import (
	"context"
	"time"
)

// KindMonthEnd identifies the month-end booking reminder notification.
const KindMonthEnd = "month-end-booking"

// DefaultTriggerTime is used when a user has no reminder time configured.
const DefaultTriggerTime = "09:00"

// User carries the per-user settings the scheduler evaluates.
type User struct {
	ID          string
	TimeZone    string
	Country     string
	Subdivision string
	Locale      string
	TriggerTime string // "HH:MM" local
}

// UserSource lists the active users that have the reminder feature enabled.
type UserSource interface {
	ReminderUsers(ctx context.Context) ([]User, error)
}

// HolidayProvider answers whether a date is a public holiday in the user's
// configured country and subdivision.
type HolidayProvider interface {
	IsPublicHoliday(ctx context.Context, date time.Time, country, subdivision string) (bool, error)
}

// Notification is one reminder to be stored for a user.
type Notification struct {
	UserID      string
	Kind        string
	Title       string
	Message     string
	Target      string
	DedupeKey   string
	ScheduledAt time.Time
}

// NotificationWriter persists reminders. Create must be a no-op when a
// notification with the same (user, kind, dedupe key) already exists.
type NotificationWriter interface {
	Exists(ctx context.Context, userID, kind, dedupeKey string) (bool, error)
	Create(ctx context.Context, n Notification) error
}

// Localizer renders user-facing text for a key in an explicit locale. It is
// rendering only and never drives control flow.
type Localizer interface {
	Text(locale, key string, args ...any) string
}
