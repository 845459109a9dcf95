package models

import "time"

const DateLayout = "2006-01-02"

const (
	// DefaultLockTTL bounds how long a room lock survives a crashed request.
	DefaultLockTTL = 10 * time.Second

	// DefaultMaxStayNights caps a single reservation.
	DefaultMaxStayNights = 365

	// WorkerQueueSize is the in-memory sync queue capacity.
	WorkerQueueSize = 128

	// NotificationQueueSize is how many manager alerts may wait for delivery.
	NotificationQueueSize = 64

	// TelegramRequestTimeout bounds a single Bot API call.
	TelegramRequestTimeout = 10 * time.Second

	// SheetsCacheTTL время жизни кэша строк Google Sheets
	SheetsCacheTTL = 60 * 60
)

const ParseModeMarkdown = "Markdown"

// NormalizeDate drops the time of day, keeping the calendar date in UTC.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b; negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(NormalizeDate(b).Sub(NormalizeDate(a)).Hours() / 24)
}

func ParseDate(raw string) (time.Time, error) {
	return time.Parse(DateLayout, raw)
}
