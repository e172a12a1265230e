package model

import "time"

// DayLayout is the wire and storage format of calendar dates.
const DayLayout = "2006-01-02"

// Date strips the clock from t, keeping the calendar date as seen in t's own
// location, and returns it as midnight UTC. Stored due dates go through it.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar date of instant t as observed in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc))
}

// DaysUntil counts whole calendar days from today to due. Negative when overdue.
func DaysUntil(today, due time.Time) int {
	return int(Date(due).Sub(Date(today)).Hours() / 24)
}

// DayKey formats a calendar date for storage comparisons.
func DayKey(t time.Time) string {
	return Date(t).Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD string into a calendar date.
func ParseDay(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
