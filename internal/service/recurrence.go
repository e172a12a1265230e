package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"equipment-reminders/internal/leadtime"
	"equipment-reminders/internal/model"
	"equipment-reminders/internal/repository"
)

// NextDueDate adds one unit of freq to the current due date.
//
// Day-of-month overflow clamps to the last day of the target month:
// Jan 31 + 1 month is Feb 28 (29 in leap years), Feb 29 + 1 year is Feb 28.
// The clamped day is not restored later, so Jan 31 → Feb 28 → Mar 28.
func NextDueDate(due time.Time, freq model.Frequency) (time.Time, error) {
	switch freq {
	case model.FrequencyMonthly:
		return addMonthsClamped(model.Date(due), 1), nil
	case model.FrequencyYearly:
		return addMonthsClamped(model.Date(due), 12), nil
	default:
		return time.Time{}, fmt.Errorf("obligation does not recur (frequency %q)", freq)
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	if last := daysInMonth(first.Month(), first.Year()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}

func daysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	firstOfNextMonth := firstOfMonth.AddDate(0, 1, 0)
	lastOfMonth := firstOfNextMonth.AddDate(0, 0, -1)
	return lastOfMonth.Day()
}

// RecurrenceExpander plans the next cycle of recurring inventory checks.
type RecurrenceExpander struct {
	defaultRole string
}

func NewRecurrenceExpander(defaultRole string) *RecurrenceExpander {
	return &RecurrenceExpander{defaultRole: defaultRole}
}

// Plan returns the next obligation instance and its first reminder, or nil
// when ob is not a recurring SCHEDULE obligation with a due date.
func (e *RecurrenceExpander) Plan(ob model.Obligation) (*repository.Successor, error) {
	if ob.Kind != model.ObligationSchedule || !ob.IsRecurring || ob.DueDate == nil {
		return nil, nil
	}
	if ob.Frequency == model.FrequencyNone {
		return nil, nil
	}
	nextDue, err := NextDueDate(*ob.DueDate, ob.Frequency)
	if err != nil {
		return nil, err
	}
	lead, ok := leadtime.FirstLead(ob.Kind)
	if !ok {
		return nil, nil
	}

	next := model.Obligation{
		ID:          uuid.NewString(),
		LineageID:   ob.LineageID,
		Kind:        ob.Kind,
		Title:       ob.Title,
		DueDate:     &nextDue,
		OwnerUserID: ob.OwnerUserID,
		NotifyRole:  ob.NotifyRole,
		IsRecurring: ob.IsRecurring,
		Frequency:   ob.Frequency,
	}
	rem := newReminder(next, lead, Target{}, e.defaultRole)
	return &repository.Successor{Obligation: next, Reminder: rem}, nil
}
