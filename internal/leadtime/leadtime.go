// Package leadtime maps obligation types to the days before the due date on
// which a reminder fires.
//
// CALIBRATION fires on discrete days because its due date is far away and
// rarely moves. RENTAL and MAINTENANCE fire a week ahead and then every day
// of a trailing window while the obligation is imminent. SCHEDULE fires on the
// due day itself. Types outside the table never fire.
package leadtime

import (
	"time"

	"equipment-reminders/internal/model"
)

type rule struct {
	milestones []int // descending
	window     bool
	windowFrom int // inclusive, days until due
	windowTo   int
}

var rules = map[model.ObligationType]rule{
	model.ObligationCalibration: {milestones: []int{30, 7, 1}},
	model.ObligationRental:      {milestones: []int{7}, window: true, windowFrom: 0, windowTo: 3},
	model.ObligationMaintenance: {milestones: []int{7}, window: true, windowFrom: 0, windowTo: 3},
	model.ObligationSchedule:    {milestones: []int{0}},
}

// MilestonesFor returns the lead-time milestones of t, largest first.
// Unknown types have none.
func MilestonesFor(t model.ObligationType) []int {
	r, ok := rules[t]
	if !ok {
		return nil
	}
	out := make([]int, len(r.milestones))
	copy(out, r.milestones)
	return out
}

// HasWindow reports whether t also fires on every day of a trailing window.
func HasWindow(t model.ObligationType) bool {
	return rules[t].window
}

// FirstLead is the largest milestone of t: the lead time at which a new
// reminder becomes eligible.
func FirstLead(t model.ObligationType) (int, bool) {
	r, ok := rules[t]
	if !ok || len(r.milestones) == 0 {
		return 0, false
	}
	return r.milestones[0], true
}

// IsMilestone reports whether lead is one of t's discrete milestones.
func IsMilestone(t model.ObligationType, lead int) bool {
	for _, m := range rules[t].milestones {
		if m == lead {
			return true
		}
	}
	return false
}

// MaxLead is the largest milestone across all types.
func MaxLead() int {
	largest := 0
	for _, r := range rules {
		if len(r.milestones) > 0 && r.milestones[0] > largest {
			largest = r.milestones[0]
		}
	}
	return largest
}

// ReminderDate is the first day a reminder for due at the given lead may fire.
func ReminderDate(due time.Time, lead int) time.Time {
	if lead < 0 {
		lead = 0
	}
	return model.Date(due).AddDate(0, 0, -lead)
}

// Bucket returns the milestone that today falls into, expressed as days
// until due. ok is false when today is not an eligible day for t.
func Bucket(t model.ObligationType, due, today time.Time) (int, bool) {
	r, known := rules[t]
	if !known {
		return 0, false
	}
	days := model.DaysUntil(today, due)
	for _, m := range r.milestones {
		if days == m {
			return days, true
		}
	}
	if r.window && days >= r.windowFrom && days <= r.windowTo {
		return days, true
	}
	return 0, false
}

// IsEligibleDay reports whether a reminder of type t due on due fires on today.
// It is pure: the same inputs always give the same answer.
func IsEligibleDay(t model.ObligationType, due, today time.Time) bool {
	_, ok := Bucket(t, due, today)
	return ok
}
