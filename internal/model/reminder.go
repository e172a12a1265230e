package model

import (
	"fmt"
	"time"
)

// ReminderStatus is the lifecycle state of a reminder.
type ReminderStatus string

const (
	StatusPending      ReminderStatus = "PENDING"
	StatusSent         ReminderStatus = "SENT"
	StatusAcknowledged ReminderStatus = "ACKNOWLEDGED"
)

func (s ReminderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusAcknowledged:
		return true
	}
	return false
}

// Reminder schedules the checks of one obligation cycle at one lead time.
//
// ActiveKey is set while the reminder is not acknowledged and is unique, so
// the database refuses a second active reminder for the same obligation and
// lead time. LastMilestone and LastFiredOn record the most recent claim and
// guard the conditional SENT transition.
type Reminder struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	Type           ObligationType `gorm:"type:varchar(16);index" json:"type"`
	ObligationID   string         `gorm:"size:36;uniqueIndex:idx_reminder_cycle" json:"obligationId"`
	LineageID      string         `gorm:"size:36;index" json:"lineageId"`
	LeadDays       int            `gorm:"uniqueIndex:idx_reminder_cycle" json:"leadDays"`
	DueDate        time.Time      `gorm:"uniqueIndex:idx_reminder_cycle" json:"dueDate"`
	ReminderDate   time.Time      `gorm:"index" json:"reminderDate"`
	Status         ReminderStatus `gorm:"size:16;index" json:"status"`
	EmailSent      bool           `gorm:"default:false" json:"emailSent"`
	EmailSentAt    *time.Time     `json:"emailSentAt,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledgedAt,omitempty"`
	UserID         string         `gorm:"size:36;index" json:"userId,omitempty"`
	RecipientRole  string         `gorm:"size:32" json:"recipientRole,omitempty"`
	LastMilestone  *int           `json:"lastMilestone,omitempty"`
	LastFiredOn    string         `gorm:"size:10;not null;default:''" json:"lastFiredOn,omitempty"`
	Version        int            `gorm:"default:0" json:"version"`
	ActiveKey      *string        `gorm:"size:96;uniqueIndex" json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// ActiveKeyFor builds the uniqueness key of an active reminder.
func ActiveKeyFor(obligationID string, leadDays int) string {
	return fmt.Sprintf("%s:%d", obligationID, leadDays)
}

func (r Reminder) Active() bool {
	return r.Status != StatusAcknowledged
}
