package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"equipment-reminders/internal/model"
)

// Directory resolves recipients. Role membership is read fresh on every call.
type Directory interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	ListByRole(ctx context.Context, role string) ([]model.User, error)
}

// Target addresses a reminder to one user or to every holder of a role.
type Target struct {
	UserID string
	Role   string
}

func (t Target) String() string {
	if t.Role != "" {
		return "role:" + t.Role
	}
	return "user:" + t.UserID
}

// TargetFor picks the recipients of rem. A role takes precedence over the
// direct user.
func TargetFor(rem model.Reminder) Target {
	if rem.RecipientRole != "" {
		return Target{Role: rem.RecipientRole}
	}
	return Target{UserID: rem.UserID}
}

// FanOut turns one reminder firing into one notification per recipient.
type FanOut struct {
	dir Directory
}

func NewFanOut(dir Directory) *FanOut {
	return &FanOut{dir: dir}
}

// Resolve returns the users behind target. An empty result is an error: a
// claim without recipients would drop the alert silently.
func (f *FanOut) Resolve(ctx context.Context, reminderID string, target Target) ([]model.User, error) {
	var users []model.User
	switch {
	case target.Role != "":
		holders, err := f.dir.ListByRole(ctx, target.Role)
		if err != nil {
			return nil, &RecipientError{ReminderID: reminderID, Target: target.String(), Err: err}
		}
		users = holders
	case target.UserID != "":
		u, err := f.dir.FindByID(ctx, target.UserID)
		if err != nil {
			return nil, &RecipientError{ReminderID: reminderID, Target: target.String(), Err: err}
		}
		users = []model.User{*u}
	}
	if len(users) == 0 {
		return nil, &RecipientError{ReminderID: reminderID, Target: target.String(), Err: errors.New("no recipients")}
	}
	return users, nil
}

// Build creates the notifications for rem firing at milestone. All rows share
// RelatedID, the obligation id.
func (f *FanOut) Build(rem model.Reminder, title string, milestone int, today string, users []model.User, now time.Time) []model.Notification {
	heading, body := notificationText(rem, title, milestone)
	out := make([]model.Notification, 0, len(users))
	for _, u := range users {
		out = append(out, model.Notification{
			ID:         uuid.NewString(),
			UserID:     u.ID,
			Title:      heading,
			Message:    body,
			Type:       rem.Type,
			RelatedID:  rem.ObligationID,
			ReminderID: rem.ID,
			Milestone:  milestone,
			FiredOn:    today,
			CreatedAt:  now,
		})
	}
	return out
}

var subjectByType = map[model.ObligationType]string{
	model.ObligationCalibration: "Calibration",
	model.ObligationRental:      "Rental return",
	model.ObligationMaintenance: "Maintenance",
	model.ObligationSchedule:    "Inventory check",
}

func notificationText(rem model.Reminder, title string, days int) (string, string) {
	subject, ok := subjectByType[rem.Type]
	if !ok {
		subject = "Obligation"
	}

	var when string
	switch {
	case days < 0:
		when = fmt.Sprintf("overdue by %d days", -days)
	case days == 0:
		when = "due today"
	case days == 1:
		when = "due tomorrow"
	default:
		when = fmt.Sprintf("due in %d days", days)
	}

	heading := fmt.Sprintf("%s %s", subject, when)
	if title == "" {
		return heading, fmt.Sprintf("%s is %s (%s).", subject, when, rem.DueDate.Format(model.DayLayout))
	}
	return heading, fmt.Sprintf("%s for %q is %s (%s).", subject, title, when, rem.DueDate.Format(model.DayLayout))
}
