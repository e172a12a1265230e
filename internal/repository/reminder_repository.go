package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"equipment-reminders/internal/model"
)

// ReminderRepository persists reminders and performs their state
// transitions. Every transition is a conditional UPDATE so that overlapping
// sweeps and retried client calls never need an external lock.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// ReminderFilter narrows List. Zero values match everything.
type ReminderFilter struct {
	Type         model.ObligationType
	Status       model.ReminderStatus
	ObligationID string
	UserID       string
}

// ClaimRequest describes one SENT transition and the notifications that go
// with it.
type ClaimRequest struct {
	ReminderID    string
	Milestone     int
	Today         string
	Notifications []model.Notification
}

// Successor is the next cycle of a recurring obligation: the new obligation
// instance and its first reminder.
type Successor struct {
	Obligation model.Obligation
	Reminder   model.Reminder
}

// SuccessorFunc plans the cycle after ob. It returns nil when ob does not recur.
type SuccessorFunc func(ob model.Obligation) (*Successor, error)

// AckOutcome reports what an acknowledgement did.
type AckOutcome struct {
	Reminder  model.Reminder  `json:"reminder"`
	Changed   bool            `json:"changed"`
	Successor *model.Reminder `json:"successor,omitempty"`
	Expanded  bool            `json:"expanded"`
}

// CompletionOutcome reports what completing an obligation did.
type CompletionOutcome struct {
	Obligation   model.Obligation `json:"obligation"`
	Acknowledged int              `json:"acknowledged"`
	Successor    *model.Reminder  `json:"successor,omitempty"`
	Expanded     bool             `json:"expanded"`
}

// CreateIfAbsent inserts rem unless an active reminder for the same
// obligation and lead time, or a reminder for the same cycle, already exists;
// in that case the existing row is returned and created is false.
func (r *ReminderRepository) CreateIfAbsent(ctx context.Context, rem *model.Reminder) (*model.Reminder, bool, error) {
	var (
		out     *model.Reminder
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, created, err = createReminderIfAbsent(tx, rem)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func createReminderIfAbsent(tx *gorm.DB, rem *model.Reminder) (*model.Reminder, bool, error) {
	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	if rem.LineageID == "" {
		rem.LineageID = rem.ObligationID
	}
	rem.Status = model.StatusPending
	rem.DueDate = model.Date(rem.DueDate)
	rem.ReminderDate = model.Date(rem.ReminderDate)
	key := model.ActiveKeyFor(rem.ObligationID, rem.LeadDays)
	rem.ActiveKey = &key

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rem)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create reminder: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return rem, true, nil
	}

	var existing model.Reminder
	err := tx.Where("active_key = ?", key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = tx.Where("obligation_id = ? AND lead_days = ? AND due_date = ?", rem.ObligationID, rem.LeadDays, rem.DueDate).
			First(&existing).Error
	}
	if err != nil {
		return nil, false, fmt.Errorf("load existing reminder: %w", err)
	}
	return &existing, false, nil
}

func (r *ReminderRepository) FindByID(ctx context.Context, id string) (*model.Reminder, error) {
	var rem model.Reminder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rem).Error; err != nil {
		return nil, err
	}
	return &rem, nil
}

func (r *ReminderRepository) List(ctx context.Context, filter ReminderFilter) ([]model.Reminder, error) {
	q := r.db.WithContext(ctx).Model(&model.Reminder{})
	if filter.Type != model.ObligationUnknown {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ObligationID != "" {
		q = q.Where("obligation_id = ?", filter.ObligationID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	var out []model.Reminder
	if err := q.Order("due_date ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return out, nil
}

// ListSentFor returns SENT reminders addressed to the user directly or to role.
func (r *ReminderRepository) ListSentFor(ctx context.Context, userID, role string) ([]model.Reminder, error) {
	q := r.db.WithContext(ctx).Where("status = ?", model.StatusSent)
	if role != "" {
		q = q.Where("(user_id = ? AND recipient_role = '') OR recipient_role = ?", userID, role)
	} else {
		q = q.Where("user_id = ? AND recipient_role = ''", userID)
	}
	var out []model.Reminder
	if err := q.Order("due_date ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list sent reminders: %w", err)
	}
	return out, nil
}

// ListCandidates returns the reminders a sweep on today has to evaluate.
func (r *ReminderRepository) ListCandidates(ctx context.Context, today time.Time) ([]model.Reminder, error) {
	var out []model.Reminder
	err := r.db.WithContext(ctx).
		Where("reminder_date <= ? AND status <> ?", model.Date(today), model.StatusAcknowledged).
		Order("due_date ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return out, nil
}

// Claim moves a reminder to SENT for req.Milestone and stores the
// notifications in the same transaction. The update only matches when the
// reminder is not acknowledged, has not fired on req.Today and the milestone
// is later than the last one fired. claimed is false when another sweep got
// there first; nothing is written in that case.
func (r *ReminderRepository) Claim(ctx context.Context, req ClaimRequest) (bool, error) {
	claimed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Reminder{}).
			Where("id = ? AND status <> ?", req.ReminderID, model.StatusAcknowledged).
			Where("(last_fired_on IS NULL OR last_fired_on <> ?)", req.Today).
			Where("(last_milestone IS NULL OR last_milestone > ?)", req.Milestone).
			Updates(map[string]interface{}{
				"status":         model.StatusSent,
				"last_milestone": req.Milestone,
				"last_fired_on":  req.Today,
				"version":        gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("claim reminder: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if len(req.Notifications) > 0 {
			if err := tx.Create(&req.Notifications).Error; err != nil {
				return fmt.Errorf("create notifications: %w", err)
			}
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// MarkEmailSent records a successful out-of-band delivery attempt.
func (r *ReminderRepository) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND status <> ?", id, model.StatusAcknowledged).
		Updates(map[string]interface{}{"email_sent": true, "email_sent_at": at}).Error
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// Acknowledge moves a reminder to ACKNOWLEDGED. An already acknowledged
// reminder is returned unchanged. When plan yields a successor for the
// reminder's obligation, the obligation is completed and the next cycle is
// created in the same transaction.
func (r *ReminderRepository) Acknowledge(ctx context.Context, id string, at time.Time, plan SuccessorFunc) (*AckOutcome, error) {
	var out AckOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rem model.Reminder
		if err := tx.Where("id = ?", id).First(&rem).Error; err != nil {
			return err
		}
		if rem.Status == model.StatusAcknowledged {
			out.Reminder = rem
			return nil
		}

		res := tx.Model(&model.Reminder{}).
			Where("id = ? AND status <> ?", id, model.StatusAcknowledged).
			Updates(map[string]interface{}{
				"status":          model.StatusAcknowledged,
				"acknowledged_at": at,
				"active_key":      nil,
				"version":         gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("acknowledge reminder: %w", res.Error)
		}
		if err := tx.Where("id = ?", id).First(&rem).Error; err != nil {
			return fmt.Errorf("reload reminder: %w", err)
		}
		out.Reminder = rem
		if res.RowsAffected == 0 {
			return nil
		}
		out.Changed = true

		if plan == nil {
			return nil
		}
		var ob model.Obligation
		err := tx.Where("id = ?", rem.ObligationID).First(&ob).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load obligation: %w", err)
		}
		succ, expanded, err := completeAndExpand(tx, ob, at, plan)
		if err != nil {
			return err
		}
		out.Successor, out.Expanded = succ, expanded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteObligation is the manual "check performed" path: every active
// reminder of the obligation is acknowledged and, for recurring obligations,
// the next cycle is created. Repeating the call is a no-op.
func (r *ReminderRepository) CompleteObligation(ctx context.Context, obligationID string, at time.Time, plan SuccessorFunc) (*CompletionOutcome, error) {
	var out CompletionOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ob model.Obligation
		if err := tx.Where("id = ?", obligationID).First(&ob).Error; err != nil {
			return err
		}

		res := tx.Model(&model.Reminder{}).
			Where("obligation_id = ? AND status <> ?", obligationID, model.StatusAcknowledged).
			Updates(map[string]interface{}{
				"status":          model.StatusAcknowledged,
				"acknowledged_at": at,
				"active_key":      nil,
				"version":         gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("acknowledge obligation reminders: %w", res.Error)
		}
		out.Acknowledged = int(res.RowsAffected)

		if plan != nil {
			succ, expanded, err := completeAndExpand(tx, ob, at, plan)
			if err != nil {
				return err
			}
			out.Successor, out.Expanded = succ, expanded
		}
		if err := markCompleted(tx, &ob, at); err != nil {
			return err
		}
		out.Obligation = ob
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func markCompleted(tx *gorm.DB, ob *model.Obligation, at time.Time) error {
	if err := tx.Model(&model.Obligation{}).
		Where("id = ? AND completed_at IS NULL", ob.ID).
		Update("completed_at", at).Error; err != nil {
		return fmt.Errorf("complete obligation: %w", err)
	}
	return tx.Where("id = ?", ob.ID).First(ob).Error
}

// completeAndExpand closes ob's cycle and creates its successor. The lineage
// and due date of the successor are unique, so a repeated or racing expansion
// finds the existing reminder and reports expanded=false.
func completeAndExpand(tx *gorm.DB, ob model.Obligation, at time.Time, plan SuccessorFunc) (*model.Reminder, bool, error) {
	succ, err := plan(ob)
	if err != nil {
		return nil, false, fmt.Errorf("plan successor: %w", err)
	}
	if succ == nil {
		return nil, false, nil
	}
	if err := markCompleted(tx, &ob, at); err != nil {
		return nil, false, err
	}

	due := model.Date(succ.Reminder.DueDate)
	var existing model.Reminder
	err = tx.Where("lineage_id = ? AND due_date = ?", ob.LineageID, due).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("find successor reminder: %w", err)
	}

	next := succ.Obligation
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	next.LineageID = ob.LineageID
	next.DueDate = &due
	next.CompletedAt = nil
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&next)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create successor obligation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := tx.Where("lineage_id = ? AND due_date = ?", ob.LineageID, due).First(&next).Error; err != nil {
			return nil, false, fmt.Errorf("load successor obligation: %w", err)
		}
	}

	rem := succ.Reminder
	rem.ObligationID = next.ID
	rem.LineageID = ob.LineageID
	rem.DueDate = due
	return createReminderIfAbsent(tx, &rem)
}
