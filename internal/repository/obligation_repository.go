package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"equipment-reminders/internal/model"
)

// ObligationRepository reads the tracked obligations reminders point at.
type ObligationRepository struct {
	db *gorm.DB
}

func NewObligationRepository(db *gorm.DB) *ObligationRepository {
	return &ObligationRepository{db: db}
}

// Create stores a new obligation. A fresh obligation starts its own lineage.
func (r *ObligationRepository) Create(ctx context.Context, ob *model.Obligation) error {
	if ob.ID == "" {
		ob.ID = uuid.NewString()
	}
	if ob.LineageID == "" {
		ob.LineageID = ob.ID
	}
	if ob.DueDate != nil {
		d := model.Date(*ob.DueDate)
		ob.DueDate = &d
	}
	if err := r.db.WithContext(ctx).Create(ob).Error; err != nil {
		return fmt.Errorf("create obligation: %w", err)
	}
	return nil
}

func (r *ObligationRepository) FindByID(ctx context.Context, id string) (*model.Obligation, error) {
	var ob model.Obligation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ob).Error; err != nil {
		return nil, err
	}
	return &ob, nil
}

// ListByIDs loads obligations keyed by id. Missing ids are absent from the map.
func (r *ObligationRepository) ListByIDs(ctx context.Context, ids []string) (map[string]model.Obligation, error) {
	out := make(map[string]model.Obligation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var obs []model.Obligation
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&obs).Error; err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	for _, ob := range obs {
		out[ob.ID] = ob
	}
	return out, nil
}

// ListDueWithoutReminder returns open obligations due within [from, to] that
// have no reminder for their current due date yet.
func (r *ObligationRepository) ListDueWithoutReminder(ctx context.Context, from, to time.Time) ([]model.Obligation, error) {
	var obs []model.Obligation
	err := r.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND completed_at IS NULL").
		Where("due_date >= ? AND due_date <= ?", model.Date(from), model.Date(to)).
		Where("NOT EXISTS (SELECT 1 FROM reminders WHERE reminders.obligation_id = obligations.id AND reminders.due_date = obligations.due_date)").
		Order("due_date ASC, id ASC").
		Find(&obs).Error
	if err != nil {
		return nil, fmt.Errorf("list obligations without reminder: %w", err)
	}
	return obs, nil
}
