package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"equipment-reminders/internal/model"
)

// NotificationRepository reads delivered notifications. Rows are written
// only inside ReminderRepository.Claim.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	var out []model.Notification
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Order("created_at DESC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (r *NotificationRepository) ListByRelated(ctx context.Context, relatedID string) ([]model.Notification, error) {
	var out []model.Notification
	if err := r.db.WithContext(ctx).Where("related_id = ?", relatedID).Order("user_id ASC, created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list related notifications: %w", err)
	}
	return out, nil
}

// MarkRead flags a notification as read. Returns gorm.ErrRecordNotFound when
// the id does not exist.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) (*model.Notification, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Notification{}).Where("id = ?", id).Update("is_read", true)
	if res.Error != nil {
		return nil, fmt.Errorf("mark notification read: %w", res.Error)
	}
	var n model.Notification
	if err := db.Where("id = ?", id).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}
