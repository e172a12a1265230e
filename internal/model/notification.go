package model

import "time"

// Notification is an in-app message produced by a reminder claim. One row per
// recipient; rows of the same fan-out share RelatedID.
type Notification struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	UserID     string         `gorm:"size:36;index;uniqueIndex:idx_notification_delivery" json:"userId"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Type       ObligationType `gorm:"type:varchar(16)" json:"type"`
	RelatedID  string         `gorm:"size:36;index" json:"relatedId"`
	ReminderID string         `gorm:"size:36;uniqueIndex:idx_notification_delivery" json:"reminderId"`
	Milestone  int            `json:"milestone"`
	FiredOn    string         `gorm:"size:10;uniqueIndex:idx_notification_delivery" json:"firedOn"`
	IsRead     bool           `gorm:"default:false" json:"isRead"`
	CreatedAt  time.Time      `json:"createdAt"`
}
