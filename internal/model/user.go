package model

import "time"

const (
	RoleAdmin      = "ADMIN"
	RoleTechnician = "TECHNICIAN"
	RoleUser       = "USER"
)

// User is a notification recipient. TelegramChatID is zero when the user has
// not linked the out-of-band channel.
type User struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Name           string    `json:"name"`
	Email          string    `gorm:"index" json:"email,omitempty"`
	Role           string    `gorm:"size:32;index" json:"role"`
	TelegramChatID int64     `gorm:"index" json:"telegramChatId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
