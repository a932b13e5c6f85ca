package models

import "gorm.io/gorm"

// Contact is a prospect owned by the surrounding CRM feature. The campaign
// engine only reads it for template merging and address resolution.
type Contact struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name    string `gorm:"not null" json:"name"`
	Email   string `gorm:"not null;index" json:"email"`
	Company string `json:"company"`

	// Relations
	User User `json:"-"`
}
