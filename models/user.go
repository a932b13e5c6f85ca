package models

import "gorm.io/gorm"

// User is the owner of contacts, accounts and campaigns. Authentication and
// session issuance live outside this service; the engine only consumes the
// user id and plan name.
type User struct {
	gorm.Model
	Email    string `gorm:"not null;index" json:"email"`
	Name     string `json:"name"`
	PlanName string `gorm:"default:'free'" json:"plan_name"`

	// Relations
	Contacts  []Contact      `gorm:"foreignKey:UserID" json:"-"`
	Accounts  []EmailAccount `gorm:"foreignKey:UserID" json:"-"`
	Campaigns []Campaign     `gorm:"foreignKey:UserID" json:"-"`
}

// Plan gates what a subscription tier may do. CampaignsEnabled is the launch
// entitlement checked by the campaign controller.
type Plan struct {
	gorm.Model
	Name             string `gorm:"uniqueIndex;not null" json:"name"`
	Description      string `json:"description"`
	CampaignsEnabled bool   `gorm:"default:false" json:"campaigns_enabled"`
	DailySendLimit   int    `gorm:"default:500" json:"daily_send_limit"`
}
