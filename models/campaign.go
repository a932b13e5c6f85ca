package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "Draft"
	CampaignStatusRunning   = "Running"
	CampaignStatusPaused    = "Paused"
	CampaignStatusCompleted = "Completed"
	CampaignStatusCancelled = "Cancelled"
)

// Campaign represents a multi-step outbound email sequence
type Campaign struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Campaign details
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Lifecycle
	Status     string     `gorm:"default:'Draft';index" json:"status"` // Draft, Running, Paused, Completed, Cancelled
	LaunchedAt *time.Time `json:"launched_at"`
	PausedAt   *time.Time `json:"paused_at"`

	// Relations
	User       User                `json:"-"`
	Steps      []CampaignStep      `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
	Recipients []CampaignRecipient `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"recipients,omitempty"`
}

// CampaignStep is one templated email in a campaign sequence. StepNumber is
// 1-based and contiguous within a campaign; enforced at creation time, not
// by a storage constraint. The delay fields are the wait before this step
// fires, counted from the previous step's send time.
type CampaignStep struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	StepNumber   int    `gorm:"not null" json:"step_number"` // 1 = initial, 2+ = follow-ups
	Subject      string `gorm:"not null" json:"subject"`
	BodyTemplate string `gorm:"type:text;not null" json:"body_template"` // placeholders like {{Name}}, {{Company}}
	DelayDays    int    `gorm:"default:0" json:"delay_days"`
	DelayHours   int    `gorm:"default:0" json:"delay_hours"`

	// Relations
	Campaign Campaign `json:"-"`
}

// Delay returns the wait before this step fires.
func (s *CampaignStep) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}
