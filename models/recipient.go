package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recipient statuses. Active is the only non-terminal status: it covers both
// "nothing sent yet" (CurrentStep == 0) and "between steps, next send armed"
// (CurrentStep > 0, NextSendAt set).
const (
	RecipientStatusActive  = "Active"
	RecipientStatusReplied = "Replied"
	RecipientStatusBounced = "Bounced"
	RecipientStatusFailed  = "Failed"
	RecipientStatusSkipped = "Skipped" // sequence exhausted, or unsubscribed/complained
)

// CampaignRecipient tracks one contact's journey through one campaign's
// step sequence. The row is the unit of mutual exclusion for the send
// pipeline: all status transitions are read-check-write against the
// persisted row.
type CampaignRecipient struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ContactID  uint `gorm:"not null;index" json:"contact_id"`

	// Progress
	CurrentStep int    `gorm:"default:0" json:"current_step"` // last step sent, 0 = none yet
	Status      string `gorm:"default:'Active';index" json:"status"`

	// Scheduling. NextSendAt non-nil implies Status == Active.
	LastSentAt *time.Time `json:"last_sent_at"`
	NextSendAt *time.Time `gorm:"index" json:"next_send_at"`

	// Tracking
	TrackingID      string     `gorm:"uniqueIndex" json:"tracking_id"`
	SentMessageID   string     `gorm:"index" json:"sent_message_id"` // provider id of the most recent send
	OpenCount       int        `gorm:"default:0" json:"open_count"`
	ReplyDetectedAt *time.Time `json:"reply_detected_at"`

	// Error handling
	ErrorMessage string `gorm:"type:text" json:"error_message"`

	// Relations
	Campaign Campaign     `json:"-"`
	Contact  Contact      `json:"contact,omitempty"`
	Events   []EmailEvent `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"events,omitempty"`
}

// EnsureTrackingID populates the tracking token once; it is stable for the
// recipient's lifetime after that.
func (r *CampaignRecipient) EnsureTrackingID() string {
	if r.TrackingID == "" {
		r.TrackingID = uuid.New().String()
	}
	return r.TrackingID
}

// IsTerminal reports whether the recipient can never be dispatched again.
func (r *CampaignRecipient) IsTerminal() bool {
	return r.Status != RecipientStatusActive
}
