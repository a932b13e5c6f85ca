package models

import (
	"time"

	"gorm.io/gorm"
)

// Email event types
const (
	EventTypeOpen  = "OPEN"
	EventTypeReply = "REPLY"
	EventTypeClick = "CLICK"
)

// EmailEvent is an append-only audit/analytics record. Events are never
// updated or deleted on their own; they go away only with their recipient.
type EmailEvent struct {
	gorm.Model
	RecipientID uint `gorm:"not null;index" json:"recipient_id"`

	EventType string    `gorm:"not null;index" json:"event_type"` // OPEN, REPLY, CLICK
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`

	// Free-form event data: IP, user agent, clicked link, provider reason
	Metadata map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`

	// Relations
	Recipient CampaignRecipient `gorm:"foreignKey:RecipientID" json:"-"`
}
