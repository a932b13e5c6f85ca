package models

import (
	"time"

	"gorm.io/gorm"
)

// Email delivery providers
const (
	ProviderSMTP    = "smtp"
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
	ProviderBrevo   = "brevo"
)

// EmailAccount represents delivery and mailbox credentials for one of a
// user's connected sending addresses. Exactly one active+default account per
// user is expected by the dispatcher. Secrets are encrypted in the
// application layer before they reach the row.
type EmailAccount struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Identification
	Provider     string `gorm:"not null;index" json:"provider"` // smtp, gmail, outlook, brevo
	EmailAddress string `gorm:"not null" json:"email_address"`
	FromName     string `json:"from_name"`

	// ========= SMTP Configuration =========
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"` // Encrypted in application layer
	SMTPUseTLS   bool   `gorm:"default:true" json:"smtp_use_tls"`

	// ========= IMAP Configuration (reply detection) =========
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port" gorm:"default:993"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"-"` // Encrypted in application layer
	IMAPMailbox  string `json:"imap_mailbox" gorm:"default:'INBOX'"`

	// ========= OAuth Configuration =========
	OAuthToken        string     `gorm:"column:oauth_token" json:"-"`         // Encrypted
	OAuthRefreshToken string     `gorm:"column:oauth_refresh_token" json:"-"` // Encrypted
	OAuthExpiry       *time.Time `gorm:"column:oauth_expiry" json:"oauth_expiry"`

	// ========= API Configuration =========
	BrevoAPIKey string `json:"-"` // Encrypted

	// Status
	IsActive  bool `gorm:"default:true" json:"is_active"`
	IsDefault bool `gorm:"default:false" json:"is_default"`

	// Relations
	User User `json:"-"`
}

// Sanitize blanks out secrets before the account is serialized to a client.
func (a *EmailAccount) Sanitize() {
	a.SMTPPassword = ""
	a.IMAPPassword = ""
	a.OAuthToken = ""
	a.OAuthRefreshToken = ""
	a.BrevoAPIKey = ""
}

// SupportsReplyDetection reports whether the reply poller can query this
// account's mailbox for inbound replies. SMTP-only accounts qualify when
// IMAP settings are present; OAuth accounts always do.
func (a *EmailAccount) SupportsReplyDetection() bool {
	switch a.Provider {
	case ProviderGmail, ProviderOutlook:
		return true
	default:
		return a.IMAPHost != ""
	}
}
