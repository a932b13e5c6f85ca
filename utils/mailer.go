package utils

import (
	"errors"
	"fmt"
	"strings"

	"mailsprint/models"
)

// OutgoingEmail is one rendered message ready for delivery. HTMLBody is
// optional; when both it and TrackingID are set, the mailer injects the open
// pixel and click redirects before submission.
type OutgoingEmail struct {
	ToEmail    string
	ToName     string
	Subject    string
	Body       string
	HTMLBody   string
	TrackingID string
}

// SendResult normalizes provider responses.
type SendResult struct {
	MessageID string
}

// Mailer submits one message through a delivery provider account.
type Mailer interface {
	Send(account *models.EmailAccount, email *OutgoingEmail) (*SendResult, error)
}

// ErrNotImplemented tags provider paths that are selectable but not yet
// wired to a real transport. Callers must treat it as a terminal failure,
// never a silent success.
var ErrNotImplemented = errors.New("provider not implemented")

// TransientError marks transport-level failures (timeouts, connection
// drops, provider 5xx) that the dispatcher may retry. Business rejections
// are returned as plain errors and never retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ProviderMailer routes sends to the implementation matching the account's
// provider tag.
type ProviderMailer struct {
	SMTP    Mailer
	Brevo   Mailer
	Gmail   Mailer
	Outlook Mailer
}

// NewProviderMailer wires the default implementation per provider kind.
func NewProviderMailer() *ProviderMailer {
	return &ProviderMailer{
		SMTP:    NewSMTPMailer(),
		Brevo:   NewBrevoMailer(),
		Gmail:   &GmailMailer{},
		Outlook: &OutlookMailer{},
	}
}

func (pm *ProviderMailer) Send(account *models.EmailAccount, email *OutgoingEmail) (*SendResult, error) {
	switch account.Provider {
	case models.ProviderSMTP:
		return pm.SMTP.Send(account, email)
	case models.ProviderBrevo:
		return pm.Brevo.Send(account, email)
	case models.ProviderGmail:
		return pm.Gmail.Send(account, email)
	case models.ProviderOutlook:
		return pm.Outlook.Send(account, email)
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", account.Provider)
	}
}

// NormalizeMessageID strips the RFC 5322 angle brackets so that ids stored
// on recipients compare equal to ids reported by webhooks and mailbox
// headers.
func NormalizeMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}
