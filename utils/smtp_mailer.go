package utils

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"mailsprint/config"
	"mailsprint/models"
)

// SMTPMailer submits mail through the account's own SMTP server using the
// stored (encrypted) credentials.
type SMTPMailer struct{}

func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{}
}

func (sm *SMTPMailer) Send(account *models.EmailAccount, email *OutgoingEmail) (*SendResult, error) {
	if account.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP configuration not found for account %d", account.ID)
	}
	if err := checkmail.ValidateFormat(email.ToEmail); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", email.ToEmail, err)
	}

	password, err := Decrypt(account.SMTPPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	// The SMTP server assigns no id we can read back through gomail, so we
	// pin our own Message-Id and correlate webhooks and replies against it.
	domain := account.EmailAddress
	if at := strings.LastIndex(domain, "@"); at != -1 {
		domain = domain[at+1:]
	}
	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), domain)

	m := gomail.NewMessage()
	if account.FromName != "" {
		m.SetHeader("From", m.FormatAddress(account.EmailAddress, account.FromName))
	} else {
		m.SetHeader("From", account.EmailAddress)
	}
	if email.ToName != "" {
		m.SetHeader("To", m.FormatAddress(email.ToEmail, email.ToName))
	} else {
		m.SetHeader("To", email.ToEmail)
	}
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-Id", "<"+messageID+">")

	m.SetBody("text/plain", email.Body)
	if email.HTMLBody != "" {
		html := InjectTracking(email.HTMLBody, config.AppConfig.TrackingBaseURL, email.TrackingID)
		m.AddAlternative("text/html", html)
	}

	username := account.SMTPUsername
	if username == "" {
		username = account.EmailAddress
	}
	d := gomail.NewDialer(account.SMTPHost, account.SMTPPort, username, password)
	d.SSL = account.SMTPUseTLS && account.SMTPPort == 465

	if err := d.DialAndSend(m); err != nil {
		return nil, classifySMTPError(err)
	}

	return &SendResult{MessageID: messageID}, nil
}

// classifySMTPError separates transport failures (retryable) from permanent
// server rejections.
func classifySMTPError(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 400 && protoErr.Code < 500 {
			return Transient(fmt.Errorf("SMTP temporary failure: %w", err))
		}
		return fmt.Errorf("SMTP rejected message: %w", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.As(err, new(*net.OpError)) {
		return Transient(fmt.Errorf("SMTP connection failure: %w", err))
	}

	return Transient(fmt.Errorf("SMTP send failed: %w", err))
}
