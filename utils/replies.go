package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"

	"mailsprint/models"
)

// FetchReplyIDs connects to the account's mailbox and returns the message
// ids that inbound mail received since the given time is replying to
// (In-Reply-To plus References headers, brackets stripped). The caller
// matches these against recipients' SentMessageID.
func FetchReplyIDs(account *models.EmailAccount, since time.Time) ([]string, error) {
	c, err := dialIMAP(account)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mailbox := account.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", mailbox, err)
	}

	// IMAP SINCE has day granularity; over-fetching is fine because the
	// caller's matching is idempotent.
	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("IMAP search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 32)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var replyIDs []string
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		mr, err := mail.CreateReader(body)
		if err != nil {
			continue
		}
		header := mr.Header
		for _, raw := range []string{header.Get("In-Reply-To"), header.Get("References")} {
			for _, token := range strings.Fields(raw) {
				if id := NormalizeMessageID(token); id != "" {
					replyIDs = append(replyIDs, id)
				}
			}
		}
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("IMAP fetch failed: %w", err)
	}
	return replyIDs, nil
}

func dialIMAP(account *models.EmailAccount) (*client.Client, error) {
	host, port := account.IMAPHost, account.IMAPPort
	if host == "" {
		switch account.Provider {
		case models.ProviderGmail:
			host = "imap.gmail.com"
		case models.ProviderOutlook:
			host = "outlook.office365.com"
		default:
			return nil, fmt.Errorf("no IMAP host configured for account %d", account.ID)
		}
	}
	if port == 0 {
		port = 993
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", host, port), &tls.Config{
		ServerName: host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	switch account.Provider {
	case models.ProviderGmail, models.ProviderOutlook:
		ts, err := OAuthTokenSource(context.Background(), account)
		if err != nil {
			c.Logout()
			return nil, err
		}
		token, err := ts.Token()
		if err != nil {
			c.Logout()
			return nil, fmt.Errorf("failed to refresh OAuth token: %w", err)
		}
		auth := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: account.EmailAddress,
			Token:    token.AccessToken,
			Host:     host,
			Port:     port,
		})
		if err := c.Authenticate(auth); err != nil {
			c.Logout()
			return nil, fmt.Errorf("IMAP OAuth authentication failed: %w", err)
		}
	default:
		username := account.IMAPUsername
		if username == "" {
			username = account.EmailAddress
		}
		password, err := Decrypt(account.IMAPPassword)
		if err != nil {
			c.Logout()
			return nil, fmt.Errorf("failed to decrypt IMAP password: %w", err)
		}
		if err := c.Login(username, password); err != nil {
			c.Logout()
			return nil, fmt.Errorf("IMAP login failed: %w", err)
		}
	}

	return c, nil
}
