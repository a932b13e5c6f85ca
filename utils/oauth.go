package utils

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"mailsprint/config"
	"mailsprint/models"
)

// OAuthTokenSource builds a refreshing token source for a connected Gmail or
// Outlook account from its stored (encrypted) tokens.
func OAuthTokenSource(ctx context.Context, account *models.EmailAccount) (oauth2.TokenSource, error) {
	var conf *oauth2.Config
	switch account.Provider {
	case models.ProviderGmail:
		conf = &oauth2.Config{
			ClientID:     config.AppConfig.Google.ClientID,
			ClientSecret: config.AppConfig.Google.ClientSecret,
			RedirectURL:  config.AppConfig.Google.RedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://mail.google.com/"},
		}
	case models.ProviderOutlook:
		conf = &oauth2.Config{
			ClientID:     config.AppConfig.Microsoft.ClientID,
			ClientSecret: config.AppConfig.Microsoft.ClientSecret,
			RedirectURL:  config.AppConfig.Microsoft.RedirectURI,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			Scopes:       []string{"https://outlook.office.com/IMAP.AccessAsUser.All", "offline_access"},
		}
	default:
		return nil, fmt.Errorf("provider %s does not use OAuth", account.Provider)
	}

	accessToken, err := Decrypt(account.OAuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt OAuth token: %w", err)
	}
	refreshToken, err := Decrypt(account.OAuthRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt OAuth refresh token: %w", err)
	}
	if refreshToken == "" && accessToken == "" {
		return nil, fmt.Errorf("no OAuth tokens stored for account %d", account.ID)
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if account.OAuthExpiry != nil {
		token.Expiry = *account.OAuthExpiry
	} else {
		// Force a refresh on first use when the expiry is unknown.
		token.Expiry = time.Now().Add(-time.Minute)
	}

	return conf.TokenSource(ctx, token), nil
}

// GmailMailer is a placeholder until Gmail API submission lands. Selecting a
// Gmail account for sending fails loudly instead of pretending to deliver.
type GmailMailer struct{}

func (gm *GmailMailer) Send(account *models.EmailAccount, email *OutgoingEmail) (*SendResult, error) {
	return nil, fmt.Errorf("gmail send for account %d: %w", account.ID, ErrNotImplemented)
}

// OutlookMailer is a placeholder until Graph API submission lands.
type OutlookMailer struct{}

func (om *OutlookMailer) Send(account *models.EmailAccount, email *OutgoingEmail) (*SendResult, error) {
	return nil, fmt.Errorf("outlook send for account %d: %w", account.ID, ErrNotImplemented)
}
