package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"mailsprint/config"
	"mailsprint/models"
)

// BrevoMailer submits mail through the Brevo transactional API using the
// account's stored (encrypted) API key.
type BrevoMailer struct {
	Client *http.Client
}

func NewBrevoMailer() *BrevoMailer {
	return &BrevoMailer{
		Client: &http.Client{Timeout: config.AppConfig.ProviderTimeout},
	}
}

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoSendRequest struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	TextContent string         `json:"textContent,omitempty"`
	HTMLContent string         `json:"htmlContent,omitempty"`
}

type brevoSendResponse struct {
	MessageID string `json:"messageId"`
}

func (bm *BrevoMailer) Send(account *models.EmailAccount, email *OutgoingEmail) (*SendResult, error) {
	apiKey, err := Decrypt(account.BrevoAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt Brevo API key: %w", err)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no Brevo API key configured for account %d", account.ID)
	}

	payload := brevoSendRequest{
		Sender:      brevoAddress{Email: account.EmailAddress, Name: account.FromName},
		To:          []brevoAddress{{Email: email.ToEmail, Name: email.ToName}},
		Subject:     email.Subject,
		TextContent: email.Body,
	}
	if email.HTMLBody != "" {
		payload.HTMLContent = InjectTracking(email.HTMLBody, config.AppConfig.TrackingBaseURL, email.TrackingID)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode Brevo request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, config.AppConfig.BrevoAPIURL+"/smtp/email", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", apiKey)

	resp, err := bm.Client.Do(req)
	if err != nil {
		return nil, Transient(fmt.Errorf("Brevo request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, Transient(fmt.Errorf("Brevo server error: %s", resp.Status))
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return nil, fmt.Errorf("Brevo rejected message: %s", apiErr.Message)
	}

	var result brevoSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode Brevo response: %w", err)
	}

	return &SendResult{MessageID: NormalizeMessageID(result.MessageID)}, nil
}
