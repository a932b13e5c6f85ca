package controller

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailsprint/config"
	"mailsprint/models"
	"mailsprint/utils"
)

type WebhookController struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewWebhookController(db *gorm.DB) *WebhookController {
	return &WebhookController{DB: db, Now: time.Now}
}

func (wc *WebhookController) now() time.Time {
	if wc.Now != nil {
		return wc.Now()
	}
	return time.Now()
}

// ProviderEvent is the envelope delivery providers POST to the webhook
// endpoint. Only the event type is required; every provider fills a
// different subset of the rest.
type ProviderEvent struct {
	Event     string `json:"event"`
	Email     string `json:"email"`
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
	Link      string `json:"link"`
}

// HandleProviderEvent ingests delivery feedback from the email provider.
// Signature mismatches get 401; everything else, including processing
// failures and unmatched recipients, gets 200 so the provider does not
// retry events we cannot act on.
func (wc *WebhookController) HandleProviderEvent(c *fiber.Ctx) error {
	body := c.Body()

	if !wc.verifySignature(body, c.Get("X-Webhook-Signature")) {
		logrus.WithField("ip", c.IP()).Warn("Webhook signature mismatch")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	var event ProviderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}
	if event.Event == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing event type",
		})
	}

	recipient, err := wc.findRecipient(&event)
	if err != nil {
		logrus.WithError(err).WithField("event", event.Event).Error("Webhook recipient lookup failed")
		return c.JSON(fiber.Map{"status": "ok"})
	}
	if recipient == nil {
		logrus.WithFields(logrus.Fields{
			"event": event.Event,
			"email": event.Email,
		}).Debug("Webhook event did not match any recipient")
		return c.JSON(fiber.Map{"status": "ok"})
	}

	if err := wc.applyEvent(recipient.ID, &event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"event":        event.Event,
			"recipient_id": recipient.ID,
		}).Error("Failed to apply webhook event")
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// verifySignature checks the HMAC-SHA256 hex digest of the raw body. With
// no secret configured, verification is skipped with a warning rather than
// locking the endpoint shut.
func (wc *WebhookController) verifySignature(body []byte, signature string) bool {
	secret := config.AppConfig.WebhookSecret
	if secret == "" {
		logrus.Warn("WEBHOOK_SECRET not set, accepting unsigned webhook")
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// findRecipient matches the event to a recipient: first by the provider
// message id, then by the contact email, taking the most recently contacted
// recipient. The email fallback can misattribute when one contact sits in
// several concurrent campaigns; the message id path is exact.
func (wc *WebhookController) findRecipient(event *ProviderEvent) (*models.CampaignRecipient, error) {
	if id := utils.NormalizeMessageID(event.MessageID); id != "" {
		var recipient models.CampaignRecipient
		err := wc.DB.Where("sent_message_id = ?", id).First(&recipient).Error
		if err == nil {
			return &recipient, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if event.Email == "" {
		return nil, nil
	}
	var recipient models.CampaignRecipient
	err := wc.DB.
		Joins("JOIN contacts ON contacts.id = campaign_recipients.contact_id").
		Where("contacts.email = ? AND campaign_recipients.last_sent_at IS NOT NULL", event.Email).
		Order("campaign_recipients.last_sent_at DESC").
		First(&recipient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &recipient, nil
}

// applyEvent folds one provider event into the recipient row. The status is
// re-read inside the transaction; a terminal status set elsewhere is never
// demoted, and Replied in particular survives any later bounce report.
func (wc *WebhookController) applyEvent(recipientID uint, event *ProviderEvent) error {
	now := wc.now()
	return wc.DB.Transaction(func(tx *gorm.DB) error {
		var r models.CampaignRecipient
		if err := tx.First(&r, recipientID).Error; err != nil {
			return err
		}

		switch event.Event {
		case "delivered":
			if r.Status == models.RecipientStatusActive {
				r.LastSentAt = &now
			}

		case "hard_bounce", "soft_bounce":
			if r.Status != models.RecipientStatusReplied {
				r.Status = models.RecipientStatusBounced
				r.ErrorMessage = "Bounce: " + event.Reason
				r.NextSendAt = nil
			}

		case "blocked", "invalid_email":
			if r.Status != models.RecipientStatusReplied {
				r.Status = models.RecipientStatusFailed
				r.ErrorMessage = event.Event + ": " + event.Reason
				r.NextSendAt = nil
			}

		case "opened":
			r.OpenCount++
			if err := tx.Create(&models.EmailEvent{
				RecipientID: r.ID,
				EventType:   models.EventTypeOpen,
				Timestamp:   now,
				Metadata:    map[string]interface{}{"source": "webhook"},
			}).Error; err != nil {
				return err
			}

		case "clicked":
			if err := tx.Create(&models.EmailEvent{
				RecipientID: r.ID,
				EventType:   models.EventTypeClick,
				Timestamp:   now,
				Metadata:    map[string]interface{}{"source": "webhook", "url": event.Link},
			}).Error; err != nil {
				return err
			}

		case "unsubscribed", "complaint":
			if r.Status == models.RecipientStatusActive {
				r.Status = models.RecipientStatusSkipped
				r.ErrorMessage = event.Event
				r.NextSendAt = nil
			}

		default:
			logrus.WithField("event", event.Event).Debug("Ignoring unrecognized webhook event")
			return nil
		}

		return tx.Save(&r).Error
	})
}
