package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mailsprint/models"
	"mailsprint/utils"
)

type TrackingController struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewTrackingController(db *gorm.DB) *TrackingController {
	return &TrackingController{DB: db, Now: time.Now}
}

func (tc *TrackingController) now() time.Time {
	if tc.Now != nil {
		return tc.Now()
	}
	return time.Now()
}

// HandleOpenPixel serves the tracking pixel for an email open. The pixel is
// returned no matter what: an unknown token or an internal error must not
// break image rendering in the recipient's mail client, and the uniform
// response leaks nothing about which tokens exist.
func (tc *TrackingController) HandleOpenPixel(c *fiber.Ctx) error {
	trackingID := c.Params("trackingID")

	var recipient models.CampaignRecipient
	err := tc.DB.Where("tracking_id = ?", trackingID).First(&recipient).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).WithField("tracking_id", trackingID).Error("Open pixel lookup failed")
		}
		return tc.servePixel(c)
	}

	if err := tc.recordOpen(&recipient, c.IP(), c.Get("User-Agent")); err != nil {
		logrus.WithError(err).WithField("recipient_id", recipient.ID).Error("Failed to record open")
	}

	return tc.servePixel(c)
}

// recordOpen bumps the open counter on every hit but records at most one
// OPEN event per recipient per UTC calendar day, so a mail client that
// refetches the image does not inflate the event log.
func (tc *TrackingController) recordOpen(recipient *models.CampaignRecipient, ip, userAgent string) error {
	now := tc.now()
	return tc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.CampaignRecipient{}).
			Where("id = ?", recipient.ID).
			Update("open_count", gorm.Expr("open_count + 1")).Error; err != nil {
			return err
		}

		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		var existing int64
		if err := tx.Model(&models.EmailEvent{}).
			Where("recipient_id = ? AND event_type = ? AND timestamp >= ?", recipient.ID, models.EventTypeOpen, dayStart).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		return tx.Create(&models.EmailEvent{
			RecipientID: recipient.ID,
			EventType:   models.EventTypeOpen,
			Timestamp:   now,
			Metadata: map[string]interface{}{
				"ip":         ip,
				"user_agent": userAgent,
			},
		}).Error
	})
}

func (tc *TrackingController) servePixel(c *fiber.Ctx) error {
	c.Set("Content-Type", "image/png")
	c.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	return c.Send(utils.TrackingPixel())
}

// HandleClickRedirect records a tracked link click and forwards the visitor
// to the original destination. The redirect always happens; recording is
// best effort.
func (tc *TrackingController) HandleClickRedirect(c *fiber.Ctx) error {
	trackingID := c.Params("trackingID")
	target := c.Query("url")
	if target == "" {
		target = "/"
	}

	var recipient models.CampaignRecipient
	err := tc.DB.Where("tracking_id = ?", trackingID).First(&recipient).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Unknown token: just forward.
	case err != nil:
		logrus.WithError(err).WithField("tracking_id", trackingID).Error("Click lookup failed")
	default:
		event := models.EmailEvent{
			RecipientID: recipient.ID,
			EventType:   models.EventTypeClick,
			Timestamp:   tc.now(),
			Metadata: map[string]interface{}{
				"url":        target,
				"ip":         c.IP(),
				"user_agent": c.Get("User-Agent"),
			},
		}
		if err := tc.DB.Create(&event).Error; err != nil {
			logrus.WithError(err).WithField("recipient_id", recipient.ID).Error("Failed to record click")
		}
	}

	return c.Redirect(target, fiber.StatusFound)
}
