package controller

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailsprint/models"
	"mailsprint/utils"
)

// LaunchCampaign moves a Draft campaign to Running and arms every recipient
// for step one immediately. Armed recipients are also enqueued directly so
// the first step does not wait for the next poller tick.
func (cc *CampaignController) LaunchCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var plan models.Plan
	if err := cc.DB.Where("name = ?", user.PlanName).First(&plan).Error; err != nil || !plan.CampaignsEnabled {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Your plan does not include campaigns. Please upgrade to launch campaigns.",
		})
	}

	var campaign models.Campaign
	if err := cc.DB.Preload("Steps").Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	if campaign.Status != models.CampaignStatusDraft {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only draft campaigns can be launched",
		})
	}
	if len(campaign.Steps) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign has no email steps",
		})
	}

	var recipients []models.CampaignRecipient
	if err := cc.DB.Where("campaign_id = ?", campaign.ID).Find(&recipients).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load recipients",
		})
	}
	if len(recipients) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign has no recipients",
		})
	}

	now := cc.now()
	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		campaign.Status = models.CampaignStatusRunning
		campaign.LaunchedAt = &now
		if err := tx.Save(&campaign).Error; err != nil {
			return err
		}
		for i := range recipients {
			r := &recipients[i]
			r.Status = models.RecipientStatusActive
			r.NextSendAt = utils.Pointer(now)
			r.EnsureTrackingID()
			if err := tx.Save(r).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cc.Logger.Printf("Failed to launch campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to launch campaign",
		})
	}

	for _, r := range recipients {
		cc.Dispatcher.Enqueue(r.ID)
	}

	utils.LogEvent("campaign_launched", map[string]interface{}{
		"campaign_id": campaign.ID,
		"user_id":     user.ID,
		"recipients":  len(recipients),
	})

	return c.JSON(fiber.Map{
		"message":     "Campaign launched",
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
		"scheduled":   len(recipients),
	})
}

// PauseCampaign halts dispatch for a running campaign. Recipient schedules
// are left untouched, so a later resume picks up exactly where sending
// stopped.
func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	if campaign.Status != models.CampaignStatusRunning {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only running campaigns can be paused",
		})
	}

	now := cc.now()
	campaign.Status = models.CampaignStatusPaused
	campaign.PausedAt = &now
	if err := cc.DB.Save(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to pause campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message":     "Campaign paused",
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
	})
}

// ResumeCampaign moves a paused campaign back to Running. Recipients whose
// NextSendAt passed while paused become due on the next poller tick.
func (cc *CampaignController) ResumeCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	if campaign.Status != models.CampaignStatusPaused {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only paused campaigns can be resumed",
		})
	}

	campaign.Status = models.CampaignStatusRunning
	campaign.PausedAt = nil
	if err := cc.DB.Save(&campaign).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resume campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message":     "Campaign resumed",
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
	})
}

// GetCampaignStats aggregates recipient outcomes and engagement counts for
// one campaign.
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := cc.DB.Model(&models.CampaignRecipient{}).
		Select("status, COUNT(*) as count").
		Where("campaign_id = ?", campaign.ID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}

	byStatus := make(map[string]int64, len(rows))
	var total int64
	for _, row := range rows {
		byStatus[row.Status] = row.Count
		total += row.Count
	}

	var totalOpens int64
	cc.DB.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ?", campaign.ID).
		Select("COALESCE(SUM(open_count), 0)").
		Scan(&totalOpens)

	var uniqueOpens int64
	cc.DB.Model(&models.CampaignRecipient{}).
		Where("campaign_id = ? AND open_count > 0", campaign.ID).
		Count(&uniqueOpens)

	var clicks int64
	cc.DB.Model(&models.EmailEvent{}).
		Joins("JOIN campaign_recipients ON campaign_recipients.id = email_events.recipient_id").
		Where("campaign_recipients.campaign_id = ? AND email_events.event_type = ?", campaign.ID, models.EventTypeClick).
		Count(&clicks)

	return c.JSON(fiber.Map{
		"campaign_id":  campaign.ID,
		"status":       campaign.Status,
		"recipients":   total,
		"active":       byStatus[models.RecipientStatusActive],
		"replied":      byStatus[models.RecipientStatusReplied],
		"bounced":      byStatus[models.RecipientStatusBounced],
		"failed":       byStatus[models.RecipientStatusFailed],
		"completed":    byStatus[models.RecipientStatusSkipped],
		"total_opens":  totalOpens,
		"unique_opens": uniqueOpens,
		"clicks":       clicks,
	})
}
