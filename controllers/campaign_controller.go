package controller

import (
	"log"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailsprint/models"
	"mailsprint/utils"
	"mailsprint/worker"
)

type CampaignController struct {
	DB         *gorm.DB
	Logger     *log.Logger
	Dispatcher *worker.Dispatcher
	Now        func() time.Time
}

func NewCampaignController(db *gorm.DB, logger *log.Logger, dispatcher *worker.Dispatcher) *CampaignController {
	return &CampaignController{
		DB:         db,
		Logger:     logger,
		Dispatcher: dispatcher,
		Now:        time.Now,
	}
}

func (cc *CampaignController) now() time.Time {
	if cc.Now != nil {
		return cc.Now()
	}
	return time.Now()
}

type EmailStepInput struct {
	StepNumber   int    `json:"step_number" validate:"required,gte=1"`
	Subject      string `json:"subject" validate:"required,max=255"`
	BodyTemplate string `json:"body_template" validate:"required"`
	DelayDays    int    `json:"delay_days" validate:"gte=0"`
	DelayHours   int    `json:"delay_hours" validate:"gte=0,lte=23"`
}

type CreateCampaignInput struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description string           `json:"description" validate:"max=5000"`
	ContactIDs  []uint           `json:"contact_ids" validate:"required,min=1"`
	Steps       []EmailStepInput `json:"steps" validate:"required,min=1,dive"`
}

// validateStepNumbers enforces that step numbers are unique and contiguous
// starting at 1. Storage carries no constraint for this; creation is the
// only gate.
func validateStepNumbers(steps []EmailStepInput) bool {
	seen := make(map[int]bool, len(steps))
	for _, step := range steps {
		if seen[step.StepNumber] {
			return false
		}
		seen[step.StepNumber] = true
	}
	for n := 1; n <= len(steps); n++ {
		if !seen[n] {
			return false
		}
	}
	return true
}

// CreateCampaign creates a Draft campaign with its steps and its fixed
// recipient membership. Membership does not change after creation.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input CreateCampaignInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if !validateStepNumbers(input.Steps) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Step numbers must be unique and sequential starting from 1",
		})
	}

	// All contacts must belong to the caller.
	var contacts []models.Contact
	if err := cc.DB.Where("id IN ? AND user_id = ?", input.ContactIDs, user.ID).Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load contacts",
		})
	}
	if len(contacts) != len(input.ContactIDs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "One or more contacts not found",
		})
	}

	sort.Slice(input.Steps, func(i, j int) bool {
		return input.Steps[i].StepNumber < input.Steps[j].StepNumber
	})

	campaign := models.Campaign{
		UserID:      user.ID,
		Name:        input.Name,
		Description: input.Description,
		Status:      models.CampaignStatusDraft,
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&campaign).Error; err != nil {
			return err
		}
		for _, step := range input.Steps {
			if err := tx.Create(&models.CampaignStep{
				CampaignID:   campaign.ID,
				StepNumber:   step.StepNumber,
				Subject:      step.Subject,
				BodyTemplate: step.BodyTemplate,
				DelayDays:    step.DelayDays,
				DelayHours:   step.DelayHours,
			}).Error; err != nil {
				return err
			}
		}
		for _, contact := range contacts {
			recipient := models.CampaignRecipient{
				CampaignID: campaign.ID,
				ContactID:  contact.ID,
				Status:     models.RecipientStatusActive,
			}
			recipient.EnsureTrackingID()
			if err := tx.Create(&recipient).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cc.Logger.Printf("Failed to create campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	cc.Logger.Printf("User %d created campaign %d with %d recipients", user.ID, campaign.ID, len(contacts))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
		"recipients":  len(contacts),
	})
}

// ListCampaigns returns the caller's campaigns, newest first.
func (cc *CampaignController) ListCampaigns(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaigns []models.Campaign
	if err := cc.DB.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}

	return c.JSON(fiber.Map{
		"campaigns": campaigns,
	})
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := cc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number ASC")
	}).Where("id = ? AND user_id = ?", campaignID, user.ID).First(&campaign).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}

	return c.JSON(campaign)
}
