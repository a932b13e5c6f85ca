package models

import "gorm.io/gorm"

// CreateDefaultPlans seeds the plan table during migration
func CreateDefaultPlans(db *gorm.DB) error {
	defaultPlans := []Plan{
		{
			Name:             "free",
			Description:      "Free plan, campaigns disabled",
			CampaignsEnabled: false,
			DailySendLimit:   0,
		},
		{
			Name:             "starter",
			Description:      "Starter plan with campaign sending",
			CampaignsEnabled: true,
			DailySendLimit:   500,
		},
		{
			Name:             "pro",
			Description:      "Pro plan for high-volume senders",
			CampaignsEnabled: true,
			DailySendLimit:   5000,
		},
	}
	for _, plan := range defaultPlans {
		if err := db.FirstOrCreate(&plan, "name = ?", plan.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
