package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	controller "mailsprint/controllers"
	"mailsprint/middleware"
	"mailsprint/worker"
)

// SetupRoutes wires the HTTP surface: authenticated campaign management and
// the public tracking/webhook endpoints.
func SetupRoutes(app *fiber.App, db *gorm.DB, dispatcher *worker.Dispatcher) {
	routeLogger := log.New(os.Stdout, "ROUTES: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Public tracking endpoints. No auth: the tracking token in the URL is
	// the only credential an email client can carry.
	trackingController := controller.NewTrackingController(db)
	publicLimiter := middleware.TrackingRateLimiter()
	app.Get("/track-open/:trackingID", publicLimiter, trackingController.HandleOpenPixel)
	app.Get("/click/:trackingID", publicLimiter, trackingController.HandleClickRedirect)

	// Provider webhook, authenticated by HMAC signature instead of a user.
	webhookController := controller.NewWebhookController(db)
	app.Post("/webhook", publicLimiter, webhookController.HandleProviderEvent)

	// Campaign management routes with logging middleware
	campaignLogger := log.New(os.Stdout, "CAMPAIGN: ", log.Ldate|log.Ltime|log.Lshortfile)
	campaignController := controller.NewCampaignController(db, campaignLogger, dispatcher)

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}), middleware.RequireUser(db))

	campaigns := api.Group("/campaigns")
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/", campaignController.ListCampaigns)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Get("/:id/stats", campaignController.GetCampaignStats)
	campaigns.Post("/:id/launch", campaignController.LaunchCampaign)
	campaigns.Post("/:id/pause", campaignController.PauseCampaign)
	campaigns.Post("/:id/resume", campaignController.ResumeCampaign)

	routeLogger.Println("Routes initialized successfully")
}
