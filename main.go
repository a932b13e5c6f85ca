package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"mailsprint/config"
	"mailsprint/middleware"
	"mailsprint/routes"
	"mailsprint/utils"
	"mailsprint/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "MAILSPRINT: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize error reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection (runs migrations and plan seeding)
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Initialize the provider mailer and the background pipeline
	mailer := utils.NewProviderMailer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := worker.NewDispatcher(config.DB, mailer, log.New(os.Stdout, "DISPATCH: ", log.LstdFlags))
	dispatcher.Start(ctx)

	sendPoller := worker.NewSendPoller(config.DB, dispatcher, log.New(os.Stdout, "SENDER: ", log.LstdFlags))
	go sendPoller.Start(ctx)

	replyPoller := worker.NewReplyPoller(config.DB, dispatcher, log.New(os.Stdout, "REPLIES: ", log.LstdFlags))
	go replyPoller.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, dispatcher)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
