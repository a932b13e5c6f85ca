package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mailsprint/middleware"
	"mailsprint/models"
	"mailsprint/utils"
	"mailsprint/worker"
)

var testDBCounter int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:controller_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Contact{},
		&models.EmailAccount{},
		&models.Campaign{},
		&models.CampaignStep{},
		&models.CampaignRecipient{},
		&models.EmailEvent{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

type noopMailer struct{}

func (noopMailer) Send(account *models.EmailAccount, email *utils.OutgoingEmail) (*utils.SendResult, error) {
	return &utils.SendResult{MessageID: "noop@test.local"}, nil
}

// newTestApp wires the full HTTP surface against a throwaway database. The
// dispatcher is constructed but never started, so enqueued work stays in its
// queue instead of racing the assertions.
func newTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	quiet := log.New(io.Discard, "", 0)
	dispatcher := worker.NewDispatcher(db, noopMailer{}, quiet)

	app := fiber.New()

	trackingController := NewTrackingController(db)
	app.Get("/track-open/:trackingID", trackingController.HandleOpenPixel)
	app.Get("/click/:trackingID", trackingController.HandleClickRedirect)

	webhookController := NewWebhookController(db)
	app.Post("/webhook", webhookController.HandleProviderEvent)

	campaignController := NewCampaignController(db, quiet, dispatcher)
	api := app.Group("/api/v1", middleware.RequireUser(db))
	campaigns := api.Group("/campaigns")
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/", campaignController.ListCampaigns)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Get("/:id/stats", campaignController.GetCampaignStats)
	campaigns.Post("/:id/launch", campaignController.LaunchCampaign)
	campaigns.Post("/:id/pause", campaignController.PauseCampaign)
	campaigns.Post("/:id/resume", campaignController.ResumeCampaign)

	return app
}

func seedUser(t *testing.T, db *gorm.DB, planName string) *models.User {
	t.Helper()

	plans := []models.Plan{
		{Name: "free", CampaignsEnabled: false, DailySendLimit: 0},
		{Name: "pro", CampaignsEnabled: true, DailySendLimit: 1000},
	}
	for i := range plans {
		if err := db.Where("name = ?", plans[i].Name).FirstOrCreate(&plans[i]).Error; err != nil {
			t.Fatalf("failed to seed plan: %v", err)
		}
	}

	user := &models.User{Email: fmt.Sprintf("user%d@example.com", time.Now().UnixNano()), Name: "Test User", PlanName: planName}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func seedContacts(t *testing.T, db *gorm.DB, userID uint, n int) []models.Contact {
	t.Helper()
	contacts := make([]models.Contact, 0, n)
	for i := 0; i < n; i++ {
		c := models.Contact{
			UserID:  userID,
			Name:    fmt.Sprintf("Contact %d", i+1),
			Email:   fmt.Sprintf("contact%d@prospect.example", i+1),
			Company: "Prospect Inc",
		}
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("failed to seed contact: %v", err)
		}
		contacts = append(contacts, c)
	}
	return contacts
}

func jsonRequest(t *testing.T, method, target string, payload interface{}, userID uint) *http.Request {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return out
}
