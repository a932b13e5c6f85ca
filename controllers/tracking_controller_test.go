package controller

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailsprint/models"
	"mailsprint/utils"
)

// newTrackingApp registers only the tracking endpoints, with a fixed clock so
// the per-day open dedup is deterministic.
func newTrackingApp(db *gorm.DB, now time.Time) (*fiber.App, *TrackingController) {
	tc := NewTrackingController(db)
	tc.Now = func() time.Time { return now }

	app := fiber.New()
	app.Get("/track-open/:trackingID", tc.HandleOpenPixel)
	app.Get("/click/:trackingID", tc.HandleClickRedirect)
	return app, tc
}

func seedTrackedRecipient(t *testing.T, db *gorm.DB) *models.CampaignRecipient {
	t.Helper()

	user := seedUser(t, db, "pro")
	contact := seedContacts(t, db, user.ID, 1)[0]
	campaign := models.Campaign{UserID: user.ID, Name: "Tracked", Status: models.CampaignStatusRunning}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("failed to seed campaign: %v", err)
	}

	recipient := models.CampaignRecipient{
		CampaignID:  campaign.ID,
		ContactID:   contact.ID,
		Status:      models.RecipientStatusActive,
		CurrentStep: 1,
	}
	recipient.EnsureTrackingID()
	if err := db.Create(&recipient).Error; err != nil {
		t.Fatalf("failed to seed recipient: %v", err)
	}
	return &recipient
}

func TestOpenPixelCountsAndDedupesEvents(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 8, 4, 15, 0, 0, 0, time.UTC)
	app, _ := newTrackingApp(db, now)
	recipient := seedTrackedRecipient(t, db)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/track-open/"+recipient.TrackingID, nil))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("expected image/png, got %q", ct)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != string(utils.TrackingPixel()) {
			t.Error("response body must be the fixed pixel")
		}
	}

	var r models.CampaignRecipient
	db.First(&r, recipient.ID)
	if r.OpenCount != 3 {
		t.Errorf("expected OpenCount 3, got %d", r.OpenCount)
	}

	var events int64
	db.Model(&models.EmailEvent{}).
		Where("recipient_id = ? AND event_type = ?", recipient.ID, models.EventTypeOpen).
		Count(&events)
	if events != 1 {
		t.Errorf("expected 1 OPEN event for same-day opens, got %d", events)
	}
}

func TestOpenPixelRecordsNewEventNextDay(t *testing.T) {
	db := newTestDB(t)
	day1 := time.Date(2026, 8, 4, 15, 0, 0, 0, time.UTC)
	app, tc := newTrackingApp(db, day1)
	recipient := seedTrackedRecipient(t, db)

	if _, err := app.Test(httptest.NewRequest("GET", "/track-open/"+recipient.TrackingID, nil)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	tc.Now = func() time.Time { return day1.Add(24 * time.Hour) }
	if _, err := app.Test(httptest.NewRequest("GET", "/track-open/"+recipient.TrackingID, nil)); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var events int64
	db.Model(&models.EmailEvent{}).
		Where("recipient_id = ? AND event_type = ?", recipient.ID, models.EventTypeOpen).
		Count(&events)
	if events != 2 {
		t.Errorf("expected 2 OPEN events across days, got %d", events)
	}
}

func TestOpenPixelUnknownTokenStillServesPixel(t *testing.T) {
	db := newTestDB(t)
	app, _ := newTrackingApp(db, time.Now())

	resp, err := app.Test(httptest.NewRequest("GET", "/track-open/no-such-token", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for unknown token, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(utils.TrackingPixel()) {
		t.Error("unknown token must get the same pixel as a known one")
	}

	var events int64
	db.Model(&models.EmailEvent{}).Count(&events)
	if events != 0 {
		t.Errorf("expected no events for unknown token, got %d", events)
	}
}

func TestClickRedirectRecordsEventAndForwards(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 8, 4, 15, 0, 0, 0, time.UTC)
	app, _ := newTrackingApp(db, now)
	recipient := seedTrackedRecipient(t, db)

	resp, err := app.Test(httptest.NewRequest("GET", "/click/"+recipient.TrackingID+"?url=https%3A%2F%2Fexample.com%2Fpricing", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 302 {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://example.com/pricing" {
		t.Errorf("expected redirect to original target, got %q", loc)
	}

	var event models.EmailEvent
	if err := db.Where("recipient_id = ? AND event_type = ?", recipient.ID, models.EventTypeClick).First(&event).Error; err != nil {
		t.Fatalf("expected CLICK event: %v", err)
	}
	if event.Metadata["url"] != "https://example.com/pricing" {
		t.Errorf("expected clicked url in metadata, got %v", event.Metadata["url"])
	}
}

func TestClickRedirectUnknownTokenStillForwards(t *testing.T) {
	db := newTestDB(t)
	app, _ := newTrackingApp(db, time.Now())

	resp, err := app.Test(httptest.NewRequest("GET", "/click/no-such-token?url=https%3A%2F%2Fexample.com", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 302 {
		t.Fatalf("expected 302 for unknown token, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://example.com" {
		t.Errorf("expected redirect to target, got %q", loc)
	}
}
