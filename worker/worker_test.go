package worker

import (
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mailsprint/models"
	"mailsprint/utils"
)

var testDBCounter int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
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

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// mockMailer records sends and returns whatever SendFn says.
type mockMailer struct {
	SendFn func(account *models.EmailAccount, email *utils.OutgoingEmail) (*utils.SendResult, error)
	calls  int32
	sent   []utils.OutgoingEmail
}

func (m *mockMailer) Send(account *models.EmailAccount, email *utils.OutgoingEmail) (*utils.SendResult, error) {
	atomic.AddInt32(&m.calls, 1)
	m.sent = append(m.sent, *email)
	if m.SendFn != nil {
		return m.SendFn(account, email)
	}
	return &utils.SendResult{MessageID: fmt.Sprintf("msg-%d@test.local", atomic.LoadInt32(&m.calls))}, nil
}

func (m *mockMailer) callCount() int {
	return int(atomic.LoadInt32(&m.calls))
}

// fixture is a campaign in flight: one user with a default account, one
// contact, a running two-step sequence (follow-up one day after the first
// step) and one recipient armed for an immediate send.
type fixture struct {
	User      models.User
	Contact   models.Contact
	Account   models.EmailAccount
	Campaign  models.Campaign
	Steps     []models.CampaignStep
	Recipient models.CampaignRecipient
}

func seedCampaign(t *testing.T, db *gorm.DB, now time.Time) *fixture {
	t.Helper()

	f := &fixture{}

	f.User = models.User{Email: "owner@example.com", Name: "Owner", PlanName: "pro"}
	if err := db.Create(&f.User).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	f.Contact = models.Contact{UserID: f.User.ID, Name: "Jane Prospect", Email: "jane@prospect.example", Company: "Prospect Inc"}
	if err := db.Create(&f.Contact).Error; err != nil {
		t.Fatalf("failed to seed contact: %v", err)
	}

	f.Account = models.EmailAccount{
		UserID:       f.User.ID,
		Provider:     models.ProviderSMTP,
		EmailAddress: "owner@example.com",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     587,
		IsActive:     true,
		IsDefault:    true,
	}
	if err := db.Create(&f.Account).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	f.Campaign = models.Campaign{
		UserID:     f.User.ID,
		Name:       "Outreach Q3",
		Status:     models.CampaignStatusRunning,
		LaunchedAt: &now,
	}
	if err := db.Create(&f.Campaign).Error; err != nil {
		t.Fatalf("failed to seed campaign: %v", err)
	}

	f.Steps = []models.CampaignStep{
		{CampaignID: f.Campaign.ID, StepNumber: 1, Subject: "Hi {{Name}}", BodyTemplate: "Hello {{Name}} from {{Company}}"},
		{CampaignID: f.Campaign.ID, StepNumber: 2, Subject: "Following up", BodyTemplate: "Just checking in, {{Name}}", DelayDays: 1},
	}
	for i := range f.Steps {
		if err := db.Create(&f.Steps[i]).Error; err != nil {
			t.Fatalf("failed to seed step: %v", err)
		}
	}

	f.Recipient = models.CampaignRecipient{
		CampaignID: f.Campaign.ID,
		ContactID:  f.Contact.ID,
		Status:     models.RecipientStatusActive,
		NextSendAt: utils.Pointer(now),
	}
	f.Recipient.EnsureTrackingID()
	if err := db.Create(&f.Recipient).Error; err != nil {
		t.Fatalf("failed to seed recipient: %v", err)
	}

	return f
}

func newTestDispatcher(db *gorm.DB, mailer utils.Mailer, now time.Time) *Dispatcher {
	d := NewDispatcher(db, mailer, testLogger())
	d.RetryDelay = 0
	d.Now = func() time.Time { return now }
	return d
}

func reloadRecipient(t *testing.T, db *gorm.DB, id uint) models.CampaignRecipient {
	t.Helper()
	var r models.CampaignRecipient
	if err := db.First(&r, id).Error; err != nil {
		t.Fatalf("failed to reload recipient %d: %v", id, err)
	}
	return r
}
