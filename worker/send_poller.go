package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"mailsprint/config"
	"mailsprint/models"
)

// SendPoller periodically selects recipients whose next send is due and
// hands them to the dispatcher. The batch cap bounds the outbound rate per
// tick; under backlog, excess recipients simply wait for a later tick. That
// makes throughput bounded, not exact.
type SendPoller struct {
	DB         *gorm.DB
	Dispatcher *Dispatcher
	Logger     *log.Logger

	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

func NewSendPoller(db *gorm.DB, dispatcher *Dispatcher, logger *log.Logger) *SendPoller {
	interval := config.AppConfig.SendPollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	batch := config.AppConfig.SendBatchSize
	if batch <= 0 {
		batch = 50
	}
	return &SendPoller{
		DB:         db,
		Dispatcher: dispatcher,
		Logger:     logger,
		Interval:   interval,
		BatchSize:  batch,
		Now:        time.Now,
	}
}

func (sp *SendPoller) Start(ctx context.Context) {
	sp.Logger.Printf("Send poller started (every %s, batch %d)", sp.Interval, sp.BatchSize)

	ticker := time.NewTicker(sp.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sp.Logger.Println("Send poller shutting down...")
			return
		case <-ticker.C:
			sp.Tick()
		}
	}
}

// Tick runs one poll cycle and returns the number of recipients enqueued.
func (sp *SendPoller) Tick() int {
	now := sp.Now()

	var recipients []models.CampaignRecipient
	if err := sp.DB.
		Where("status = ? AND next_send_at IS NOT NULL AND next_send_at <= ?", models.RecipientStatusActive, now).
		Limit(sp.BatchSize).
		Find(&recipients).Error; err != nil {
		sp.Logger.Printf("Error selecting due recipients: %v", err)
		return 0
	}

	for _, recipient := range recipients {
		sp.Dispatcher.Enqueue(recipient.ID)
	}

	if len(recipients) > 0 {
		sp.Logger.Printf("Enqueued %d due recipients", len(recipients))
	}
	return len(recipients)
}
