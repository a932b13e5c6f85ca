package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"mailsprint/config"
	"mailsprint/models"
	"mailsprint/utils"
)

// ReplyFetchFunc queries one account's mailbox for the message ids inbound
// replies reference. Swappable for tests.
type ReplyFetchFunc func(account *models.EmailAccount, since time.Time) ([]string, error)

// ReplyPoller periodically scans the mailboxes of every user with a running
// campaign. A matched reply flips the recipient to Replied and cancels its
// remaining steps. Providers without mailbox access are skipped quietly.
type ReplyPoller struct {
	DB         *gorm.DB
	Dispatcher *Dispatcher
	Logger     *log.Logger

	Interval     time.Duration
	FetchReplies ReplyFetchFunc
	Now          func() time.Time

	lastCheck time.Time
}

func NewReplyPoller(db *gorm.DB, dispatcher *Dispatcher, logger *log.Logger) *ReplyPoller {
	interval := config.AppConfig.ReplyPollInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReplyPoller{
		DB:           db,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Interval:     interval,
		FetchReplies: utils.FetchReplyIDs,
		Now:          time.Now,
	}
}

func (rp *ReplyPoller) Start(ctx context.Context) {
	rp.Logger.Printf("Reply poller started (every %s)", rp.Interval)
	rp.lastCheck = rp.Now().Add(-rp.Interval)

	ticker := time.NewTicker(rp.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rp.Logger.Println("Reply poller shutting down...")
			return
		case <-ticker.C:
			rp.CheckAll()
		}
	}
}

// CheckAll runs one reply-detection cycle across all users with running
// campaigns and returns the number of replies matched.
func (rp *ReplyPoller) CheckAll() int {
	since := rp.lastCheck
	if since.IsZero() {
		since = rp.Now().Add(-rp.Interval)
	}

	var userIDs []uint
	if err := rp.DB.Model(&models.Campaign{}).
		Where("status = ?", models.CampaignStatusRunning).
		Distinct().
		Pluck("user_id", &userIDs).Error; err != nil {
		rp.Logger.Printf("Error listing users with running campaigns: %v", err)
		return 0
	}

	found := 0
	for _, userID := range userIDs {
		n, err := rp.checkUser(userID, since)
		if err != nil {
			rp.Logger.Printf("Error checking replies for user %d: %v", userID, err)
			continue
		}
		found += n
	}

	rp.lastCheck = rp.Now()
	if found > 0 {
		rp.Logger.Printf("Detected %d replies", found)
	}
	return found
}

func (rp *ReplyPoller) checkUser(userID uint, since time.Time) (int, error) {
	var accounts []models.EmailAccount
	if err := rp.DB.Where("user_id = ? AND is_active = ?", userID, true).Find(&accounts).Error; err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	// Candidates: recipients of this user's running campaigns that have had
	// at least one step sent and are still in flight.
	var recipients []models.CampaignRecipient
	if err := rp.DB.
		Joins("JOIN campaigns ON campaigns.id = campaign_recipients.campaign_id").
		Where("campaigns.user_id = ? AND campaigns.status = ?", userID, models.CampaignStatusRunning).
		Where("campaign_recipients.status = ? AND campaign_recipients.current_step > 0", models.RecipientStatusActive).
		Where("campaign_recipients.sent_message_id <> ''").
		Find(&recipients).Error; err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	byMessageID := make(map[string]uint, len(recipients))
	for _, r := range recipients {
		byMessageID[r.SentMessageID] = r.ID
	}

	found := 0
	for i := range accounts {
		account := &accounts[i]
		if !account.SupportsReplyDetection() {
			continue
		}
		replyIDs, err := rp.FetchReplies(account, since)
		if err != nil {
			rp.Logger.Printf("Error fetching replies for account %d: %v", account.ID, err)
			continue
		}
		for _, id := range replyIDs {
			recipientID, ok := byMessageID[id]
			if !ok {
				continue
			}
			if err := rp.markReplied(recipientID); err != nil {
				rp.Logger.Printf("Error marking recipient %d replied: %v", recipientID, err)
				continue
			}
			delete(byMessageID, id)
			found++
		}
	}
	return found, nil
}

// markReplied flips a recipient to Replied, cancels its remaining steps and
// appends the audit event. Re-detection of an already-replied recipient is a
// no-op.
func (rp *ReplyPoller) markReplied(recipientID uint) error {
	now := rp.Now()
	err := rp.DB.Transaction(func(tx *gorm.DB) error {
		var r models.CampaignRecipient
		if err := tx.First(&r, recipientID).Error; err != nil {
			return err
		}
		if r.Status != models.RecipientStatusActive {
			return nil
		}

		r.Status = models.RecipientStatusReplied
		r.ReplyDetectedAt = &now
		r.NextSendAt = nil
		if err := tx.Save(&r).Error; err != nil {
			return err
		}

		event := models.EmailEvent{
			RecipientID: r.ID,
			EventType:   models.EventTypeReply,
			Timestamp:   now,
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return err
	}

	// The transaction already cleared next_send_at; the explicit cancel unit
	// covers a dispatch that was in flight when the reply landed.
	rp.Dispatcher.EnqueueCancel(recipientID)
	return nil
}
