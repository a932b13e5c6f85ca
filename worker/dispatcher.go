package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"mailsprint/config"
	"mailsprint/models"
	"mailsprint/utils"
)

type task struct {
	recipientID uint
	cancel      bool
}

// Dispatcher executes independent units of work against recipients: sending
// the next due step, or cancelling a pending one. Units are consumed by a
// bounded worker pool so a hung provider call for one recipient never blocks
// the rest.
type Dispatcher struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	Logger *log.Logger

	Workers    int
	Retries    int
	RetryDelay time.Duration
	Now        func() time.Time

	tasks chan task
	wg    sync.WaitGroup
}

func NewDispatcher(db *gorm.DB, mailer utils.Mailer, logger *log.Logger) *Dispatcher {
	workers := config.AppConfig.DispatchWorkers
	if workers <= 0 {
		workers = 8
	}
	retries := config.AppConfig.SendRetryCount
	if retries <= 0 {
		retries = 3
	}
	return &Dispatcher{
		DB:         db,
		Mailer:     mailer,
		Logger:     logger,
		Workers:    workers,
		Retries:    retries,
		RetryDelay: 2 * time.Second,
		Now:        time.Now,
		tasks:      make(chan task, 1024),
	}
}

// Start launches the worker pool. Workers drain until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.Logger.Printf("Starting dispatcher with %d workers", d.Workers)
	for i := 0; i < d.Workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.tasks:
			var err error
			if t.cancel {
				err = d.Cancel(t.recipientID)
			} else {
				err = d.Dispatch(t.recipientID)
			}
			if err != nil {
				d.Logger.Printf("Dispatch unit for recipient %d failed: %v", t.recipientID, err)
			}
		}
	}
}

// Enqueue hands a recipient to the pool as a fire-and-forget send unit. A
// full queue drops the task; the recipient stays armed and the next poller
// tick picks it up again.
func (d *Dispatcher) Enqueue(recipientID uint) {
	select {
	case d.tasks <- task{recipientID: recipientID}:
	default:
		d.Logger.Printf("Dispatch queue full, recipient %d deferred to next tick", recipientID)
	}
}

// EnqueueCancel hands a recipient to the pool as a cancellation unit.
func (d *Dispatcher) EnqueueCancel(recipientID uint) {
	select {
	case d.tasks <- task{recipientID: recipientID, cancel: true}:
	default:
		d.Logger.Printf("Dispatch queue full, cancel for recipient %d dropped", recipientID)
	}
}

// Dispatch sends the next due step to one recipient. Every early return
// before the claim is a silent business no-op; after the claim the outcome
// is always recorded on the row.
func (d *Dispatcher) Dispatch(recipientID uint) error {
	var recipient models.CampaignRecipient
	if err := d.DB.First(&recipient, recipientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	// Idempotent guard: terminal recipients are never re-dispatched.
	if recipient.IsTerminal() {
		return nil
	}

	var campaign models.Campaign
	if err := d.DB.First(&campaign, recipient.CampaignID).Error; err != nil {
		return err
	}
	// A paused or cancelled campaign halts sends without touching the row;
	// the armed NextSendAt survives a later resume.
	if campaign.Status != models.CampaignStatusRunning {
		return nil
	}

	sendStep := recipient.CurrentStep + 1
	var step models.CampaignStep
	err := d.DB.Where("campaign_id = ? AND step_number = ?", campaign.ID, sendStep).First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Sequence exhausted. Normally detected when the last step is sent;
		// this covers rows that were armed past the end.
		return d.finishSequence(recipient.ID)
	} else if err != nil {
		return err
	}

	var contact models.Contact
	if err := d.DB.First(&contact, recipient.ContactID).Error; err != nil {
		return err
	}

	var account models.EmailAccount
	err = d.DB.Where("user_id = ? AND is_active = ? AND is_default = ?", campaign.UserID, true, true).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Configuration error, not transient: fail without retry.
		return d.failRecipient(recipient.ID, "no active email account configured")
	} else if err != nil {
		return err
	}

	// Claim the row before the provider call so a concurrent dispatch of the
	// same recipient observes the claim and no-ops. No lock is held across
	// network I/O.
	claim := d.DB.Model(&models.CampaignRecipient{}).
		Where("id = ? AND status = ? AND next_send_at IS NOT NULL", recipient.ID, models.RecipientStatusActive).
		Update("next_send_at", nil)
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil
	}

	email := d.buildEmail(&step, &contact, &recipient)
	result, err := d.sendWithRetry(&account, email)
	if err != nil {
		utils.LogError("campaign_send_failed", err, map[string]interface{}{
			"recipient_id": recipient.ID,
			"campaign_id":  campaign.ID,
			"step":         sendStep,
			"provider":     account.Provider,
		})
		return d.failRecipient(recipient.ID, err.Error())
	}

	return d.recordSuccess(recipient.ID, campaign.ID, sendStep, result.MessageID)
}

// Cancel clears a pending send. It is a no-op when nothing is scheduled, so
// duplicate cancellations are harmless.
func (d *Dispatcher) Cancel(recipientID uint) error {
	res := d.DB.Model(&models.CampaignRecipient{}).
		Where("id = ? AND next_send_at IS NOT NULL", recipientID).
		Update("next_send_at", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		d.Logger.Printf("Cancelled pending send for recipient %d", recipientID)
	}
	return nil
}

func (d *Dispatcher) buildEmail(step *models.CampaignStep, contact *models.Contact, recipient *models.CampaignRecipient) *utils.OutgoingEmail {
	subject := utils.MergeTemplate(step.Subject, contact)
	body := utils.MergeTemplate(step.BodyTemplate, contact)

	// Text-only steps still get an HTML alternative when the recipient is
	// tracked, so the open pixel has somewhere to live.
	htmlBody := ""
	if recipient.TrackingID != "" {
		htmlBody = utils.PlainTextToHTML(body)
	}

	return &utils.OutgoingEmail{
		ToEmail:    contact.Email,
		ToName:     contact.Name,
		Subject:    subject,
		Body:       body,
		HTMLBody:   htmlBody,
		TrackingID: recipient.TrackingID,
	}
}

func (d *Dispatcher) sendWithRetry(account *models.EmailAccount, email *utils.OutgoingEmail) (*utils.SendResult, error) {
	var lastErr error
	for attempt := 1; attempt <= d.Retries; attempt++ {
		result, err := d.Mailer.Send(account, email)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !utils.IsTransient(err) {
			return nil, err
		}
		d.Logger.Printf("Transient send failure (attempt %d/%d): %v", attempt, d.Retries, err)
		if attempt < d.Retries {
			time.Sleep(d.RetryDelay)
		}
	}
	return nil, lastErr
}

// recordSuccess advances the recipient after a provider accept. The status
// is re-read inside the transaction: a webhook may have moved the row to a
// terminal status mid-send, and the dispatcher must not undo that. The
// correlation fields are recorded either way.
func (d *Dispatcher) recordSuccess(recipientID, campaignID uint, sentStep int, messageID string) error {
	now := d.Now()
	return d.DB.Transaction(func(tx *gorm.DB) error {
		var r models.CampaignRecipient
		if err := tx.First(&r, recipientID).Error; err != nil {
			return err
		}

		r.SentMessageID = messageID
		r.LastSentAt = &now

		if r.Status == models.RecipientStatusActive {
			r.CurrentStep = sentStep

			var next models.CampaignStep
			err := tx.Where("campaign_id = ? AND step_number = ?", campaignID, sentStep+1).First(&next).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				// Last step went out: the journey is complete.
				r.Status = models.RecipientStatusSkipped
				r.NextSendAt = nil
			case err != nil:
				return err
			default:
				// The delay on the next step governs the wait before it fires.
				r.NextSendAt = utils.Pointer(now.Add(next.Delay()))
			}
		}

		return tx.Save(&r).Error
	})
}

func (d *Dispatcher) failRecipient(recipientID uint, message string) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		var r models.CampaignRecipient
		if err := tx.First(&r, recipientID).Error; err != nil {
			return err
		}
		// Never demote a terminal status set by a webhook or reply scan.
		if r.Status != models.RecipientStatusActive {
			return nil
		}
		r.Status = models.RecipientStatusFailed
		r.ErrorMessage = message
		r.NextSendAt = nil
		return tx.Save(&r).Error
	})
}

func (d *Dispatcher) finishSequence(recipientID uint) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		var r models.CampaignRecipient
		if err := tx.First(&r, recipientID).Error; err != nil {
			return err
		}
		if r.Status != models.RecipientStatusActive {
			return nil
		}
		r.Status = models.RecipientStatusSkipped
		r.NextSendAt = nil
		return tx.Save(&r).Error
	})
}
