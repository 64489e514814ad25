// internal/app/system/notify/dispatcher.go

// Package notify dispatches draw notifications asynchronously.
//
// Every email gets a ledger row in the notification_dispatches collection
// before anything is sent. The row's key is deterministic per
// (assignment, template kind), so replays from a re-run draw trigger or a
// reconciliation sweep after a crash collapse onto the existing row
// instead of sending twice. Delivery happens on a small worker pool with
// bounded exponential-backoff retries; exhausted retries are recorded as
// failed and logged at error level, never silently dropped.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/afgang/gangmail/internal/app/system/mailer"
	"github.com/afgang/gangmail/internal/app/system/timeouts"
	"github.com/afgang/gangmail/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// dispatchNamespace is the UUIDv5 namespace for dispatch keys.
var dispatchNamespace = uuid.MustParse("9c7f1f57-8a38-4e3e-9a63-5fd25a53f9d8")

// DispatchKey derives the deterministic ledger key for one notification.
func DispatchKey(assignmentID primitive.ObjectID, kind models.TemplateKind) string {
	return uuid.NewSHA1(dispatchNamespace, []byte(assignmentID.Hex()+":"+string(kind))).String()
}

// Ledger is the dispatch-ledger surface the dispatcher writes through.
// *notifications.Store implements it; tests use an in-memory fake.
type Ledger interface {
	Record(ctx context.Context, d models.NotificationDispatch) (bool, error)
	MarkSent(ctx context.Context, key string) error
	RecordAttempt(ctx context.Context, key string, sendErr string, nextAttempt time.Time) error
	MarkFailed(ctx context.Context, key string, sendErr string) error
}

// Config holds dispatcher settings.
type Config struct {
	SiteName    string
	BaseURL     string
	Workers     int           // delivery goroutines, default 2
	QueueSize   int           // buffered channel size, default 64
	MaxAttempts int           // delivery attempts per notification, default 5
	BackoffBase time.Duration // first retry delay, doubled per attempt, default 30s
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	return c
}

type item struct {
	dispatch models.NotificationDispatch
	email    mailer.Email
	attempt  int
}

// Dispatcher queues, delivers, and retries notification emails.
type Dispatcher struct {
	ledger Ledger
	sender mailer.Sender
	cfg    Config
	log    *zap.Logger

	queue  chan item
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Dispatcher. Call Start before enqueuing.
func New(ledger Ledger, sender mailer.Sender, cfg Config, log *zap.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		ledger: ledger,
		sender: sender,
		cfg:    cfg,
		log:    log,
		queue:  make(chan item, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.log.Info("notification dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("max_attempts", d.cfg.MaxAttempts))
}

// Stop signals workers to finish and waits for them. Queued items that
// were not delivered stay pending in the ledger; the reconciliation sweep
// picks them up on the next run.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.log.Info("notification dispatcher stopped")
}

// AssignmentsCreated enqueues the two draw notifications for every new
// assignment: the sender learns who they drew, the recipient learns only
// that mail is coming. Implements the draw engine's Notifier.
func (d *Dispatcher) AssignmentsCreated(ctx context.Context, ex models.Exchange, created []models.Assignment) {
	for _, a := range created {
		senderEmail := mailer.BuildAssignedSenderEmail(mailer.AssignedSenderData{
			SiteName:      d.cfg.SiteName,
			SenderName:    a.SenderName,
			RecipientName: a.RecipientName,
			ExchangeName:  ex.Name,
			BaseURL:       d.cfg.BaseURL,
		})
		senderEmail.To = a.SenderEmail
		d.enqueue(ctx, a.ID, models.TemplateAssignedSender, "", senderEmail)

		recipientEmail := mailer.BuildAssignedRecipientEmail(mailer.AssignedRecipientData{
			SiteName:      d.cfg.SiteName,
			RecipientName: a.RecipientName,
			ExchangeName:  ex.Name,
		})
		recipientEmail.To = a.RecipientEmail
		d.enqueue(ctx, a.ID, models.TemplateAssignedRecipient, "", recipientEmail)
	}
}

// GiftSent notifies the recipient that their gift is in the mail.
func (d *Dispatcher) GiftSent(ctx context.Context, ex models.Exchange, a models.Assignment, note string) {
	email := mailer.BuildMailSentEmail(mailer.MailSentData{
		SiteName:      d.cfg.SiteName,
		RecipientName: a.RecipientName,
		ExchangeName:  ex.Name,
		Note:          note,
	})
	email.To = a.RecipientEmail
	d.enqueue(ctx, a.ID, models.TemplateMailSent, note, email)
}

// GiftReceived notifies the sender that their gift arrived.
func (d *Dispatcher) GiftReceived(ctx context.Context, ex models.Exchange, a models.Assignment, note string) {
	email := mailer.BuildMailReceivedEmail(mailer.MailReceivedData{
		SiteName:     d.cfg.SiteName,
		SenderName:   a.SenderName,
		ExchangeName: ex.Name,
		Note:         note,
	})
	email.To = a.SenderEmail
	d.enqueue(ctx, a.ID, models.TemplateMailReceived, note, email)
}

// BuildEmail reconstructs the rendered email for a ledger row. The
// reconciliation sweep uses it to resubmit stalled dispatches.
func (d *Dispatcher) BuildEmail(dispatch models.NotificationDispatch, ex models.Exchange, a models.Assignment) mailer.Email {
	var email mailer.Email
	switch dispatch.Kind {
	case models.TemplateAssignedSender:
		email = mailer.BuildAssignedSenderEmail(mailer.AssignedSenderData{
			SiteName: d.cfg.SiteName, SenderName: a.SenderName,
			RecipientName: a.RecipientName, ExchangeName: ex.Name, BaseURL: d.cfg.BaseURL,
		})
	case models.TemplateAssignedRecipient:
		email = mailer.BuildAssignedRecipientEmail(mailer.AssignedRecipientData{
			SiteName: d.cfg.SiteName, RecipientName: a.RecipientName, ExchangeName: ex.Name,
		})
	case models.TemplateMailSent:
		email = mailer.BuildMailSentEmail(mailer.MailSentData{
			SiteName: d.cfg.SiteName, RecipientName: a.RecipientName,
			ExchangeName: ex.Name, Note: dispatch.Note,
		})
	case models.TemplateMailReceived:
		email = mailer.BuildMailReceivedEmail(mailer.MailReceivedData{
			SiteName: d.cfg.SiteName, SenderName: a.SenderName,
			ExchangeName: ex.Name, Note: dispatch.Note,
		})
	}
	email.To = dispatch.Recipient
	return email
}

// Resubmit puts an existing ledger row back on the delivery queue,
// preserving its attempt count.
func (d *Dispatcher) Resubmit(dispatch models.NotificationDispatch, email mailer.Email) {
	d.submit(item{dispatch: dispatch, email: email, attempt: dispatch.Attempts})
}

func (d *Dispatcher) enqueue(ctx context.Context, assignmentID primitive.ObjectID, kind models.TemplateKind, note string, email mailer.Email) {
	dispatch := models.NotificationDispatch{
		Key:          DispatchKey(assignmentID, kind),
		AssignmentID: assignmentID,
		Kind:         kind,
		Recipient:    email.To,
		Note:         note,
	}

	created, err := d.ledger.Record(ctx, dispatch)
	if err != nil {
		d.log.Error("notification ledger write failed",
			zap.String("key", dispatch.Key),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return
	}
	if !created {
		d.log.Debug("notification already recorded, skipping",
			zap.String("key", dispatch.Key),
			zap.String("kind", string(kind)))
		return
	}

	d.submit(item{dispatch: dispatch, email: email})
}

// submit never blocks; a full queue leaves the row pending for the
// reconciliation sweep to resubmit.
func (d *Dispatcher) submit(it item) {
	select {
	case d.queue <- it:
	case <-d.stopCh:
	default:
		d.log.Warn("notification queue full, leaving dispatch pending",
			zap.String("key", it.dispatch.Key))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case it := <-d.queue:
			d.deliver(it)
		}
	}
}

func (d *Dispatcher) deliver(it item) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Send())
	err := d.sender.Send(ctx, it.email)
	cancel()

	opCtx, opCancel := context.WithTimeout(context.Background(), timeouts.Short())
	defer opCancel()

	if err == nil {
		if markErr := d.ledger.MarkSent(opCtx, it.dispatch.Key); markErr != nil {
			d.log.Error("failed to mark notification sent",
				zap.String("key", it.dispatch.Key),
				zap.Error(markErr))
		}
		return
	}

	attempt := it.attempt + 1
	if attempt >= d.cfg.MaxAttempts {
		d.log.Error("notification permanently failed",
			zap.String("key", it.dispatch.Key),
			zap.String("kind", string(it.dispatch.Kind)),
			zap.String("recipient", it.dispatch.Recipient),
			zap.Int("attempts", attempt),
			zap.Error(err))
		if markErr := d.ledger.MarkFailed(opCtx, it.dispatch.Key, err.Error()); markErr != nil {
			d.log.Error("failed to mark notification failed",
				zap.String("key", it.dispatch.Key),
				zap.Error(markErr))
		}
		return
	}

	backoff := d.cfg.BackoffBase << (attempt - 1)
	next := time.Now().UTC().Add(backoff)
	d.log.Warn("notification delivery failed, will retry",
		zap.String("key", it.dispatch.Key),
		zap.Int("attempt", attempt),
		zap.Duration("backoff", backoff),
		zap.Error(err))
	if recErr := d.ledger.RecordAttempt(opCtx, it.dispatch.Key, err.Error(), next); recErr != nil {
		d.log.Error("failed to record notification attempt",
			zap.String("key", it.dispatch.Key),
			zap.Error(recErr))
	}

	retry := it
	retry.attempt = attempt
	timer := time.AfterFunc(backoff, func() { d.submit(retry) })
	// Cancel the pending retry on shutdown; the ledger row stays pending
	// and the reconciliation sweep resubmits it after restart.
	go func() {
		select {
		case <-d.stopCh:
			timer.Stop()
		case <-time.After(backoff + time.Second):
		}
	}()
}
