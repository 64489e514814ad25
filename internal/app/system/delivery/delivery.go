// internal/app/system/delivery/delivery.go

// Package delivery owns the assignment lifecycle after a draw: senders
// mark their gift sent, recipients mark it received, and each transition
// triggers the matching notification.
//
// Transitions are single-document conditional updates guarded by the
// current state, so duplicate or out-of-order confirmations surface as
// conflicts instead of silently rewriting history. The two confirmations
// are independent: a recipient may confirm receipt before the sender
// marks sent, in which case "sent" is simply skipped.
package delivery

import (
	"context"

	"github.com/afgang/gangmail/internal/app/system/mailer"
	"github.com/afgang/gangmail/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AssignmentStore is the assignments surface the lifecycle manager needs.
// MarkSent and MarkReceived must enforce the state preconditions and
// return assignments.ErrConflict / assignments.ErrNotFound accordingly.
type AssignmentStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Assignment, error)
	MarkSent(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error)
	MarkReceived(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error)
}

// ExchangeSource resolves the exchange an assignment belongs to, for
// notification rendering.
type ExchangeSource interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Exchange, error)
}

// Notifier fans out the transition notifications.
type Notifier interface {
	GiftSent(ctx context.Context, ex models.Exchange, a models.Assignment, note string)
	GiftReceived(ctx context.Context, ex models.Exchange, a models.Assignment, note string)
}

// Manager applies lifecycle transitions and their side effects.
type Manager struct {
	Assignments AssignmentStore
	Exchanges   ExchangeSource
	Notifier    Notifier
	Log         *zap.Logger
}

// MarkSent records that the sender posted their gift and notifies the
// recipient. Only valid from the assigned state; marking twice is a
// conflict so the caller can tell the sender "already marked".
func (m *Manager) MarkSent(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error) {
	note = mailer.SanitizeNote(note)

	a, err := m.Assignments.MarkSent(ctx, id, note)
	if err != nil {
		return models.Assignment{}, err
	}

	m.Log.Info("assignment marked sent",
		zap.String("assignment_id", a.ID.Hex()),
		zap.String("exchange_id", a.ExchangeID.Hex()))

	m.notify(ctx, a, func(ex models.Exchange) {
		m.Notifier.GiftSent(ctx, ex, a, note)
	})
	return a, nil
}

// MarkReceived records that the recipient got their gift and notifies the
// sender. Valid from assigned or sent; received is terminal.
func (m *Manager) MarkReceived(ctx context.Context, id primitive.ObjectID, note string) (models.Assignment, error) {
	note = mailer.SanitizeNote(note)

	a, err := m.Assignments.MarkReceived(ctx, id, note)
	if err != nil {
		return models.Assignment{}, err
	}

	m.Log.Info("assignment marked received",
		zap.String("assignment_id", a.ID.Hex()),
		zap.String("exchange_id", a.ExchangeID.Hex()))

	m.notify(ctx, a, func(ex models.Exchange) {
		m.Notifier.GiftReceived(ctx, ex, a, note)
	})
	return a, nil
}

// notify resolves the exchange and fires the side effect. A failed
// exchange lookup downgrades to a log line rather than failing the
// transition: the state change is already durable, and the dispatch
// ledger reconciliation cannot rebuild what was never recorded, so this
// is surfaced at error level for an operator.
func (m *Manager) notify(ctx context.Context, a models.Assignment, fire func(models.Exchange)) {
	if m.Notifier == nil {
		return
	}
	ex, err := m.Exchanges.GetByID(ctx, a.ExchangeID)
	if err != nil {
		m.Log.Error("exchange lookup for notification failed",
			zap.String("assignment_id", a.ID.Hex()),
			zap.String("exchange_id", a.ExchangeID.Hex()),
			zap.Error(err))
		return
	}
	fire(ex)
}
