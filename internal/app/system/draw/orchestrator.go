// internal/app/system/draw/orchestrator.go

// Package draw implements the exchange draw engine: eligibility checks,
// repeat-pair history lookup, derangement generation, and the atomic
// commit of a draw's assignments.
package draw

import (
	"context"
	"errors"
	"time"

	"github.com/afgang/gangmail/internal/app/store/assignments"
	"github.com/afgang/gangmail/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ExchangeSource is the read side of the exchanges store the engine uses.
type ExchangeSource interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Exchange, error)
	ListDue(ctx context.Context, now time.Time) ([]models.Exchange, error)
}

// ParticipantSource lists the confirmed pool for an exchange.
type ParticipantSource interface {
	ListConfirmed(ctx context.Context, exchangeID primitive.ObjectID) ([]models.Participant, error)
}

// AssignmentSink is the assignments store surface the engine writes
// through. CommitDraw must be atomic and return
// assignments.ErrAlreadyDrawn when it loses the drawn-flag compare-and-set.
type AssignmentSink interface {
	ListByUsers(ctx context.Context, userIDs []primitive.ObjectID, exclude primitive.ObjectID) ([]models.Assignment, error)
	CommitDraw(ctx context.Context, log *zap.Logger, exchangeID primitive.ObjectID, drawn []models.Assignment) error
}

// Notifier receives assignment-created events strictly after a draw's
// durable commit. Implementations must tolerate duplicate delivery; the
// reconciliation sweep may replay events for assignments whose
// notifications were lost in a crash.
type Notifier interface {
	AssignmentsCreated(ctx context.Context, ex models.Exchange, created []models.Assignment)
}

// Orchestrator coordinates one draw end to end.
type Orchestrator struct {
	Exchanges    ExchangeSource
	Participants ParticipantSource
	Assignments  AssignmentSink
	Notifier     Notifier
	Log          *zap.Logger

	// DefaultLookback applies to exchanges that don't set their own window.
	DefaultLookback int
	// MaxAttempts bounds the randomized generation passes per draw.
	MaxAttempts int
}

// RunDraw executes the draw for one exchange.
//
// Preconditions are checked in order: the exchange exists (a missing id
// is an error, not an outcome), it has not been drawn, its scheduled time
// has passed unless force is set, and at least two confirmed participants
// are enrolled. Duplicate triggers, whether concurrent or repeated, resolve
// to AlreadyDrawn through the commit's compare-and-set, never a second draw.
func (o *Orchestrator) RunDraw(ctx context.Context, exchangeID primitive.ObjectID, force bool, now time.Time) (Outcome, error) {
	ex, err := o.Exchanges.GetByID(ctx, exchangeID)
	if err != nil {
		return Outcome{}, err
	}

	if ex.Drawn {
		return Outcome{Kind: OutcomeAlreadyDrawn, ExchangeID: ex.ID}, nil
	}
	if !force && ex.DrawTime.After(now) {
		return Outcome{Kind: OutcomeNotDue, ExchangeID: ex.ID}, nil
	}

	pool, err := o.Participants.ListConfirmed(ctx, ex.ID)
	if err != nil {
		return Outcome{}, err
	}
	if len(pool) < 2 {
		o.Log.Warn("draw skipped: insufficient participants",
			zap.String("exchange_id", ex.ID.Hex()),
			zap.String("exchange", ex.Slug),
			zap.Int("confirmed", len(pool)))
		return Outcome{Kind: OutcomeInsufficientParticipants, ExchangeID: ex.ID}, nil
	}

	forbidden, err := o.forbiddenPairs(ctx, ex, pool)
	if err != nil {
		return Outcome{}, err
	}

	users := make([]primitive.ObjectID, len(pool))
	for i, p := range pool {
		users[i] = p.UserID
	}

	recipients, err := Generate(users, forbidden, o.MaxAttempts)
	if err != nil {
		var inf *InfeasibleError
		if errors.As(err, &inf) {
			inf.ExchangeID = ex.ID
			o.Log.Error("draw infeasible",
				zap.String("exchange_id", ex.ID.Hex()),
				zap.String("exchange", ex.Slug),
				zap.Int("participants", inf.Participants),
				zap.Int("forbidden_pairs", inf.ForbiddenPairs))
			return Outcome{Kind: OutcomeInfeasible, ExchangeID: ex.ID, Detail: inf.Error()}, nil
		}
		return Outcome{}, err
	}

	created := make([]models.Assignment, len(pool))
	for i, r := range recipients {
		sender, recipient := pool[i], pool[r]
		created[i] = models.Assignment{
			ID:         primitive.NewObjectID(),
			ExchangeID: ex.ID,

			SenderID:    sender.ID,
			SenderUser:  sender.UserID,
			SenderName:  sender.FullName,
			SenderEmail: sender.Email,

			RecipientID:    recipient.ID,
			RecipientUser:  recipient.UserID,
			RecipientName:  recipient.FullName,
			RecipientEmail: recipient.Email,

			State: models.StateAssigned,
		}
	}

	if err := o.Assignments.CommitDraw(ctx, o.Log, ex.ID, created); err != nil {
		if errors.Is(err, assignments.ErrAlreadyDrawn) {
			// Lost the race to a concurrent trigger; their draw stands.
			return Outcome{Kind: OutcomeAlreadyDrawn, ExchangeID: ex.ID}, nil
		}
		return Outcome{}, err
	}

	o.Log.Info("exchange drawn",
		zap.String("exchange_id", ex.ID.Hex()),
		zap.String("exchange", ex.Slug),
		zap.Int("assignments", len(created)))

	// Events go out only after the durable commit. A crash right here is
	// healed by the reconciliation sweep, which replays created events for
	// assigned rows with no dispatch record.
	if o.Notifier != nil {
		o.Notifier.AssignmentsCreated(ctx, ex, created)
	}

	return Outcome{Kind: OutcomeDrawn, ExchangeID: ex.ID, Assignments: len(created)}, nil
}
