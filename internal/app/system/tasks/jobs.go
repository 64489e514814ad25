// internal/app/system/tasks/jobs.go

// Package tasks defines the interval jobs the draw service runs in the
// background: the due-draw sweep and the notification reconciliation
// sweep. Jobs are driven by workers.Runner.
package tasks

import (
	"context"
	"time"

	"github.com/afgang/gangmail/internal/app/store/assignments"
	"github.com/afgang/gangmail/internal/app/store/exchanges"
	"github.com/afgang/gangmail/internal/app/store/notifications"
	"github.com/afgang/gangmail/internal/app/system/draw"
	"github.com/afgang/gangmail/internal/app/system/notify"
	"github.com/afgang/gangmail/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Job is one named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// DueDrawJob sweeps for exchanges whose scheduled draw time has passed
// and draws each of them. Duplicate runs are harmless: the drawn-flag
// compare-and-set turns repeats into AlreadyDrawn no-ops.
func DueDrawJob(orch *draw.Orchestrator, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "due-draw-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			results, err := orch.RunDueDraws(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			drawn := 0
			for _, r := range results {
				if r.Outcome.Kind == draw.OutcomeDrawn {
					drawn++
				}
			}
			if len(results) > 0 {
				logger.Info("due draw sweep finished",
					zap.Int("due", len(results)),
					zap.Int("drawn", drawn))
			}
			return nil
		},
	}
}

// ReconcileJob heals the gap between a draw's commit and its notification
// dispatch. It re-enqueues created events for assignments that have sat
// in the assigned state past the grace period with no dispatch record,
// and resubmits pending dispatches the workers lost track of: rows whose
// retry time passed while no worker was alive to deliver them, and rows
// recorded but never attempted because the process crashed or dropped
// the item on a full queue before the first delivery.
func ReconcileJob(
	assignmentStore *assignments.Store,
	exchangeStore *exchanges.Store,
	ledger *notifications.Store,
	dispatcher *notify.Dispatcher,
	logger *zap.Logger,
	interval, grace time.Duration,
) Job {
	return Job{
		Name:     "notification-reconcile",
		Interval: interval,
		Run: func(ctx context.Context) error {
			now := time.Now().UTC()

			exCache := make(map[primitive.ObjectID]models.Exchange)
			getExchange := func(id primitive.ObjectID) (models.Exchange, error) {
				if ex, ok := exCache[id]; ok {
					return ex, nil
				}
				ex, err := exchangeStore.GetByID(ctx, id)
				if err != nil {
					return models.Exchange{}, err
				}
				exCache[id] = ex
				return ex, nil
			}

			// Assigned rows past the grace period with no dispatch record:
			// the process died between commit and enqueue.
			stale, err := assignmentStore.ListAssignedBefore(ctx, now.Add(-grace))
			if err != nil {
				return err
			}
			replayed := 0
			for _, a := range stale {
				exists, err := ledger.ExistsForAssignment(ctx, a.ID, models.TemplateAssignedSender)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				ex, err := getExchange(a.ExchangeID)
				if err != nil {
					logger.Error("reconcile: exchange lookup failed",
						zap.String("assignment_id", a.ID.Hex()),
						zap.Error(err))
					continue
				}
				dispatcher.AssignmentsCreated(ctx, ex, []models.Assignment{a})
				replayed++
			}

			// Pending dispatches whose scheduled retry never ran, plus rows
			// recorded before the grace cutoff that were never attempted.
			stalled, err := ledger.ListStalled(ctx, now, now.Add(-grace))
			if err != nil {
				return err
			}
			resubmitted := 0
			for _, d := range stalled {
				a, err := assignmentStore.GetByID(ctx, d.AssignmentID)
				if err != nil {
					logger.Error("reconcile: assignment lookup failed",
						zap.String("dispatch_key", d.Key),
						zap.Error(err))
					continue
				}
				ex, err := getExchange(a.ExchangeID)
				if err != nil {
					logger.Error("reconcile: exchange lookup failed",
						zap.String("dispatch_key", d.Key),
						zap.Error(err))
					continue
				}
				dispatcher.Resubmit(d, dispatcher.BuildEmail(d, ex, a))
				resubmitted++
			}

			if replayed > 0 || resubmitted > 0 {
				logger.Info("notification reconcile finished",
					zap.Int("replayed", replayed),
					zap.Int("resubmitted", resubmitted))
			}
			return nil
		},
	}
}
