// internal/app/system/draw/scheduler.go
package draw

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DueResult is the per-exchange outcome of a due-draw sweep.
type DueResult struct {
	ExchangeID primitive.ObjectID `json:"exchange_id"`
	Outcome    Outcome            `json:"outcome"`
	Err        string             `json:"error,omitempty"`
}

// RunDueDraws draws every exchange whose scheduled time has passed.
//
// One exchange's failure never aborts the sweep; each exchange gets its
// own result. This is the entry point for the interval scheduler and the
// on-demand trigger endpoint.
func (o *Orchestrator) RunDueDraws(ctx context.Context, now time.Time) ([]DueResult, error) {
	due, err := o.Exchanges.ListDue(ctx, now)
	if err != nil {
		return nil, err
	}

	results := make([]DueResult, 0, len(due))
	for _, ex := range due {
		res := DueResult{ExchangeID: ex.ID}

		outcome, err := o.RunDraw(ctx, ex.ID, false, now)
		if err != nil {
			o.Log.Error("due draw failed",
				zap.String("exchange_id", ex.ID.Hex()),
				zap.String("exchange", ex.Slug),
				zap.Error(err))
			res.Err = err.Error()
		} else {
			res.Outcome = outcome
		}
		results = append(results, res)
	}
	return results, nil
}
