// internal/app/system/draw/history.go
package draw

import (
	"context"
	"sort"
	"time"

	"github.com/afgang/gangmail/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// forbiddenPairs builds the set of sender→recipient user pairings that
// the draw for ex must avoid: every pairing found in the most recent
// `lookback` drawn exchanges whose assignments involve at least two of
// the current participants. Prior assignments are fetched by the pool's
// user ids, so any number of unrelated exchanges drawn in between never
// pushes the relevant history out of reach. Read-only; returns an empty
// set when there is no history or the window is zero.
func (o *Orchestrator) forbiddenPairs(ctx context.Context, ex models.Exchange, pool []models.Participant) (PairSet, error) {
	forbidden := make(PairSet)

	lookback := ex.Lookback(o.DefaultLookback)
	if lookback <= 0 {
		return forbidden, nil
	}

	poolUsers := make(map[primitive.ObjectID]struct{}, len(pool))
	users := make([]primitive.ObjectID, 0, len(pool))
	for _, p := range pool {
		poolUsers[p.UserID] = struct{}{}
		users = append(users, p.UserID)
	}

	prior, err := o.Assignments.ListByUsers(ctx, users, ex.ID)
	if err != nil {
		return nil, err
	}
	if len(prior) == 0 {
		return forbidden, nil
	}

	// Group prior assignments per exchange. Assignment rows only exist
	// for committed draws, and every row of one draw carries the same
	// commit timestamp, so the newest row dates the exchange.
	byExchange := make(map[primitive.ObjectID][]models.Assignment)
	drawnAt := make(map[primitive.ObjectID]time.Time)
	for _, a := range prior {
		byExchange[a.ExchangeID] = append(byExchange[a.ExchangeID], a)
		if a.CreatedAt.After(drawnAt[a.ExchangeID]) {
			drawnAt[a.ExchangeID] = a.CreatedAt
		}
	}

	// Keep only exchanges that share at least two of the current
	// participants; a single shared user cannot repeat a pairing.
	relevant := make([]primitive.ObjectID, 0, len(byExchange))
	for id, as := range byExchange {
		shared := make(map[primitive.ObjectID]struct{})
		for _, a := range as {
			if _, ok := poolUsers[a.SenderUser]; ok {
				shared[a.SenderUser] = struct{}{}
			}
			if _, ok := poolUsers[a.RecipientUser]; ok {
				shared[a.RecipientUser] = struct{}{}
			}
		}
		if len(shared) >= 2 {
			relevant = append(relevant, id)
		}
	}

	// Most recently drawn first, then cut to the window.
	sort.Slice(relevant, func(i, j int) bool {
		return drawnAt[relevant[i]].After(drawnAt[relevant[j]])
	})
	if len(relevant) > lookback {
		relevant = relevant[:lookback]
	}

	for _, id := range relevant {
		for _, a := range byExchange[id] {
			forbidden.Add(a.SenderUser, a.RecipientUser)
		}
	}
	return forbidden, nil
}
