// internal/domain/models/exchange.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Exchange is a named gift-exchange event with a scheduled draw time.
//
// An exchange is "due" once DrawTime has passed and Drawn is still false.
// Drawn flips exactly once, via a compare-and-set in the exchanges store,
// which is what keeps concurrent draw triggers from producing a second
// set of assignments.
type Exchange struct {
	ID   primitive.ObjectID `bson:"_id" json:"id"`
	Name string             `bson:"name" json:"name"`
	Slug string             `bson:"slug" json:"slug"`

	// DrawTime is when the draw is scheduled to run.
	DrawTime time.Time `bson:"draw_time" json:"draw_time"`

	// LookbackWindow is how many prior drawn exchanges are consulted to
	// avoid repeating a sender→recipient pairing. Zero means "use the
	// configured default"; a negative value disables the check.
	LookbackWindow int `bson:"lookback_window" json:"lookback_window"`

	Drawn            bool       `bson:"drawn" json:"drawn"`
	DrawnCompletedAt *time.Time `bson:"drawn_completed_at,omitempty" json:"drawn_completed_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Lookback resolves the effective lookback window given the configured
// default. Negative disables history checking entirely.
func (e Exchange) Lookback(def int) int {
	if e.LookbackWindow < 0 {
		return 0
	}
	if e.LookbackWindow == 0 {
		return def
	}
	return e.LookbackWindow
}

// Due reports whether the exchange is ready to be drawn at the given time.
func (e Exchange) Due(now time.Time) bool {
	return !e.Drawn && !e.DrawTime.After(now)
}
