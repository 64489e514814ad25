// internal/app/system/draw/outcome.go
package draw

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OutcomeKind discriminates the result of one draw invocation. Callers
// branch on the kind rather than parsing errors: AlreadyDrawn and NotDue
// are benign, InsufficientParticipants and Infeasible need an operator.
type OutcomeKind string

const (
	// OutcomeDrawn means assignments were generated and committed.
	OutcomeDrawn OutcomeKind = "drawn"
	// OutcomeAlreadyDrawn means the exchange was drawn earlier; no-op.
	OutcomeAlreadyDrawn OutcomeKind = "already_drawn"
	// OutcomeNotDue means the scheduled draw time has not passed.
	OutcomeNotDue OutcomeKind = "not_due"
	// OutcomeInsufficientParticipants means fewer than two confirmed
	// participants; the exchange stays undrawn until more join.
	OutcomeInsufficientParticipants OutcomeKind = "insufficient_participants"
	// OutcomeInfeasible means no valid assignment exists for the
	// constraint set; an operator must widen it.
	OutcomeInfeasible OutcomeKind = "infeasible"
)

// Outcome is the discriminated result of RunDraw.
type Outcome struct {
	Kind       OutcomeKind        `json:"kind"`
	ExchangeID primitive.ObjectID `json:"exchange_id"`

	// Assignments is the number of committed assignments (Drawn only).
	Assignments int `json:"assignments,omitempty"`

	// Detail carries operator-facing context for Infeasible outcomes.
	Detail string `json:"detail,omitempty"`
}

// InfeasibleError reports that no derangement satisfies the constraint
// set. It carries the numbers an operator needs to decide a remedy
// (reduce the lookback window, or add participants); retrying the same
// constraint set cannot succeed, only the search is randomized.
type InfeasibleError struct {
	ExchangeID     primitive.ObjectID
	Participants   int
	ForbiddenPairs int
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("no feasible assignment: exchange=%s participants=%d forbidden_pairs=%d",
		e.ExchangeID.Hex(), e.Participants, e.ForbiddenPairs)
}
