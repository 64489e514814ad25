// internal/app/system/draw/generate.go
package draw

import (
	"math/rand"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultMaxAttempts bounds how many randomized passes Generate makes
// before concluding the search budget is spent.
const DefaultMaxAttempts = 1000

// attemptBudget bounds the backtracking nodes visited per pass, as a
// multiple of the pool size. A pass that exhausts its budget proves
// nothing about feasibility and triggers a reshuffled restart; a pass
// that completes without finding a solution proves infeasibility.
const attemptBudget = 200

// Pair is an ordered sender→recipient pairing, keyed by user identity so
// history carries across exchanges (participant rows are per-exchange).
type Pair struct {
	Sender    primitive.ObjectID
	Recipient primitive.ObjectID
}

// PairSet is a set of forbidden sender→recipient pairings.
type PairSet map[Pair]struct{}

// Add inserts a pairing into the set.
func (s PairSet) Add(sender, recipient primitive.ObjectID) {
	s[Pair{Sender: sender, Recipient: recipient}] = struct{}{}
}

// Has reports whether the pairing is in the set.
func (s PairSet) Has(sender, recipient primitive.ObjectID) bool {
	_, ok := s[Pair{Sender: sender, Recipient: recipient}]
	return ok
}

// Generate produces a derangement over the pool: a recipient index for
// every sender index such that nobody draws themselves, every recipient
// is drawn exactly once, and no (sender, recipient) user pairing appears
// in forbidden.
//
// The search is randomized backtracking: candidate recipients are
// shuffled per sender, and a pass backtracks when a later sender is left
// without a feasible recipient. Passes restart with fresh shuffles up to
// maxAttempts times. Each pass runs under a node budget; a pass that
// completes within budget without a solution is an exhaustive search, so
// infeasibility is reported immediately rather than retried.
//
// users[i] is the user identity of pool slot i. Returns recipient[i] =
// index of the slot that sender i draws, or an *InfeasibleError (with
// ExchangeID left zero for the caller to fill).
func Generate(users []primitive.ObjectID, forbidden PairSet, maxAttempts int) ([]int, error) {
	n := len(users)
	if n < 2 {
		return nil, &InfeasibleError{Participants: n, ForbiddenPairs: len(forbidden)}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	// Candidate recipients per sender: everyone except self and forbidden
	// pairings. A sender with no candidates at all is an immediate proof
	// of infeasibility.
	candidates := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || forbidden.Has(users[i], users[j]) {
				continue
			}
			candidates[i] = append(candidates[i], j)
		}
		if len(candidates[i]) == 0 {
			return nil, &InfeasibleError{Participants: n, ForbiddenPairs: len(forbidden)}
		}
	}

	g := &search{candidates: candidates, n: n}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		g.shuffle()
		result, exhaustive := g.run()
		if result != nil {
			return result, nil
		}
		if exhaustive {
			break
		}
	}
	return nil, &InfeasibleError{Participants: n, ForbiddenPairs: len(forbidden)}
}

type search struct {
	candidates [][]int
	n          int
	chosen     []int
	taken      []bool
	budget     int
	truncated  bool
}

// shuffle re-randomizes candidate order so repeated draws sample
// different valid derangements.
func (g *search) shuffle() {
	for _, c := range g.candidates {
		rand.Shuffle(len(c), func(a, b int) { c[a], c[b] = c[b], c[a] })
	}
}

// run performs one backtracking pass. It returns the assignment when one
// is found; exhaustive is true when the pass searched the whole space
// within budget and found nothing.
func (g *search) run() (result []int, exhaustive bool) {
	g.chosen = make([]int, g.n)
	g.taken = make([]bool, g.n)
	g.budget = attemptBudget * g.n
	g.truncated = false

	if g.assign(0) {
		return g.chosen, false
	}
	return nil, !g.truncated
}

func (g *search) assign(sender int) bool {
	if sender == g.n {
		return true
	}
	if g.budget <= 0 {
		g.truncated = true
		return false
	}
	g.budget--

	for _, recipient := range g.candidates[sender] {
		if g.taken[recipient] {
			continue
		}
		g.chosen[sender] = recipient
		g.taken[recipient] = true
		if g.assign(sender + 1) {
			return true
		}
		g.taken[recipient] = false
		if g.truncated {
			return false
		}
	}
	return false
}
