package draw_test

import (
	"errors"
	"testing"

	"github.com/afgang/gangmail/internal/app/system/draw"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newUsers(n int) []primitive.ObjectID {
	users := make([]primitive.ObjectID, n)
	for i := range users {
		users[i] = primitive.NewObjectID()
	}
	return users
}

// checkDerangement verifies the defining properties of a draw result:
// every recipient appears exactly once and nobody draws themselves.
func checkDerangement(t *testing.T, n int, recipients []int) {
	t.Helper()

	if len(recipients) != n {
		t.Fatalf("expected %d recipients, got %d", n, len(recipients))
	}
	seen := make([]bool, n)
	for sender, recipient := range recipients {
		if recipient < 0 || recipient >= n {
			t.Fatalf("recipient index %d out of range", recipient)
		}
		if recipient == sender {
			t.Errorf("sender %d drew themselves", sender)
		}
		if seen[recipient] {
			t.Errorf("recipient %d drawn more than once", recipient)
		}
		seen[recipient] = true
	}
}

func TestGenerate_ProducesDerangement(t *testing.T) {
	users := newUsers(8)

	recipients, err := draw.Generate(users, make(draw.PairSet), 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	checkDerangement(t, len(users), recipients)
}

func TestGenerate_TwoParticipantsSwap(t *testing.T) {
	users := newUsers(2)

	recipients, err := draw.Generate(users, make(draw.PairSet), 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if recipients[0] != 1 || recipients[1] != 0 {
		t.Errorf("two participants must swap, got %v", recipients)
	}
}

func TestGenerate_SingleParticipantInfeasible(t *testing.T) {
	users := newUsers(1)

	_, err := draw.Generate(users, make(draw.PairSet), 0)
	var inf *draw.InfeasibleError
	if !errors.As(err, &inf) {
		t.Fatalf("expected InfeasibleError, got %v", err)
	}
	if inf.Participants != 1 {
		t.Errorf("Participants: got %d, want 1", inf.Participants)
	}
}

func TestGenerate_EmptyPoolInfeasible(t *testing.T) {
	_, err := draw.Generate(nil, make(draw.PairSet), 0)
	var inf *draw.InfeasibleError
	if !errors.As(err, &inf) {
		t.Fatalf("expected InfeasibleError, got %v", err)
	}
}

func TestGenerate_RespectsForbiddenPairs(t *testing.T) {
	users := newUsers(4)

	forbidden := make(draw.PairSet)
	forbidden.Add(users[0], users[1])
	forbidden.Add(users[2], users[3])

	// The search is randomized, so run it repeatedly.
	for i := 0; i < 50; i++ {
		recipients, err := draw.Generate(users, forbidden, 0)
		if err != nil {
			t.Fatalf("Generate failed on run %d: %v", i, err)
		}
		checkDerangement(t, len(users), recipients)
		if recipients[0] == 1 {
			t.Fatalf("run %d: forbidden pairing 0→1 was drawn", i)
		}
		if recipients[2] == 3 {
			t.Fatalf("run %d: forbidden pairing 2→3 was drawn", i)
		}
	}
}

func TestGenerate_ForbiddenIsDirectional(t *testing.T) {
	users := newUsers(2)

	// Forbid only one direction. The swap needs both, so this is
	// infeasible; the reverse pairing alone doesn't rescue it.
	forbidden := make(draw.PairSet)
	forbidden.Add(users[0], users[1])

	_, err := draw.Generate(users, forbidden, 0)
	var inf *draw.InfeasibleError
	if !errors.As(err, &inf) {
		t.Fatalf("expected InfeasibleError, got %v", err)
	}
	if inf.ForbiddenPairs != 1 {
		t.Errorf("ForbiddenPairs: got %d, want 1", inf.ForbiddenPairs)
	}
}

func TestGenerate_InfeasibleReportedWithoutExhaustingAttempts(t *testing.T) {
	// Three users where user 0 can't send to anyone.
	users := newUsers(3)
	forbidden := make(draw.PairSet)
	forbidden.Add(users[0], users[1])
	forbidden.Add(users[0], users[2])

	_, err := draw.Generate(users, forbidden, 1000000)
	var inf *draw.InfeasibleError
	if !errors.As(err, &inf) {
		t.Fatalf("expected InfeasibleError, got %v", err)
	}
}

func TestGenerate_ThreeParticipantsCycle(t *testing.T) {
	users := newUsers(3)

	// Every derangement of three elements is a 3-cycle: following the
	// assignment from any start visits all three before returning.
	recipients, err := draw.Generate(users, make(draw.PairSet), 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	checkDerangement(t, 3, recipients)

	visited := map[int]bool{}
	at := 0
	for i := 0; i < 3; i++ {
		if visited[at] {
			t.Fatalf("cycle shorter than pool: revisited %d", at)
		}
		visited[at] = true
		at = recipients[at]
	}
	if at != 0 {
		t.Errorf("cycle did not close at start, ended at %d", at)
	}
}

func TestGenerate_LargePool(t *testing.T) {
	users := newUsers(100)

	recipients, err := draw.Generate(users, make(draw.PairSet), 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	checkDerangement(t, len(users), recipients)
}

func TestGenerate_HeavilyConstrainedStillSolvable(t *testing.T) {
	// Five users, forbid everything except one Hamiltonian cycle
	// 0→1→2→3→4→0. Exactly one assignment remains valid.
	users := newUsers(5)
	n := len(users)

	next := func(i int) int { return (i + 1) % n }
	forbidden := make(draw.PairSet)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || j == next(i) {
				continue
			}
			forbidden.Add(users[i], users[j])
		}
	}

	recipients, err := draw.Generate(users, forbidden, 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for i := 0; i < n; i++ {
		if recipients[i] != next(i) {
			t.Errorf("sender %d: got recipient %d, want %d", i, recipients[i], next(i))
		}
	}
}

func TestPairSet_AddHas(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	s := make(draw.PairSet)
	if s.Has(a, b) {
		t.Error("empty set reported a pairing")
	}
	s.Add(a, b)
	if !s.Has(a, b) {
		t.Error("pairing not found after Add")
	}
	if s.Has(b, a) {
		t.Error("reverse pairing should not be present")
	}
}
