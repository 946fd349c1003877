package ledger

import (
	"errors"
	"testing"
)

func TestFriendPairSignedImpact(t *testing.T) {
	pair := FriendPair{Party1: "a", Party2: "b"}
	if got, err := pair.SignedImpact("a", 500); err != nil || got != 500 {
		t.Fatalf("payer a: got %d, %v", got, err)
	}
	if got, err := pair.SignedImpact("b", 500); err != nil || got != -500 {
		t.Fatalf("payer b: got %d, %v", got, err)
	}
	if _, err := pair.SignedImpact("c", 500); !errors.Is(err, ErrUnknownParty) {
		t.Fatalf("expected ErrUnknownParty, got %v", err)
	}
}

func TestFriendPairCreditor(t *testing.T) {
	pair := FriendPair{Party1: "a", Party2: "b"}
	if got := pair.Creditor(100); got != "a" {
		t.Fatalf("positive balance: creditor %q", got)
	}
	if got := pair.Creditor(-100); got != "b" {
		t.Fatalf("negative balance: creditor %q", got)
	}
	if got := pair.Creditor(0); got != "" {
		t.Fatalf("settled pair: creditor %q", got)
	}
}

func TestFriendPairOwedTo(t *testing.T) {
	pair := FriendPair{Party1: "a", Party2: "b"}
	if got, _ := pair.OwedTo("a", 250); got != 250 {
		t.Fatalf("a should be owed 250, got %d", got)
	}
	if got, _ := pair.OwedTo("b", 250); got != -250 {
		t.Fatalf("b should owe 250, got %d", got)
	}
}

func TestCanonicalPair(t *testing.T) {
	forward := CanonicalPair("m1", "m2")
	backward := CanonicalPair("m2", "m1")
	if forward != backward {
		t.Fatalf("expected identical keys, got %#v vs %#v", forward, backward)
	}
	if forward.Participant1 != "m1" || forward.Participant2 != "m2" {
		t.Fatalf("unexpected order: %#v", forward)
	}
}

func TestPairKeySignedImpactMatchesStoredOrder(t *testing.T) {
	key := CanonicalPair("m9", "m2")
	// m2 sorts first, so m2 paying pushes the balance positive.
	if got, err := key.SignedImpact("m2", 3000); err != nil || got != 3000 {
		t.Fatalf("m2 pays: got %d, %v", got, err)
	}
	if got, err := key.SignedImpact("m9", 3000); err != nil || got != -3000 {
		t.Fatalf("m9 pays: got %d, %v", got, err)
	}
}

func TestPairKeyLess(t *testing.T) {
	keys := []PairKey{
		CanonicalPair("m3", "m1"),
		CanonicalPair("m1", "m2"),
		CanonicalPair("m2", "m3"),
	}
	if !keys[1].Less(keys[0]) {
		t.Fatalf("(m1,m2) should order before (m1,m3)")
	}
	if !keys[0].Less(keys[2]) {
		t.Fatalf("(m1,m3) should order before (m2,m3)")
	}
}
