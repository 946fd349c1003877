// Package ledger holds the sign conventions for pairwise balances. Call
// sites never compare party ids to work out which way a balance points;
// these accessors are the only place that logic lives.
package ledger

import "errors"

var ErrUnknownParty = errors.New("party does not belong to this pair")

// FriendPair is a friendship's two fixed party slots. Slots are assigned
// at pair creation and never reordered: a positive balance always means
// Party2 owes Party1.
type FriendPair struct {
	Party1 string
	Party2 string
}

// SignedImpact converts an amount paid by payerID into the delta it adds
// to the stored balance: positive when Party1 paid, negative when Party2
// paid. Reversing a stored record subtracts the same value.
func (p FriendPair) SignedImpact(payerID string, amount int64) (int64, error) {
	switch payerID {
	case p.Party1:
		return amount, nil
	case p.Party2:
		return -amount, nil
	default:
		return 0, ErrUnknownParty
	}
}

// Creditor returns the party currently owed money, or "" when settled.
func (p FriendPair) Creditor(balance int64) string {
	switch {
	case balance > 0:
		return p.Party1
	case balance < 0:
		return p.Party2
	default:
		return ""
	}
}

// Other returns the counterparty of the given party.
func (p FriendPair) Other(partyID string) (string, error) {
	switch partyID {
	case p.Party1:
		return p.Party2, nil
	case p.Party2:
		return p.Party1, nil
	default:
		return "", ErrUnknownParty
	}
}

// OwedTo reports the balance from one party's point of view: positive
// means the others owe them, negative means they owe.
func (p FriendPair) OwedTo(partyID string, balance int64) (int64, error) {
	switch partyID {
	case p.Party1:
		return balance, nil
	case p.Party2:
		return -balance, nil
	default:
		return 0, ErrUnknownParty
	}
}

// PairKey is the canonical identity of a group member pair: participants
// stored in ascending order so the same pair never yields two rows. A
// positive balance means Participant2 owes Participant1 as stored.
type PairKey struct {
	Participant1 string
	Participant2 string
}

// CanonicalPair orders two membership ids into their canonical key.
func CanonicalPair(a, b string) PairKey {
	if a <= b {
		return PairKey{Participant1: a, Participant2: b}
	}
	return PairKey{Participant1: b, Participant2: a}
}

// Less orders keys for deterministic lock acquisition.
func (k PairKey) Less(other PairKey) bool {
	if k.Participant1 != other.Participant1 {
		return k.Participant1 < other.Participant1
	}
	return k.Participant2 < other.Participant2
}

// SignedImpact is the group analogue of FriendPair.SignedImpact, resolved
// against the stored participant order of this key.
func (k PairKey) SignedImpact(payerID string, amount int64) (int64, error) {
	switch payerID {
	case k.Participant1:
		return amount, nil
	case k.Participant2:
		return -amount, nil
	default:
		return 0, ErrUnknownParty
	}
}

// Creditor returns the participant currently owed money, or "" when the
// pair is settled.
func (k PairKey) Creditor(balance int64) string {
	switch {
	case balance > 0:
		return k.Participant1
	case balance < 0:
		return k.Participant2
	default:
		return ""
	}
}

// OwedTo reports the stored balance from one participant's point of view.
func (k PairKey) OwedTo(partyID string, balance int64) (int64, error) {
	switch partyID {
	case k.Participant1:
		return balance, nil
	case k.Participant2:
		return -balance, nil
	default:
		return 0, ErrUnknownParty
	}
}
