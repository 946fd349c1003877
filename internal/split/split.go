// Package split turns an expense intent into validated per-debtor amounts.
// It is pure: no I/O, no clock, no randomness. All money is int64 minor
// units; percentages use decimals so "exactly 100" means exactly 100.
package split

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"splitledger/internal/money"
)

type SplitType string

const (
	SplitTypeEqual      SplitType = "EQUAL"
	SplitTypeUnequal    SplitType = "UNEQUAL"
	SplitTypePercentage SplitType = "PERCENTAGE"
	SplitTypeSettlement SplitType = "SETTLEMENT"
)

// DebtorInput is one participant's requested share. AmountMinor is set for
// UNEQUAL (and group EQUAL) splits, Percent for PERCENTAGE splits.
type DebtorInput struct {
	PartyID     string
	AmountMinor *int64
	Percent     *decimal.Decimal
}

// Intent is the validated expense input handed to the engine. The payer's
// own share is carried separately and never appears in Debtors.
type Intent struct {
	TotalMinor      int64
	Type            SplitType
	PayerID         string
	PayerShareMinor *int64
	PayerPercent    *decimal.Decimal
	Debtors         []DebtorInput
}

// DebtorAmount is the normalized output: what one party owes the payer.
type DebtorAmount struct {
	PartyID     string
	AmountMinor int64
}

type Strategy interface {
	Type() SplitType
	Validate(intent Intent) error
	Calculate(intent Intent) ([]DebtorAmount, error)
}

var (
	ErrNonPositiveTotal     = errors.New("total amount must be positive")
	ErrNoDebtors            = errors.New("at least one debtor is required")
	ErrSelfDebt             = errors.New("payer cannot be listed as a debtor")
	ErrDuplicateDebtor      = errors.New("duplicate debtor in split")
	ErrMissingAmount        = errors.New("share amount required for all debtors")
	ErrMissingPercentage    = errors.New("percentage required for all debtors")
	ErrPercentageOutOfRange = errors.New("percentage must be between 0 and 100")
	ErrSharesMismatch       = errors.New("debtor shares must sum to the total amount")
	ErrPercentagesMismatch  = errors.New("percentages must sum to exactly 100")
	ErrSingleDebtorRequired = errors.New("settlement requires exactly one debtor")
)

// ForType returns the strategy implementing the given split type.
func ForType(splitType SplitType) (Strategy, error) {
	switch splitType {
	case SplitTypeEqual:
		return equalStrategy{}, nil
	case SplitTypeUnequal:
		return unequalStrategy{}, nil
	case SplitTypePercentage:
		return percentageStrategy{}, nil
	case SplitTypeSettlement:
		return settlementStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown split type: %s", splitType)
	}
}

// Normalize validates the intent and derives each debtor's owed amount.
func Normalize(intent Intent) ([]DebtorAmount, error) {
	if err := validateBase(intent); err != nil {
		return nil, err
	}
	strategy, err := ForType(intent.Type)
	if err != nil {
		return nil, err
	}
	return strategy.Calculate(intent)
}

// RowError ties a normalization failure to its row in a bulk import.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// NormalizeAll validates every intent and reports one error per failing
// row, so a bulk import can surface full diagnostics. Commit remains
// all-or-nothing at the service layer: any row error means nothing is
// applied.
func NormalizeAll(intents []Intent) ([][]DebtorAmount, []RowError) {
	results := make([][]DebtorAmount, len(intents))
	var rowErrs []RowError
	for i, intent := range intents {
		amounts, err := Normalize(intent)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: i, Err: err})
			continue
		}
		results[i] = amounts
	}
	if len(rowErrs) > 0 {
		return nil, rowErrs
	}
	return results, nil
}

func validateBase(intent Intent) error {
	if intent.TotalMinor <= 0 {
		return ErrNonPositiveTotal
	}
	if err := money.CheckRange(intent.TotalMinor); err != nil {
		return err
	}
	if len(intent.Debtors) == 0 {
		return ErrNoDebtors
	}
	seen := make(map[string]struct{}, len(intent.Debtors))
	for _, debtor := range intent.Debtors {
		if debtor.PartyID == intent.PayerID {
			return ErrSelfDebt
		}
		if _, dup := seen[debtor.PartyID]; dup {
			return ErrDuplicateDebtor
		}
		seen[debtor.PartyID] = struct{}{}
	}
	return nil
}

func payerShareOf(intent Intent) int64 {
	if intent.PayerShareMinor == nil {
		return 0
	}
	return *intent.PayerShareMinor
}

// sumProvidedShares validates and totals explicit debtor amounts; shared
// by the EQUAL (group form) and UNEQUAL strategies.
func sumProvidedShares(intent Intent) (int64, error) {
	var sum int64
	for _, debtor := range intent.Debtors {
		if debtor.AmountMinor == nil {
			return 0, ErrMissingAmount
		}
		if err := money.CheckRange(*debtor.AmountMinor); err != nil {
			return 0, err
		}
		sum += *debtor.AmountMinor
	}
	payerShare := payerShareOf(intent)
	if err := money.CheckRange(payerShare); err != nil {
		return 0, err
	}
	if sum+payerShare != intent.TotalMinor {
		return 0, ErrSharesMismatch
	}
	return sum, nil
}

func explicitAmounts(intent Intent) []DebtorAmount {
	outputs := make([]DebtorAmount, len(intent.Debtors))
	for i, debtor := range intent.Debtors {
		outputs[i] = DebtorAmount{PartyID: debtor.PartyID, AmountMinor: *debtor.AmountMinor}
	}
	return outputs
}
