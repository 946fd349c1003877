package split

import (
	"github.com/shopspring/decimal"

	"splitledger/internal/money"
)

var (
	oneHundred = decimal.NewFromInt(100)
)

// percentageStrategy derives amounts from per-debtor percentages. The
// debtor percentages plus the payer's percentage must sum to exactly 100;
// any rounding residue after converting to minor units lands on the last
// debtor so the amounts still reconcile against the total.
type percentageStrategy struct{}

func (percentageStrategy) Type() SplitType {
	return SplitTypePercentage
}

func (percentageStrategy) Validate(intent Intent) error {
	if err := validateBase(intent); err != nil {
		return err
	}
	sum := decimal.Zero
	for _, debtor := range intent.Debtors {
		if debtor.Percent == nil {
			return ErrMissingPercentage
		}
		if debtor.Percent.IsNegative() || debtor.Percent.GreaterThan(oneHundred) {
			return ErrPercentageOutOfRange
		}
		sum = sum.Add(*debtor.Percent)
	}
	payerPercent := decimal.Zero
	if intent.PayerPercent != nil {
		payerPercent = *intent.PayerPercent
		if payerPercent.IsNegative() || payerPercent.GreaterThan(oneHundred) {
			return ErrPercentageOutOfRange
		}
	}
	if !sum.Add(payerPercent).Equal(oneHundred) {
		return ErrPercentagesMismatch
	}
	return nil
}

func (s percentageStrategy) Calculate(intent Intent) ([]DebtorAmount, error) {
	if err := s.Validate(intent); err != nil {
		return nil, err
	}
	total := decimal.NewFromInt(intent.TotalMinor)
	outputs := make([]DebtorAmount, len(intent.Debtors))
	var distributed int64
	for i, debtor := range intent.Debtors {
		amount := total.Mul(*debtor.Percent).Div(oneHundred).RoundBank(0).IntPart()
		outputs[i] = DebtorAmount{PartyID: debtor.PartyID, AmountMinor: amount}
		distributed += amount
	}

	payerPercent := decimal.Zero
	if intent.PayerPercent != nil {
		payerPercent = *intent.PayerPercent
	}
	payerShare := total.Mul(payerPercent).Div(oneHundred).RoundBank(0).IntPart()
	expected := intent.TotalMinor - payerShare
	if residue := expected - distributed; residue != 0 {
		last := len(outputs) - 1
		outputs[last].AmountMinor += residue
	}
	for _, out := range outputs {
		if err := money.CheckRange(out.AmountMinor); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}
