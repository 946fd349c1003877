package split

// settlementStrategy assigns the whole amount to the single debtor. The
// direction of a settlement is derived by the ledger from the current
// balance sign, never taken from the caller.
type settlementStrategy struct{}

func (settlementStrategy) Type() SplitType {
	return SplitTypeSettlement
}

func (settlementStrategy) Validate(intent Intent) error {
	if err := validateBase(intent); err != nil {
		return err
	}
	if len(intent.Debtors) != 1 {
		return ErrSingleDebtorRequired
	}
	return nil
}

func (s settlementStrategy) Calculate(intent Intent) ([]DebtorAmount, error) {
	if err := s.Validate(intent); err != nil {
		return nil, err
	}
	return []DebtorAmount{{PartyID: intent.Debtors[0].PartyID, AmountMinor: intent.TotalMinor}}, nil
}
