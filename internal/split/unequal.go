package split

// unequalStrategy takes each debtor's exact share as given. Shares plus
// the payer's own share must sum to the total; any mismatch rejects the
// whole intent with nothing applied.
type unequalStrategy struct{}

func (unequalStrategy) Type() SplitType {
	return SplitTypeUnequal
}

func (unequalStrategy) Validate(intent Intent) error {
	if err := validateBase(intent); err != nil {
		return err
	}
	_, err := sumProvidedShares(intent)
	return err
}

func (s unequalStrategy) Calculate(intent Intent) ([]DebtorAmount, error) {
	if err := s.Validate(intent); err != nil {
		return nil, err
	}
	return explicitAmounts(intent), nil
}
