package split

// equalStrategy covers both the two-party friend split, where the debtor's
// half is derived, and the group form, where every member's equal share is
// supplied explicitly and must reconcile against the total.
type equalStrategy struct{}

func (equalStrategy) Type() SplitType {
	return SplitTypeEqual
}

func (s equalStrategy) Validate(intent Intent) error {
	if err := validateBase(intent); err != nil {
		return err
	}
	if s.isFriendForm(intent) {
		return nil
	}
	_, err := sumProvidedShares(intent)
	return err
}

func (s equalStrategy) Calculate(intent Intent) ([]DebtorAmount, error) {
	if err := s.Validate(intent); err != nil {
		return nil, err
	}
	if s.isFriendForm(intent) {
		// The debtor owes half; on an odd minor total the payer absorbs
		// the extra cent.
		half := intent.TotalMinor / 2
		return []DebtorAmount{{PartyID: intent.Debtors[0].PartyID, AmountMinor: half}}, nil
	}
	return explicitAmounts(intent), nil
}

func (equalStrategy) isFriendForm(intent Intent) bool {
	return len(intent.Debtors) == 1 && intent.Debtors[0].AmountMinor == nil
}
