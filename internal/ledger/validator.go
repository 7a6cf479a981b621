package ledger

// ValidateEntrySet checks every entry and then that debit and credit values
// balance exactly. It is the gate every entry set passes before it is
// appended to a Ledger.
func ValidateEntrySet(txID string, entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyEntrySet
	}

	for i, e := range entries {
		if err := e.Validate(); err != nil {
			if invalid, ok := err.(*InvalidEntryError); ok {
				invalid.TxID = txID
				invalid.Index = i
			}
			return err
		}
	}

	totals := SumEntries(entries)
	if !totals.DebitValue.Equal(totals.CreditValue) {
		return &ImbalancedEntrySetError{
			TxID:   txID,
			Debit:  totals.DebitValue,
			Credit: totals.CreditValue,
		}
	}

	return nil
}
