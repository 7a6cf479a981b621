package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Entry errors
var (
	ErrInvalidEntry   = errors.New("invalid entry")
	ErrInvalidSide    = errors.New("invalid debit/credit side")
	ErrNegativeAmount = errors.New("amount cannot be negative")
)

// Entry set errors
var (
	ErrImbalancedEntrySet = errors.New("entry set debits and credits do not balance")
	ErrEmptyEntrySet      = errors.New("entry set has no entries")
)

// ErrDuplicateRecord is returned when a transaction id is already in the book
var ErrDuplicateRecord = errors.New("transaction already recorded")

// InvalidEntryError reports a malformed entry field
type InvalidEntryError struct {
	TxID   string
	Index  int
	Field  string
	Reason string
	Err    error
}

func (e *InvalidEntryError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("invalid entry %d of %s: %s %s", e.Index, e.TxID, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid entry: %s %s", e.Field, e.Reason)
}

// Is matches ErrInvalidEntry
func (e *InvalidEntryError) Is(target error) bool {
	return target == ErrInvalidEntry
}

// Unwrap returns the sentinel for a bad side or a negative amount
func (e *InvalidEntryError) Unwrap() error { return e.Err }

// ImbalancedEntrySetError reports a transaction whose debit and credit values differ
type ImbalancedEntrySetError struct {
	TxID   string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *ImbalancedEntrySetError) Error() string {
	return fmt.Sprintf("transaction %s not balanced: debit=%s, credit=%s", e.TxID, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// Is matches ErrImbalancedEntrySet
func (e *ImbalancedEntrySetError) Is(target error) bool {
	return target == ErrImbalancedEntrySet
}
