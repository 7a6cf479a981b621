package transaction

import (
	"errors"
	"fmt"
	"strings"
)

// Transaction errors
var (
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	ErrInvalidTransaction     = errors.New("invalid transaction")
	ErrMissingQuote           = errors.New("quote currency is required")
	ErrNonPositiveQuantity    = errors.New("quantity must be positive")
	ErrNegativeAmount         = errors.New("amount cannot be negative")
	ErrMissingField           = errors.New("field is required")
)

// UnknownTransactionTypeError reports a record whose type could not be
// recognized
type UnknownTransactionTypeError struct {
	TxID  string
	Value string
	Keys  []string
}

func (e *UnknownTransactionTypeError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("unknown transaction type for %q: no type field among [%s]", e.TxID, strings.Join(e.Keys, ", "))
	}
	return fmt.Sprintf("unknown transaction type %q for %q", e.Value, e.TxID)
}

// Is matches ErrUnknownTransactionType
func (e *UnknownTransactionTypeError) Is(target error) bool {
	return target == ErrUnknownTransactionType
}

// ParseError reports a missing or malformed transaction field
type ParseError struct {
	TxID  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid transaction %q: %s: %v", e.TxID, e.Field, e.Err)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidTransaction
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidTransaction
}
