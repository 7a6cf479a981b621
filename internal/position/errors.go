package position

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Lot errors
var (
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrNegativeQuantity    = errors.New("quantity cannot be negative")
	ErrNegativePrice       = errors.New("price cannot be negative")
	ErrDuplicateLot        = errors.New("lot already open")
	ErrDuplicateClose      = errors.New("close already recorded")
)

// Close errors
var (
	ErrInsufficientTaxLots = errors.New("insufficient tax lots")
)

// InsufficientTaxLotsError reports a close larger than the open lots can fill.
// The position is left unchanged.
type InsufficientTaxLotsError struct {
	Symbol    string
	CloseID   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientTaxLotsError) Error() string {
	return fmt.Sprintf("insufficient tax lots for %s close %s: requested=%s, available=%s",
		e.Symbol, e.CloseID, e.Requested.String(), e.Available.String())
}

// Is matches ErrInsufficientTaxLots
func (e *InsufficientTaxLotsError) Is(target error) bool {
	return target == ErrInsufficientTaxLots
}

// Shortfall is the quantity no lot could fill
func (e *InsufficientTaxLotsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}
