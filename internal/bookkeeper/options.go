package bookkeeper

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/internal/position"
	"github.com/shed3/investment-accountant/internal/transaction"
	"github.com/shed3/investment-accountant/pkg/logger"
)

// PriceSource answers the USD price of symbol at a point in time
type PriceSource interface {
	Price(at time.Time, symbol string) (decimal.Decimal, error)
}

// Recorder observes the bookkeeper's outcomes
type Recorder interface {
	TransactionBooked(txType string, entries int, elapsed time.Duration)
	TransactionRejected(txType string, reason string)
	PeriodClosed(adjustments int)
}

type nopRecorder struct{}

func (nopRecorder) TransactionBooked(string, int, time.Duration) {}
func (nopRecorder) TransactionRejected(string, string)           {}
func (nopRecorder) PeriodClosed(int)                             {}

// UnderfillPolicy decides what happens when a taxable disposal exceeds the
// open lots
type UnderfillPolicy int

const (
	// RejectUnderfill fails the transaction with an InsufficientTaxLots error
	RejectUnderfill UnderfillPolicy = iota
	// CloseAvailable closes the open lots and books the remainder at zero cost
	CloseAvailable
)

// ParseUnderfillPolicy parses reject or close_available
func ParseUnderfillPolicy(s string) (UnderfillPolicy, bool) {
	switch s {
	case "", "reject":
		return RejectUnderfill, true
	case "close_available":
		return CloseAvailable, true
	}
	return RejectUnderfill, false
}

// Option configures a BookKeeper
type Option func(*BookKeeper)

// WithTaxRates sets the rates ranking lots for disposal
func WithTaxRates(r position.TaxRates) Option {
	return func(b *BookKeeper) { b.rates = r }
}

// WithValuation sets the unrealized gain formula of every position
func WithValuation(v position.Valuation) Option {
	return func(b *BookKeeper) { b.valuation = v }
}

// WithPeriod sets the period cadence
func WithPeriod(freq Frequency, interval int) Option {
	return func(b *BookKeeper) {
		if interval < 1 {
			interval = 1
		}
		b.schedule = Schedule{Freq: freq, Interval: interval}
	}
}

// WithPriceSource sets where period closes read prices from. Without one,
// periods advance with no adjustments.
func WithPriceSource(src PriceSource) Option {
	return func(b *BookKeeper) { b.prices = src }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(b *BookKeeper) {
		if log != nil {
			b.logger = log.WithComponent("bookkeeper")
		}
	}
}

// WithRecorder sets the outcome observer
func WithRecorder(r Recorder) Option {
	return func(b *BookKeeper) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithUnderfillPolicy sets the under-fill policy
func WithUnderfillPolicy(p UnderfillPolicy) Option {
	return func(b *BookKeeper) { b.underfill = p }
}

// WithRegistry sets the registry raw records are parsed with
func WithRegistry(r *transaction.Registry) Option {
	return func(b *BookKeeper) {
		if r != nil {
			b.registry = r
		}
	}
}
