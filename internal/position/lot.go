package position

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Term is the holding period class of a lot
type Term string

const (
	ShortTerm Term = "short"
	LongTerm  Term = "long"
)

// LongTermDays is the holding period, in whole days, a lot must exceed to be
// long term.
const LongTermDays = 365

// TermAt classifies a lot opened at openedAt as of at
func TermAt(openedAt, at time.Time) Term {
	days := int(at.Sub(openedAt) / (24 * time.Hour))
	if days > LongTermDays {
		return LongTerm
	}
	return ShortTerm
}

// TaxRates are the rates applied to unrealized gains by term
type TaxRates struct {
	Long  decimal.Decimal `json:"long"`
	Short decimal.Decimal `json:"short"`
}

// DefaultTaxRates are 25% long term and 40% short term
var DefaultTaxRates = TaxRates{
	Long:  decimal.RequireFromString("0.25"),
	Short: decimal.RequireFromString("0.40"),
}

// ParseTaxRates builds rates from decimal strings
func ParseTaxRates(long, short string) (TaxRates, error) {
	l, err := decimal.NewFromString(long)
	if err != nil {
		return TaxRates{}, fmt.Errorf("invalid long term rate: %w", err)
	}
	s, err := decimal.NewFromString(short)
	if err != nil {
		return TaxRates{}, fmt.Errorf("invalid short term rate: %w", err)
	}
	return TaxRates{Long: l, Short: s}, nil
}

// Rate returns the rate for term
func (r TaxRates) Rate(term Term) decimal.Decimal {
	if term == LongTerm {
		return r.Long
	}
	return r.Short
}

// Valuation selects how a lot's unrealized gain is measured
type Valuation int

const (
	// DeltaValuation measures available * (market - cost)
	DeltaValuation Valuation = iota
	// AbsoluteValuation measures available * market
	AbsoluteValuation
)

// ParseValuation parses "delta" or "absolute"
func ParseValuation(s string) (Valuation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "delta":
		return DeltaValuation, nil
	case "absolute":
		return AbsoluteValuation, nil
	}
	return DeltaValuation, fmt.Errorf("unknown valuation %q", s)
}

func (v Valuation) String() string {
	if v == AbsoluteValuation {
		return "absolute"
	}
	return "delta"
}

// TaxLot is a discrete acquisition
type TaxLot struct {
	LotID          string          `json:"lot_id"`
	OpenedAt       time.Time       `json:"opened_at"`
	Price          decimal.Decimal `json:"price"`
	OriginalQty    decimal.Decimal `json:"original_qty"`
	AvailableQty   decimal.Decimal `json:"available_qty"`
	UnrealizedGain decimal.Decimal `json:"unrealized_gain"`
	MarkPrice      decimal.Decimal `json:"mark_price"`
	Term           Term            `json:"term"`
}

// IsOpen returns true while some quantity is available
func (l *TaxLot) IsOpen() bool {
	return l.AvailableQty.IsPositive()
}

// TaxLiability is the unrealized gain weighted by the lot's term rate
func (l *TaxLot) TaxLiability(rates TaxRates) decimal.Decimal {
	return l.UnrealizedGain.Mul(rates.Rate(l.Term))
}

// CostBasis of the available quantity
func (l *TaxLot) CostBasis() decimal.Decimal {
	return l.AvailableQty.Mul(l.Price)
}

// LotFill is the quantity a close took from one lot, at that lot's cost
type LotFill struct {
	LotID    string          `json:"lot_id"`
	Price    decimal.Decimal `json:"price"`
	Qty      decimal.Decimal `json:"qty"`
	OpenedAt time.Time       `json:"opened_at"`
	Term     Term            `json:"term"`
}

// CostBasis of the filled quantity
func (f LotFill) CostBasis() decimal.Decimal {
	return f.Qty.Mul(f.Price)
}

// CloseEvent records one disposal against a position
type CloseEvent struct {
	CloseID      string          `json:"close_id"`
	ClosedAt     time.Time       `json:"closed_at"`
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
	Proceeds     decimal.Decimal `json:"proceeds"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
	Fills        []LotFill       `json:"fills"`
}

// Revaluation is the fair value change of one lot between two marks
type Revaluation struct {
	LotID     string          `json:"lot_id"`
	OpenedAt  time.Time       `json:"opened_at"`
	Qty       decimal.Decimal `json:"qty"`
	Cost      decimal.Decimal `json:"cost"`
	FromPrice decimal.Decimal `json:"from_price"`
	ToPrice   decimal.Decimal `json:"to_price"`
	Change    decimal.Decimal `json:"change"`
}
