package position

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/pkg/money"
)

// Position tracks every tax lot and disposal of one symbol. It owns its lots;
// callers only see copies. A Position is not safe for concurrent use.
type Position struct {
	symbol      string
	valuation   Valuation
	lots        map[string]*TaxLot
	closes      map[string]*CloseEvent
	marketPrice decimal.Decimal
	marketAt    time.Time
	stats       SideStats
}

// Option configures a Position
type Option func(*Position)

// WithValuation sets the unrealized gain formula
func WithValuation(v Valuation) Option {
	return func(p *Position) { p.valuation = v }
}

// New creates an empty position for symbol
func New(symbol string, opts ...Option) *Position {
	p := &Position{
		symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		lots:   make(map[string]*TaxLot),
		closes: make(map[string]*CloseEvent),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Symbol returns the position's symbol
func (p *Position) Symbol() string { return p.symbol }

// MarketPrice returns the last price the position was adjusted to
func (p *Position) MarketPrice() decimal.Decimal { return p.marketPrice }

// MarketTimestamp returns when the position was last adjusted
func (p *Position) MarketTimestamp() time.Time { return p.marketAt }

// Stats returns open and close price statistics
func (p *Position) Stats() SideStats { return p.stats }

// Open adds a lot of qty acquired at price
func (p *Position) Open(lotID string, price decimal.Decimal, at time.Time, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("open %s lot %s: %w", p.symbol, lotID, ErrNonPositiveQuantity)
	}
	if price.IsNegative() {
		return fmt.Errorf("open %s lot %s: %w", p.symbol, lotID, ErrNegativePrice)
	}
	if _, exists := p.lots[lotID]; exists {
		return fmt.Errorf("open %s lot %s: %w", p.symbol, lotID, ErrDuplicateLot)
	}

	price = money.Price(price)
	qty = money.Quantity(qty)
	p.lots[lotID] = &TaxLot{
		LotID:        lotID,
		OpenedAt:     at,
		Price:        price,
		OriginalQty:  qty,
		AvailableQty: qty,
		MarkPrice:    price,
		Term:         ShortTerm,
	}
	p.stats.Open.observe(price, at)
	p.AdjustToMarket(price, at)
	return nil
}

// AdjustToMarket marks every lot at price, recomputing unrealized gains and
// promoting terms. Calling it twice with the same arguments changes nothing.
func (p *Position) AdjustToMarket(price decimal.Decimal, at time.Time) {
	price = money.Price(price)
	p.marketPrice = price
	p.marketAt = at
	for _, lot := range p.lots {
		lot.UnrealizedGain = p.unrealizedGain(lot, price)
		lot.Term = TermAt(lot.OpenedAt, at)
	}
}

func (p *Position) unrealizedGain(lot *TaxLot, price decimal.Decimal) decimal.Decimal {
	if p.valuation == AbsoluteValuation {
		return money.Price(lot.AvailableQty.Mul(price))
	}
	return money.Price(lot.AvailableQty.Mul(price.Sub(lot.Price)))
}

// Close disposes of qty at price, consuming lots with the highest tax
// liability first. Ties go to the earlier lot. If the open lots cannot cover
// qty, Close returns an *InsufficientTaxLotsError and leaves the position
// untouched. A zero qty records an empty close event.
func (p *Position) Close(closeID string, price decimal.Decimal, at time.Time, qty decimal.Decimal, rates TaxRates) ([]LotFill, error) {
	if qty.IsNegative() {
		return nil, fmt.Errorf("close %s %s: %w", p.symbol, closeID, ErrNegativeQuantity)
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("close %s %s: %w", p.symbol, closeID, ErrNegativePrice)
	}
	if _, exists := p.closes[closeID]; exists {
		return nil, fmt.Errorf("close %s %s: %w", p.symbol, closeID, ErrDuplicateClose)
	}

	price = money.Price(price)
	qty = money.Quantity(qty)

	if qty.IsZero() {
		p.closes[closeID] = &CloseEvent{CloseID: closeID, ClosedAt: at, Price: price, Fills: []LotFill{}}
		return []LotFill{}, nil
	}

	if available := p.AvailableQuantity(); available.LessThan(qty) {
		return nil, &InsufficientTaxLotsError{
			Symbol:    p.symbol,
			CloseID:   closeID,
			Requested: qty,
			Available: available,
		}
	}

	candidates := p.openLots()
	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].TaxLiability(rates), candidates[j].TaxLiability(rates)
		if c := li.Cmp(lj); c != 0 {
			return c > 0
		}
		return earlier(candidates[i], candidates[j])
	})

	fills := make([]LotFill, 0, len(candidates))
	remaining := qty
	cost := decimal.Zero
	for _, lot := range candidates {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lot.AvailableQty)
		lot.AvailableQty = lot.AvailableQty.Sub(take)
		remaining = remaining.Sub(take)

		fill := LotFill{LotID: lot.LotID, Price: lot.Price, Qty: take, OpenedAt: lot.OpenedAt, Term: lot.Term}
		cost = cost.Add(fill.CostBasis())
		fills = append(fills, fill)
	}

	proceeds := qty.Mul(price)
	p.closes[closeID] = &CloseEvent{
		CloseID:      closeID,
		ClosedAt:     at,
		Price:        price,
		Qty:          qty,
		Proceeds:     money.Price(proceeds),
		CostBasis:    money.Price(cost),
		RealizedGain: money.Price(proceeds.Sub(cost)),
		Fills:        fills,
	}
	p.stats.Close.observe(price, at)
	p.AdjustToMarket(price, at)

	out := make([]LotFill, len(fills))
	copy(out, fills)
	return out, nil
}

// Revalue marks every open lot from its previous mark to price, returning
// the change per lot, and then adjusts the position to price.
func (p *Position) Revalue(price decimal.Decimal, at time.Time) []Revaluation {
	price = money.Price(price)
	lots := p.openLots()
	sort.Slice(lots, func(i, j int) bool { return earlier(lots[i], lots[j]) })

	out := make([]Revaluation, 0, len(lots))
	for _, lot := range lots {
		out = append(out, Revaluation{
			LotID:     lot.LotID,
			OpenedAt:  lot.OpenedAt,
			Qty:       lot.AvailableQty,
			Cost:      lot.Price,
			FromPrice: lot.MarkPrice,
			ToPrice:   price,
			Change:    lot.AvailableQty.Mul(price.Sub(lot.MarkPrice)),
		})
		lot.MarkPrice = price
	}
	p.AdjustToMarket(price, at)
	return out
}

// Balance is the total quantity opened minus the total quantity closed
func (p *Position) Balance() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range p.lots {
		total = total.Add(lot.OriginalQty)
	}
	for _, c := range p.closes {
		total = total.Sub(c.Qty)
	}
	return total
}

// AvailableQuantity sums the quantity left in open lots
func (p *Position) AvailableQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range p.lots {
		total = total.Add(lot.AvailableQty)
	}
	return total
}

// RealizedGain sums the gains of every close
func (p *Position) RealizedGain() decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.closes {
		total = total.Add(c.RealizedGain)
	}
	return total
}

// UnrealizedGain sums the unrealized gains of open lots
func (p *Position) UnrealizedGain() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range p.lots {
		total = total.Add(lot.UnrealizedGain)
	}
	return total
}

// CostBasis sums the cost of the quantity still held
func (p *Position) CostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range p.lots {
		total = total.Add(lot.CostBasis())
	}
	return total
}

// Lot returns a copy of the lot with id
func (p *Position) Lot(id string) (TaxLot, bool) {
	lot, ok := p.lots[id]
	if !ok {
		return TaxLot{}, false
	}
	return *lot, true
}

// Lots returns copies of every lot ordered by open time
func (p *Position) Lots() []TaxLot {
	lots := make([]*TaxLot, 0, len(p.lots))
	for _, lot := range p.lots {
		lots = append(lots, lot)
	}
	return copyLots(lots)
}

// OpenLots returns copies of lots with quantity available, by open time
func (p *Position) OpenLots() []TaxLot {
	return copyLots(p.openLots())
}

// CloseEvent returns a copy of the close with id
func (p *Position) CloseEvent(id string) (CloseEvent, bool) {
	c, ok := p.closes[id]
	if !ok {
		return CloseEvent{}, false
	}
	return copyClose(c), true
}

// Closes returns copies of every close ordered by time
func (p *Position) Closes() []CloseEvent {
	out := make([]CloseEvent, 0, len(p.closes))
	for _, c := range p.closes {
		out = append(out, copyClose(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClosedAt.Equal(out[j].ClosedAt) {
			return out[i].ClosedAt.Before(out[j].ClosedAt)
		}
		return out[i].CloseID < out[j].CloseID
	})
	return out
}

// Clone returns a deep copy of the position
func (p *Position) Clone() *Position {
	c := &Position{
		symbol:      p.symbol,
		valuation:   p.valuation,
		lots:        make(map[string]*TaxLot, len(p.lots)),
		closes:      make(map[string]*CloseEvent, len(p.closes)),
		marketPrice: p.marketPrice,
		marketAt:    p.marketAt,
		stats:       p.stats,
	}
	for id, lot := range p.lots {
		l := *lot
		c.lots[id] = &l
	}
	for id, ev := range p.closes {
		e := copyClose(ev)
		c.closes[id] = &e
	}
	return c
}

// Snapshot is a read model of a position
type Snapshot struct {
	Symbol            string          `json:"symbol"`
	MarketPrice       decimal.Decimal `json:"market_price"`
	MarketTimestamp   time.Time       `json:"market_timestamp"`
	Balance           decimal.Decimal `json:"balance"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	CostBasis         decimal.Decimal `json:"cost_basis"`
	RealizedGain      decimal.Decimal `json:"realized_gain"`
	UnrealizedGain    decimal.Decimal `json:"unrealized_gain"`
	Stats             SideStats       `json:"stats"`
	Lots              []TaxLot        `json:"lots"`
	Closes            []CloseEvent    `json:"closes"`
}

// Snapshot returns the position's read model
func (p *Position) Snapshot() Snapshot {
	return Snapshot{
		Symbol:            p.symbol,
		MarketPrice:       p.marketPrice,
		MarketTimestamp:   p.marketAt,
		Balance:           p.Balance(),
		AvailableQuantity: p.AvailableQuantity(),
		CostBasis:         money.Value(p.CostBasis()),
		RealizedGain:      money.Value(p.RealizedGain()),
		UnrealizedGain:    money.Value(p.UnrealizedGain()),
		Stats:             p.stats,
		Lots:              p.Lots(),
		Closes:            p.Closes(),
	}
}

func (p *Position) openLots() []*TaxLot {
	out := make([]*TaxLot, 0, len(p.lots))
	for _, lot := range p.lots {
		if lot.IsOpen() {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return earlier(out[i], out[j]) })
	return out
}

func earlier(a, b *TaxLot) bool {
	if !a.OpenedAt.Equal(b.OpenedAt) {
		return a.OpenedAt.Before(b.OpenedAt)
	}
	return a.LotID < b.LotID
}

func copyLots(lots []*TaxLot) []TaxLot {
	sort.Slice(lots, func(i, j int) bool { return earlier(lots[i], lots[j]) })
	out := make([]TaxLot, len(lots))
	for i, lot := range lots {
		out[i] = *lot
	}
	return out
}

func copyClose(c *CloseEvent) CloseEvent {
	out := *c
	out.Fills = append([]LotFill{}, c.Fills...)
	return out
}
