package bookkeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/internal/position"
	"github.com/shed3/investment-accountant/internal/pricing"
	"github.com/shed3/investment-accountant/internal/transaction"
	"github.com/shed3/investment-accountant/pkg/logger"
	"github.com/shed3/investment-accountant/pkg/money"
)

// AdjustEntryType labels period fair value adjustment entries
const AdjustEntryType = "adjust"

// ErrRetroactiveTransaction is returned for a transaction older than the last
// processed transaction or the last closed period
var ErrRetroactiveTransaction = errors.New("retroactive transaction")

// BookKeeper folds transactions, in time order, into a ledger and a set of
// positions. Each transaction is booked all-or-nothing. A BookKeeper is not
// safe for concurrent use.
type BookKeeper struct {
	rates     position.TaxRates
	valuation position.Valuation
	schedule  Schedule
	underfill UnderfillPolicy
	prices    PriceSource
	registry  *transaction.Registry
	recorder  Recorder
	logger    *logger.Logger

	ledger    *ledger.Ledger
	positions map[string]*position.Position
	lastAt    time.Time

	started      bool
	nextBoundary time.Time
	closedAt     time.Time
	periodIndex  int
}

// New creates a BookKeeper with a USD position
func New(opts ...Option) *BookKeeper {
	b := &BookKeeper{
		rates:     position.DefaultTaxRates,
		valuation: position.DeltaValuation,
		schedule:  DefaultSchedule,
		underfill: RejectUnderfill,
		registry:  transaction.DefaultRegistry(),
		recorder:  nopRecorder{},
		logger:    logger.Discard(),
		ledger:    ledger.New(),
		positions: make(map[string]*position.Position),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.ensurePosition(money.USD)
	return b
}

// AddRaw parses a raw record and books it
func (b *BookKeeper) AddRaw(raw map[string]any) ([]ledger.Entry, error) {
	tx, err := b.registry.Parse(raw)
	if err != nil {
		return nil, err
	}
	return b.AddTx(tx)
}

// AddRawTxs parses every record first, then books them in time order
func (b *BookKeeper) AddRawTxs(raws []map[string]any) ([]ledger.Entry, error) {
	txs := make([]*transaction.Transaction, 0, len(raws))
	for i, raw := range raws {
		tx, err := b.registry.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return b.AddTxs(txs)
}

// AddTxs books txs in time order, stopping at the first failure. Entries of
// the transactions booked before the failure are kept and returned.
func (b *BookKeeper) AddTxs(txs []*transaction.Transaction) ([]ledger.Entry, error) {
	sorted := SortByTime(txs)

	var out []ledger.Entry
	for _, tx := range sorted {
		entries, err := b.AddTx(tx)
		if err != nil {
			return out, fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		out = append(out, entries...)
	}
	return out, nil
}

// SortByTime returns a copy of txs stably sorted by timestamp
func SortByTime(txs []*transaction.Transaction) []*transaction.Transaction {
	sorted := append([]*transaction.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// AddTx books tx and returns its entries. Periods ending before tx are
// closed first.
func (b *BookKeeper) AddTx(tx *transaction.Transaction) ([]ledger.Entry, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is nil")
	}

	start := time.Now()
	log := b.logger.WithField("tx_id", tx.ID)

	entries, err := b.book(tx)
	if err != nil {
		b.recorder.TransactionRejected(string(tx.Type), Reason(err))
		log.Warn("transaction rejected", "type", tx.Type, "error", err)
		return nil, err
	}

	b.recorder.TransactionBooked(string(tx.Type), len(entries), time.Since(start))
	log.Debug("transaction booked", "type", tx.Type, "entries", len(entries), "taxable", tx.IsTaxable())
	return entries, nil
}

func (b *BookKeeper) book(tx *transaction.Transaction) ([]ledger.Entry, error) {
	if tx.Timestamp.Before(b.lastAt) || (b.periodIndex > 0 && tx.Timestamp.Before(b.closedAt)) {
		return nil, fmt.Errorf("transaction %s at %s: %w", tx.ID, tx.Timestamp.Format(time.RFC3339), ErrRetroactiveTransaction)
	}

	if !b.started {
		b.started = true
		b.nextBoundary = b.schedule.Start(tx.Timestamp)
	}
	if _, err := b.ClosePeriods(tx.Timestamp); err != nil {
		return nil, err
	}

	legs := tx.Legs()
	snap := b.snapshot(legs)

	entries, err := b.process(tx, legs)
	if err == nil {
		err = ledger.ValidateEntrySet(tx.ID, entries)
	}
	if err != nil {
		b.restore(snap)
		return nil, err
	}

	b.ledger.Add(entries...)
	b.lastAt = tx.Timestamp
	return entries, nil
}

func (b *BookKeeper) process(tx *transaction.Transaction, legs []transaction.Leg) ([]ledger.Entry, error) {
	for _, leg := range legs {
		if leg.Asset.USDPrice.IsPositive() {
			b.positions[leg.Asset.Symbol].AdjustToMarket(leg.Asset.USDPrice, tx.Timestamp)
		}
	}

	// opens go first so an outflow of the same symbol can consume the new lot
	for _, leg := range legs {
		if leg.Flow != transaction.FlowInflow {
			continue
		}
		if err := b.positions[leg.Asset.Symbol].Open(tx.ID, leg.Asset.USDPrice, tx.Timestamp, leg.Asset.Quantity); err != nil {
			return nil, err
		}
	}

	taxable := tx.TaxableRoles()
	isTaxable := make(map[transaction.Role]bool, len(taxable))
	for _, r := range taxable {
		isTaxable[r] = true
	}

	entries := tx.EntriesExcluding(taxable...)
	for _, leg := range legs {
		if leg.Flow != transaction.FlowOutflow {
			continue
		}
		if !isTaxable[leg.Role] {
			if err := b.drain(tx, leg); err != nil {
				return nil, err
			}
			continue
		}
		fills, err := b.close(tx, leg)
		if err != nil {
			return nil, err
		}
		credits, err := tx.GenerateCreditEntries(leg.Role, fills)
		if err != nil {
			return nil, err
		}
		entries = append(entries, credits...)
	}
	return entries, nil
}

func (b *BookKeeper) close(tx *transaction.Transaction, leg transaction.Leg) ([]position.LotFill, error) {
	pos := b.positions[leg.Asset.Symbol]
	closeID := tx.ID + "/" + string(leg.Role)

	fills, err := pos.Close(closeID, leg.Asset.USDPrice, tx.Timestamp, leg.Asset.Quantity, b.rates)
	var short *position.InsufficientTaxLotsError
	if err == nil || b.underfill != CloseAvailable || !errors.As(err, &short) {
		return fills, err
	}

	fills, err = pos.Close(closeID, leg.Asset.USDPrice, tx.Timestamp, short.Available, b.rates)
	if err != nil {
		return nil, err
	}

	b.logger.Warn("open lots short of disposal, booking remainder at zero cost",
		"tx_id", tx.ID,
		"symbol", leg.Asset.Symbol,
		"requested", short.Requested.String(),
		"available", short.Available.String(),
	)
	return append(fills, position.LotFill{
		LotID:    closeID,
		Price:    decimal.Zero,
		Qty:      short.Shortfall(),
		OpenedAt: tx.Timestamp,
		Term:     position.ShortTerm,
	}), nil
}

// drain spends a fiat or stable coin holding down to zero at most. Cash
// can go negative in the ledger; only taxable disposals need lots.
func (b *BookKeeper) drain(tx *transaction.Transaction, leg transaction.Leg) error {
	pos := b.positions[leg.Asset.Symbol]
	qty := decimal.Min(leg.Asset.Quantity, pos.AvailableQuantity())
	if !qty.IsPositive() {
		return nil
	}
	_, err := pos.Close(tx.ID+"/"+string(leg.Role), leg.Asset.USDPrice, tx.Timestamp, qty, b.rates)
	return err
}

type snapshot struct {
	saved   map[string]*position.Position
	created []string
}

func (b *BookKeeper) snapshot(legs []transaction.Leg) snapshot {
	s := snapshot{saved: make(map[string]*position.Position, len(legs))}
	for _, leg := range legs {
		sym := leg.Asset.Symbol
		if _, done := s.saved[sym]; done {
			continue
		}
		if p, ok := b.positions[sym]; ok {
			s.saved[sym] = p.Clone()
			continue
		}
		b.ensurePosition(sym)
		s.saved[sym] = nil
		s.created = append(s.created, sym)
	}
	return s
}

func (b *BookKeeper) restore(s snapshot) {
	for sym, p := range s.saved {
		if p != nil {
			b.positions[sym] = p
		}
	}
	for _, sym := range s.created {
		delete(b.positions, sym)
	}
}

func (b *BookKeeper) ensurePosition(symbol string) *position.Position {
	symbol = strings.ToUpper(symbol)
	if p, ok := b.positions[symbol]; ok {
		return p
	}
	p := position.New(symbol, position.WithValuation(b.valuation))
	b.positions[symbol] = p
	return p
}

// Reason classifies a booking error for metrics
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrRetroactiveTransaction):
		return "retroactive"
	case errors.Is(err, position.ErrInsufficientTaxLots):
		return "insufficient_tax_lots"
	case errors.Is(err, ledger.ErrImbalancedEntrySet):
		return "unbalanced"
	case errors.Is(err, ledger.ErrInvalidEntry):
		return "invalid_entry"
	case errors.Is(err, transaction.ErrUnknownTransactionType):
		return "unknown_type"
	case errors.Is(err, transaction.ErrInvalidTransaction):
		return "invalid_transaction"
	}
	return "error"
}

// =============================================================================
// Periods
// =============================================================================

// ClosePeriods closes every pending boundary strictly before until and
// returns the fair value adjustments booked. Nothing happens before the
// first transaction.
func (b *BookKeeper) ClosePeriods(until time.Time) ([]ledger.Entry, error) {
	if !b.started {
		return nil, nil
	}

	var out []ledger.Entry
	for b.nextBoundary.Before(until) {
		entries, err := b.closePeriod(b.nextBoundary)
		if err != nil {
			return out, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (b *BookKeeper) closePeriod(at time.Time) ([]ledger.Entry, error) {
	log := b.logger.WithField("period", b.periodIndex)

	var entries []ledger.Entry
	if b.prices != nil {
		marks := make(map[string]decimal.Decimal)
		symbols := b.symbols()
		for _, sym := range symbols {
			if sym == money.USD || len(b.positions[sym].OpenLots()) == 0 {
				continue
			}
			price, err := b.prices.Price(at, sym)
			if errors.Is(err, pricing.ErrPriceUnavailable) {
				log.Warn("no price for period close, skipping", "symbol", sym, "boundary", at)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("close period %d at %s: %w", b.periodIndex, at.Format(time.RFC3339), err)
			}
			if price.IsPositive() {
				marks[sym] = price
			}
		}

		for _, sym := range symbols {
			price, ok := marks[sym]
			if !ok {
				continue
			}
			for _, rv := range b.positions[sym].Revalue(price, at) {
				entries = append(entries, adjustments(sym, at, rv)...)
			}
		}
	}

	if len(entries) > 0 {
		if err := ledger.ValidateEntrySet(fmt.Sprintf("period-%d", b.periodIndex), entries); err != nil {
			return nil, err
		}
		b.ledger.Add(entries...)
	}

	log.Debug("period closed", "boundary", at, "adjustments", len(entries)/2)
	b.recorder.PeriodClosed(len(entries) / 2)

	b.closedAt = at
	b.periodIndex++
	b.nextBoundary = b.schedule.Next(at)
	return entries, nil
}

// adjustments books the fair value change of one lot. A loss flips both
// sides.
func adjustments(symbol string, at time.Time, rv position.Revaluation) []ledger.Entry {
	value := money.Value(rv.Change)
	if value.IsZero() {
		return nil
	}
	entry := func(ref ledger.AccountRef, side ledger.Side) ledger.Entry {
		return ledger.NewEntry(ledger.Entry{
			ID:          rv.LotID,
			AccountType: ref.Type,
			Account:     ref.Account,
			SubAccount:  ref.SubAccount,
			Timestamp:   at,
			Symbol:      symbol,
			Side:        side,
			Type:        AdjustEntryType,
			Quantity:    decimal.Zero,
			Value:       value,
			Quote:       rv.Cost,
			CloseQuote:  rv.ToPrice,
		})
	}
	return []ledger.Entry{
		entry(ledger.FairValueAdjustment, ledger.Debit),
		entry(ledger.UnrealizedGains, ledger.Credit),
	}
}

// =============================================================================
// Read models
// =============================================================================

// Ledger returns the book's ledger. Callers must not add to it.
func (b *BookKeeper) Ledger() *ledger.Ledger {
	return b.ledger
}

// Position returns a copy of the position in symbol
func (b *BookKeeper) Position(symbol string) (*position.Position, bool) {
	p, ok := b.positions[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Positions returns copies of every position, sorted by symbol
func (b *BookKeeper) Positions() []*position.Position {
	symbols := b.symbols()
	out := make([]*position.Position, len(symbols))
	for i, sym := range symbols {
		out[i] = b.positions[sym].Clone()
	}
	return out
}

// PeriodIndex returns the number of closed periods
func (b *BookKeeper) PeriodIndex() int {
	return b.periodIndex
}

// NextBoundary returns the next period boundary to close, once the first
// transaction has started the schedule
func (b *BookKeeper) NextBoundary() (time.Time, bool) {
	return b.nextBoundary, b.started
}

// LastTimestamp returns the time of the last booked transaction
func (b *BookKeeper) LastTimestamp() time.Time {
	return b.lastAt
}

// Schedule returns the period cadence
func (b *BookKeeper) Schedule() Schedule {
	return b.schedule
}

func (b *BookKeeper) symbols() []string {
	out := make([]string, 0, len(b.positions))
	for sym := range b.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
