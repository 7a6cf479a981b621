package accounting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shed3/investment-accountant/internal/bookkeeper"
	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/internal/position"
	"github.com/shed3/investment-accountant/internal/pricing"
	"github.com/shed3/investment-accountant/internal/transaction"
	"github.com/shed3/investment-accountant/pkg/logger"
	"github.com/shed3/investment-accountant/pkg/money"
)

// PeriodCloseType is the record type stored for an explicit period close
const PeriodCloseType = "period-close"

// KeeperFactory builds an empty BookKeeper reading prices from src
type KeeperFactory func(src bookkeeper.PriceSource) *bookkeeper.BookKeeper

// PriceLoader fills a price history from storage
type PriceLoader interface {
	Load(ctx context.Context, h *pricing.History, symbols []string, from, to time.Time) error
	Record(ctx context.Context, h *pricing.History, points []pricing.Point) error
}

// Publisher delivers the entries of a committed record downstream
type Publisher interface {
	Publish(ctx context.Context, txID, txType string, entries []ledger.Entry) error
}

// PublishRecorder observes publish outcomes
type PublishRecorder interface {
	BatchPublished(err error)
}

// IngestResult reports what an ingest booked
type IngestResult struct {
	Processed int            `json:"processed"`
	Entries   []ledger.Entry `json:"entries"`
}

// Service owns the BookKeeper. Writers and readers are serialized by a
// mutex; storage and publishing happen around the in-memory fold.
type Service struct {
	mu sync.Mutex

	newKeeper KeeperFactory
	repo      ledger.Repository
	loader    PriceLoader
	publisher Publisher
	recorder  PublishRecorder
	logger    *logger.Logger
	now       func() time.Time

	keeper  *bookkeeper.BookKeeper
	history *pricing.History
	seen    map[string]struct{}
}

// Option configures a Service
type Option func(*Service)

// WithPublishRecorder observes every publish attempt
func WithPublishRecorder(r PublishRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides the wall clock used as the default period close time
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new accounting service. A nil publisher disables
// publishing.
func NewService(newKeeper KeeperFactory, repo ledger.Repository, loader PriceLoader, publisher Publisher, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Discard()
	}
	s := &Service{
		newKeeper: newKeeper,
		repo:      repo,
		loader:    loader,
		publisher: publisher,
		logger:    log.WithComponent("accounting"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Service) reset() {
	s.history = pricing.NewHistory()
	s.keeper = s.newKeeper(s.history)
	s.seen = make(map[string]struct{})
}

// =============================================================================
// Restore
// =============================================================================

// Restore rebuilds the book by replaying every stored record in order.
// Nothing is written back.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restore(ctx)
}

func (s *Service) restore(ctx context.Context) error {
	s.reset()

	records, err := s.repo.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	type step struct {
		rec *ledger.TransactionRecord
		tx  *transaction.Transaction
	}
	steps := make([]step, 0, len(records))
	var txs []*transaction.Transaction
	for _, rec := range records {
		st := step{rec: rec}
		if rec.Type != PeriodCloseType {
			tx, err := transaction.Parse(rec.RawData)
			if err != nil {
				return fmt.Errorf("replay %s: %w", rec.ID, err)
			}
			st.tx = tx
			txs = append(txs, tx)
		}
		steps = append(steps, st)
	}

	until := records[len(records)-1].OccurredAt
	for _, rec := range records {
		if rec.OccurredAt.After(until) {
			until = rec.OccurredAt
		}
	}
	if err := s.loadPrices(ctx, symbolsOf(txs, nil), records[0].OccurredAt, until); err != nil {
		return err
	}

	for _, st := range steps {
		s.seen[st.rec.ID] = struct{}{}
		if st.tx == nil {
			if _, err := s.keeper.ClosePeriods(st.rec.OccurredAt); err != nil {
				return fmt.Errorf("replay %s: %w", st.rec.ID, err)
			}
			continue
		}
		if _, err := s.keeper.AddTx(st.tx); err != nil {
			return fmt.Errorf("replay %s: %w", st.rec.ID, err)
		}
	}

	s.logger.Info("book restored", "records", len(records), "entries", s.keeper.Ledger().Len(), "periods", s.keeper.PeriodIndex())
	return nil
}

// =============================================================================
// Ingest
// =============================================================================

// Ingest parses, books and persists raws in time order. It stops at the first
// rejected transaction; everything booked before it stays committed.
func (s *Service) Ingest(ctx context.Context, raws []map[string]any) (*IngestResult, error) {
	txs := make([]*transaction.Transaction, 0, len(raws))
	rawByID := make(map[string]map[string]any, len(raws))
	for i, raw := range raws {
		tx, err := transaction.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := rawByID[tx.ID]; dup {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrDuplicateRecord)
		}
		rawByID[tx.ID] = raw
		txs = append(txs, tx)
	}
	txs = bookkeeper.SortByTime(txs)

	s.mu.Lock()
	defer s.mu.Unlock()

	result := &IngestResult{Entries: []ledger.Entry{}}
	if len(txs) == 0 {
		return result, nil
	}

	for _, tx := range txs {
		if _, dup := s.seen[tx.ID]; dup {
			return nil, fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrDuplicateRecord)
		}
	}

	from := txs[0].Timestamp
	if last := s.keeper.LastTimestamp(); !last.IsZero() && last.Before(from) {
		from = last
	}
	if err := s.loadPrices(ctx, symbolsOf(txs, s.keeper.Positions()), from, txs[len(txs)-1].Timestamp); err != nil {
		return nil, err
	}

	for _, tx := range txs {
		mark := s.keeper.Ledger().Len()

		_, bookErr := s.keeper.AddTx(tx)
		pending := s.keeper.Ledger().Since(mark)

		if bookErr != nil {
			// periods closed before the rejection still need to be stored
			if len(pending) > 0 {
				if err := s.commit(ctx, s.periodRecord(tx.Timestamp), pending); err != nil {
					return result, err
				}
				result.Entries = append(result.Entries, pending...)
			}
			return result, fmt.Errorf("transaction %s: %w", tx.ID, bookErr)
		}

		rec := &ledger.TransactionRecord{
			ID:         tx.ID,
			Type:       string(tx.Type),
			OccurredAt: tx.Timestamp,
			RecordedAt: s.now().UTC(),
			RawData:    rawByID[tx.ID],
		}
		if err := s.commit(ctx, rec, pending); err != nil {
			return result, err
		}

		result.Processed++
		result.Entries = append(result.Entries, pending...)
	}

	return result, nil
}

// =============================================================================
// Periods and prices
// =============================================================================

// ClosePeriods closes every pending period before until and persists the
// adjustments under a period-close record. until is capped at the clock, so
// periods that have not ended yet stay open.
func (s *Service) ClosePeriods(ctx context.Context, until time.Time) ([]ledger.Entry, error) {
	if now := s.now(); until.IsZero() || until.After(now) {
		until = now
	}
	until = until.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.keeper.LastTimestamp()
	if from.IsZero() {
		return []ledger.Entry{}, nil
	}
	if err := s.loadPrices(ctx, symbolsOf(nil, s.keeper.Positions()), from, until); err != nil {
		return nil, err
	}

	before := s.keeper.PeriodIndex()
	mark := s.keeper.Ledger().Len()
	_, closeErr := s.keeper.ClosePeriods(until)
	entries := s.keeper.Ledger().Since(mark)

	// boundaries closed before a failure are kept and stored
	if s.keeper.PeriodIndex() > before {
		if err := s.commit(ctx, s.periodRecord(until), entries); err != nil {
			return nil, err
		}
	}
	if closeErr != nil {
		return entries, closeErr
	}

	s.logger.Info("periods closed", "until", until, "periods", s.keeper.PeriodIndex()-before, "entries", len(entries))
	return entries, nil
}

// RecordPrices stores points and makes them visible to later bookings
func (s *Service) RecordPrices(ctx context.Context, points []pricing.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loader == nil {
		s.history.Add(points...)
		return nil
	}
	return s.loader.Record(ctx, s.history, points)
}

func (s *Service) periodRecord(until time.Time) *ledger.TransactionRecord {
	return &ledger.TransactionRecord{
		ID:         uuid.NewString(),
		Type:       PeriodCloseType,
		OccurredAt: until,
		RecordedAt: s.now().UTC(),
		RawData:    map[string]any{"until": until.Format(time.RFC3339Nano)},
	}
}

// loadPrices fills the history for symbols. The day before from is included
// so as-of lookups at a midnight boundary find the previous close.
func (s *Service) loadPrices(ctx context.Context, symbols []string, from, to time.Time) error {
	if s.loader == nil || len(symbols) == 0 {
		return nil
	}
	if err := s.loader.Load(ctx, s.history, symbols, from.AddDate(0, 0, -1), to); err != nil {
		return fmt.Errorf("failed to load prices: %w", err)
	}
	return nil
}

// commit persists rec and its entries atomically, then publishes them. A
// storage failure rebuilds the book from storage so memory matches what
// was committed.
func (s *Service) commit(ctx context.Context, rec *ledger.TransactionRecord, entries []ledger.Entry) error {
	ctx = context.WithValue(ctx, logger.TxIDKey, rec.ID)
	if err := s.persist(ctx, rec, entries); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("persist failed, restoring book")
		if rerr := s.restore(ctx); rerr != nil {
			return errors.Join(err, fmt.Errorf("restore: %w", rerr))
		}
		return err
	}
	s.seen[rec.ID] = struct{}{}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, rec.ID, rec.Type, entries)
		if s.recorder != nil {
			s.recorder.BatchPublished(err)
		}
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("publish failed", "entries", len(entries))
		}
	}
	return nil
}

func (s *Service) persist(ctx context.Context, rec *ledger.TransactionRecord, entries []ledger.Entry) (err error) {
	txCtx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = s.repo.RollbackTx(txCtx)
		}
	}()

	if err = s.repo.CreateTransaction(txCtx, rec); err != nil {
		return err
	}
	if len(entries) > 0 {
		if err = s.repo.AppendEntries(txCtx, rec.ID, entries); err != nil {
			return err
		}
	}
	return s.repo.CommitTx(txCtx)
}

// =============================================================================
// Reads
// =============================================================================

// Entries returns booked entries matching f
func (s *Service) Entries(f ledger.Filter) []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keeper.Ledger().Select(f)
}

// Summary aggregates booked entries by dims
func (s *Service) Summary(dims ...ledger.Dimension) []ledger.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keeper.Ledger().Summarize(dims...)
}

// EquityCurve returns cumulative daily balances of accountType
func (s *Service) EquityCurve(accountType ledger.AccountType, dims ...ledger.Dimension) ledger.Curve {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keeper.Ledger().EquityCurve(accountType, dims...)
}

// RunningTotals returns per-entry running balances grouped by dims
func (s *Service) RunningTotals(dims ...ledger.Dimension) []ledger.RunningRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keeper.Ledger().RunningTotals(dims...)
}

// Positions returns snapshots of every position
func (s *Service) Positions() []position.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := s.keeper.Positions()
	out := make([]position.Snapshot, len(positions))
	for i, p := range positions {
		out[i] = p.Snapshot()
	}
	return out
}

// Position returns a snapshot of the position in symbol
func (s *Service) Position(symbol string) (position.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.keeper.Position(symbol)
	if !ok {
		return position.Snapshot{}, false
	}
	return p.Snapshot(), true
}

// Period reports the number of closed periods and the next boundary
func (s *Service) Period() (closed int, next time.Time, started bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, started = s.keeper.NextBoundary()
	return s.keeper.PeriodIndex(), next, started
}

// Transactions lists stored records in insertion order
func (s *Service) Transactions(ctx context.Context) ([]*ledger.TransactionRecord, error) {
	return s.repo.ListTransactions(ctx)
}

// symbolsOf collects the non-USD symbols of txs and of open positions, sorted
func symbolsOf(txs []*transaction.Transaction, positions []*position.Position) []string {
	set := make(map[string]struct{})
	add := func(sym string) {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" && sym != money.USD {
			set[sym] = struct{}{}
		}
	}
	for _, tx := range txs {
		for _, leg := range tx.Legs() {
			add(leg.Asset.Symbol)
		}
	}
	for _, p := range positions {
		if len(p.OpenLots()) > 0 {
			add(p.Symbol())
		}
	}

	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
