package bookkeeper_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shed3/investment-accountant/internal/bookkeeper"
	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/internal/position"
	"github.com/shed3/investment-accountant/internal/transaction"
)

var day1 = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func asset(symbol, qty, price string) transaction.Asset {
	return transaction.Asset{Symbol: symbol, Quantity: dec(qty), USDPrice: dec(price)}
}

func newTx(t *testing.T, id string, typ transaction.Type, at time.Time, assets ...transaction.Asset) *transaction.Transaction {
	t.Helper()
	p := transaction.Params{ID: id, Type: typ, Timestamp: at}
	if len(assets) > 0 {
		p.Base = assets[0]
	}
	if len(assets) > 1 {
		p.Quote = assets[1]
	}
	if len(assets) > 2 {
		p.Fee = assets[2]
	}
	tx, err := transaction.New(p)
	require.NoError(t, err)
	return tx
}

func deposit(t *testing.T, id string, at time.Time, amount string) *transaction.Transaction {
	return newTx(t, id, transaction.Deposit, at, asset("USD", amount, "1"))
}

func mustAdd(t *testing.T, b *bookkeeper.BookKeeper, txs ...*transaction.Transaction) {
	t.Helper()
	for _, tx := range txs {
		_, err := b.AddTx(tx)
		require.NoError(t, err, tx.ID)
	}
}

func balance(b *bookkeeper.BookKeeper, ref ledger.AccountRef) decimal.Decimal {
	return b.Ledger().Balance(ledger.ForAccount(ref)).Balance
}

func assertBalanced(t *testing.T, b *bookkeeper.BookKeeper) {
	t.Helper()
	totals := b.Ledger().Totals()
	assert.True(t, totals.DebitValue.Equal(totals.CreditValue), "debit=%s credit=%s", totals.DebitValue, totals.CreditValue)
}

type recorder struct {
	booked   map[string]int
	rejected []string
	periods  int
	adjusted int
}

func newRecorder() *recorder { return &recorder{booked: make(map[string]int)} }

func (r *recorder) TransactionBooked(txType string, _ int, _ time.Duration) { r.booked[txType]++ }
func (r *recorder) TransactionRejected(_ string, reason string) {
	r.rejected = append(r.rejected, reason)
}
func (r *recorder) PeriodClosed(adjustments int) { r.periods++; r.adjusted += adjustments }

// =============================================================================
// Booking
// =============================================================================

func TestNew_HasUSDPosition(t *testing.T) {
	b := bookkeeper.New()
	usd, ok := b.Position("usd")
	require.True(t, ok)
	assert.Equal(t, "USD", usd.Symbol())
	assert.Equal(t, 0, b.Ledger().Len())
}

func TestAddTx_DepositThenBuy(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b,
		deposit(t, "dep-1", day1.Add(10*time.Hour), "10000"),
		newTx(t, "buy-1", transaction.Buy, day1.Add(11*time.Hour), asset("BTC", "1", "500"), asset("USD", "500", "1")),
	)

	assert.True(t, balance(b, ledger.Cash).Equal(dec("9500")))
	assert.True(t, balance(b, ledger.Crypto).Equal(dec("500")))
	assert.True(t, balance(b, ledger.InvestedCapital).Equal(dec("10000")))

	usd, _ := b.Position("USD")
	assert.True(t, usd.AvailableQuantity().Equal(dec("9500")))
	btc, ok := b.Position("BTC")
	require.True(t, ok)
	assert.True(t, btc.Balance().Equal(dec("1")))

	assert.Equal(t, []string{"BTC", "USD"}, symbolsOf(b.Positions()))
	assertBalanced(t, b)
}

func symbolsOf(ps []*position.Position) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Symbol()
	}
	return out
}

func TestAddTx_BuyThenSellRealizesGain(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b,
		deposit(t, "dep-1", day1.Add(time.Hour), "1000"),
		newTx(t, "buy-1", transaction.Buy, day1.Add(2*time.Hour), asset("BTC", "1", "1000"), asset("USD", "1000", "1")),
	)

	entries, err := b.AddTx(newTx(t, "sell-1", transaction.Sell, day1.Add(3*time.Hour), asset("BTC", "0.5", "2000"), asset("USD", "1000", "1")))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, ledger.Cash, entries[0].Ref())
	assert.Equal(t, ledger.Crypto, entries[1].Ref())
	assert.True(t, entries[1].Value.Equal(dec("500")))
	assert.True(t, entries[1].Quote.Equal(dec("1000")))
	assert.True(t, entries[1].CloseQuote.Equal(dec("2000")))
	assert.Equal(t, ledger.RealizedGains, entries[2].Ref())
	assert.True(t, entries[2].Value.Equal(dec("500")))

	btc, _ := b.Position("BTC")
	assert.True(t, btc.RealizedGain().Equal(dec("500")))
	assert.True(t, btc.Balance().Equal(dec("0.5")))
	assert.True(t, balance(b, ledger.RealizedGains).Equal(dec("500")))

	closeEvent, ok := btc.CloseEvent("sell-1/base")
	require.True(t, ok)
	require.Len(t, closeEvent.Fills, 1)
	assert.Equal(t, "buy-1", closeEvent.Fills[0].LotID)
	assertBalanced(t, b)
}

func TestAddTx_SwapDisposesQuote(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b,
		deposit(t, "dep-1", day1.Add(time.Hour), "1000"),
		newTx(t, "buy-1", transaction.Buy, day1.Add(2*time.Hour), asset("BTC", "1", "1000"), asset("USD", "1000", "1")),
		newTx(t, "swap-1", transaction.Swap, day1.Add(3*time.Hour), asset("ETH", "10", "150"), asset("BTC", "1", "1500")),
	)

	eth, ok := b.Position("ETH")
	require.True(t, ok)
	assert.True(t, eth.Balance().Equal(dec("10")))
	btc, _ := b.Position("BTC")
	assert.True(t, btc.Balance().IsZero())
	assert.True(t, balance(b, ledger.RealizedGains).Equal(dec("500")))
	assert.True(t, balance(b, ledger.Crypto).Equal(dec("1500")))
	assertBalanced(t, b)
}

func TestAddTx_FeeInFiat(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b,
		deposit(t, "dep-1", day1.Add(time.Hour), "10000"),
		newTx(t, "buy-1", transaction.Buy, day1.Add(2*time.Hour), asset("BTC", "1", "500"), asset("USD", "500", "1"), asset("USD", "5", "1")),
	)

	assert.True(t, balance(b, ledger.Cash).Equal(dec("9495")))
	fees := b.Ledger().Balance(ledger.ForAccount(ledger.FeesPaid))
	assert.True(t, fees.DebitValue.Equal(dec("5")))

	usd, _ := b.Position("USD")
	assert.True(t, usd.AvailableQuantity().Equal(dec("9495")))
	assertBalanced(t, b)
}

func TestAddTx_BuyWithoutDepositThenSell(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b, newTx(t, "buy-1", transaction.Buy, day1.Add(time.Hour), asset("BTC", "1", "1000"), asset("USD", "1000", "1")))

	assert.True(t, balance(b, ledger.Cash).Equal(dec("-1000")))
	usd, _ := b.Position("USD")
	assert.True(t, usd.AvailableQuantity().IsZero())
	assert.Empty(t, usd.Closes())

	mustAdd(t, b, newTx(t, "sell-1", transaction.Sell, day1.Add(2*time.Hour), asset("BTC", "0.5", "2000"), asset("USD", "1000", "1")))

	btc, _ := b.Position("BTC")
	assert.True(t, btc.RealizedGain().Equal(dec("500")))
	assert.True(t, btc.Balance().Equal(dec("0.5")))
	assert.True(t, balance(b, ledger.RealizedGains).Equal(dec("500")))
	assert.True(t, balance(b, ledger.Cash).IsZero())
	assertBalanced(t, b)
}

func TestAddTx_FiatFeeWithoutDeposit(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b, newTx(t, "buy-1", transaction.Buy, day1.Add(time.Hour),
		asset("BTC", "1", "500"), asset("USD", "500", "1"), asset("USD", "1", "1")))

	assert.True(t, balance(b, ledger.Cash).Equal(dec("-501")))
	fees := b.Ledger().Balance(ledger.ForAccount(ledger.FeesPaid))
	assert.True(t, fees.DebitValue.Equal(dec("1")))
	assertBalanced(t, b)
}

func TestAddTx_StableSpendDrawsDownHolding(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b,
		newTx(t, "recv-1", transaction.Receive, day1.Add(time.Hour), asset("USDC", "100", "1")),
		newTx(t, "buy-1", transaction.Buy, day1.Add(2*time.Hour),
			asset("ETH", "1", "100"), asset("USDC", "100", "1"), asset("USD", "1", "1")),
	)

	usdc, _ := b.Position("USDC")
	assert.True(t, usdc.AvailableQuantity().IsZero())
	require.Len(t, usdc.Closes(), 1)
	assert.True(t, usdc.RealizedGain().IsZero())

	eth, ok := b.Position("ETH")
	require.True(t, ok)
	assert.True(t, eth.Balance().Equal(dec("1")))
	assert.True(t, balance(b, ledger.RealizedGains).IsZero())
	assertBalanced(t, b)

	// spending more than is held only draws the holding down to zero
	mustAdd(t, b, newTx(t, "buy-2", transaction.Buy, day1.Add(3*time.Hour), asset("ETH", "1", "100"), asset("USDC", "100", "1")))
	usdc, _ = b.Position("USDC")
	assert.True(t, usdc.AvailableQuantity().IsZero())
	assert.Len(t, usdc.Closes(), 1)
}

func TestAddTx_FeeInCryptoIsTaxable(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b,
		deposit(t, "dep-1", day1.Add(time.Hour), "1000"),
		newTx(t, "buy-1", transaction.Buy, day1.Add(2*time.Hour), asset("BTC", "1", "1000"), asset("USD", "1000", "1")),
	)

	entries, err := b.AddTx(newTx(t, "sell-1", transaction.Sell, day1.Add(3*time.Hour),
		asset("BTC", "0.5", "2000"), asset("USD", "1000", "1"), asset("BTC", "0.01", "0")))
	require.NoError(t, err)
	require.Len(t, entries, 6)
	require.NoError(t, ledger.ValidateEntrySet("sell-1", entries))

	btc, _ := b.Position("BTC")
	assert.True(t, btc.Balance().Equal(dec("0.49")))
	// 500 on the sale and 10 on the fee
	assert.True(t, balance(b, ledger.RealizedGains).Equal(dec("510")))
	assertBalanced(t, b)
}

// =============================================================================
// Rejection and rollback
// =============================================================================

func TestAddTx_InsufficientLotsRollsBack(t *testing.T) {
	rec := newRecorder()
	b := bookkeeper.New(bookkeeper.WithRecorder(rec))
	mustAdd(t, b, newTx(t, "recv-1", transaction.Receive, day1.Add(time.Hour), asset("BTC", "0.5", "1000")))
	before := b.Ledger().Len()

	_, err := b.AddTx(newTx(t, "sell-1", transaction.Sell, day1.Add(2*time.Hour), asset("BTC", "1", "2000"), asset("USD", "2000", "1")))
	require.Error(t, err)
	assert.ErrorIs(t, err, position.ErrInsufficientTaxLots)

	var short *position.InsufficientTaxLotsError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, "BTC", short.Symbol)
	assert.True(t, short.Shortfall().Equal(dec("0.5")))

	assert.Equal(t, before, b.Ledger().Len())
	btc, _ := b.Position("BTC")
	assert.True(t, btc.AvailableQuantity().Equal(dec("0.5")))
	assert.Empty(t, btc.Closes())
	usd, _ := b.Position("USD")
	assert.True(t, usd.AvailableQuantity().IsZero(), "proceeds lot is rolled back")
	assert.Empty(t, usd.Lots())

	assert.Equal(t, []string{"insufficient_tax_lots"}, rec.rejected)
	assert.Equal(t, 1, rec.booked["receive"])
}

func TestAddTx_RollbackRestoresExistingPosition(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b,
		deposit(t, "dep-1", day1.Add(time.Hour), "1000"),
		newTx(t, "buy-1", transaction.Buy, day1.Add(2*time.Hour), asset("BTC", "1", "1000"), asset("USD", "1000", "1")),
	)

	// the BTC close succeeds before the fee close fails
	_, err := b.AddTx(newTx(t, "sell-1", transaction.Sell, day1.Add(3*time.Hour),
		asset("BTC", "0.5", "2000"), asset("USD", "1000", "1"), asset("ETH", "1", "100")))
	require.ErrorIs(t, err, position.ErrInsufficientTaxLots)

	btc, _ := b.Position("BTC")
	assert.True(t, btc.AvailableQuantity().Equal(dec("1")))
	assert.Empty(t, btc.Closes())
	assert.True(t, btc.MarketPrice().Equal(dec("1000")))
	_, ok := b.Position("ETH")
	assert.False(t, ok)
}

func TestAddTx_CloseAvailableBooksRemainderAtZeroCost(t *testing.T) {
	b := bookkeeper.New(bookkeeper.WithUnderfillPolicy(bookkeeper.CloseAvailable))
	mustAdd(t, b,
		newTx(t, "recv-1", transaction.Receive, day1.Add(time.Hour), asset("BTC", "0.5", "1000")),
	)

	entries, err := b.AddTx(newTx(t, "sell-1", transaction.Sell, day1.Add(2*time.Hour), asset("BTC", "1", "2000"), asset("USD", "2000", "1")))
	require.NoError(t, err)
	require.NoError(t, ledger.ValidateEntrySet("sell-1", entries))

	// 0.5 from the lot at cost 500, 0.5 with no cost
	assert.True(t, balance(b, ledger.RealizedGains).Equal(dec("1500")))
	btc, _ := b.Position("BTC")
	assert.True(t, btc.AvailableQuantity().IsZero())
	assertBalanced(t, b)
}

func TestAddTx_RetroactiveRejected(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b, deposit(t, "dep-2", day1.Add(5*time.Hour), "100"))

	_, err := b.AddTx(deposit(t, "dep-1", day1.Add(4*time.Hour), "100"))
	assert.ErrorIs(t, err, bookkeeper.ErrRetroactiveTransaction)
	assert.Equal(t, "retroactive", bookkeeper.Reason(err))

	_, err = b.AddTx(deposit(t, "dep-3", day1.Add(5*time.Hour), "100"))
	assert.NoError(t, err, "same timestamp is not retroactive")
}

func TestAddTx_DuplicateIDRejected(t *testing.T) {
	b := bookkeeper.New()
	mustAdd(t, b, deposit(t, "dep-1", day1.Add(time.Hour), "100"))

	_, err := b.AddTx(deposit(t, "dep-1", day1.Add(2*time.Hour), "100"))
	assert.ErrorIs(t, err, position.ErrDuplicateLot)
	assert.Equal(t, 2, b.Ledger().Len())
}

// =============================================================================
// Batches
// =============================================================================

func TestAddRawTxs_SortsByTime(t *testing.T) {
	b := bookkeeper.New()
	entries, err := b.AddRawTxs([]map[string]any{
		{"id": "buy-1", "type": "buy", "timestamp": "2021-03-01T12:00:00Z", "base_currency": "BTC", "base_quantity": "1", "base_usd_price": "500", "quote_currency": "USD", "quote_quantity": "500"},
		{"id": "dep-1", "type": "Deposit", "timestamp": "2021-03-01T10:00:00Z", "baseCurrency": "USD", "baseQuantity": 10000},
	})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "dep-1", entries[0].ID)
	assert.True(t, balance(b, ledger.Cash).Equal(dec("9500")))
}

func TestAddRawTxs_ParseErrorBooksNothing(t *testing.T) {
	b := bookkeeper.New()
	_, err := b.AddRawTxs([]map[string]any{
		{"id": "dep-1", "type": "deposit", "timestamp": "2021-03-01T10:00:00Z", "base_currency": "USD", "base_quantity": "10"},
		{"id": "x", "type": "airdrop"},
	})
	assert.ErrorIs(t, err, transaction.ErrUnknownTransactionType)
	assert.Equal(t, 0, b.Ledger().Len())
}

func TestAddTxs_StopsAtFirstFailure(t *testing.T) {
	b := bookkeeper.New()
	entries, err := b.AddTxs([]*transaction.Transaction{
		newTx(t, "wd-1", transaction.Withdrawal, day1.Add(2*time.Hour), asset("USD", "50", "1")),
		deposit(t, "dep-1", day1.Add(time.Hour), "10"),
		deposit(t, "dep-2", day1.Add(3*time.Hour), "10"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wd-1")
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, b.Ledger().Len())
}

// =============================================================================
// Valuation
// =============================================================================

func TestWithValuation(t *testing.T) {
	buy := func(b *bookkeeper.BookKeeper) *position.Position {
		mustAdd(t, b,
			newTx(t, "recv-1", transaction.Receive, day1.Add(time.Hour), asset("BTC", "1", "1000")),
			newTx(t, "recv-2", transaction.Receive, day1.Add(2*time.Hour), asset("BTC", "1", "1200")),
		)
		btc, _ := b.Position("BTC")
		return btc
	}

	delta := buy(bookkeeper.New())
	assert.True(t, delta.UnrealizedGain().Equal(dec("200")))

	absolute := buy(bookkeeper.New(bookkeeper.WithValuation(position.AbsoluteValuation)))
	assert.True(t, absolute.UnrealizedGain().Equal(dec("2400")))
}
