package transaction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/internal/position"
	"github.com/shed3/investment-accountant/internal/transaction"
)

var t0 = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func asset(symbol, qty, price string) transaction.Asset {
	return transaction.Asset{Symbol: symbol, Quantity: dec(qty), USDPrice: dec(price)}
}

func mustNew(t *testing.T, p transaction.Params) *transaction.Transaction {
	t.Helper()
	if p.ID == "" {
		p.ID = "tx-1"
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = t0
	}
	tx, err := transaction.New(p)
	require.NoError(t, err)
	return tx
}

func find(entries []ledger.Entry, ref ledger.AccountRef, side ledger.Side) (ledger.Entry, bool) {
	for _, e := range entries {
		if e.Ref() == ref && e.Side == side {
			return e, true
		}
	}
	return ledger.Entry{}, false
}

// =============================================================================
// Assets
// =============================================================================

func TestNewAsset(t *testing.T) {
	usd := transaction.NewAsset("usd", dec("100"), decimal.Zero)
	assert.Equal(t, "USD", usd.Symbol)
	assert.True(t, usd.IsFiat)
	assert.True(t, usd.IsStable)
	assert.True(t, usd.USDPrice.Equal(dec("1")))
	assert.True(t, usd.USDValue.Equal(dec("100")))
	assert.False(t, usd.IsTaxable())
	assert.Equal(t, ledger.Cash, usd.HoldingAccount())

	usdc := transaction.NewAsset("USDC", dec("100"), dec("1"))
	assert.False(t, usdc.IsFiat)
	assert.True(t, usdc.IsStable)
	assert.False(t, usdc.IsTaxable())
	assert.Equal(t, ledger.Crypto, usdc.HoldingAccount())

	btc := transaction.NewAsset(" btc ", dec("0.5"), dec("20000"))
	assert.Equal(t, "BTC", btc.Symbol)
	assert.True(t, btc.IsTaxable())
	assert.True(t, btc.USDValue.Equal(dec("10000")))
	assert.Equal(t, ledger.Crypto, btc.HoldingAccount())
}

func TestAsset_IsPresent(t *testing.T) {
	assert.False(t, transaction.Asset{}.IsPresent())
	assert.False(t, transaction.NewAsset("BTC", decimal.Zero, dec("1")).IsPresent())
	assert.True(t, transaction.NewAsset("BTC", dec("0.1"), decimal.Zero).IsPresent())
}

// =============================================================================
// Templates
// =============================================================================

func TestEntries_PerVariant(t *testing.T) {
	tests := []struct {
		name   string
		params transaction.Params
		debit  ledger.AccountRef
		credit ledger.AccountRef
		value  string
	}{
		{
			name:   "deposit",
			params: transaction.Params{Type: transaction.Deposit, Base: asset("USD", "1000", "1")},
			debit:  ledger.Cash, credit: ledger.InvestedCapital, value: "1000",
		},
		{
			name:   "withdrawal",
			params: transaction.Params{Type: transaction.Withdrawal, Base: asset("USD", "250", "1")},
			debit:  ledger.WithdrawnCapital, credit: ledger.Cash, value: "250",
		},
		{
			name:   "buy",
			params: transaction.Params{Type: transaction.Buy, Base: asset("BTC", "0.5", "20000"), Quote: asset("USD", "10000", "1")},
			debit:  ledger.Crypto, credit: ledger.Cash, value: "10000",
		},
		{
			name:   "send",
			params: transaction.Params{Type: transaction.Send, Base: asset("ETH", "2", "1500")},
			debit:  ledger.TransfersOut, credit: ledger.Crypto, value: "3000",
		},
		{
			name:   "receive",
			params: transaction.Params{Type: transaction.Receive, Base: asset("ETH", "2", "1500")},
			debit:  ledger.Crypto, credit: ledger.TransfersIn, value: "3000",
		},
		{
			name:   "reward",
			params: transaction.Params{Type: transaction.Reward, Base: asset("ATOM", "3", "10")},
			debit:  ledger.Crypto, credit: ledger.Rewards, value: "30",
		},
		{
			name:   "interest in account",
			params: transaction.Params{Type: transaction.InterestInAccount, Base: asset("USDC", "5", "1")},
			debit:  ledger.Crypto, credit: ledger.InterestEarnedAccount, value: "5",
		},
		{
			name:   "interest in stake",
			params: transaction.Params{Type: transaction.InterestInStake, Base: asset("DOT", "1", "20")},
			debit:  ledger.Crypto, credit: ledger.InterestEarnedStake, value: "20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := mustNew(t, tt.params)
			entries := tx.Entries()
			require.Len(t, entries, 2)

			debit, ok := find(entries, tt.debit, ledger.Debit)
			require.True(t, ok, "missing debit to %s", tt.debit)
			credit, ok := find(entries, tt.credit, ledger.Credit)
			require.True(t, ok, "missing credit to %s", tt.credit)

			assert.True(t, debit.Value.Equal(dec(tt.value)))
			assert.True(t, credit.Value.Equal(dec(tt.value)))
			assert.Equal(t, string(tx.Type), debit.Type)
			assert.Equal(t, "tx-1", debit.ID)
			assert.NoError(t, ledger.ValidateEntrySet(tx.ID, entries))
		})
	}
}

func TestEntries_FeeAppendsPair(t *testing.T) {
	tx := mustNew(t, transaction.Params{
		Type:  transaction.Buy,
		Base:  asset("BTC", "0.5", "20000"),
		Quote: asset("USD", "10000", "1"),
		Fee:   asset("USD", "10", "1"),
	})

	entries := tx.Entries()
	require.Len(t, entries, 4)

	fee, ok := find(entries, ledger.FeesPaid, ledger.Debit)
	require.True(t, ok)
	assert.Equal(t, transaction.FeeEntryType, fee.Type)
	assert.True(t, fee.Value.Equal(dec("10")))

	last := entries[3]
	assert.Equal(t, ledger.Cash, last.Ref())
	assert.Equal(t, ledger.Credit, last.Side)
	assert.Equal(t, transaction.FeeEntryType, last.Type)

	assert.True(t, tx.SubTotal.Equal(dec("10000")))
	assert.True(t, tx.Total.Equal(dec("10010")))
	assert.Empty(t, tx.TaxableRoles())
	assert.NoError(t, ledger.ValidateEntrySet(tx.ID, entries))
}

func TestEntriesExcluding_DropsOnlyCredits(t *testing.T) {
	tx := mustNew(t, transaction.Params{
		Type:  transaction.Sell,
		Base:  asset("BTC", "0.5", "30000"),
		Quote: asset("USD", "15000", "1"),
	})

	entries := tx.EntriesExcluding(transaction.RoleBase)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.Cash, entries[0].Ref())
	assert.Equal(t, ledger.Debit, entries[0].Side)
	assert.True(t, entries[0].Value.Equal(dec("15000")))
}

// =============================================================================
// Taxable legs
// =============================================================================

func TestTaxableRoles(t *testing.T) {
	tests := []struct {
		name   string
		params transaction.Params
		want   []transaction.Role
	}{
		{
			name:   "buy with fiat",
			params: transaction.Params{Type: transaction.Buy, Base: asset("BTC", "1", "100"), Quote: asset("USD", "100", "1")},
			want:   []transaction.Role{},
		},
		{
			name:   "sell crypto",
			params: transaction.Params{Type: transaction.Sell, Base: asset("BTC", "1", "100"), Quote: asset("USD", "100", "1")},
			want:   []transaction.Role{transaction.RoleBase},
		},
		{
			name:   "sell stable coin",
			params: transaction.Params{Type: transaction.Sell, Base: asset("USDC", "100", "1"), Quote: asset("USD", "100", "1")},
			want:   []transaction.Role{},
		},
		{
			name:   "swap disposes quote",
			params: transaction.Params{Type: transaction.Swap, Base: asset("ETH", "10", "100"), Quote: asset("BTC", "1", "1000")},
			want:   []transaction.Role{transaction.RoleQuote},
		},
		{
			name: "crypto fee",
			params: transaction.Params{
				Type: transaction.Sell, Base: asset("BTC", "1", "100"), Quote: asset("USD", "100", "1"),
				Fee: asset("BTC", "0.01", "100"),
			},
			want: []transaction.Role{transaction.RoleBase, transaction.RoleFee},
		},
		{
			name: "stable fee",
			params: transaction.Params{
				Type: transaction.Send, Base: asset("ETH", "1", "100"), Fee: asset("USDT", "1", "1"),
			},
			want: []transaction.Role{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := mustNew(t, tt.params)
			assert.ElementsMatch(t, tt.want, tx.TaxableRoles())
			assert.Equal(t, len(tt.want) > 0, tx.IsTaxable())
		})
	}
}

func TestAffectedBalances(t *testing.T) {
	tx := mustNew(t, transaction.Params{
		Type:  transaction.Buy,
		Base:  asset("BTC", "0.5", "20000"),
		Quote: asset("USD", "10000", "1"),
		Fee:   asset("BTC", "0.001", "20000"),
	})

	balances := tx.AffectedBalances()
	require.Len(t, balances, 2)
	assert.True(t, balances["BTC"].Equal(dec("0.499")))
	assert.True(t, balances["USD"].Equal(dec("-10000")))
}

func TestLegs_SkipAbsentQuote(t *testing.T) {
	tx := mustNew(t, transaction.Params{Type: transaction.Reward, Base: asset("ATOM", "3", "10")})

	legs := tx.Legs()
	require.Len(t, legs, 1)
	assert.Equal(t, transaction.RoleBase, legs[0].Role)
	assert.Equal(t, transaction.FlowInflow, legs[0].Flow)
}

// =============================================================================
// Price inference
// =============================================================================

func TestNew_InfersQuotePrice(t *testing.T) {
	tx := mustNew(t, transaction.Params{
		Type:  transaction.Swap,
		Base:  asset("ETH", "5", "2000"),
		Quote: asset("BTC", "0.5", "0"),
	})
	assert.True(t, tx.Quote.USDPrice.Equal(dec("20000")))
	assert.True(t, tx.Quote.USDValue.Equal(dec("10000")))
}

func TestNew_InfersBasePrice(t *testing.T) {
	tx := mustNew(t, transaction.Params{
		Type:  transaction.Sell,
		Base:  asset("BTC", "0.5", "0"),
		Quote: asset("USD", "15000", "0"),
	})
	assert.True(t, tx.Quote.USDPrice.Equal(dec("1")))
	assert.True(t, tx.Base.USDPrice.Equal(dec("30000")))
	assert.True(t, tx.SubTotal.Equal(dec("15000")))
}

func TestNew_InfersFeePriceFromMatchingLeg(t *testing.T) {
	tx := mustNew(t, transaction.Params{
		Type:  transaction.Buy,
		Base:  asset("BTC", "0.5", "20000"),
		Quote: asset("USD", "10000", "1"),
		Fee:   asset("BTC", "0.001", "0"),
	})
	assert.True(t, tx.Fee.USDPrice.Equal(dec("20000")))
	assert.True(t, tx.Fee.USDValue.Equal(dec("20")))
	assert.True(t, tx.LegValue(transaction.RoleFee).Equal(dec("20")))
}

// =============================================================================
// Validation
// =============================================================================

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params transaction.Params
		is     error
		field  string
	}{
		{
			name:   "missing id",
			params: transaction.Params{Type: transaction.Deposit, Timestamp: t0, Base: asset("USD", "1", "1")},
			is:     transaction.ErrMissingField, field: "id",
		},
		{
			name:   "unknown type",
			params: transaction.Params{ID: "tx-1", Type: "airdrop", Timestamp: t0, Base: asset("USD", "1", "1")},
			is:     transaction.ErrUnknownTransactionType,
		},
		{
			name:   "missing timestamp",
			params: transaction.Params{ID: "tx-1", Type: transaction.Deposit, Base: asset("USD", "1", "1")},
			is:     transaction.ErrMissingField, field: "timestamp",
		},
		{
			name:   "zero quantity",
			params: transaction.Params{ID: "tx-1", Type: transaction.Deposit, Timestamp: t0, Base: asset("USD", "0", "1")},
			is:     transaction.ErrNonPositiveQuantity, field: "base_quantity",
		},
		{
			name: "negative fee",
			params: transaction.Params{
				ID: "tx-1", Type: transaction.Deposit, Timestamp: t0,
				Base: asset("USD", "1", "1"), Fee: asset("USD", "-1", "1"),
			},
			is: transaction.ErrNegativeAmount, field: "fee_quantity",
		},
		{
			name:   "buy without quote",
			params: transaction.Params{ID: "tx-1", Type: transaction.Buy, Timestamp: t0, Base: asset("BTC", "1", "100")},
			is:     transaction.ErrMissingQuote, field: "quote",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := transaction.New(tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)

			if tt.field != "" {
				var parseErr *transaction.ParseError
				require.True(t, errors.As(err, &parseErr))
				assert.Equal(t, tt.field, parseErr.Field)
				assert.ErrorIs(t, err, transaction.ErrInvalidTransaction)
			}
		})
	}
}

func TestNew_DetectsTypeAlias(t *testing.T) {
	tx := mustNew(t, transaction.Params{Type: "Interest In Stake", Base: asset("DOT", "1", "20")})
	assert.Equal(t, transaction.InterestInStake, tx.Type)

	tx = mustNew(t, transaction.Params{Type: "WITHDRAW", Base: asset("USD", "1", "1")})
	assert.Equal(t, transaction.Withdrawal, tx.Type)
}

// =============================================================================
// Credit generation
// =============================================================================

func sell(t *testing.T, price, proceeds string) *transaction.Transaction {
	return mustNew(t, transaction.Params{
		Type:  transaction.Sell,
		Base:  asset("BTC", "0.5", price),
		Quote: asset("USD", proceeds, "1"),
	})
}

func TestGenerateCreditEntries_Gain(t *testing.T) {
	tx := sell(t, "30000", "15000")
	fills := []position.LotFill{{LotID: "lot-1", Price: dec("20000"), Qty: dec("0.5"), OpenedAt: t0, Term: position.ShortTerm}}

	credits, err := tx.GenerateCreditEntries(transaction.RoleBase, fills)
	require.NoError(t, err)
	require.Len(t, credits, 2)

	assert.Equal(t, ledger.Crypto, credits[0].Ref())
	assert.Equal(t, ledger.Credit, credits[0].Side)
	assert.True(t, credits[0].Value.Equal(dec("10000")))
	assert.True(t, credits[0].Quote.Equal(dec("20000")))
	assert.True(t, credits[0].CloseQuote.Equal(dec("30000")))

	assert.Equal(t, ledger.RealizedGains, credits[1].Ref())
	assert.Equal(t, ledger.Credit, credits[1].Side)
	assert.True(t, credits[1].Value.Equal(dec("5000")))

	entries := append(tx.EntriesExcluding(transaction.RoleBase), credits...)
	assert.NoError(t, ledger.ValidateEntrySet(tx.ID, entries))
}

func TestGenerateCreditEntries_LossIsDebit(t *testing.T) {
	tx := sell(t, "10000", "5000")
	fills := []position.LotFill{{LotID: "lot-1", Price: dec("20000"), Qty: dec("0.5"), OpenedAt: t0, Term: position.ShortTerm}}

	credits, err := tx.GenerateCreditEntries(transaction.RoleBase, fills)
	require.NoError(t, err)

	loss := credits[1]
	assert.Equal(t, ledger.RealizedGains, loss.Ref())
	assert.Equal(t, ledger.Debit, loss.Side)
	assert.True(t, loss.Value.Equal(dec("5000")))

	entries := append(tx.EntriesExcluding(transaction.RoleBase), credits...)
	assert.NoError(t, ledger.ValidateEntrySet(tx.ID, entries))
}

func TestGenerateCreditEntries_SplitsProceedsAcrossFills(t *testing.T) {
	tx := mustNew(t, transaction.Params{
		Type:  transaction.Sell,
		Base:  asset("ETH", "3", "33.333333"),
		Quote: asset("USD", "100", "1"),
	})
	fills := []position.LotFill{
		{LotID: "a", Price: dec("10"), Qty: dec("1")},
		{LotID: "b", Price: dec("12.5"), Qty: dec("1")},
		{LotID: "c", Price: dec("40"), Qty: dec("1")},
	}

	credits, err := tx.GenerateCreditEntries(transaction.RoleBase, fills)
	require.NoError(t, err)
	require.Len(t, credits, 6)

	entries := append(tx.EntriesExcluding(transaction.RoleBase), credits...)
	require.NoError(t, ledger.ValidateEntrySet(tx.ID, entries))

	// the last fill takes the rounding remainder: 33.34 - 40
	assert.Equal(t, ledger.Debit, credits[5].Side)
	assert.True(t, credits[5].Value.Equal(dec("6.66")))
}

func TestGenerateCreditEntries_Errors(t *testing.T) {
	tx := sell(t, "30000", "15000")

	_, err := tx.GenerateCreditEntries(transaction.RoleBase, nil)
	assert.Error(t, err)

	_, err = tx.GenerateCreditEntries(transaction.RoleFee, []position.LotFill{{LotID: "x", Qty: dec("1")}})
	assert.Error(t, err)
}
