package transaction

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/pkg/money"
)

// stableCoins are pegged to USD and never realize gains
var stableCoins = map[string]struct{}{
	"USDC": {}, "USDT": {}, "UST": {}, "BUSD": {}, "GUSD": {},
	"HUSD": {}, "TUSD": {}, "PAX": {}, "DAI": {},
}

// IsFiat reports whether symbol is the fiat unit of account
func IsFiat(symbol string) bool {
	return strings.ToUpper(symbol) == money.USD
}

// IsStable reports whether symbol is fiat or a USD stable coin
func IsStable(symbol string) bool {
	if IsFiat(symbol) {
		return true
	}
	_, ok := stableCoins[strings.ToUpper(symbol)]
	return ok
}

// Asset is one currency leg of a transaction
type Asset struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	USDPrice decimal.Decimal `json:"usd_price"`
	USDValue decimal.Decimal `json:"usd_value"`
	IsFiat   bool            `json:"is_fiat"`
	IsStable bool            `json:"is_stable"`
}

// NewAsset builds an asset. A fiat asset without a price is priced at 1.
func NewAsset(symbol string, qty, price decimal.Decimal) Asset {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	fiat := IsFiat(symbol)
	if fiat && price.IsZero() {
		price = decimal.NewFromInt(1)
	}
	qty = money.Quantity(qty)
	price = money.Price(price)
	return Asset{
		Symbol:   symbol,
		Quantity: qty,
		USDPrice: price,
		USDValue: money.CalcUSDValue(qty, price),
		IsFiat:   fiat,
		IsStable: IsStable(symbol),
	}
}

// IsPresent reports whether the asset takes part in a transaction
func (a Asset) IsPresent() bool {
	return a.Symbol != "" && a.Quantity.IsPositive()
}

// IsTaxable reports whether disposing of the asset realizes a gain
func (a Asset) IsTaxable() bool {
	return !a.IsFiat && !a.IsStable
}

// HoldingAccount is where the asset is carried on the balance sheet
func (a Asset) HoldingAccount() ledger.AccountRef {
	if a.IsFiat {
		return ledger.Cash
	}
	return ledger.Crypto
}

func (a Asset) withPrice(price decimal.Decimal) Asset {
	return NewAsset(a.Symbol, a.Quantity, price)
}
