package transaction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/internal/ledger"
	"github.com/shed3/investment-accountant/internal/position"
	"github.com/shed3/investment-accountant/pkg/money"
)

// FeeEntryType labels entries booked for a fee leg
const FeeEntryType = "fee"

// Params are the inputs of a transaction. Quote and Fee take part only when
// they carry a symbol and a positive quantity.
type Params struct {
	ID        string
	Type      Type
	Timestamp time.Time
	Base      Asset
	Quote     Asset
	Fee       Asset
}

// Transaction is an immutable, validated transaction bound to its variant
type Transaction struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Base      Asset           `json:"base"`
	Quote     Asset           `json:"quote"`
	Fee       Asset           `json:"fee"`
	SubTotal  decimal.Decimal `json:"sub_total"`
	Total     decimal.Decimal `json:"total"`

	variant Variant
}

// Leg is an asset taking part in a transaction with its direction
type Leg struct {
	Role  Role
	Asset Asset
	Flow  Flow
}

// New builds a transaction with the default registry
func New(p Params) (*Transaction, error) {
	return DefaultRegistry().New(p)
}

// New builds and validates a transaction bound to the registered variant
func (r *Registry) New(p Params) (*Transaction, error) {
	if p.ID == "" {
		return nil, &ParseError{Field: "id", Err: ErrMissingField}
	}

	typ := p.Type
	if !r.Has(typ) {
		if detected, ok := r.Detect(string(typ)); ok {
			typ = detected
		}
	}
	v, err := r.Get(typ)
	if err != nil {
		return nil, &UnknownTransactionTypeError{TxID: p.ID, Value: string(p.Type)}
	}

	if p.Timestamp.IsZero() {
		return nil, &ParseError{TxID: p.ID, Field: "timestamp", Err: ErrMissingField}
	}
	if p.Base.Symbol == "" {
		return nil, &ParseError{TxID: p.ID, Field: "base_currency", Err: ErrMissingField}
	}
	if !p.Base.Quantity.IsPositive() {
		return nil, &ParseError{TxID: p.ID, Field: "base_quantity", Err: ErrNonPositiveQuantity}
	}
	for role, a := range map[Role]Asset{RoleBase: p.Base, RoleQuote: p.Quote, RoleFee: p.Fee} {
		if a.Quantity.IsNegative() {
			return nil, &ParseError{TxID: p.ID, Field: string(role) + "_quantity", Err: ErrNegativeAmount}
		}
		if a.USDPrice.IsNegative() {
			return nil, &ParseError{TxID: p.ID, Field: string(role) + "_usd_price", Err: ErrNegativeAmount}
		}
	}

	base := NewAsset(p.Base.Symbol, p.Base.Quantity, p.Base.USDPrice)
	quote := NewAsset(p.Quote.Symbol, p.Quote.Quantity, p.Quote.USDPrice)
	fee := NewAsset(p.Fee.Symbol, p.Fee.Quantity, p.Fee.USDPrice)
	if !quote.IsPresent() {
		quote = Asset{}
	}
	if !fee.IsPresent() {
		fee = Asset{}
	}

	// one side of a trade may arrive unpriced; value it at the other side
	if quote.IsPresent() {
		switch {
		case quote.USDPrice.IsZero() && base.USDValue.IsPositive():
			quote = quote.withPrice(base.USDValue.Div(quote.Quantity))
		case base.USDPrice.IsZero() && quote.USDValue.IsPositive():
			base = base.withPrice(quote.USDValue.Div(base.Quantity))
		}
	}

	if fee.IsPresent() && fee.USDPrice.IsZero() {
		switch fee.Symbol {
		case base.Symbol:
			fee = fee.withPrice(base.USDPrice)
		case quote.Symbol:
			fee = fee.withPrice(quote.USDPrice)
		}
	}

	tx := &Transaction{
		ID:        p.ID,
		Type:      v.Type(),
		Timestamp: p.Timestamp.UTC(),
		Base:      base,
		Quote:     quote,
		Fee:       fee,
		SubTotal:  base.USDValue,
		Total:     base.USDValue.Add(fee.USDValue),
		variant:   v,
	}

	if err := v.Validate(tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// Asset returns the asset playing role, if present
func (tx *Transaction) Asset(role Role) (Asset, bool) {
	var a Asset
	switch role {
	case RoleBase:
		a = tx.Base
	case RoleQuote:
		a = tx.Quote
	case RoleFee:
		a = tx.Fee
	}
	return a, a.IsPresent()
}

// Legs returns the present legs the variant moves, in role order
func (tx *Transaction) Legs() []Leg {
	legs := make([]Leg, 0, len(Roles))
	for _, role := range Roles {
		a, ok := tx.Asset(role)
		if !ok {
			continue
		}
		flow := tx.variant.Flow(role)
		if flow == FlowNone {
			continue
		}
		legs = append(legs, Leg{Role: role, Asset: a, Flow: flow})
	}
	return legs
}

// AffectedBalances returns the net signed quantity change per symbol
func (tx *Transaction) AffectedBalances() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, leg := range tx.Legs() {
		delta := leg.Asset.Quantity
		if leg.Flow == FlowOutflow {
			delta = delta.Neg()
		}
		out[leg.Asset.Symbol] = out[leg.Asset.Symbol].Add(delta)
	}
	return out
}

// TaxableRoles returns the outflow legs whose disposal realizes a gain: the
// variant's taxable legs holding a taxable asset, and the fee when it is paid
// in a taxable asset.
func (tx *Transaction) TaxableRoles() []Role {
	roles := make([]Role, 0, 2)
	for _, role := range tx.variant.TaxableRoles() {
		if a, ok := tx.Asset(role); ok && a.IsTaxable() {
			roles = append(roles, role)
		}
	}
	if tx.Fee.IsPresent() && tx.Fee.IsTaxable() {
		roles = append(roles, RoleFee)
	}
	return roles
}

// IsTaxable reports whether any leg realizes a gain
func (tx *Transaction) IsTaxable() bool {
	return len(tx.TaxableRoles()) > 0
}

// Templates returns the variant's templates followed by the fee templates
// when a fee is present
func (tx *Transaction) Templates() []Template {
	templates := tx.variant.Templates()
	if tx.Fee.IsPresent() {
		templates = append(templates, feeTemplates...)
	}
	return templates
}

// Entries resolves every template
func (tx *Transaction) Entries() []ledger.Entry {
	return tx.EntriesExcluding()
}

// EntriesExcluding resolves every template except the credits of roles.
// Taxable legs are excluded here and booked through GenerateCreditEntries.
func (tx *Transaction) EntriesExcluding(roles ...Role) []ledger.Entry {
	skip := make(map[Role]bool, len(roles))
	for _, r := range roles {
		skip[r] = true
	}

	entries := make([]ledger.Entry, 0, 4)
	for _, t := range tx.Templates() {
		if t.Side == ledger.Credit && skip[t.Role] {
			continue
		}
		entries = append(entries, tx.resolve(t))
	}
	return entries
}

// LegValue is the value booked for role's templates: the fee's own value for
// the fee leg and the sub total for base and quote.
func (tx *Transaction) LegValue(role Role) decimal.Decimal {
	if role == RoleFee {
		return tx.Fee.USDValue
	}
	return tx.SubTotal
}

func (tx *Transaction) entryType(role Role) string {
	if role == RoleFee {
		return FeeEntryType
	}
	return string(tx.Type)
}

func (tx *Transaction) resolve(t Template) ledger.Entry {
	a, _ := tx.Asset(t.Role)
	ref := t.Account
	if t.Holding {
		ref = a.HoldingAccount()
	}
	return ledger.Posting(ref, t.Side, tx.ID, tx.Timestamp, a.Symbol, tx.entryType(t.Role), a.Quantity, tx.LegValue(t.Role), a.USDPrice)
}

// GenerateCreditEntries books the disposal of role against the lots it
// consumed. Each fill yields a credit to the holding account at cost and a
// realized gain entry for the difference between the fill's share of the leg
// value and its cost; a loss lands on the debit side. The pairs sum to the
// leg value exactly.
func (tx *Transaction) GenerateCreditEntries(role Role, fills []position.LotFill) ([]ledger.Entry, error) {
	a, ok := tx.Asset(role)
	if !ok {
		return nil, fmt.Errorf("transaction %s has no %s leg", tx.ID, role)
	}
	if len(fills) == 0 {
		return nil, fmt.Errorf("transaction %s %s leg closed no lots", tx.ID, role)
	}

	weights := make([]decimal.Decimal, len(fills))
	for i, f := range fills {
		weights[i] = f.Qty
	}
	proceeds := money.Allocate(tx.LegValue(role), weights)

	typ := tx.entryType(role)
	entries := make([]ledger.Entry, 0, 2*len(fills))
	for i, f := range fills {
		cost := money.Value(f.CostBasis())
		entries = append(entries,
			tx.closeEntry(a.HoldingAccount(), a, typ, f, cost),
			tx.closeEntry(ledger.RealizedGains, a, typ, f, proceeds[i].Sub(cost)),
		)
	}
	return entries, nil
}

func (tx *Transaction) closeEntry(ref ledger.AccountRef, a Asset, typ string, f position.LotFill, value decimal.Decimal) ledger.Entry {
	return ledger.NewEntry(ledger.Entry{
		ID:          tx.ID,
		AccountType: ref.Type,
		Account:     ref.Account,
		SubAccount:  ref.SubAccount,
		Timestamp:   tx.Timestamp,
		Symbol:      a.Symbol,
		Side:        ledger.Credit,
		Type:        typ,
		Quantity:    f.Qty,
		Value:       value,
		Quote:       f.Price,
		CloseQuote:  a.USDPrice,
	})
}
