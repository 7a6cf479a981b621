package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/pkg/money"
)

// Side is the debit or credit side of an entry
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// IsValid checks if the side is debit or credit
func (s Side) IsValid() bool {
	return s == Debit || s == Credit
}

// Opposite returns the other side. Invalid sides are returned unchanged.
func (s Side) Opposite() Side {
	switch s {
	case Debit:
		return Credit
	case Credit:
		return Debit
	}
	return s
}

// Entry is one side of a double-entry record. Entries are values and are
// never modified once appended to a Ledger.
type Entry struct {
	ID          string          `json:"id"`
	AccountType AccountType     `json:"account_type"`
	Account     string          `json:"account"`
	SubAccount  string          `json:"sub_account"`
	Timestamp   time.Time       `json:"timestamp"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Type        string          `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	Value       decimal.Decimal `json:"value"`
	Quote       decimal.Decimal `json:"quote"`
	CloseQuote  decimal.Decimal `json:"close_quote"`
}

// NewEntry normalizes e: the symbol is uppercased, a negative quantity or
// value flips the side and stores magnitudes, and every amount is rounded to
// its fixed scale.
func NewEntry(e Entry) Entry {
	e.Symbol = strings.ToUpper(strings.TrimSpace(e.Symbol))
	e.Side = Side(strings.ToLower(string(e.Side)))
	e.Timestamp = e.Timestamp.UTC()

	if e.Quantity.IsNegative() || e.Value.IsNegative() {
		e.Side = e.Side.Opposite()
	}

	e.Quantity = money.Quantity(e.Quantity.Abs())
	e.Value = money.Value(e.Value.Abs())
	e.Quote = money.Price(e.Quote)
	e.CloseQuote = money.Price(e.CloseQuote)
	return e
}

// Posting builds a normalized entry against ref
func Posting(ref AccountRef, side Side, id string, at time.Time, symbol, typ string, qty, value, quote decimal.Decimal) Entry {
	return NewEntry(Entry{
		ID:          id,
		AccountType: ref.Type,
		Account:     ref.Account,
		SubAccount:  ref.SubAccount,
		Timestamp:   at,
		Symbol:      symbol,
		Side:        side,
		Type:        typ,
		Quantity:    qty,
		Value:       value,
		Quote:       quote,
	})
}

// Ref returns the chart-of-accounts reference of the entry
func (e Entry) Ref() AccountRef {
	return AccountRef{Type: e.AccountType, Account: e.Account, SubAccount: e.SubAccount}
}

// IsDebit returns true if the entry is a debit
func (e Entry) IsDebit() bool {
	return e.Side == Debit
}

// IsCredit returns true if the entry is a credit
func (e Entry) IsCredit() bool {
	return e.Side == Credit
}

// SignedValue returns the value signed against the normal side of the
// entry's account type.
func (e Entry) SignedValue() decimal.Decimal {
	if e.Side == e.AccountType.NormalSide() {
		return e.Value
	}
	return e.Value.Neg()
}

// SignedQuantity is SignedValue for quantities
func (e Entry) SignedQuantity() decimal.Decimal {
	if e.Side == e.AccountType.NormalSide() {
		return e.Quantity
	}
	return e.Quantity.Neg()
}

// Validate validates the entry
func (e Entry) Validate() error {
	invalid := func(field, reason string) error {
		return &InvalidEntryError{Field: field, Reason: reason}
	}
	negative := func(field string) error {
		return &InvalidEntryError{Field: field, Reason: "cannot be negative", Err: ErrNegativeAmount}
	}

	switch {
	case e.ID == "":
		return invalid("id", "is required")
	case !e.AccountType.IsValid():
		return invalid("account_type", fmt.Sprintf("%q is not a known account type", e.AccountType))
	case e.Account == "":
		return invalid("account", "is required")
	case e.SubAccount == "":
		return invalid("sub_account", "is required")
	case e.Timestamp.IsZero():
		return invalid("timestamp", "is required")
	case e.Symbol == "":
		return invalid("symbol", "is required")
	case !e.Side.IsValid():
		return &InvalidEntryError{Field: "side", Reason: fmt.Sprintf("%q is not debit or credit", e.Side), Err: ErrInvalidSide}
	case e.Type == "":
		return invalid("type", "is required")
	case e.Quantity.IsNegative():
		return negative("quantity")
	case e.Value.IsNegative():
		return negative("value")
	case e.Quote.IsNegative():
		return negative("quote")
	case e.CloseQuote.IsNegative():
		return negative("close_quote")
	}
	return nil
}

// Equal compares two entries field by field with decimal equality
func (e Entry) Equal(o Entry) bool {
	return e.ID == o.ID &&
		e.AccountType == o.AccountType &&
		e.Account == o.Account &&
		e.SubAccount == o.SubAccount &&
		e.Timestamp.Equal(o.Timestamp) &&
		e.Symbol == o.Symbol &&
		e.Side == o.Side &&
		e.Type == o.Type &&
		e.Quantity.Equal(o.Quantity) &&
		e.Value.Equal(o.Value) &&
		e.Quote.Equal(o.Quote) &&
		e.CloseQuote.Equal(o.CloseQuote)
}

// ToMap renders the entry as a flat record with decimal strings and an
// RFC3339 timestamp.
func (e Entry) ToMap() map[string]any {
	return map[string]any{
		"id":           e.ID,
		"account_type": string(e.AccountType),
		"account":      e.Account,
		"sub_account":  e.SubAccount,
		"timestamp":    e.Timestamp.Format(time.RFC3339Nano),
		"symbol":       e.Symbol,
		"side":         string(e.Side),
		"type":         e.Type,
		"quantity":     e.Quantity.String(),
		"value":        e.Value.StringFixed(money.ValueScale),
		"quote":        e.Quote.String(),
		"close_quote":  e.CloseQuote.String(),
	}
}

// EntryFromMap rebuilds a normalized entry from a flat record
func EntryFromMap(m map[string]any) (Entry, error) {
	str := func(key string) string {
		if v, ok := m[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	num := func(key string) (decimal.Decimal, error) {
		d, err := money.Parse(m[key])
		if err != nil {
			return decimal.Zero, &InvalidEntryError{Field: key, Reason: err.Error()}
		}
		return d, nil
	}

	e := Entry{
		ID:          str("id"),
		AccountType: AccountType(str("account_type")),
		Account:     str("account"),
		SubAccount:  str("sub_account"),
		Symbol:      str("symbol"),
		Side:        Side(str("side")),
		Type:        str("type"),
	}

	switch ts := m["timestamp"].(type) {
	case time.Time:
		e.Timestamp = ts
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Entry{}, &InvalidEntryError{Field: "timestamp", Reason: err.Error()}
		}
		e.Timestamp = parsed
	}

	var err error
	if e.Quantity, err = num("quantity"); err != nil {
		return Entry{}, err
	}
	if e.Value, err = num("value"); err != nil {
		return Entry{}, err
	}
	if e.Quote, err = num("quote"); err != nil {
		return Entry{}, err
	}
	if e.CloseQuote, err = num("close_quote"); err != nil {
		return Entry{}, err
	}

	e = NewEntry(e)
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}
