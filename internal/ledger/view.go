package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Dimension is an entry field a view can be keyed on
type Dimension string

const (
	DimAccountType Dimension = "account_type"
	DimAccount     Dimension = "account"
	DimSubAccount  Dimension = "sub_account"
	DimSymbol      Dimension = "symbol"
	DimTimestamp   Dimension = "timestamp"
	DimID          Dimension = "id"
	DimType        Dimension = "type"
)

// AccountDimensions is the chart-of-accounts hierarchy
var AccountDimensions = []Dimension{DimAccountType, DimAccount, DimSubAccount}

// ParseDimensions parses a comma separated dimension list
func ParseDimensions(s string) ([]Dimension, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var dims []Dimension
	for _, part := range strings.Split(s, ",") {
		d := Dimension(strings.TrimSpace(part))
		switch d {
		case DimAccountType, DimAccount, DimSubAccount, DimSymbol, DimTimestamp, DimID, DimType:
			dims = append(dims, d)
		default:
			return nil, fmt.Errorf("unknown dimension %q", part)
		}
	}
	return dims, nil
}

// Group holds the dimension values of a view row. Fields for dimensions
// not in the view are left zero.
type Group struct {
	AccountType AccountType `json:"account_type,omitempty"`
	Account     string      `json:"account,omitempty"`
	SubAccount  string      `json:"sub_account,omitempty"`
	Symbol      string      `json:"symbol,omitempty"`
	Timestamp   time.Time   `json:"timestamp,omitzero"`
	ID          string      `json:"id,omitempty"`
	Type        string      `json:"type,omitempty"`
}

func groupOf(e Entry, dims []Dimension) Group {
	var g Group
	for _, d := range dims {
		switch d {
		case DimAccountType:
			g.AccountType = e.AccountType
		case DimAccount:
			g.Account = e.Account
		case DimSubAccount:
			g.SubAccount = e.SubAccount
		case DimSymbol:
			g.Symbol = e.Symbol
		case DimTimestamp:
			g.Timestamp = e.Timestamp
		case DimID:
			g.ID = e.ID
		case DimType:
			g.Type = e.Type
		}
	}
	return g
}

// key is a comparable identity for a group
func (g Group) key() string {
	return strings.Join([]string{
		string(g.AccountType), g.Account, g.SubAccount, g.Symbol,
		fmt.Sprint(g.Timestamp.UnixNano()), g.ID, g.Type,
	}, "\x00")
}

// compareOn orders two entries on dims, returning -1, 0 or 1
func compareOn(a, b Entry, dims []Dimension) int {
	for _, d := range dims {
		var c int
		switch d {
		case DimAccountType:
			c = strings.Compare(string(a.AccountType), string(b.AccountType))
		case DimAccount:
			c = strings.Compare(a.Account, b.Account)
		case DimSubAccount:
			c = strings.Compare(a.SubAccount, b.SubAccount)
		case DimSymbol:
			c = strings.Compare(a.Symbol, b.Symbol)
		case DimTimestamp:
			c = a.Timestamp.Compare(b.Timestamp)
		case DimID:
			c = strings.Compare(a.ID, b.ID)
		case DimType:
			c = strings.Compare(a.Type, b.Type)
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// Index returns a copy of the entries stably ordered by dims. The ledger
// itself keeps insertion order.
func (l *Ledger) Index(dims ...Dimension) []Entry {
	out := l.Entries()
	sort.SliceStable(out, func(i, j int) bool {
		return compareOn(out[i], out[j], dims) < 0
	})
	return out
}

// Filter selects entries. Zero fields match everything; From and To are
// inclusive bounds.
type Filter struct {
	AccountType AccountType
	Account     string
	SubAccount  string
	Symbol      string
	Type        string
	ID          string
	From        time.Time
	To          time.Time
}

// ForAccount returns a filter matching ref
func ForAccount(ref AccountRef) Filter {
	return Filter{AccountType: ref.Type, Account: ref.Account, SubAccount: ref.SubAccount}
}

// Match reports whether e passes the filter
func (f Filter) Match(e Entry) bool {
	switch {
	case f.AccountType != "" && e.AccountType != f.AccountType:
		return false
	case f.Account != "" && e.Account != f.Account:
		return false
	case f.SubAccount != "" && e.SubAccount != f.SubAccount:
		return false
	case f.Symbol != "" && e.Symbol != strings.ToUpper(f.Symbol):
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.ID != "" && e.ID != f.ID:
		return false
	case !f.From.IsZero() && e.Timestamp.Before(f.From):
		return false
	case !f.To.IsZero() && e.Timestamp.After(f.To):
		return false
	}
	return true
}

// Select returns the matching entries in insertion order
func (l *Ledger) Select(f Filter) []Entry {
	out := make([]Entry, 0)
	for _, e := range l.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Summary is an aggregated view row
type Summary struct {
	Group
	Totals
	Count           int             `json:"count"`
	BalanceQuantity decimal.Decimal `json:"balance_quantity"`
	Balance         decimal.Decimal `json:"balance"`
}

// Summarize groups entries by dims and sums each side. Balance is
// debit - credit for asset groups and credit - debit otherwise; a group
// spanning several account types is treated as credit-normal.
func (l *Ledger) Summarize(dims ...Dimension) []Summary {
	return summarize(l.entries, dims)
}

// Balance summarizes every entry matching f into a single row
func (l *Ledger) Balance(f Filter) Summary {
	rows := summarize(l.Select(f), nil)
	if len(rows) == 0 {
		return Summary{}
	}
	return rows[0]
}

func summarize(entries []Entry, dims []Dimension) []Summary {
	type acc struct {
		first Entry
		row   Summary
		types map[AccountType]struct{}
	}

	byKey := make(map[string]*acc)
	order := make([]*acc, 0)
	for _, e := range entries {
		g := groupOf(e, dims)
		k := g.key()
		a, ok := byKey[k]
		if !ok {
			a = &acc{first: e, row: Summary{Group: g}, types: make(map[AccountType]struct{})}
			byKey[k] = a
			order = append(order, a)
		}
		a.row.Totals.add(e)
		a.row.Count++
		a.types[e.AccountType] = struct{}{}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return compareOn(order[i].first, order[j].first, dims) < 0
	})

	out := make([]Summary, 0, len(order))
	for _, a := range order {
		row := a.row
		_, assets := a.types[AccountTypeAssets]
		if assets && len(a.types) == 1 {
			row.Balance = row.DebitValue.Sub(row.CreditValue)
			row.BalanceQuantity = row.DebitQuantity.Sub(row.CreditQuantity)
		} else {
			row.Balance = row.CreditValue.Sub(row.DebitValue)
			row.BalanceQuantity = row.CreditQuantity.Sub(row.DebitQuantity)
		}
		out = append(out, row)
	}
	return out
}
