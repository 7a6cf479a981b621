package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Series is one group's cumulative daily balance
type Series struct {
	Group    Group             `json:"group"`
	Quantity []decimal.Decimal `json:"quantity"`
	Value    []decimal.Decimal `json:"value"`
}

// Curve is a set of series over a shared daily calendar
type Curve struct {
	Days   []time.Time `json:"days"`
	Series []Series    `json:"series"`
}

// EquityCurve builds cumulative daily balances of accountType (every type
// when empty), one series per group of dims (symbol when no dims are
// given). Each entry contributes its balance signed against its account's
// normal side. Days without entries contribute zero, so every series covers
// the full calendar from the first to the last entry day.
func (l *Ledger) EquityCurve(accountType AccountType, dims ...Dimension) Curve {
	if len(dims) == 0 {
		dims = []Dimension{DimSymbol}
	}

	entries := l.Select(Filter{AccountType: accountType})
	if len(entries) == 0 {
		return Curve{Days: []time.Time{}, Series: []Series{}}
	}

	first, last := entries[0].Timestamp, entries[0].Timestamp
	for _, e := range entries {
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	start := first.UTC().Truncate(day)
	end := last.UTC().Truncate(day)

	days := make([]time.Time, 0, int(end.Sub(start)/day)+1)
	for d := start; !d.After(end); d = d.Add(day) {
		days = append(days, d)
	}

	type acc struct {
		first Entry
		group Group
		qty   []decimal.Decimal
		val   []decimal.Decimal
	}
	byKey := make(map[string]*acc)
	order := make([]*acc, 0)
	for _, e := range entries {
		g := groupOf(e, dims)
		k := g.key()
		a, ok := byKey[k]
		if !ok {
			a = &acc{
				first: e,
				group: g,
				qty:   make([]decimal.Decimal, len(days)),
				val:   make([]decimal.Decimal, len(days)),
			}
			byKey[k] = a
			order = append(order, a)
		}
		i := int(e.Timestamp.UTC().Truncate(day).Sub(start) / day)
		a.qty[i] = a.qty[i].Add(e.SignedQuantity())
		a.val[i] = a.val[i].Add(e.SignedValue())
	}

	sort.SliceStable(order, func(i, j int) bool {
		return compareOn(order[i].first, order[j].first, dims) < 0
	})

	curve := Curve{Days: days, Series: make([]Series, 0, len(order))}
	for _, a := range order {
		for i := 1; i < len(days); i++ {
			a.qty[i] = a.qty[i].Add(a.qty[i-1])
			a.val[i] = a.val[i].Add(a.val[i-1])
		}
		curve.Series = append(curve.Series, Series{Group: a.group, Quantity: a.qty, Value: a.val})
	}
	return curve
}

// RunningRow is an entry with the cumulative balance of its group up to
// and including it
type RunningRow struct {
	Entry           Entry           `json:"entry"`
	Group           Group           `json:"group"`
	BalanceQuantity decimal.Decimal `json:"balance_quantity"`
	Balance         decimal.Decimal `json:"balance"`
}

// RunningTotals orders entries by group and time and carries a running
// balance within each group. Balances are signed against each entry's
// normal side.
func (l *Ledger) RunningTotals(dims ...Dimension) []RunningRow {
	ordered := l.Index(append(append([]Dimension{}, dims...), DimTimestamp)...)

	rows := make([]RunningRow, 0, len(ordered))
	running := make(map[string][2]decimal.Decimal)
	for _, e := range ordered {
		g := groupOf(e, dims)
		k := g.key()
		totals := running[k]
		totals[0] = totals[0].Add(e.SignedQuantity())
		totals[1] = totals[1].Add(e.SignedValue())
		running[k] = totals
		rows = append(rows, RunningRow{Entry: e, Group: g, BalanceQuantity: totals[0], Balance: totals[1]})
	}
	return rows
}
