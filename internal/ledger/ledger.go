package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Ledger is an append-only, ordered collection of entries. It is not safe
// for concurrent use; callers serialize writers.
type Ledger struct {
	entries []Entry
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{}
}

// FromEntries creates a ledger holding entries in the given order
func FromEntries(entries []Entry) *Ledger {
	l := New()
	l.Add(entries...)
	return l
}

// Add appends entries. Validation is the caller's responsibility.
func (l *Ledger) Add(entries ...Entry) {
	l.entries = append(l.entries, entries...)
}

// Len returns the number of entries
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of every entry in insertion order
func (l *Ledger) Entries() []Entry {
	return l.Since(0)
}

// Since returns a copy of the entries appended after the first n
func (l *Ledger) Since(n int) []Entry {
	if n < 0 {
		n = 0
	}
	if n >= len(l.entries) {
		return []Entry{}
	}
	out := make([]Entry, len(l.entries)-n)
	copy(out, l.entries[n:])
	return out
}

// Symbols returns the distinct symbols present, sorted
func (l *Ledger) Symbols() []string {
	seen := make(map[string]struct{})
	for _, e := range l.entries {
		seen[e.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Merge returns a new ledger holding the receiver's entries followed by
// each other ledger's entries. No input ledger is modified.
func (l *Ledger) Merge(others ...*Ledger) *Ledger {
	merged := FromEntries(l.entries)
	for _, o := range others {
		if o != nil {
			merged.Add(o.entries...)
		}
	}
	return merged
}

// Totals holds debit and credit sums
type Totals struct {
	DebitQuantity  decimal.Decimal `json:"debit_quantity"`
	CreditQuantity decimal.Decimal `json:"credit_quantity"`
	DebitValue     decimal.Decimal `json:"debit_value"`
	CreditValue    decimal.Decimal `json:"credit_value"`
}

func (t *Totals) add(e Entry) {
	if e.IsDebit() {
		t.DebitQuantity = t.DebitQuantity.Add(e.Quantity)
		t.DebitValue = t.DebitValue.Add(e.Value)
		return
	}
	t.CreditQuantity = t.CreditQuantity.Add(e.Quantity)
	t.CreditValue = t.CreditValue.Add(e.Value)
}

// SumEntries totals debits and credits of entries
func SumEntries(entries []Entry) Totals {
	var t Totals
	for _, e := range entries {
		t.add(e)
	}
	return t
}

// Totals sums debits and credits across the whole ledger
func (l *Ledger) Totals() Totals {
	return SumEntries(l.entries)
}
