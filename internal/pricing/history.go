package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/pkg/money"
)

// ErrPriceUnavailable is returned when no price is known at or before the
// requested time
var ErrPriceUnavailable = errors.New("price unavailable")

// Point is the USD price of a symbol at a point in time
type Point struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Price  decimal.Decimal `json:"price"`
}

// Day returns the UTC calendar day of the point
func (p Point) Day() time.Time {
	return Day(p.Time)
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Days lists every UTC day from from to to, inclusive
func Days(from, to time.Time) []time.Time {
	start, end := Day(from), Day(to)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// History is an in-memory price series per symbol answering as-of lookups.
// It is safe for concurrent use.
type History struct {
	mu     sync.RWMutex
	series map[string][]Point
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{series: make(map[string][]Point)}
}

// Add records points, replacing any point of the same symbol and time
func (h *History) Add(points ...Point) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range points {
		p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
		p.Time = p.Time.UTC()
		p.Price = money.Price(p.Price)

		s := h.series[p.Symbol]
		i := sort.Search(len(s), func(i int) bool { return !s[i].Time.Before(p.Time) })
		if i < len(s) && s[i].Time.Equal(p.Time) {
			s[i] = p
			continue
		}
		s = append(s, Point{})
		copy(s[i+1:], s[i:])
		s[i] = p
		h.series[p.Symbol] = s
	}
}

// Price returns the latest price of symbol at or before at. The unit of
// account is always worth 1.
func (h *History) Price(at time.Time, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == money.USD {
		return decimal.NewFromInt(1), nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	s := h.series[symbol]
	i := sort.Search(len(s), func(i int) bool { return s[i].Time.After(at) })
	if i == 0 {
		return decimal.Zero, fmt.Errorf("%s at %s: %w", symbol, at.UTC().Format(time.RFC3339), ErrPriceUnavailable)
	}
	return s[i-1].Price, nil
}

// Symbols returns every symbol with at least one point, sorted
func (h *History) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.series))
	for sym := range h.series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of points held for symbol
func (h *History) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.series[strings.ToUpper(symbol)])
}
