package pricing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shed3/investment-accountant/pkg/logger"
	"github.com/shed3/investment-accountant/pkg/money"
)

// Store is the durable price history
type Store interface {
	PricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]Point, error)
	RecordPrices(ctx context.Context, points []Point) error
}

// Cache holds the last point of each symbol and UTC day
type Cache interface {
	// GetDays returns the cached points of days and the days that missed
	GetDays(ctx context.Context, symbol string, days []time.Time) ([]Point, []time.Time, error)
	SetDays(ctx context.Context, points []Point) error
	Invalidate(ctx context.Context, symbol string) error
}

// Loader fills a History from the store, reading through the cache
type Loader struct {
	store  Store
	cache  Cache
	logger *logger.Logger
}

// NewLoader creates a loader. cache may be nil.
func NewLoader(store Store, cache Cache, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Discard()
	}
	return &Loader{
		store:  store,
		cache:  cache,
		logger: log.WithComponent("price_loader"),
	}
}

// Load adds the prices of symbols between from and to to h
// Fallback order: Cache → Store, back-filling the cache with what the store returned
func (l *Loader) Load(ctx context.Context, h *History, symbols []string, from, to time.Time) error {
	days := Days(from, to)
	if len(days) == 0 {
		return nil
	}

	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" || symbol == money.USD {
			continue
		}

		missing := days
		if l.cache != nil {
			hits, misses, err := l.cache.GetDays(ctx, symbol, days)
			if err != nil {
				l.logger.Warn("price cache unavailable, reading store", "symbol", symbol, "error", err)
			} else {
				h.Add(hits...)
				missing = misses
			}
		}
		if len(missing) == 0 {
			continue
		}

		sort.Slice(missing, func(i, j int) bool { return missing[i].Before(missing[j]) })
		first, last := missing[0], missing[len(missing)-1].AddDate(0, 0, 1).Add(-time.Nanosecond)
		points, err := l.store.PricesBetween(ctx, symbol, first, last)
		if err != nil {
			return fmt.Errorf("failed to load %s prices: %w", symbol, err)
		}
		h.Add(points...)

		l.logger.Debug("prices loaded", "symbol", symbol, "days", len(days), "misses", len(missing), "points", len(points))

		if l.cache != nil && len(points) > 0 {
			if err := l.cache.SetDays(ctx, lastPerDay(points, missing)); err != nil {
				l.logger.Warn("failed to back-fill price cache", "symbol", symbol, "error", err)
			}
		}
	}
	return nil
}

// Record stores points, adds them to h and drops the cached days of every
// symbol they touch
func (l *Loader) Record(ctx context.Context, h *History, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := l.store.RecordPrices(ctx, points); err != nil {
		return fmt.Errorf("failed to record prices: %w", err)
	}
	if h != nil {
		h.Add(points...)
	}

	if l.cache == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, p := range points {
		symbol := strings.ToUpper(p.Symbol)
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		if err := l.cache.Invalidate(ctx, symbol); err != nil {
			l.logger.Warn("failed to invalidate price cache", "symbol", symbol, "error", err)
		}
	}
	return nil
}

// lastPerDay keeps the latest point of each of days
func lastPerDay(points []Point, days []time.Time) []Point {
	wanted := make(map[time.Time]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}

	byDay := make(map[time.Time]Point)
	for _, p := range points {
		d := p.Day()
		if !wanted[d] {
			continue
		}
		if cur, ok := byDay[d]; !ok || p.Time.After(cur.Time) {
			byDay[d] = p
		}
	}

	out := make([]Point, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
