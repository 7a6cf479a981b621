package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/internal/pricing"
	"github.com/shed3/investment-accountant/pkg/logger"
)

const (
	// DefaultTTL is how long a daily price stays cached
	DefaultTTL = 24 * time.Hour

	// KeyPrefix is the prefix for price cache keys
	KeyPrefix = "price:"

	dayLayout = "2006-01-02"
)

// PriceCache is a Redis-backed cache of the last known price per symbol and
// UTC day.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

var _ pricing.Cache = (*PriceCache)(nil)

// NewPriceCache creates a new price cache
func NewPriceCache(client *redis.Client, log *logger.Logger) *PriceCache {
	return NewPriceCacheWithTTL(client, DefaultTTL, log)
}

// NewPriceCacheWithTTL creates a new price cache with custom TTL
func NewPriceCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *PriceCache {
	if log == nil {
		log = logger.Discard()
	}
	return &PriceCache{
		client: client,
		ttl:    ttl,
		logger: log.WithComponent("price_cache"),
	}
}

// cachedPrice is the JSON value stored under each key
type cachedPrice struct {
	Time  time.Time `json:"time"`
	Price string    `json:"price"` // decimal serialized as string
}

func dayKey(symbol string, day time.Time) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, strings.ToUpper(symbol), pricing.Day(day).Format(dayLayout))
}

// GetDays returns the cached points of symbol for days, and the days that missed
func (c *PriceCache) GetDays(ctx context.Context, symbol string, days []time.Time) ([]pricing.Point, []time.Time, error) {
	if len(days) == 0 {
		return nil, nil, nil
	}
	symbol = strings.ToUpper(symbol)

	// Get all days in a pipeline
	pipe := c.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(days))
	for i, day := range days {
		cmds[i] = pipe.Get(ctx, dayKey(symbol, day))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Error("cache error", "operation", "get_days", "symbol", symbol, "error", err)
		return nil, nil, fmt.Errorf("failed to get cached prices: %w", err)
	}

	var hits []pricing.Point
	var misses []time.Time
	for i, cmd := range cmds {
		val, err := cmd.Result()
		if err != nil {
			misses = append(misses, days[i])
			continue
		}

		var cached cachedPrice
		if err := json.Unmarshal([]byte(val), &cached); err != nil {
			misses = append(misses, days[i])
			continue
		}

		price, err := decimal.NewFromString(cached.Price)
		if err != nil {
			misses = append(misses, days[i])
			continue
		}

		hits = append(hits, pricing.Point{Symbol: symbol, Time: cached.Time.UTC(), Price: price})
	}

	c.logger.Debug("cache lookup", "symbol", symbol, "hits", len(hits), "misses", len(misses))
	return hits, misses, nil
}

// SetDays stores each point under its symbol and day
func (c *PriceCache) SetDays(ctx context.Context, points []pricing.Point) error {
	if len(points) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, p := range points {
		data, err := json.Marshal(cachedPrice{Time: p.Time.UTC(), Price: p.Price.String()})
		if err != nil {
			return fmt.Errorf("failed to marshal price: %w", err)
		}
		pipe.Set(ctx, dayKey(p.Symbol, p.Time), data, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("cache error", "operation", "set_days", "error", err)
		return fmt.Errorf("failed to set cached prices: %w", err)
	}

	return nil
}

// Invalidate removes every cached day of symbol
func (c *PriceCache) Invalidate(ctx context.Context, symbol string) error {
	pattern := fmt.Sprintf("%s%s:*", KeyPrefix, strings.ToUpper(symbol))
	return c.deleteMatching(ctx, pattern)
}

// Clear removes all cached prices
func (c *PriceCache) Clear(ctx context.Context) error {
	return c.deleteMatching(ctx, KeyPrefix+"*")
}

func (c *PriceCache) deleteMatching(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
		if count >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			pipe = c.client.Pipeline()
			count = 0
		}
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	return iter.Err()
}

// Health pings the Redis server
func (c *PriceCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
