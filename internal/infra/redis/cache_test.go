package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shed3/investment-accountant/internal/infra/redis"
	"github.com/shed3/investment-accountant/internal/pricing"
)

// setupTestCache creates a test Redis cache
func setupTestCache(t *testing.T) (*redis.PriceCache, *goredis.Client) {
	// Use a test Redis database (DB 15 for tests)
	client := goredis.NewClient(&goredis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping test: Redis not available")
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return redis.NewPriceCache(client, nil), client
}

var day0 = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

func TestPriceCache_SetAndGetDays(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	points := []pricing.Point{
		{Symbol: "BTC", Time: day0.Add(23 * time.Hour), Price: decimal.NewFromInt(20000)},
		{Symbol: "btc", Time: day0.Add(48 * time.Hour), Price: decimal.RequireFromString("21000.123456789")},
	}
	require.NoError(t, c.SetDays(ctx, points))

	days := pricing.Days(day0, day0.Add(48*time.Hour))
	hits, misses, err := c.GetDays(ctx, "btc", days)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.True(t, hits[0].Time.Equal(points[0].Time))
	assert.True(t, hits[0].Price.Equal(decimal.NewFromInt(20000)))
	assert.True(t, hits[1].Price.Equal(decimal.RequireFromString("21000.123456789")))
	assert.Equal(t, "BTC", hits[1].Symbol)

	require.Len(t, misses, 1)
	assert.True(t, misses[0].Equal(day0.Add(24*time.Hour)))
}

func TestPriceCache_GetDays_Empty(t *testing.T) {
	c, _ := setupTestCache(t)

	hits, misses, err := c.GetDays(context.Background(), "ETH", nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, misses)
}

func TestPriceCache_TTL(t *testing.T) {
	_, client := setupTestCache(t)
	ctx := context.Background()

	c := redis.NewPriceCacheWithTTL(client, time.Minute, nil)
	require.NoError(t, c.SetDays(ctx, []pricing.Point{{Symbol: "BTC", Time: day0, Price: decimal.NewFromInt(1)}}))

	ttl, err := client.TTL(ctx, "price:BTC:2021-03-01").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestPriceCache_Invalidate(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetDays(ctx, []pricing.Point{
		{Symbol: "BTC", Time: day0, Price: decimal.NewFromInt(20000)},
		{Symbol: "ETH", Time: day0, Price: decimal.NewFromInt(1500)},
	}))

	require.NoError(t, c.Invalidate(ctx, "btc"))

	_, misses, err := c.GetDays(ctx, "BTC", []time.Time{day0})
	require.NoError(t, err)
	assert.Len(t, misses, 1)

	hits, _, err := c.GetDays(ctx, "ETH", []time.Time{day0})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	require.NoError(t, c.Clear(ctx))
	_, misses, err = c.GetDays(ctx, "ETH", []time.Time{day0})
	require.NoError(t, err)
	assert.Len(t, misses, 1)
}

func TestPriceCache_CorruptValueIsMiss(t *testing.T) {
	c, client := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "price:BTC:2021-03-01", "not-json", 0).Err())

	hits, misses, err := c.GetDays(ctx, "BTC", []time.Time{day0})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Len(t, misses, 1)
}
