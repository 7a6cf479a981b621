package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/internal/pricing"
)

// PriceRepository handles price history persistence operations
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new PostgreSQL price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

var _ pricing.Store = (*PriceRepository)(nil)

// RecordPrices upserts every point in a single batch
func (r *PriceRepository) RecordPrices(ctx context.Context, points []pricing.Point) error {
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO price_history (symbol, time, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, time) DO UPDATE SET
			price = EXCLUDED.price
	`

	batch := &pgx.Batch{}
	for _, p := range points {
		if p.Symbol == "" || p.Time.IsZero() || p.Price.IsNegative() {
			return fmt.Errorf("invalid price point %s@%s: %s", p.Symbol, p.Time.Format(time.RFC3339), p.Price)
		}
		batch.Queue(query, strings.ToUpper(p.Symbol), p.Time.UTC(), p.Price.String())
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to record price: %w", err)
		}
	}

	return nil
}

// PricesBetween returns the points of symbol within [from, to] ordered by time
func (r *PriceRepository) PricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]pricing.Point, error) {
	query := `
		SELECT symbol, time, price::text
		FROM price_history
		WHERE symbol = $1 AND time >= $2 AND time <= $3
		ORDER BY time ASC
	`

	rows, err := r.pool.Query(ctx, query, strings.ToUpper(symbol), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	return r.scanPoints(rows)
}

func (r *PriceRepository) scanPoints(rows pgx.Rows) ([]pricing.Point, error) {
	points := make([]pricing.Point, 0)
	for rows.Next() {
		var p pricing.Point
		var priceStr string

		if err := rows.Scan(&p.Symbol, &p.Time, &priceStr); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}

		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price %q: %w", priceStr, err)
		}
		p.Price = price
		p.Time = p.Time.UTC()
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return points, nil
}
