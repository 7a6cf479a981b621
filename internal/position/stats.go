package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stats summarizes the prices seen on one side of a position
type Stats struct {
	Count   int             `json:"count"`
	Avg     decimal.Decimal `json:"avg"`
	Highest decimal.Decimal `json:"highest"`
	Lowest  decimal.Decimal `json:"lowest"`
	First   decimal.Decimal `json:"first"`
	Last    decimal.Decimal `json:"last"`
	FirstAt time.Time       `json:"first_at"`
	LastAt  time.Time       `json:"last_at"`

	total decimal.Decimal
}

func (s *Stats) observe(price decimal.Decimal, at time.Time) {
	if s.Count == 0 {
		s.Highest, s.Lowest = price, price
		s.First, s.FirstAt = price, at
	}
	s.Count++
	s.total = s.total.Add(price)
	s.Avg = s.total.Div(decimal.NewFromInt(int64(s.Count)))
	if price.GreaterThan(s.Highest) {
		s.Highest = price
	}
	if price.LessThan(s.Lowest) {
		s.Lowest = price
	}
	s.Last, s.LastAt = price, at
}

// SideStats holds open and close statistics
type SideStats struct {
	Open  Stats `json:"open"`
	Close Stats `json:"close"`
}
