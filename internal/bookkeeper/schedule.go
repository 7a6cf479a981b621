package bookkeeper

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is the length unit of an accounting period
type Frequency string

const (
	Hourly  Frequency = "H"
	Daily   Frequency = "D"
	Weekly  Frequency = "W"
	Monthly Frequency = "M"
)

// ParseFrequency parses H, D, W or M in any case
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case Hourly, Daily, Weekly, Monthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown period frequency %q", s)
}

// Schedule is the cadence of period boundaries
type Schedule struct {
	Freq     Frequency
	Interval int
}

// DefaultSchedule closes a period every day
var DefaultSchedule = Schedule{Freq: Daily, Interval: 1}

// Start returns the first boundary for a book whose first transaction
// happened at first: midnight UTC of that day
func (s Schedule) Start(first time.Time) time.Time {
	first = first.UTC()
	return time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
}

// Next returns the boundary following b
func (s Schedule) Next(b time.Time) time.Time {
	n := s.Interval
	if n < 1 {
		n = 1
	}
	switch s.Freq {
	case Hourly:
		return b.Add(time.Duration(n) * time.Hour)
	case Weekly:
		return b.AddDate(0, 0, 7*n)
	case Monthly:
		return b.AddDate(0, n, 0)
	default:
		return b.AddDate(0, 0, n)
	}
}

func (s Schedule) String() string {
	return fmt.Sprintf("%d%s", s.Interval, s.Freq)
}
