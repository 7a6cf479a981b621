package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Fixed scales. Quantities and prices carry 18 decimal places, USD values 2.
const (
	QuantityScale int32 = 18
	PriceScale    int32 = 18
	ValueScale    int32 = 2
)

// Quantity rounds d to QuantityScale using banker's rounding.
func Quantity(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(QuantityScale)
}

// Price rounds d to PriceScale using banker's rounding.
func Price(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(PriceScale)
}

// Value rounds d to ValueScale (cents) using banker's rounding.
func Value(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(ValueScale)
}

// Parse converts a loosely typed input value to a decimal.
// Supports: nil (zero), string, json.Number, decimal.Decimal, floats and integers.
// Empty strings parse as zero.
func Parse(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, nil
		}
		return *x, nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(x, ",", ""))
		if s == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", x, err)
		}
		return d, nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", x.String(), err)
		}
		return d, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, fmt.Errorf("invalid decimal %v", x)
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		return Parse(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case uint:
		return decimal.NewFromUint64(uint64(x)), nil
	case uint64:
		return decimal.NewFromUint64(x), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported decimal type %T", v)
	}
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(v any) decimal.Decimal {
	d, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return d
}
