package money

import "github.com/shopspring/decimal"

// USD is the unit of account.
const USD = "USD"

// CalcUSDValue computes qty * price rounded to cents.
func CalcUSDValue(qty, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() || qty.IsZero() {
		return decimal.Zero
	}
	return Value(qty.Mul(price))
}

// Allocate splits total across weights proportionally, rounding each share to
// cents. The rounding remainder goes to the last share so the parts always sum
// to total exactly.
func Allocate(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return shares
	}

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}

	allocated := decimal.Zero
	for i, w := range weights {
		if i == len(weights)-1 {
			shares[i] = total.Sub(allocated)
			break
		}
		if sum.IsZero() {
			shares[i] = decimal.Zero
			continue
		}
		shares[i] = Value(total.Mul(w).Div(sum))
		allocated = allocated.Add(shares[i])
	}
	return shares
}
