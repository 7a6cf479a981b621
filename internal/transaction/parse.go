package transaction

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/shed3/investment-accountant/pkg/money"
)

// Field aliases recognized after key normalization
var (
	typeKeys = []string{"tx_type", "txn_type", "type", "trans_type", "transaction_type"}
	timeKeys = []string{"timestamp", "time", "date", "time_stamp"}
	idKeys   = []string{"id", "tx_id", "txn_id", "transaction_id"}

	currencySuffixes = []string{"currency", "symbol", "asset"}
	quantitySuffixes = []string{"quantity", "qty", "amount"}
	priceSuffixes    = []string{"usd_price", "price"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse detects the type of a raw record with the default registry and
// builds the transaction
func Parse(raw map[string]any) (*Transaction, error) {
	return DefaultRegistry().Parse(raw)
}

// Parse detects the type of a raw record and builds the transaction. Keys
// may use any casing or separator style: "baseUSDPrice", "Base USD Price"
// and "base-usd-price" all read as base_usd_price.
func (r *Registry) Parse(raw map[string]any) (*Transaction, error) {
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[normalizeKey(k)] = v
	}

	id := ""
	if v, ok := lookup(fields, idKeys); ok && v != nil {
		id = strings.TrimSpace(fmt.Sprint(v))
	}

	typeValue, ok := lookup(fields, typeKeys)
	if !ok || typeValue == nil || fmt.Sprint(typeValue) == "" {
		return nil, &UnknownTransactionTypeError{TxID: id, Keys: sortedKeys(fields)}
	}
	typ, ok := r.Detect(fmt.Sprint(typeValue))
	if !ok {
		return nil, &UnknownTransactionTypeError{TxID: id, Value: fmt.Sprint(typeValue)}
	}

	if id == "" {
		return nil, &ParseError{Field: "id", Err: ErrMissingField}
	}

	tsValue, _ := lookup(fields, timeKeys)
	ts, err := parseTime(tsValue)
	if err != nil {
		return nil, &ParseError{TxID: id, Field: "timestamp", Err: err}
	}

	params := Params{ID: id, Type: typ, Timestamp: ts}
	for _, role := range Roles {
		a, err := parseAsset(fields, role)
		if err != nil {
			return nil, &ParseError{TxID: id, Field: string(role), Err: err}
		}
		switch role {
		case RoleBase:
			params.Base = a
		case RoleQuote:
			params.Quote = a
		case RoleFee:
			params.Fee = a
		}
	}

	return r.New(params)
}

func parseAsset(fields map[string]any, role Role) (Asset, error) {
	prefixed := func(suffixes []string) []string {
		keys := make([]string, len(suffixes))
		for i, s := range suffixes {
			keys[i] = string(role) + "_" + s
		}
		return keys
	}

	var symbol string
	if v, ok := lookup(fields, prefixed(currencySuffixes)); ok && v != nil {
		symbol = fmt.Sprint(v)
	}

	qty := decimal.Zero
	if v, ok := lookup(fields, prefixed(quantitySuffixes)); ok {
		d, err := money.Parse(v)
		if err != nil {
			return Asset{}, err
		}
		qty = d
	}

	price := decimal.Zero
	if v, ok := lookup(fields, prefixed(priceSuffixes)); ok {
		d, err := money.Parse(v)
		if err != nil {
			return Asset{}, err
		}
		price = d
	}

	return NewAsset(symbol, qty, price), nil
}

func parseTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, ErrMissingField
	case time.Time:
		return x.UTC(), nil
	case *time.Time:
		if x == nil {
			return time.Time{}, ErrMissingField
		}
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, ErrMissingField
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(n), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized time %q", x.String())
		}
		return fromUnix(n), nil
	case float64:
		return fromUnix(x), nil
	case int:
		return fromUnix(float64(x)), nil
	case int64:
		return fromUnix(float64(x)), nil
	}
	return time.Time{}, fmt.Errorf("unsupported time type %T", v)
}

// fromUnix reads seconds, or milliseconds for values past year 33658
func fromUnix(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec := int64(n)
	return time.Unix(sec, int64((n-float64(sec))*1e9)).UTC()
}

func lookup(fields map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeKey folds a key to snake_case: separators become underscores,
// camelCase words are split and runs of underscores collapse.
func normalizeKey(key string) string {
	runes := []rune(strings.TrimSpace(key))
	var b strings.Builder
	b.Grow(len(runes) + 4)

	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.' || r == '_':
			b.WriteRune('_')
			continue
		case unicode.IsUpper(r) && i > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}

	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}
