package changes

import (
	"fmt"
	"math"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"whatif-planner/internal/model"
)

const SourceFlowKey = "sourceFlowId"

var amountKeys = []string{"amount", "monthlyAmount", "monthlyPayment", "payment", "annualAmount"}

var amountHints = []string{"amount", "payment", "principal", "value", "costs", "price", "rate", "percentage", "months", "term"}

// IsAmountLike reports whether a parameter key holds a number.
func IsAmountLike(key string) bool {
	k := strings.ToLower(key)
	for _, h := range amountHints {
		if strings.Contains(k, h) {
			return true
		}
	}
	return false
}

// ParseParam converts raw user input for key into the value stored in a
// ChangeValue: a float64 for amount-like keys, the trimmed string otherwise.
// Blank numeric input is stored as zero.
func ParseParam(key, raw string) (any, error) {
	if !IsAmountLike(key) {
		return strings.TrimSpace(raw), nil
	}
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0.0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return f, nil
}

// Number reads a numeric parameter in any of the shapes it can arrive in.
func Number(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case decimal.Decimal:
		return n, true
	}
	return decimal.Zero, false
}

func amountOf(in *Input) (decimal.Decimal, string, bool) {
	for _, k := range amountKeys {
		if v, ok := in.Value.Params[k]; ok {
			d, ok := Number(v)
			if k == "annualAmount" && ok {
				return d, "annual", true
			}
			return d, frequencyOf(in), ok
		}
	}
	return decimal.Zero, "", false
}

func frequencyOf(in *Input) string {
	if f, ok := in.Value.Params["frequency"].(string); ok && strings.TrimSpace(f) != "" {
		return strings.ToLower(strings.TrimSpace(f))
	}
	return "monthly"
}

func stringParam(in *Input, key string) string {
	s, _ := in.Value.Params[key].(string)
	return strings.TrimSpace(s)
}

func lineName(in *Input) string {
	if n := stringParam(in, "name"); n != "" {
		return n
	}
	return in.Change.Name
}

var monthlyFactors = map[string]decimal.Decimal{
	"weekly":      decimal.NewFromInt(52).Div(decimal.NewFromInt(12)),
	"biweekly":    decimal.NewFromInt(26).Div(decimal.NewFromInt(12)),
	"semimonthly": decimal.NewFromInt(2),
	"monthly":     decimal.NewFromInt(1),
	"quarterly":   decimal.NewFromInt(1).Div(decimal.NewFromInt(3)),
	"annual":      decimal.NewFromInt(1).Div(decimal.NewFromInt(12)),
	"annually":    decimal.NewFromInt(1).Div(decimal.NewFromInt(12)),
	"yearly":      decimal.NewFromInt(1).Div(decimal.NewFromInt(12)),
	"one_time":    decimal.Zero,
	"once":        decimal.Zero,
}

// Monthly normalizes amount paid at frequency to a monthly figure.
func Monthly(amount decimal.Decimal, frequency string) (decimal.Decimal, bool) {
	f, ok := monthlyFactors[frequency]
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(f).Round(2), true
}

func critical(code, field, msg string) model.Message {
	return model.Message{Level: model.LevelCritical, Code: code, Field: field, Message: msg}
}

func warning(code, field, msg string) model.Message {
	return model.Message{Level: model.LevelWarning, Code: code, Field: field, Message: msg}
}
