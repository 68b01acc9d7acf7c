package rule

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// compare evaluates a leaf. present is false when the field had no value;
// only the emptiness checks can succeed then.
type compare func(actual any, present bool, expected any) bool

var operators = map[Operator]compare{
	Equals: func(a any, ok bool, e any) bool {
		return ok && equal(a, e)
	},
	NotEquals: func(a any, ok bool, e any) bool {
		return ok && !equal(a, e)
	},
	EqualsIgnoreCase: func(a any, ok bool, e any) bool {
		return ok && strings.EqualFold(stringOf(a), stringOf(e))
	},
	Contains: func(a any, ok bool, e any) bool {
		return ok && strings.Contains(strings.ToLower(stringOf(a)), strings.ToLower(stringOf(e)))
	},
	NotContains: func(a any, ok bool, e any) bool {
		return ok && !strings.Contains(strings.ToLower(stringOf(a)), strings.ToLower(stringOf(e)))
	},
	IsEmpty: func(a any, ok bool, _ any) bool {
		return !ok || stringOf(a) == ""
	},
	IsNotEmpty: func(a any, ok bool, _ any) bool {
		return ok && stringOf(a) != ""
	},
	GreaterThan:    numeric(func(c int) bool { return c > 0 }),
	GreaterOrEqual: numeric(func(c int) bool { return c >= 0 }),
	LessThan:       numeric(func(c int) bool { return c < 0 }),
	LessOrEqual:    numeric(func(c int) bool { return c <= 0 }),
	In: func(a any, ok bool, e any) bool {
		return ok && member(a, e)
	},
	NotIn: func(a any, ok bool, e any) bool {
		return ok && !member(a, e)
	},
}

func numeric(accept func(cmp int) bool) compare {
	return func(a any, ok bool, e any) bool {
		if !ok {
			return false
		}
		x, okA := toDecimal(a)
		y, okE := toDecimal(e)
		if !okA || !okE {
			return false
		}
		return accept(x.Cmp(y))
	}
}

func equal(a, e any) bool {
	if x, ok := a.(decimal.Decimal); ok {
		y, ok := toDecimal(e)
		return ok && x.Equal(y)
	}
	return stringOf(a) == stringOf(e)
}

// member accepts an array value or a comma-separated list.
func member(a any, e any) bool {
	var list []any
	switch v := e.(type) {
	case []any:
		list = v
	case []string:
		for _, s := range v {
			list = append(list, s)
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			list = append(list, strings.TrimSpace(s))
		}
	default:
		list = []any{v}
	}
	for _, item := range list {
		if equal(a, item) {
			return true
		}
	}
	return false
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case decimal.Decimal:
		return s.String()
	case json.Number:
		return s.String()
	case float64:
		return decimal.NewFromFloat(s).String()
	default:
		return fmt.Sprint(s)
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
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
	default:
		return decimal.Decimal{}, false
	}
}
