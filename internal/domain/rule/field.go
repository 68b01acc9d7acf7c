package rule

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/calendar"
)

// FieldID names a value a leaf condition can inspect.
type FieldID string

const (
	CustomerID     FieldID = "customer_id"
	CustomerName   FieldID = "customer_name"
	CustomerEmail  FieldID = "customer_email"
	CustomerPhone  FieldID = "customer_phone"
	CustomerGender FieldID = "customer_gender"
	CustomerAge    FieldID = "customer_age"
	OrderItemCount FieldID = "order_item_count"
	OrderSubtotal  FieldID = "order_subtotal"
	OrderWeekday   FieldID = "order_weekday"
	OrderHour      FieldID = "order_hour"
)

// field resolves a value from the input. Extractors return a string or a
// decimal.Decimal; ok is false when the value is unknown.
type field struct {
	extract       func(in Input) (v any, ok bool)
	userDependent bool
}

var fields = map[FieldID]field{
	CustomerID: {userDependent: true, extract: customerString(func(in Input) string {
		return in.Customer.ID
	})},
	CustomerName: {userDependent: true, extract: customerString(func(in Input) string {
		return in.Customer.Name
	})},
	CustomerEmail: {userDependent: true, extract: customerString(func(in Input) string {
		return in.Customer.Email
	})},
	CustomerPhone: {userDependent: true, extract: customerString(func(in Input) string {
		return in.Customer.Phone
	})},
	CustomerGender: {userDependent: true, extract: customerString(func(in Input) string {
		return in.Customer.Gender
	})},
	CustomerAge: {userDependent: true, extract: func(in Input) (any, bool) {
		if in.Customer == nil {
			return nil, false
		}
		age, ok := in.Customer.Age(in.Now.In(calendar.Location))
		if !ok {
			return nil, false
		}
		return decimal.NewFromInt(int64(age)), true
	}},
	OrderItemCount: {extract: func(in Input) (any, bool) {
		return decimal.NewFromInt(int64(in.Order.ItemCount)), true
	}},
	OrderSubtotal: {extract: func(in Input) (any, bool) {
		return in.Order.Subtotal, true
	}},
	OrderWeekday: {extract: func(in Input) (any, bool) {
		if in.Now.IsZero() {
			return nil, false
		}
		return strings.ToLower(calendar.Weekday(in.Now).String()), true
	}},
	OrderHour: {extract: func(in Input) (any, bool) {
		if in.Now.IsZero() {
			return nil, false
		}
		return decimal.NewFromInt(int64(calendar.MinuteOfDay(in.Now) / 60)), true
	}},
}

func customerString(get func(Input) string) func(Input) (any, bool) {
	return func(in Input) (any, bool) {
		if in.Customer == nil {
			return nil, false
		}
		return get(in), true
	}
}

// RequiresContext reports whether any leaf of the tree inspects customer
// data, so callers know whether to load the profile before evaluating.
func RequiresContext(n *Node) bool {
	if n.IsZero() {
		return false
	}
	if n.IsGroup() {
		for i := range n.Conditions {
			if RequiresContext(&n.Conditions[i]) {
				return true
			}
		}
		return false
	}
	f, ok := fields[n.FieldID]
	return ok && f.userDependent
}
