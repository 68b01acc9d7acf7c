package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount the terms grant on the given cart lines.
// Amounts are whole VND and never exceed the subtotal.
func Apply(t Terms, items []Item) (Discount, error) {
	subtotal, qty := decimal.Zero, 0
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		qty += it.Quantity
	}

	if t.MinItems > 0 && qty < t.MinItems {
		return Discount{}, ErrMinimumNotMet
	}
	if t.MinOrderAmount.IsPositive() && subtotal.LessThan(t.MinOrderAmount) {
		return Discount{}, ErrMinimumNotMet
	}

	var amount decimal.Decimal
	switch t.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(t.Value).Div(hundred)
		if t.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, t.MaxDiscount)
		}
	case DiscountFixed:
		amount = t.Value
	case DiscountFreeLowest:
		amount = lowestUnitPrice(items)
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", t.DiscountType)
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return Discount{Amount: amount.Round(0), Description: t.Description}, nil
}

func lowestUnitPrice(items []Item) decimal.Decimal {
	var (
		lowest decimal.Decimal
		found  bool
	)
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if !found || it.Price.LessThan(lowest) {
			lowest, found = it.Price, true
		}
	}
	return lowest
}
