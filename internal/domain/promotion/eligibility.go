package promotion

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/calendar"
)

// IsGloballyEligible reports whether anyone may still consume p at now.
// It never mutates p.
func IsGloballyEligible(p *Promotion, now time.Time) bool {
	return EligibleOnDay(p, calendar.StartOfDay(now))
}

// EligibleOnDay is IsGloballyEligible with a precomputed start of day, so a
// caller checking many promotions uses one consistent day boundary.
func EligibleOnDay(p *Promotion, dayStart time.Time) bool {
	if p.MaxQuantity > 0 && p.UsedQuantity >= p.MaxQuantity {
		return false
	}
	if p.DailyMaxUses > 0 && EffectiveDailyCount(p, dayStart) >= p.DailyMaxUses {
		return false
	}
	return true
}

// EffectiveDailyCount returns the stored daily counter when it refers to the
// day starting at dayStart and 0 otherwise (lazy rollover).
func EffectiveDailyCount(p *Promotion, dayStart time.Time) int {
	if p.LastUsedDate != nil && !p.LastUsedDate.Before(dayStart) {
		return p.DailyUsedCount
	}
	return 0
}

// IsCustomerLimitReached reports whether a customer who already bought used
// units is blocked by the per-customer cap.
func IsCustomerLimitReached(p *Promotion, used int) bool {
	return p.MaxQuantityPerCustomer > 0 && used >= p.MaxQuantityPerCustomer
}

// CustomerCanTake reports whether qty more units fit under the per-customer
// cap. Checkout uses it so a single line cannot overshoot the cap.
func CustomerCanTake(p *Promotion, used, qty int) bool {
	if p.MaxQuantityPerCustomer == 0 {
		return true
	}
	return used+qty <= p.MaxQuantityPerCustomer
}

// ApplyDiscount returns the discounted unit price in whole VND, never below zero.
func ApplyDiscount(p *Promotion, base decimal.Decimal) decimal.Decimal {
	var price decimal.Decimal
	switch p.DiscountType {
	case DiscountPercentage:
		off := base.Mul(p.DiscountValue).Div(decimal.NewFromInt(100))
		price = base.Sub(off)
	case DiscountFixedAmount:
		price = base.Sub(p.DiscountValue)
	default:
		price = base
	}
	if price.IsNegative() {
		return decimal.Zero
	}
	return price.Round(0)
}
