package promotion

import "time"

// The ledger protocol is two conditional updates issued in sequence:
// rollover first, same-day increment only when rollover matched nothing.
// Storage backends evaluate each predicate and its mutation atomically.

// CanRollover is the predicate of the rollover attempt: the daily counter
// refers to an earlier day and qty fits under the global cap. A single line
// larger than the daily cap is rejected as well.
func CanRollover(p *Promotion, qty int, dayStart time.Time) bool {
	if p.LastUsedDate != nil && !p.LastUsedDate.Before(dayStart) {
		return false
	}
	if p.MaxQuantity > 0 && p.UsedQuantity+qty > p.MaxQuantity {
		return false
	}
	if p.DailyMaxUses > 0 && qty > p.DailyMaxUses {
		return false
	}
	return true
}

// ApplyRollover resets the daily counter to qty and adds qty to the total.
func ApplyRollover(p *Promotion, qty int, now time.Time) {
	p.UsedQuantity += qty
	p.DailyUsedCount = qty
	p.LastUsedDate = &now
}

// CanIncrementSameDay is the predicate of the same-day attempt: the daily
// counter refers to today and qty fits under both caps.
func CanIncrementSameDay(p *Promotion, qty int, dayStart time.Time) bool {
	if p.LastUsedDate == nil || p.LastUsedDate.Before(dayStart) {
		return false
	}
	if p.MaxQuantity > 0 && p.UsedQuantity+qty > p.MaxQuantity {
		return false
	}
	if p.DailyMaxUses > 0 && p.DailyUsedCount+qty > p.DailyMaxUses {
		return false
	}
	return true
}

// ApplySameDay adds qty to both counters and refreshes the last used date.
func ApplySameDay(p *Promotion, qty int, now time.Time) {
	p.UsedQuantity += qty
	p.DailyUsedCount += qty
	p.LastUsedDate = &now
}
