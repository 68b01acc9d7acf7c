package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates how a promotion reduces the unit price.
type DiscountType string

const (
	// DiscountPercentage takes Value percent off the base price.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount subtracts Value from the base price.
	DiscountFixedAmount DiscountType = "fixed_amount"
)

var (
	// ErrNotFound is returned when a promotion id does not resolve.
	ErrNotFound = errors.New("promotion not found")
	// ErrInvariantViolation marks a promotion whose stored counters exceed
	// their caps. It is a data-integrity bug, not a runtime condition.
	ErrInvariantViolation = errors.New("promotion invariant violation")
)

// Promotion is a time-windowed discount bound to exactly one product or
// one combo. A cap of 0 means unlimited.
type Promotion struct {
	ID        string
	Name      string
	ProductID string
	ComboID   string

	DiscountType  DiscountType
	DiscountValue decimal.Decimal

	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
	Priority  int

	MaxQuantity            int
	UsedQuantity           int
	DailyMaxUses           int
	DailyUsedCount         int
	LastUsedDate           *time.Time
	MaxQuantityPerCustomer int
}

// Target returns the item reference the promotion is bound to.
func (p *Promotion) Target() (productID, comboID string) {
	if p.ProductID != "" {
		return p.ProductID, ""
	}
	return "", p.ComboID
}

// ActiveAt reports whether the promotion's activity window contains now.
func (p *Promotion) ActiveAt(now time.Time) bool {
	return p.IsActive && !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// Repository provides read access to promotions.
type Repository interface {
	// ListActive returns active promotions whose window contains now,
	// ordered by priority, highest first.
	ListActive(ctx context.Context, now time.Time) ([]Promotion, error)
	GetByID(ctx context.Context, id string) (*Promotion, error)
}

// Ledger reserves promotion capacity. TryConsume returns false when the
// global or daily cap would be exceeded; that is a normal result and must
// not be retried.
type Ledger interface {
	TryConsume(ctx context.Context, id string, qty int) (bool, error)
}

// UsageCounter reports how many units of each promotion a customer has
// bought across non-canceled orders. Promotions without purchases map to 0.
type UsageCounter interface {
	GetUsedQuantity(ctx context.Context, customerID string, ids []string) (map[string]int, error)
}

// CheckInvariants reports ErrInvariantViolation when stored counters exceed
// their caps for the business day starting at dayStart.
func CheckInvariants(p *Promotion, dayStart time.Time) error {
	if p.MaxQuantity > 0 && p.UsedQuantity > p.MaxQuantity {
		return fmt.Errorf("%w: promotion %s used %d of %d",
			ErrInvariantViolation, p.ID, p.UsedQuantity, p.MaxQuantity)
	}
	if p.DailyMaxUses > 0 {
		if daily := EffectiveDailyCount(p, dayStart); daily > p.DailyMaxUses {
			return fmt.Errorf("%w: promotion %s daily used %d of %d",
				ErrInvariantViolation, p.ID, daily, p.DailyMaxUses)
		}
	}
	return nil
}
