package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/rule"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the subtotal, optionally
	// capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed amount capped at the subtotal.
	DiscountFixed DiscountType = "fixed_amount"
	// DiscountFreeLowest removes the cost of the cheapest unit in the cart.
	DiscountFreeLowest DiscountType = "free_lowest"
)

var (
	// ErrInvalidCoupon is returned when a code matches neither an active
	// coupon nor a voucher of the customer.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned outside the coupon's or voucher's validity window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinimumNotMet is returned when the cart is below the minimum amount or item count.
	ErrMinimumNotMet = errors.New("order does not meet coupon minimum")
	// ErrConditionsNotMet is returned when the coupon's rule tree rejects the order.
	ErrConditionsNotMet = errors.New("coupon conditions not met")
	// ErrVoucherNotFound is returned for unknown voucher ids.
	ErrVoucherNotFound = errors.New("voucher not found")
	// ErrVoucherNotUsable is returned when a voucher is no longer unused.
	ErrVoucherNotUsable = errors.New("voucher is not usable")
)

// Coupon is a reusable discount template. Changing it never affects
// vouchers already issued from it.
type Coupon struct {
	ID             string
	Code           string
	Description    string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MaxDiscount    decimal.Decimal
	MinOrderAmount decimal.Decimal
	MinItems       int
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	MaxUses        int
	Uses           int
	IsActive       bool
	Conditions     rule.Node
}

// Terms freezes the pricing part of a coupon. Vouchers store a copy taken
// at issue time.
type Terms struct {
	DiscountType   DiscountType    `json:"discountType"`
	Value          decimal.Decimal `json:"value"`
	MaxDiscount    decimal.Decimal `json:"maxDiscount"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	MinItems       int             `json:"minItems"`
	Description    string          `json:"description"`
}

// Terms returns a snapshot of the coupon's current pricing terms.
func (c *Coupon) Terms() Terms {
	return Terms{
		DiscountType:   c.DiscountType,
		Value:          c.Value,
		MaxDiscount:    c.MaxDiscount,
		MinOrderAmount: c.MinOrderAmount,
		MinItems:       c.MinItems,
		Description:    c.Description,
	}
}

// ValidAt reports whether now falls inside the coupon's validity window.
func (c *Coupon) ValidAt(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}

// VoucherStatus is the lifecycle state of an issued voucher.
type VoucherStatus string

const (
	VoucherUnused  VoucherStatus = "unused"
	VoucherUsed    VoucherStatus = "used"
	VoucherExpired VoucherStatus = "expired"
	VoucherRevoked VoucherStatus = "revoked"
)

// Voucher is a coupon instance bound to one customer. Transitions only go
// from unused to used, expired or revoked.
type Voucher struct {
	ID         string
	Code       string
	CouponID   string
	CustomerID string
	Status     VoucherStatus
	Terms      Terms
	IssuedAt   time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
	OrderID    string
}

// Discount holds the computed discount and where it came from.
type Discount struct {
	Amount      decimal.Decimal
	Description string
	Code        string
	VoucherID   string
}

// Item represents a cart line for discount calculation purposes.
type Item struct {
	Price    decimal.Decimal
	Quantity int
}

// Repository provides lookup and usage accounting of coupons.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	GetByID(ctx context.Context, id string) (*Coupon, error)
	// IncrementUses adds one use unless the coupon is at its cap; it
	// reports false in that case.
	IncrementUses(ctx context.Context, id string) (bool, error)
}

// VoucherRepository persists issued vouchers. The Mark/Revoke/Expire
// methods are conditional on the voucher still being unused.
type VoucherRepository interface {
	FindVoucherByCode(ctx context.Context, code string) (*Voucher, error)
	GetVoucher(ctx context.Context, id string) (*Voucher, error)
	CreateVoucher(ctx context.Context, v *Voucher) error
	MarkUsed(ctx context.Context, id, orderID string, at time.Time) (bool, error)
	RevokeVoucher(ctx context.Context, id string) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	ListHolders(ctx context.Context, couponID string) ([]string, error)
	HasVoucher(ctx context.Context, couponID, customerID string) (bool, error)
}
