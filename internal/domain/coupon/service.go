package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/customer"
	"github.com/xenking/foodcourt/internal/domain/rule"
)

// Redeemer applies a coupon or voucher code to an order.
type Redeemer interface {
	Redeem(ctx context.Context, req Request) (*Discount, error)
}

// Request describes the order a code is applied to.
type Request struct {
	Code       string
	CustomerID string
	OrderID    string
	Items      []Item
}

func (r Request) order() rule.Order {
	o := rule.Order{}
	for _, it := range r.Items {
		o.ItemCount += it.Quantity
		o.Subtotal = o.Subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return o
}

// Service validates and redeems coupons and vouchers, and manages the
// voucher lifecycle.
type Service struct {
	coupons   Repository
	vouchers  VoucherRepository
	customers customer.Repository
	rules     *rule.Evaluator
	now       func() time.Time
}

var _ Redeemer = (*Service)(nil)

// NewService creates a coupon Service.
func NewService(
	coupons Repository,
	vouchers VoucherRepository,
	customers customer.Repository,
	rules *rule.Evaluator,
) *Service {
	return &Service{
		coupons:   coupons,
		vouchers:  vouchers,
		customers: customers,
		rules:     rules,
		now:       time.Now,
	}
}

// Check computes the discount a code would grant without consuming it.
func (s *Service) Check(ctx context.Context, req Request) (*Discount, error) {
	return s.resolve(ctx, req, false)
}

// Redeem computes the discount and marks the code as used: vouchers move to
// used, coupons get one more use. Both updates are conditional, so a code
// raced by concurrent orders is redeemed at most as often as allowed.
func (s *Service) Redeem(ctx context.Context, req Request) (*Discount, error) {
	return s.resolve(ctx, req, true)
}

func (s *Service) resolve(ctx context.Context, req Request, consume bool) (*Discount, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, ErrInvalidCoupon
	}
	now := s.now()

	v, err := s.vouchers.FindVoucherByCode(ctx, code)
	switch {
	case err == nil:
		return s.resolveVoucher(ctx, v, req, now, consume)
	case !errors.Is(err, ErrVoucherNotFound):
		return nil, errors.Wrap(err, "lookup voucher")
	}

	c, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	return s.resolveCoupon(ctx, c, req, now, consume)
}

func (s *Service) resolveVoucher(ctx context.Context, v *Voucher, req Request, now time.Time, consume bool) (*Discount, error) {
	if v.CustomerID != req.CustomerID {
		// Another customer's voucher is indistinguishable from a bad code.
		return nil, ErrInvalidCoupon
	}
	if v.Status != VoucherUnused {
		return nil, ErrVoucherNotUsable
	}
	if !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt) {
		return nil, ErrCouponExpired
	}

	d, err := Apply(v.Terms, req.Items)
	if err != nil {
		return nil, err
	}
	d.Code = v.Code
	d.VoucherID = v.ID

	if consume {
		ok, err := s.vouchers.MarkUsed(ctx, v.ID, req.OrderID, now)
		if err != nil {
			return nil, errors.Wrap(err, "mark voucher used")
		}
		if !ok {
			return nil, ErrVoucherNotUsable
		}
	}
	return &d, nil
}

func (s *Service) resolveCoupon(ctx context.Context, c *Coupon, req Request, now time.Time, consume bool) (*Discount, error) {
	if !c.IsActive {
		return nil, ErrInvalidCoupon
	}
	if !c.ValidAt(now) {
		return nil, ErrCouponExpired
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return nil, ErrCouponUsageLimitReached
	}

	if !c.Conditions.IsZero() {
		in := rule.Input{Order: req.order(), Now: now}
		if rule.RequiresContext(&c.Conditions) {
			if req.CustomerID == "" {
				return nil, ErrConditionsNotMet
			}
			cust, err := s.customers.GetByID(ctx, req.CustomerID)
			if err != nil {
				return nil, errors.Wrap(err, "load customer")
			}
			in.Customer = cust
		}
		if !s.rules.Evaluate(ctx, &c.Conditions, in) {
			return nil, ErrConditionsNotMet
		}
	}

	d, err := Apply(c.Terms(), req.Items)
	if err != nil {
		return nil, err
	}
	d.Code = c.Code

	if consume {
		ok, err := s.coupons.IncrementUses(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "increment coupon uses")
		}
		if !ok {
			return nil, ErrCouponUsageLimitReached
		}
	}
	return &d, nil
}

// Issue creates an unused voucher for a customer with the coupon's current
// terms frozen into it. A zero validFor keeps the coupon's own end date.
func (s *Service) Issue(ctx context.Context, couponID, customerID string, validFor time.Duration) (*Voucher, error) {
	c, err := s.coupons.GetByID(ctx, couponID)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	if !c.IsActive {
		return nil, ErrInvalidCoupon
	}

	now := s.now()
	v := &Voucher{
		ID:         uuid.NewString(),
		Code:       NewVoucherCode(c.Code),
		CouponID:   c.ID,
		CustomerID: customerID,
		Status:     VoucherUnused,
		Terms:      c.Terms(),
		IssuedAt:   now,
	}
	switch {
	case validFor > 0:
		v.ExpiresAt = now.Add(validFor)
	case c.ValidUntil != nil:
		v.ExpiresAt = *c.ValidUntil
	}

	if err := s.vouchers.CreateVoucher(ctx, v); err != nil {
		return nil, errors.Wrap(err, "create voucher")
	}
	return v, nil
}

// Revoke withdraws an unused voucher.
func (s *Service) Revoke(ctx context.Context, voucherID string) error {
	ok, err := s.vouchers.RevokeVoucher(ctx, voucherID)
	if err != nil {
		return errors.Wrap(err, "revoke voucher")
	}
	if ok {
		return nil
	}
	if _, err := s.vouchers.GetVoucher(ctx, voucherID); err != nil {
		return err
	}
	return ErrVoucherNotUsable
}

// ExpireDue moves every unused voucher past its expiry to expired and
// returns how many changed.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	n, err := s.vouchers.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "expire vouchers")
	}
	return n, nil
}

// NewVoucherCode derives a customer-facing code from the coupon code and a
// random suffix.
func NewVoucherCode(prefix string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	if prefix == "" {
		return suffix
	}
	return strings.ToUpper(prefix) + "-" + suffix
}
