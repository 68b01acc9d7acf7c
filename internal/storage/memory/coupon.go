package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/foodcourt/internal/domain/coupon"
)

var (
	_ coupon.Repository        = (*CouponStore)(nil)
	_ coupon.VoucherRepository = (*CouponStore)(nil)
)

// CouponStore keeps coupon templates and the vouchers issued from them.
type CouponStore struct {
	mu       sync.Mutex
	coupons  map[string]*coupon.Coupon
	vouchers map[string]*coupon.Voucher
}

// NewCouponStore returns a store holding copies of coupons.
func NewCouponStore(coupons ...coupon.Coupon) *CouponStore {
	s := &CouponStore{
		coupons:  make(map[string]*coupon.Coupon, len(coupons)),
		vouchers: make(map[string]*coupon.Voucher),
	}
	for i := range coupons {
		c := coupons[i]
		s.coupons[c.ID] = &c
	}
	return s
}

// FindByCode returns the coupon with code, compared case-insensitively.
func (s *CouponStore) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.coupons {
		if strings.EqualFold(c.Code, code) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrInvalidCoupon
}

// GetByID returns the coupon with id.
func (s *CouponStore) GetByID(_ context.Context, id string) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	cp := *c
	return &cp, nil
}

// IncrementUses adds a use unless the cap is reached.
func (s *CouponStore) IncrementUses(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok {
		return false, nil
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return false, nil
	}
	c.Uses++
	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		c.Uses = max(c.Uses-1, 0)
	})
	return true, nil
}

// FindVoucherByCode returns the voucher with code, compared case-insensitively.
func (s *CouponStore) FindVoucherByCode(_ context.Context, code string) (*coupon.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.vouchers {
		if strings.EqualFold(v.Code, code) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, coupon.ErrVoucherNotFound
}

// GetVoucher returns the voucher with id.
func (s *CouponStore) GetVoucher(_ context.Context, id string) (*coupon.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vouchers[id]
	if !ok {
		return nil, coupon.ErrVoucherNotFound
	}
	cp := *v
	return &cp, nil
}

// CreateVoucher stores a copy of v. Codes are unique.
func (s *CouponStore) CreateVoucher(_ context.Context, v *coupon.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.vouchers {
		if strings.EqualFold(existing.Code, v.Code) {
			return errors.Errorf("voucher code %q already exists", v.Code)
		}
	}
	cp := *v
	s.vouchers[v.ID] = &cp
	return nil
}

// MarkUsed moves an unused voucher to used.
func (s *CouponStore) MarkUsed(ctx context.Context, id, orderID string, at time.Time) (bool, error) {
	ok := s.transition(id, func(v *coupon.Voucher) {
		v.Status = coupon.VoucherUsed
		v.UsedAt = &at
		v.OrderID = orderID
	})
	if ok {
		onRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if v := s.vouchers[id]; v != nil && v.Status == coupon.VoucherUsed && v.OrderID == orderID {
				v.Status = coupon.VoucherUnused
				v.UsedAt = nil
				v.OrderID = ""
			}
		})
	}
	return ok, nil
}

// RevokeVoucher moves an unused voucher to revoked.
func (s *CouponStore) RevokeVoucher(_ context.Context, id string) (bool, error) {
	return s.transition(id, func(v *coupon.Voucher) {
		v.Status = coupon.VoucherRevoked
	}), nil
}

func (s *CouponStore) transition(id string, apply func(*coupon.Voucher)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vouchers[id]
	if !ok || v.Status != coupon.VoucherUnused {
		return false
	}
	apply(v)
	return true
}

// ExpireDue marks unused vouchers past their expiry as expired.
func (s *CouponStore) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, v := range s.vouchers {
		if v.Status == coupon.VoucherUnused && !v.ExpiresAt.IsZero() && v.ExpiresAt.Before(now) {
			v.Status = coupon.VoucherExpired
			n++
		}
	}
	return n, nil
}

// ListHolders returns customers holding a voucher of couponID.
func (s *CouponStore) ListHolders(_ context.Context, couponID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, v := range s.vouchers {
		if v.CouponID == couponID {
			out = append(out, v.CustomerID)
		}
	}
	return out, nil
}

// HasVoucher reports whether customerID holds a voucher of couponID.
func (s *CouponStore) HasVoucher(_ context.Context, couponID, customerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.vouchers {
		if v.CouponID == couponID && v.CustomerID == customerID {
			return true, nil
		}
	}
	return false, nil
}
