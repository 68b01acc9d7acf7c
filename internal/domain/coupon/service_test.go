package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/foodcourt/internal/domain/customer"
	"github.com/xenking/foodcourt/internal/domain/rule"
)

type mockCouponRepo struct {
	coupon       *Coupon
	err          error
	incrementOK  bool
	incrementErr error
	incremented  []string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	if m.coupon == nil && m.err == nil {
		return nil, ErrInvalidCoupon
	}
	return m.coupon, m.err
}

func (m *mockCouponRepo) GetByID(_ context.Context, _ string) (*Coupon, error) {
	return m.coupon, m.err
}

func (m *mockCouponRepo) IncrementUses(_ context.Context, id string) (bool, error) {
	m.incremented = append(m.incremented, id)
	return m.incrementOK, m.incrementErr
}

type mockVoucherRepo struct {
	byCode  map[string]*Voucher
	created []*Voucher
	markOK  bool
	marked  []string
	revoked bool
	expired int64
	expNow  time.Time
}

func (m *mockVoucherRepo) FindVoucherByCode(_ context.Context, code string) (*Voucher, error) {
	if v, ok := m.byCode[code]; ok {
		return v, nil
	}
	return nil, ErrVoucherNotFound
}

func (m *mockVoucherRepo) GetVoucher(_ context.Context, id string) (*Voucher, error) {
	for _, v := range m.byCode {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, ErrVoucherNotFound
}

func (m *mockVoucherRepo) CreateVoucher(_ context.Context, v *Voucher) error {
	m.created = append(m.created, v)
	return nil
}

func (m *mockVoucherRepo) MarkUsed(_ context.Context, id, _ string, _ time.Time) (bool, error) {
	m.marked = append(m.marked, id)
	return m.markOK, nil
}

func (m *mockVoucherRepo) RevokeVoucher(_ context.Context, _ string) (bool, error) {
	return m.revoked, nil
}

func (m *mockVoucherRepo) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	m.expNow = now
	return m.expired, nil
}

func (m *mockVoucherRepo) ListHolders(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (m *mockVoucherRepo) HasVoucher(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

type mockCustomerRepo struct {
	c     *customer.Customer
	calls int
}

func (m *mockCustomerRepo) GetByID(_ context.Context, _ string) (*customer.Customer, error) {
	m.calls++
	if m.c == nil {
		return nil, customer.ErrNotFound
	}
	return m.c, nil
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(c *mockCouponRepo, v *mockVoucherRepo, cust *mockCustomerRepo) *Service {
	if v == nil {
		v = &mockVoucherRepo{}
	}
	if cust == nil {
		cust = &mockCustomerRepo{}
	}
	s := NewService(c, v, cust, rule.NewEvaluator(zap.NewNop()))
	s.now = func() time.Time { return fixedNow }
	return s
}

func cart(amount int64) []Item {
	return []Item{{Price: decimal.NewFromInt(amount), Quantity: 1}}
}

func TestService_RedeemCoupon(t *testing.T) {
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		coupon     *Coupon
		incrOK     bool
		wantAmount int64
		wantErr    error
	}{
		{
			name: "valid code returns discount",
			coupon: &Coupon{
				ID: "c1", Code: "SAVE10", IsActive: true,
				DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10),
			},
			incrOK:     true,
			wantAmount: 10000,
		},
		{
			name:    "unknown code",
			wantErr: ErrInvalidCoupon,
		},
		{
			name:    "inactive coupon",
			coupon:  &Coupon{ID: "c1", Code: "OFF", DiscountType: DiscountFixed, Value: decimal.NewFromInt(1)},
			wantErr: ErrInvalidCoupon,
		},
		{
			name: "expired window",
			coupon: &Coupon{
				ID: "c1", Code: "OLD", IsActive: true, ValidUntil: &past,
				DiscountType: DiscountFixed, Value: decimal.NewFromInt(1),
			},
			wantErr: ErrCouponExpired,
		},
		{
			name: "not yet valid",
			coupon: &Coupon{
				ID: "c1", Code: "SOON", IsActive: true, ValidFrom: &future,
				DiscountType: DiscountFixed, Value: decimal.NewFromInt(1),
			},
			wantErr: ErrCouponExpired,
		},
		{
			name: "usage limit reached before update",
			coupon: &Coupon{
				ID: "c1", Code: "LIMITED", IsActive: true, MaxUses: 10, Uses: 10,
				DiscountType: DiscountFixed, Value: decimal.NewFromInt(1),
			},
			wantErr: ErrCouponUsageLimitReached,
		},
		{
			name: "usage limit lost to a concurrent redeem",
			coupon: &Coupon{
				ID: "c1", Code: "RACE", IsActive: true, MaxUses: 10, Uses: 9,
				DiscountType: DiscountFixed, Value: decimal.NewFromInt(1),
			},
			incrOK:  false,
			wantErr: ErrCouponUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCouponRepo{coupon: tt.coupon, incrementOK: tt.incrOK}
			svc := newTestService(repo, nil, nil)

			got, err := svc.Redeem(context.Background(), Request{Code: "X", CustomerID: "u1", Items: cart(100000)})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, got.Amount.IntPart())
			assert.Equal(t, []string{"c1"}, repo.incremented)
		})
	}
}

func TestService_CheckDoesNotConsume(t *testing.T) {
	repo := &mockCouponRepo{coupon: &Coupon{
		ID: "c1", Code: "SAVE", IsActive: true,
		DiscountType: DiscountFixed, Value: decimal.NewFromInt(5000),
	}}
	svc := newTestService(repo, nil, nil)

	d, err := svc.Check(context.Background(), Request{Code: "SAVE", Items: cart(20000)})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), d.Amount.IntPart())
	assert.Empty(t, repo.incremented)
}

func TestService_IncrementError(t *testing.T) {
	repo := &mockCouponRepo{
		coupon: &Coupon{
			ID: "c1", Code: "FAIL", IsActive: true,
			DiscountType: DiscountFixed, Value: decimal.NewFromInt(5),
		},
		incrementErr: errors.New("db error"),
	}
	svc := newTestService(repo, nil, nil)

	_, err := svc.Redeem(context.Background(), Request{Code: "FAIL", Items: cart(100)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment coupon uses")
}

func TestService_Conditions(t *testing.T) {
	birth := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	adultsOnly := rule.Node{Operator: rule.And, Conditions: []rule.Node{
		{FieldID: rule.CustomerAge, Operator: rule.GreaterOrEqual, Value: 18.0},
	}}
	bigOrders := rule.Node{FieldID: rule.OrderSubtotal, Operator: rule.GreaterThan, Value: 50000.0}

	t.Run("user dependent rule loads profile", func(t *testing.T) {
		custs := &mockCustomerRepo{c: &customer.Customer{ID: "u1", BirthDate: &birth}}
		repo := &mockCouponRepo{coupon: &Coupon{
			ID: "c1", Code: "ADULT", IsActive: true, Conditions: adultsOnly,
			DiscountType: DiscountFixed, Value: decimal.NewFromInt(1000),
		}}
		svc := newTestService(repo, nil, custs)

		_, err := svc.Check(context.Background(), Request{Code: "ADULT", CustomerID: "u1", Items: cart(10000)})
		require.ErrorIs(t, err, ErrConditionsNotMet)
		assert.Equal(t, 1, custs.calls)
	})

	t.Run("anonymous request cannot satisfy user rule", func(t *testing.T) {
		repo := &mockCouponRepo{coupon: &Coupon{
			ID: "c1", Code: "ADULT", IsActive: true, Conditions: adultsOnly,
			DiscountType: DiscountFixed, Value: decimal.NewFromInt(1000),
		}}
		svc := newTestService(repo, nil, nil)

		_, err := svc.Check(context.Background(), Request{Code: "ADULT", Items: cart(10000)})
		require.ErrorIs(t, err, ErrConditionsNotMet)
	})

	t.Run("order shape rule skips profile lookup", func(t *testing.T) {
		custs := &mockCustomerRepo{}
		repo := &mockCouponRepo{coupon: &Coupon{
			ID: "c1", Code: "BIG", IsActive: true, Conditions: bigOrders,
			DiscountType: DiscountFixed, Value: decimal.NewFromInt(1000),
		}}
		svc := newTestService(repo, nil, custs)

		d, err := svc.Check(context.Background(), Request{Code: "BIG", CustomerID: "u1", Items: cart(60000)})
		require.NoError(t, err)
		assert.Equal(t, int64(1000), d.Amount.IntPart())
		assert.Zero(t, custs.calls)
	})
}

func TestService_RedeemVoucher(t *testing.T) {
	terms := Terms{DiscountType: DiscountFixed, Value: decimal.NewFromInt(20000)}
	expires := fixedNow.Add(time.Hour)

	newVoucher := func(status VoucherStatus, exp time.Time) *Voucher {
		return &Voucher{
			ID: "v1", Code: "WELCOME-ABC", CustomerID: "u1",
			Status: status, Terms: terms, ExpiresAt: exp,
		}
	}

	tests := []struct {
		name     string
		voucher  *Voucher
		customer string
		markOK   bool
		wantErr  error
	}{
		{name: "owner redeems", voucher: newVoucher(VoucherUnused, expires), customer: "u1", markOK: true},
		{name: "other customer", voucher: newVoucher(VoucherUnused, expires), customer: "u2", wantErr: ErrInvalidCoupon},
		{name: "already used", voucher: newVoucher(VoucherUsed, expires), customer: "u1", wantErr: ErrVoucherNotUsable},
		{name: "revoked", voucher: newVoucher(VoucherRevoked, expires), customer: "u1", wantErr: ErrVoucherNotUsable},
		{name: "past expiry", voucher: newVoucher(VoucherUnused, fixedNow.Add(-time.Minute)), customer: "u1", wantErr: ErrCouponExpired},
		{name: "lost race", voucher: newVoucher(VoucherUnused, expires), customer: "u1", markOK: false, wantErr: ErrVoucherNotUsable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vouchers := &mockVoucherRepo{byCode: map[string]*Voucher{tt.voucher.Code: tt.voucher}, markOK: tt.markOK}
			coupons := &mockCouponRepo{}
			svc := newTestService(coupons, vouchers, nil)

			d, err := svc.Redeem(context.Background(), Request{
				Code: "WELCOME-ABC", CustomerID: tt.customer, Items: cart(50000),
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(20000), d.Amount.IntPart())
			assert.Equal(t, "v1", d.VoucherID)
			assert.Equal(t, []string{"v1"}, vouchers.marked)
			assert.Empty(t, coupons.incremented)
		})
	}
}

func TestService_IssueFreezesTerms(t *testing.T) {
	c := &Coupon{
		ID: "c1", Code: "welcome", IsActive: true,
		DiscountType: DiscountPercentage, Value: decimal.NewFromInt(15),
	}
	vouchers := &mockVoucherRepo{}
	svc := newTestService(&mockCouponRepo{coupon: c}, vouchers, nil)

	v, err := svc.Issue(context.Background(), "c1", "u1", 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, vouchers.created, 1)
	assert.Equal(t, VoucherUnused, v.Status)
	assert.Equal(t, "u1", v.CustomerID)
	assert.Contains(t, v.Code, "WELCOME-")
	assert.True(t, fixedNow.Add(7*24*time.Hour).Equal(v.ExpiresAt))

	// Editing the coupon afterwards leaves the voucher untouched.
	c.Value = decimal.NewFromInt(90)
	assert.True(t, decimal.NewFromInt(15).Equal(v.Terms.Value))
}

func TestService_Revoke(t *testing.T) {
	v := &Voucher{ID: "v1", Code: "X", Status: VoucherUsed}

	svc := newTestService(&mockCouponRepo{}, &mockVoucherRepo{revoked: true}, nil)
	require.NoError(t, svc.Revoke(context.Background(), "v1"))

	svc = newTestService(&mockCouponRepo{}, &mockVoucherRepo{byCode: map[string]*Voucher{"X": v}}, nil)
	require.ErrorIs(t, svc.Revoke(context.Background(), "v1"), ErrVoucherNotUsable)

	svc = newTestService(&mockCouponRepo{}, &mockVoucherRepo{}, nil)
	require.ErrorIs(t, svc.Revoke(context.Background(), "missing"), ErrVoucherNotFound)
}

func TestService_ExpireDue(t *testing.T) {
	vouchers := &mockVoucherRepo{expired: 3}
	svc := newTestService(&mockCouponRepo{}, vouchers, nil)

	n, err := svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.True(t, fixedNow.Equal(vouchers.expNow))
}
