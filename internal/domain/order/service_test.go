package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/foodcourt/internal/domain/calendar"
	"github.com/xenking/foodcourt/internal/domain/coupon"
	"github.com/xenking/foodcourt/internal/domain/product"
	"github.com/xenking/foodcourt/internal/domain/promotion"
	"github.com/xenking/foodcourt/internal/domain/shipping"
)

// --- Mock implementations ---

type mockCatalog struct {
	products []product.Product
	combos   []product.Combo
	err      error
}

func (m *mockCatalog) ListActive(context.Context) ([]product.Product, error) {
	return m.products, m.err
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, p := range m.products {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (m *mockCatalog) ListActiveCombos(context.Context) ([]product.Combo, error) {
	return m.combos, nil
}

func (m *mockCatalog) GetCombosByIDs(_ context.Context, ids []string) ([]product.Combo, error) {
	var out []product.Combo
	for _, c := range m.combos {
		for _, id := range ids {
			if c.ID == id {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

// mockPromotions serves promotions and acts as the ledger, applying the
// same two conditional updates a store would, under one lock.
type mockPromotions struct {
	mu       sync.Mutex
	promos   []promotion.Promotion
	now      func() time.Time
	consumed map[string]int
}

func (m *mockPromotions) ListActive(context.Context, time.Time) ([]promotion.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]promotion.Promotion(nil), m.promos...), nil
}

func (m *mockPromotions) GetByID(_ context.Context, id string) (*promotion.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.promos {
		if m.promos[i].ID == id {
			p := m.promos[i]
			return &p, nil
		}
	}
	return nil, promotion.ErrNotFound
}

func (m *mockPromotions) TryConsume(_ context.Context, id string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	dayStart := calendar.StartOfDay(now)
	for i := range m.promos {
		p := &m.promos[i]
		if p.ID != id {
			continue
		}
		switch {
		case promotion.CanRollover(p, qty, dayStart):
			promotion.ApplyRollover(p, qty, now)
		case promotion.CanIncrementSameDay(p, qty, dayStart):
			promotion.ApplySameDay(p, qty, now)
		default:
			return false, nil
		}
		if m.consumed == nil {
			m.consumed = map[string]int{}
		}
		m.consumed[id] += qty
		return true, nil
	}
	return false, nil
}

type mockUsage struct {
	used  map[string]int
	calls int
}

func (m *mockUsage) GetUsedQuantity(_ context.Context, _ string, ids []string) (map[string]int, error) {
	m.calls++
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = m.used[id]
	}
	return out, nil
}

type mockCoupons struct {
	discount *coupon.Discount
	err      error
	req      coupon.Request
}

func (m *mockCoupons) Redeem(_ context.Context, req coupon.Request) (*coupon.Discount, error) {
	m.req = req
	return m.discount, m.err
}

type mockOrderRepo struct {
	orders map[string]*Order
	err    error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	if m.orders == nil {
		m.orders = map[string]*Order{}
	}
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from []Status, to Status) (bool, error) {
	o, ok := m.orders[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if o.Status == s {
			o.Status = to
			return true, nil
		}
	}
	return false, nil
}

type mockTx struct{ calls int }

func (m *mockTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockDistance struct {
	km  decimal.Decimal
	err error
}

func (m mockDistance) DistanceKm(context.Context, shipping.Point, shipping.Point) (decimal.Decimal, error) {
	return m.km, m.err
}

// --- Helpers ---

// Tuesday 14:00 in the store zone: LOW shipping bucket.
var testNow = time.Date(2025, 3, 4, 14, 0, 0, 0, calendar.Location)

type fixture struct {
	catalog *mockCatalog
	promos  *mockPromotions
	usage   *mockUsage
	coupons *mockCoupons
	orders  *mockOrderRepo
	tx      *mockTx
	svc     *Service
}

func newFixture(promos ...promotion.Promotion) *fixture {
	f := &fixture{
		catalog: &mockCatalog{
			products: []product.Product{
				{
					ID: "pho", Name: "Pho bo", Price: decimal.NewFromInt(45000), IsActive: true,
					Options: []product.Option{{ID: "egg", Name: "Egg", Price: decimal.NewFromInt(5000)}},
				},
				{ID: "tea", Name: "Iced tea", Price: decimal.NewFromInt(10000), IsActive: true},
				{ID: "old", Name: "Retired", Price: decimal.NewFromInt(1000), IsActive: false},
			},
			combos: []product.Combo{
				{ID: "lunch", Name: "Lunch set", Price: decimal.NewFromInt(60000), IsActive: true},
			},
		},
		promos:  &mockPromotions{promos: promos, now: func() time.Time { return testNow }},
		usage:   &mockUsage{used: map[string]int{}},
		coupons: &mockCoupons{},
		orders:  &mockOrderRepo{},
		tx:      &mockTx{},
	}
	f.svc = NewService(Deps{
		Products:   f.catalog,
		Combos:     f.catalog,
		Promotions: f.promos,
		Ledger:     f.promos,
		Usage:      f.usage,
		Coupons:    f.coupons,
		Orders:     f.orders,
		Tx:         f.tx,
		Distance:   mockDistance{km: decimal.NewFromInt(2)},
	}, WithClock(func() time.Time { return testNow }))
	return f
}

func flashSale(id, productID string) promotion.Promotion {
	return promotion.Promotion{
		ID:            id,
		ProductID:     productID,
		DiscountType:  promotion.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
		IsActive:      true,
		StartDate:     testNow.Add(-time.Hour),
		EndDate:       testNow.Add(time.Hour),
	}
}

func place(t *testing.T, f *fixture, req PlaceOrderRequest) *Order {
	t.Helper()
	if req.CustomerID == "" {
		req.CustomerID = "cust-1"
	}
	o, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	return o
}

// --- Tests ---

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderRequest{Items: []LineRequest{{ProductID: "pho", Quantity: 1}}})
	require.ErrorIs(t, err, ErrCustomerRequired)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerID: "c"})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{Quantity: 1}}})
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{
		{ProductID: "pho", ComboID: "lunch", Quantity: 1},
	}})
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{ProductID: "pho", Quantity: 0}}})
	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "pho", iqErr.ItemID)
	assert.Zero(t, f.tx.calls)
}

func TestPlaceOrder_NotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{ProductID: "missing", Quantity: 1}}})
	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "missing", pnf.ProductID)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{ProductID: "old", Quantity: 1}}})
	require.ErrorAs(t, err, &pnf)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{{ComboID: "dinner", Quantity: 1}}})
	var cnf *ComboNotFoundError
	require.ErrorAs(t, err, &cnf)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderRequest{CustomerID: "c", Items: []LineRequest{
		{ProductID: "tea", Quantity: 1, OptionIDs: []string{"egg"}},
	}})
	var onf *OptionNotFoundError
	require.ErrorAs(t, err, &onf)
}

func TestPlaceOrder_InvalidLineReservesNothing(t *testing.T) {
	tests := []struct {
		name  string
		items []LineRequest
	}{
		{
			name: "unknown option after promoted line",
			items: []LineRequest{
				{ProductID: "pho", Quantity: 2},
				{ProductID: "tea", Quantity: 1, OptionIDs: []string{"egg"}},
			},
		},
		{
			name: "combo with options after promoted line",
			items: []LineRequest{
				{ProductID: "pho", Quantity: 1},
				{ComboID: "lunch", Quantity: 1, OptionIDs: []string{"egg"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(flashSale("promo-pho", "pho"))

			_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{CustomerID: "c", Items: tt.items})
			var onf *OptionNotFoundError
			require.ErrorAs(t, err, &onf)
			assert.Empty(t, f.promos.consumed)
			assert.Zero(t, f.promos.promos[0].UsedQuantity)
			assert.Zero(t, f.tx.calls)
		})
	}
}

func TestPlaceOrder_FullPriceWithOptions(t *testing.T) {
	f := newFixture()

	o := place(t, f, PlaceOrderRequest{Items: []LineRequest{
		{ProductID: "pho", Quantity: 2, OptionIDs: []string{"egg"}},
		{ComboID: "lunch", Quantity: 1},
	}})

	require.Len(t, o.Items, 2)
	pho := o.Items[0]
	assert.Equal(t, "Pho bo", pho.Name)
	assert.Equal(t, int64(45000), pho.OriginalBasePrice.IntPart())
	assert.Equal(t, int64(45000), pho.BasePrice.IntPart())
	assert.Equal(t, int64(50000), pho.Price.IntPart())
	assert.Empty(t, pho.PromotionID)

	assert.Equal(t, int64(160000), o.TotalAmount.IntPart())
	assert.True(t, o.ShippingFee.IsZero())
	assert.Equal(t, int64(160000), o.GrandTotal.IntPart())
	assert.Equal(t, StatusPending, o.Status)
	assert.Contains(t, f.orders.orders, o.ID)
	assert.Equal(t, 1, f.tx.calls)
}

func TestPlaceOrder_PromotionApplied(t *testing.T) {
	f := newFixture(flashSale("promo-pho", "pho"))

	o := place(t, f, PlaceOrderRequest{Items: []LineRequest{
		{ProductID: "pho", Quantity: 2, OptionIDs: []string{"egg"}},
	}})

	item := o.Items[0]
	assert.Equal(t, "promo-pho", item.PromotionID)
	assert.Equal(t, int64(45000), item.OriginalBasePrice.IntPart())
	assert.Equal(t, int64(36000), item.BasePrice.IntPart())
	assert.Equal(t, int64(41000), item.Price.IntPart())
	assert.Equal(t, int64(82000), o.TotalAmount.IntPart())
	assert.Equal(t, 2, f.promos.consumed["promo-pho"])
	// Unlimited per-customer promotions skip the usage aggregation.
	assert.Zero(t, f.usage.calls)
}

func TestPlaceOrder_GlobalCapFallsBackToFullPrice(t *testing.T) {
	p := flashSale("promo-pho", "pho")
	p.MaxQuantity = 3
	p.UsedQuantity = 2
	f := newFixture(p)

	o := place(t, f, PlaceOrderRequest{Items: []LineRequest{{ProductID: "pho", Quantity: 2}}})

	assert.Empty(t, o.Items[0].PromotionID)
	assert.Equal(t, int64(45000), o.Items[0].BasePrice.IntPart())
	assert.Zero(t, f.promos.consumed["promo-pho"])
}

func TestPlaceOrder_SecondLineSeesFirstReservation(t *testing.T) {
	p := flashSale("promo-pho", "pho")
	p.MaxQuantity = 1
	f := newFixture(p)

	o := place(t, f, PlaceOrderRequest{Items: []LineRequest{
		{ProductID: "pho", Quantity: 1},
		{ProductID: "pho", Quantity: 1},
	}})

	assert.Equal(t, "promo-pho", o.Items[0].PromotionID)
	assert.Empty(t, o.Items[1].PromotionID)
	assert.Equal(t, int64(36000+45000), o.TotalAmount.IntPart())
}

func TestPlaceOrder_PerCustomerCap(t *testing.T) {
	p := flashSale("promo-pho", "pho")
	p.MaxQuantityPerCustomer = 2

	t.Run("limit reached", func(t *testing.T) {
		f := newFixture(p)
		f.usage.used["promo-pho"] = 2

		o := place(t, f, PlaceOrderRequest{Items: []LineRequest{{ProductID: "pho", Quantity: 1}}})
		assert.Empty(t, o.Items[0].PromotionID)
		assert.Zero(t, f.promos.consumed["promo-pho"])
		assert.Equal(t, 1, f.usage.calls)
	})

	t.Run("line would overshoot", func(t *testing.T) {
		f := newFixture(p)
		f.usage.used["promo-pho"] = 1

		o := place(t, f, PlaceOrderRequest{Items: []LineRequest{{ProductID: "pho", Quantity: 2}}})
		assert.Empty(t, o.Items[0].PromotionID)
	})

	t.Run("usage resolved once for many lines", func(t *testing.T) {
		f := newFixture(p)

		o := place(t, f, PlaceOrderRequest{Items: []LineRequest{
			{ProductID: "pho", Quantity: 1},
			{ProductID: "pho", Quantity: 1},
			{ProductID: "pho", Quantity: 1},
		}})
		assert.Equal(t, "promo-pho", o.Items[0].PromotionID)
		assert.Equal(t, "promo-pho", o.Items[1].PromotionID)
		assert.Empty(t, o.Items[2].PromotionID)
		assert.Equal(t, 1, f.usage.calls)
	})
}

func TestPlaceOrder_CouponAndShipping(t *testing.T) {
	f := newFixture()
	f.coupons.discount = &coupon.Discount{Amount: decimal.NewFromInt(10000), VoucherID: "v1"}

	dist := decimal.NewFromInt(5)
	o := place(t, f, PlaceOrderRequest{
		Items:      []LineRequest{{ProductID: "pho", Quantity: 1}},
		CouponCode: "SAVE10K",
		DistanceKm: &dist,
	})

	assert.Equal(t, int64(45000), o.TotalAmount.IntPart())
	assert.Equal(t, int64(10000), o.DiscountAmount.IntPart())
	// LOW bucket: 500 * (25 + 5 + 24) = 27000.
	assert.Equal(t, int64(27000), o.ShippingFee.IntPart())
	assert.Equal(t, int64(45000-10000+27000), o.GrandTotal.IntPart())
	assert.Equal(t, "v1", o.VoucherID)
	assert.Equal(t, o.ID, f.coupons.req.OrderID)
	assert.Equal(t, "cust-1", f.coupons.req.CustomerID)
}

func TestPlaceOrder_DestinationUsesEstimator(t *testing.T) {
	f := newFixture()

	o := place(t, f, PlaceOrderRequest{
		Items:       []LineRequest{{ProductID: "tea", Quantity: 1}},
		Destination: &shipping.Point{Lat: 10.78, Lng: 106.70},
	})
	assert.Equal(t, int64(2), o.DistanceKm.IntPart())
	// LOW bucket: 500 * (4 + 2 + 24) = 15000.
	assert.Equal(t, int64(15000), o.ShippingFee.IntPart())

	f.svc.Distance = mockDistance{err: errors.New("timeout")}
	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID:  "c",
		Items:       []LineRequest{{ProductID: "tea", Quantity: 1}},
		Destination: &shipping.Point{},
	})
	require.ErrorIs(t, err, shipping.ErrUpstreamUnavailable)
}

func TestPlaceOrder_DiscountClampedToTotal(t *testing.T) {
	f := newFixture()
	f.coupons.discount = &coupon.Discount{Amount: decimal.NewFromInt(999999)}

	o := place(t, f, PlaceOrderRequest{
		Items:      []LineRequest{{ProductID: "tea", Quantity: 1}},
		CouponCode: "HUGE",
	})
	assert.Equal(t, int64(10000), o.DiscountAmount.IntPart())
	assert.True(t, o.GrandTotal.IsZero())
}

func TestPlaceOrder_CouponErrorAborts(t *testing.T) {
	f := newFixture()
	f.coupons.err = coupon.ErrInvalidCoupon

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "c",
		Items:      []LineRequest{{ProductID: "tea", Quantity: 1}},
		CouponCode: "BOGUS",
	})
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Empty(t, f.orders.orders)
}

func TestPlaceOrder_OrderCreateError(t *testing.T) {
	f := newFixture()
	f.orders.err = errors.New("db write failed")

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		CustomerID: "c",
		Items:      []LineRequest{{ProductID: "tea", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

func TestCancel(t *testing.T) {
	p := flashSale("promo-pho", "pho")
	f := newFixture(p)
	o := place(t, f, PlaceOrderRequest{Items: []LineRequest{{ProductID: "pho", Quantity: 1}}})
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, o.ID, "someone-else")
	require.ErrorIs(t, err, ErrNotFound)

	canceled, err := f.svc.Cancel(ctx, o.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	_, err = f.svc.Cancel(ctx, o.ID, "cust-1")
	require.ErrorIs(t, err, ErrNotCancelable)

	// Reserved capacity is not returned on cancel.
	stored, err := f.promos.GetByID(ctx, "promo-pho")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsedQuantity)
}

func TestTotals(t *testing.T) {
	items := []Item{
		{Price: decimal.NewFromInt(30000), Quantity: 2},
		{Price: decimal.NewFromInt(15000), Quantity: 1},
	}
	total, discount, grand := Totals(items, decimal.NewFromInt(5000), decimal.NewFromInt(12000))
	assert.Equal(t, int64(75000), total.IntPart())
	assert.Equal(t, int64(5000), discount.IntPart())
	assert.Equal(t, int64(82000), grand.IntPart())
	assert.True(t, grand.Equal(total.Sub(discount).Add(decimal.NewFromInt(12000))))
}

func TestStatus_CanCancel(t *testing.T) {
	assert.True(t, StatusPending.CanCancel())
	assert.True(t, StatusConfirmed.CanCancel())
	assert.False(t, StatusPreparing.CanCancel())
	assert.False(t, StatusCanceled.CanCancel())
}
