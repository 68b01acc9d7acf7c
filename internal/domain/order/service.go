package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcourt/internal/domain/calendar"
	"github.com/xenking/foodcourt/internal/domain/coupon"
	"github.com/xenking/foodcourt/internal/domain/product"
	"github.com/xenking/foodcourt/internal/domain/promotion"
	"github.com/xenking/foodcourt/internal/domain/shipping"
)

// Sentinel errors for order validation and lifecycle.
var (
	ErrEmptyItems       = errors.New("items required")
	ErrCustomerRequired = errors.New("customer required")
	ErrInvalidLine      = errors.New("each item needs exactly one of productId or comboId")
	ErrNotFound         = errors.New("order not found")
	ErrNotCancelable    = errors.New("order can no longer be canceled")
)

// ProductNotFoundError indicates a requested product does not exist or is
// not on sale.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ComboNotFoundError indicates a requested combo does not exist or is not
// on sale.
type ComboNotFoundError struct {
	ComboID string
}

func (e *ComboNotFoundError) Error() string {
	return fmt.Sprintf("combo %s not found", e.ComboID)
}

// OptionNotFoundError indicates an add-on the item does not offer.
type OptionNotFoundError struct {
	ItemID   string
	OptionID string
}

func (e *OptionNotFoundError) Error() string {
	return fmt.Sprintf("option %s not available for %s", e.OptionID, e.ItemID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for %s", e.ItemID)
}

// LineRequest is one requested line: a product or a combo.
type LineRequest struct {
	ProductID string
	ComboID   string
	Quantity  int
	OptionIDs []string
}

func (l LineRequest) itemID() string {
	if l.ProductID != "" {
		return l.ProductID
	}
	return l.ComboID
}

// PlaceOrderRequest holds the input for placing an order. Delivery distance
// comes from Destination when set, else from DistanceKm; with neither the
// order is a pickup without shipping fee.
type PlaceOrderRequest struct {
	CustomerID  string
	Items       []LineRequest
	CouponCode  string
	Destination *shipping.Point
	DistanceKm  *decimal.Decimal
	Note        string
}

// Deps are the collaborators of the order Service.
type Deps struct {
	Products   product.Repository
	Combos     product.ComboRepository
	Promotions promotion.Repository
	Ledger     promotion.Ledger
	Usage      promotion.UsageCounter
	Coupons    coupon.Redeemer
	Orders     Repository
	Tx         Transactor
	Distance   shipping.DistanceEstimator
	Store      shipping.Point
}

// Service encapsulates order placement business logic.
type Service struct {
	Deps
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTracer sets the tracer used for checkout spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an order Service.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		Deps:   deps,
		tracer: noop.NewTracerProvider().Tracer(""),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// catalog is the batch-loaded data a checkout prices against.
type catalog struct {
	products map[string]product.Product
	combos   map[string]product.Combo
	promos   promotion.Lookup
}

// PlaceOrder prices every line, reserves promotion capacity, redeems the
// coupon and persists the order, all in one transaction. A promotion that
// is ineligible, over the customer's cap, or exhausted at reservation time
// is not an error: the line is charged at full price.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.Int("order.lines", len(req.Items))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
		}
		span.End()
	}()

	if err := validate(req); err != nil {
		return nil, err
	}

	now := s.now()
	cat, err := s.loadCatalog(ctx, req, now)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(req.Items))
	for i, line := range req.Items {
		if items[i], err = newItem(line, cat); err != nil {
			return nil, err
		}
	}

	// Resolve per-customer usage once for capped promotions on requested lines.
	used, err := s.customerUsage(ctx, req, cat.promos)
	if err != nil {
		return nil, err
	}

	distance, fee, err := s.shippingFee(ctx, req, now)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:          uuid.NewString(),
		CustomerID:  req.CustomerID,
		Status:      StatusPending,
		ShippingFee: fee,
		DistanceKm:  distance,
		CouponCode:  req.CouponCode,
		Note:        req.Note,
		CreatedAt:   now,
	}

	err = s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		for i, line := range req.Items {
			if err := s.applyPromotion(ctx, &items[i], line, cat, used, now); err != nil {
				return err
			}
		}
		o.Items = items

		discount := decimal.Zero
		if req.CouponCode != "" {
			d, err := s.Coupons.Redeem(ctx, coupon.Request{
				Code:       req.CouponCode,
				CustomerID: req.CustomerID,
				OrderID:    o.ID,
				Items:      couponItems(items),
			})
			if err != nil {
				return errors.Wrap(err, "redeem coupon")
			}
			discount = d.Amount
			o.VoucherID = d.VoucherID
		}
		o.TotalAmount, o.DiscountAmount, o.GrandTotal = Totals(items, discount, o.ShippingFee)

		if err := s.Orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("grand_total", o.GrandTotal.String()),
	)
	return o, nil
}

func validate(req PlaceOrderRequest) error {
	if req.CustomerID == "" {
		return ErrCustomerRequired
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, line := range req.Items {
		if (line.ProductID == "") == (line.ComboID == "") {
			return ErrInvalidLine
		}
		if line.Quantity <= 0 {
			return &InvalidQuantityError{ItemID: line.itemID()}
		}
	}
	return nil
}

func (s *Service) loadCatalog(ctx context.Context, req PlaceOrderRequest, now time.Time) (*catalog, error) {
	var productIDs, comboIDs []string
	for _, line := range req.Items {
		if line.ProductID != "" {
			productIDs = append(productIDs, line.ProductID)
		} else {
			comboIDs = append(comboIDs, line.ComboID)
		}
	}

	var (
		products []product.Product
		combos   []product.Combo
		promos   []promotion.Promotion
	)
	g, gctx := errgroup.WithContext(ctx)
	if len(productIDs) > 0 {
		g.Go(func() (err error) {
			products, err = s.Products.GetByIDs(gctx, productIDs)
			return errors.Wrap(err, "get products")
		})
	}
	if len(comboIDs) > 0 {
		g.Go(func() (err error) {
			combos, err = s.Combos.GetCombosByIDs(gctx, comboIDs)
			return errors.Wrap(err, "get combos")
		})
	}
	g.Go(func() (err error) {
		promos, err = s.Promotions.ListActive(gctx, now)
		return errors.Wrap(err, "list promotions")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cat := &catalog{
		products: make(map[string]product.Product, len(products)),
		combos:   make(map[string]product.Combo, len(combos)),
		promos:   promotion.Index(promos, calendar.StartOfDay(now)),
	}
	for _, p := range products {
		if p.IsActive {
			cat.products[p.ID] = p
		}
	}
	for _, c := range combos {
		if c.IsActive {
			cat.combos[c.ID] = c
		}
	}

	for _, line := range req.Items {
		if line.ProductID != "" {
			if _, ok := cat.products[line.ProductID]; !ok {
				return nil, &ProductNotFoundError{ProductID: line.ProductID}
			}
			continue
		}
		if _, ok := cat.combos[line.ComboID]; !ok {
			return nil, &ComboNotFoundError{ComboID: line.ComboID}
		}
	}
	return cat, nil
}

func (s *Service) customerUsage(ctx context.Context, req PlaceOrderRequest, promos promotion.Lookup) (map[string]int, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, line := range req.Items {
		p := promoFor(promos, line)
		if p == nil || p.MaxQuantityPerCustomer == 0 {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return map[string]int{}, nil
	}

	used, err := s.Usage.GetUsedQuantity(ctx, req.CustomerID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get customer promotion usage")
	}
	return used, nil
}

func (s *Service) shippingFee(ctx context.Context, req PlaceOrderRequest, now time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var distance decimal.Decimal
	switch {
	case req.Destination != nil:
		d, err := s.Distance.DistanceKm(ctx, s.Store, *req.Destination)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %w", shipping.ErrUpstreamUnavailable, err)
		}
		distance = d
	case req.DistanceKm != nil:
		distance = *req.DistanceKm
	default:
		return decimal.Zero, decimal.Zero, nil
	}
	return distance, decimal.NewFromInt(shipping.CalculateFee(distance, now)), nil
}

func promoFor(l promotion.Lookup, line LineRequest) *promotion.Promotion {
	if line.ProductID != "" {
		return l.ForProduct(line.ProductID)
	}
	return l.ForCombo(line.ComboID)
}

// newItem snapshots full prices and options for one line. Every line is
// built before any promotion is reserved, so a bad option never leaves
// capacity consumed.
func newItem(line LineRequest, cat *catalog) (Item, error) {
	item := Item{
		ProductID: line.ProductID,
		ComboID:   line.ComboID,
		Quantity:  line.Quantity,
	}

	var p *product.Product
	if line.ProductID != "" {
		prod := cat.products[line.ProductID]
		p = &prod
		item.Name = prod.Name
		item.OriginalBasePrice = prod.Price
	} else {
		combo := cat.combos[line.ComboID]
		item.Name = combo.Name
		item.OriginalBasePrice = combo.Price
	}
	item.BasePrice = item.OriginalBasePrice

	for _, id := range line.OptionIDs {
		if p == nil {
			return Item{}, &OptionNotFoundError{ItemID: line.itemID(), OptionID: id}
		}
		opt, ok := p.FindOption(id)
		if !ok {
			return Item{}, &OptionNotFoundError{ItemID: line.itemID(), OptionID: id}
		}
		item.Options = append(item.Options, SelectedOption{ID: opt.ID, Name: opt.Name, Price: opt.Price})
	}
	item.reprice()
	return item, nil
}

// reprice sets Price to BasePrice plus the selected options.
func (i *Item) reprice() {
	i.Price = i.BasePrice
	for _, o := range i.Options {
		i.Price = i.Price.Add(o.Price)
	}
}

// applyPromotion reserves the line's promotion and discounts its base
// price. used is updated so later lines of the same promotion see this one.
func (s *Service) applyPromotion(
	ctx context.Context,
	item *Item,
	line LineRequest,
	cat *catalog,
	used map[string]int,
	now time.Time,
) error {
	promo := promoFor(cat.promos, line)
	if promo == nil {
		return nil
	}
	applied, err := s.reserve(ctx, promo, line, used, now)
	if err != nil || !applied {
		return err
	}
	item.BasePrice = promotion.ApplyDiscount(promo, item.OriginalBasePrice)
	item.PromotionID = promo.ID
	item.reprice()
	return nil
}

// reserve runs eligibility, then the per-customer cap, then the ledger.
func (s *Service) reserve(
	ctx context.Context,
	promo *promotion.Promotion,
	line LineRequest,
	used map[string]int,
	now time.Time,
) (bool, error) {
	lg := zctx.From(ctx).With(zap.String("promotion_id", promo.ID))

	if err := promotion.CheckInvariants(promo, calendar.StartOfDay(now)); err != nil {
		lg.Error("Promotion counters out of bounds", zap.Error(err))
		return false, nil
	}
	if !promotion.IsGloballyEligible(promo, now) {
		return false, nil
	}
	if !promotion.CustomerCanTake(promo, used[promo.ID], line.Quantity) {
		lg.Debug("Customer promotion limit reached", zap.Int("used", used[promo.ID]))
		return false, nil
	}

	ok, err := s.Ledger.TryConsume(ctx, promo.ID, line.Quantity)
	if err != nil {
		return false, errors.Wrap(err, "consume promotion")
	}
	if !ok {
		lg.Debug("Promotion capacity exhausted", zap.Int("quantity", line.Quantity))
		return false, nil
	}
	used[promo.ID] += line.Quantity
	return true, nil
}

func couponItems(items []Item) []coupon.Item {
	out := make([]coupon.Item, len(items))
	for i, it := range items {
		out[i] = coupon.Item{Price: it.Price, Quantity: it.Quantity}
	}
	return out
}

// Get returns an order owned by customerID.
func (s *Service) Get(ctx context.Context, id, customerID string) (*Order, error) {
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Cancel cancels a pending or confirmed order. Promotion counters are not
// given back: the reserved capacity stays consumed.
func (s *Service) Cancel(ctx context.Context, id, customerID string) (*Order, error) {
	o, err := s.Get(ctx, id, customerID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanCancel() {
		return nil, ErrNotCancelable
	}

	ok, err := s.Orders.UpdateStatus(ctx, id, cancelable, StatusCanceled)
	if err != nil {
		return nil, errors.Wrap(err, "cancel order")
	}
	if !ok {
		return nil, ErrNotCancelable
	}
	o.Status = StatusCanceled
	return o, nil
}
