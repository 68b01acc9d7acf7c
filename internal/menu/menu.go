// Package menu composes the public menu: categories and combos at full
// price, plus a flash-sale section with the promotions currently on offer.
package menu

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/foodcourt/internal/domain/calendar"
	"github.com/xenking/foodcourt/internal/domain/product"
	"github.com/xenking/foodcourt/internal/domain/promotion"
)

// ItemKind tells products and combos apart in the menu.
type ItemKind string

const (
	KindProduct ItemKind = "product"
	KindCombo   ItemKind = "combo"
)

// Viewer is the authenticated customer looking at the menu.
type Viewer struct {
	CustomerID string
}

// View is the composed menu. It is immutable once built and may be shared
// between requests.
type View struct {
	Categories  []Category `json:"categories"`
	Combos      []Item     `json:"combos"`
	FlashSale   []Item     `json:"flashSale"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// Category groups products by their catalog category.
type Category struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Items []Item `json:"items"`
}

// Item is a product or combo as shown to customers. Promotion is null
// outside the flash-sale section.
type Item struct {
	ID          string              `json:"id"`
	Kind        ItemKind            `json:"kind"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Price       decimal.Decimal     `json:"price"`
	Category    string              `json:"category,omitempty"`
	Image       product.Image       `json:"image"`
	Options     []product.Option    `json:"options,omitempty"`
	ComboItems  []product.ComboItem `json:"comboItems,omitempty"`
	Promotion   *PromotionView      `json:"promotion"`
}

// PromotionView is a promotion as seen by one viewer.
type PromotionView struct {
	ID                     string                 `json:"id"`
	Name                   string                 `json:"name"`
	DiscountType           promotion.DiscountType `json:"discountType"`
	DiscountValue          decimal.Decimal        `json:"discountValue"`
	StartDate              time.Time              `json:"startDate"`
	EndDate                time.Time              `json:"endDate"`
	Priority               int                    `json:"priority"`
	MaxQuantity            int                    `json:"maxQuantity"`
	UsedQuantity           int                    `json:"usedQuantity"`
	DailyMaxUses           int                    `json:"dailyMaxUses"`
	DailyUsedCount         int                    `json:"dailyUsedCount"`
	MaxQuantityPerCustomer int                    `json:"maxQuantityPerCustomer"`
	UserUsedCount          int                    `json:"userUsedCount"`
	IsLimitReachedForUser  bool                   `json:"isLimitReachedForUser"`
	RequiresLogin          bool                   `json:"requiresLogin"`
	FinalPrice             decimal.Decimal        `json:"finalPrice"`
}

// Deps are the collaborators of the menu Service.
type Deps struct {
	Products     product.Repository
	Combos       product.ComboRepository
	Promotions   promotion.Repository
	Usage        promotion.UsageCounter
	Cache        Cache
	ImageBaseURL string
}

// Service builds menu views.
type Service struct {
	deps   Deps
	tracer trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithTracer sets the tracer for menu composition spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService creates a menu Service. A nil Cache disables caching.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		deps:   deps,
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BuildMenu composes the menu at now. Anonymous views are served from the
// cache while fresh; a viewer always gets a freshly computed view.
func (s *Service) BuildMenu(ctx context.Context, viewer *Viewer, now time.Time) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "menu.BuildMenu",
		trace.WithAttributes(attribute.Bool("menu.viewer", viewer != nil)),
	)
	defer span.End()

	anonymous := viewer == nil
	if anonymous && s.deps.Cache != nil {
		if v, ok := s.deps.Cache.Load(ctx, now); ok {
			span.SetAttributes(attribute.Bool("menu.cached", true))
			return v, nil
		}
	}

	v, err := s.compose(ctx, viewer, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if anonymous && s.deps.Cache != nil {
		s.deps.Cache.Store(ctx, v, now)
	}
	return v, nil
}

func (s *Service) compose(ctx context.Context, viewer *Viewer, now time.Time) (*View, error) {
	var (
		products []product.Product
		combos   []product.Combo
		promos   []promotion.Promotion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.deps.Products.ListActive(gctx)
		return errors.Wrap(err, "list products")
	})
	g.Go(func() (err error) {
		combos, err = s.deps.Combos.ListActiveCombos(gctx)
		return errors.Wrap(err, "list combos")
	})
	g.Go(func() (err error) {
		promos, err = s.deps.Promotions.ListActive(gctx, now)
		return errors.Wrap(err, "list promotions")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dayStart := calendar.StartOfDay(now)
	promos = s.dropCorrupt(ctx, promos, dayStart)
	lookup := promotion.Index(promos, dayStart)

	used := map[string]int{}
	if viewer != nil {
		if ids := lookup.CustomerCapped(); len(ids) > 0 {
			u, err := s.deps.Usage.GetUsedQuantity(ctx, viewer.CustomerID, ids)
			if err != nil {
				return nil, errors.Wrap(err, "get viewer promotion usage")
			}
			used = u
		}
	}

	b := builder{
		viewer:   viewer,
		used:     used,
		dayStart: dayStart,
		base:     s.deps.ImageBaseURL,
	}
	v := &View{
		Categories:  []Category{},
		Combos:      []Item{},
		FlashSale:   []Item{},
		GeneratedAt: now,
	}

	categoryIdx := map[string]int{}
	for _, p := range products {
		item := b.productItem(p)
		i, ok := categoryIdx[p.Category]
		if !ok {
			i = len(v.Categories)
			categoryIdx[p.Category] = i
			v.Categories = append(v.Categories, newCategory(p.Category))
		}
		v.Categories[i].Items = append(v.Categories[i].Items, item)

		if promo := lookup.ForProduct(p.ID); promo != nil {
			v.FlashSale = append(v.FlashSale, b.withPromotion(item, promo))
		}
	}
	for _, c := range combos {
		item := b.comboItem(c)
		v.Combos = append(v.Combos, item)

		if promo := lookup.ForCombo(c.ID); promo != nil {
			v.FlashSale = append(v.FlashSale, b.withPromotion(item, promo))
		}
	}
	slices.SortStableFunc(v.FlashSale, func(x, y Item) int {
		return cmp.Compare(y.Promotion.Priority, x.Promotion.Priority)
	})
	return v, nil
}

// dropCorrupt removes promotions whose counters exceed their caps.
func (s *Service) dropCorrupt(ctx context.Context, promos []promotion.Promotion, dayStart time.Time) []promotion.Promotion {
	out := promos[:0:0]
	for i := range promos {
		if err := promotion.CheckInvariants(&promos[i], dayStart); err != nil {
			zctx.From(ctx).Error("Skipping promotion",
				zap.String("promotion_id", promos[i].ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, promos[i])
	}
	return out
}

func newCategory(name string) Category {
	if name == "" {
		name = "Other"
	}
	return Category{Name: name, Slug: slug.Make(name), Items: []Item{}}
}

type builder struct {
	viewer   *Viewer
	used     map[string]int
	dayStart time.Time
	base     string
}

func (b builder) productItem(p product.Product) Item {
	return Item{
		ID:          p.ID,
		Kind:        KindProduct,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Image:       p.Image.WithBaseURL(b.base),
		Options:     p.Options,
	}
}

func (b builder) comboItem(c product.Combo) Item {
	return Item{
		ID:          c.ID,
		Kind:        KindCombo,
		Name:        c.Name,
		Description: c.Description,
		Price:       c.Price,
		Image:       c.Image.WithBaseURL(b.base),
		ComboItems:  c.Items,
	}
}

func (b builder) withPromotion(item Item, p *promotion.Promotion) Item {
	used := b.used[p.ID]
	capped := p.MaxQuantityPerCustomer > 0
	item.Promotion = &PromotionView{
		ID:                     p.ID,
		Name:                   p.Name,
		DiscountType:           p.DiscountType,
		DiscountValue:          p.DiscountValue,
		StartDate:              p.StartDate,
		EndDate:                p.EndDate,
		Priority:               p.Priority,
		MaxQuantity:            p.MaxQuantity,
		UsedQuantity:           p.UsedQuantity,
		DailyMaxUses:           p.DailyMaxUses,
		DailyUsedCount:         promotion.EffectiveDailyCount(p, b.dayStart),
		MaxQuantityPerCustomer: p.MaxQuantityPerCustomer,
		UserUsedCount:          used,
		IsLimitReachedForUser:  b.viewer != nil && promotion.IsCustomerLimitReached(p, used),
		RequiresLogin:          b.viewer == nil && capped,
		FinalPrice:             promotion.ApplyDiscount(p, item.Price),
	}
	return item
}
