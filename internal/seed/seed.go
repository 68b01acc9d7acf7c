// Package seed decodes the demo catalog into domain types. The same data
// feeds the seed-db command and the in-memory backend.
package seed

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/coupon"
	"github.com/xenking/foodcourt/internal/domain/customer"
	"github.com/xenking/foodcourt/internal/domain/product"
	"github.com/xenking/foodcourt/internal/domain/promotion"
	"github.com/xenking/foodcourt/internal/domain/rule"
)

// Data is a decoded catalog.
type Data struct {
	Products   []product.Product
	Combos     []product.Combo
	Promotions []promotion.Promotion
	Customers  []customer.Customer
	Coupons    []coupon.Coupon
}

type file struct {
	Products   []productJSON   `json:"products" validate:"dive"`
	Combos     []comboJSON     `json:"combos" validate:"dive"`
	Promotions []promotionJSON `json:"promotions" validate:"dive"`
	Customers  []customerJSON  `json:"customers" validate:"dive"`
	Coupons    []couponJSON    `json:"coupons" validate:"dive"`
}

type productJSON struct {
	ID          string           `json:"id" validate:"required"`
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	Category    string           `json:"category"`
	Image       product.Image    `json:"image"`
	Options     []product.Option `json:"options"`
}

type comboJSON struct {
	ID          string              `json:"id" validate:"required"`
	Name        string              `json:"name" validate:"required"`
	Description string              `json:"description"`
	Price       decimal.Decimal     `json:"price"`
	Image       product.Image       `json:"image"`
	Items       []product.ComboItem `json:"items" validate:"min=1"`
}

type promotionJSON struct {
	ID                     string          `json:"id" validate:"required"`
	Name                   string          `json:"name" validate:"required"`
	ProductID              string          `json:"productId" validate:"required_without=ComboID,excluded_with=ComboID"`
	ComboID                string          `json:"comboId"`
	DiscountType           string          `json:"discountType" validate:"oneof=percentage fixed_amount"`
	DiscountValue          decimal.Decimal `json:"discountValue"`
	StartDate              time.Time       `json:"startDate" validate:"required"`
	EndDate                time.Time       `json:"endDate" validate:"required,gtfield=StartDate"`
	Priority               int             `json:"priority"`
	MaxQuantity            int             `json:"maxQuantity" validate:"gte=0"`
	DailyMaxUses           int             `json:"dailyMaxUses" validate:"gte=0"`
	MaxQuantityPerCustomer int             `json:"maxQuantityPerCustomer" validate:"gte=0"`
}

type customerJSON struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birthDate" validate:"omitempty,datetime=2006-01-02"`
}

type couponJSON struct {
	ID             string          `json:"id" validate:"required"`
	Code           string          `json:"code" validate:"required"`
	Description    string          `json:"description"`
	DiscountType   string          `json:"discountType" validate:"oneof=percentage fixed_amount free_lowest"`
	Value          decimal.Decimal `json:"value"`
	MaxDiscount    decimal.Decimal `json:"maxDiscount"`
	MinOrderAmount decimal.Decimal `json:"minOrderAmount"`
	MinItems       int             `json:"minItems" validate:"gte=0"`
	MaxUses        int             `json:"maxUses" validate:"gte=0"`
	Conditions     rule.Node       `json:"conditions"`
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Data, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(f); err != nil {
		return nil, errors.Wrap(err, "validate seed")
	}

	out := &Data{}
	products := make(map[string]bool, len(f.Products))
	for _, p := range f.Products {
		products[p.ID] = true
		out.Products = append(out.Products, product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
			Image:       p.Image,
			Options:     p.Options,
			IsActive:    true,
		})
	}

	combos := make(map[string]bool, len(f.Combos))
	for _, c := range f.Combos {
		for _, it := range c.Items {
			if !products[it.ProductID] {
				return nil, errors.Errorf("combo %q references unknown product %q", c.ID, it.ProductID)
			}
		}
		combos[c.ID] = true
		out.Combos = append(out.Combos, product.Combo{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Price:       c.Price,
			Image:       c.Image,
			Items:       c.Items,
			IsActive:    true,
		})
	}

	for _, p := range f.Promotions {
		if p.ProductID != "" && !products[p.ProductID] {
			return nil, errors.Errorf("promotion %q references unknown product %q", p.ID, p.ProductID)
		}
		if p.ComboID != "" && !combos[p.ComboID] {
			return nil, errors.Errorf("promotion %q references unknown combo %q", p.ID, p.ComboID)
		}
		out.Promotions = append(out.Promotions, promotion.Promotion{
			ID:                     p.ID,
			Name:                   p.Name,
			ProductID:              p.ProductID,
			ComboID:                p.ComboID,
			DiscountType:           promotion.DiscountType(p.DiscountType),
			DiscountValue:          p.DiscountValue,
			StartDate:              p.StartDate,
			EndDate:                p.EndDate,
			IsActive:               true,
			Priority:               p.Priority,
			MaxQuantity:            p.MaxQuantity,
			DailyMaxUses:           p.DailyMaxUses,
			MaxQuantityPerCustomer: p.MaxQuantityPerCustomer,
		})
	}

	for _, c := range f.Customers {
		cu := customer.Customer{
			ID:     c.ID,
			Name:   c.Name,
			Email:  c.Email,
			Phone:  c.Phone,
			Gender: c.Gender,
		}
		if c.BirthDate != "" {
			// Validated above.
			b, _ := time.Parse(time.DateOnly, c.BirthDate)
			cu.BirthDate = &b
		}
		out.Customers = append(out.Customers, cu)
	}

	for _, c := range f.Coupons {
		if err := rule.Validate(&c.Conditions); err != nil {
			return nil, errors.Wrapf(err, "coupon %q conditions", c.ID)
		}
		out.Coupons = append(out.Coupons, coupon.Coupon{
			ID:             c.ID,
			Code:           c.Code,
			Description:    c.Description,
			DiscountType:   coupon.DiscountType(c.DiscountType),
			Value:          c.Value,
			MaxDiscount:    c.MaxDiscount,
			MinOrderAmount: c.MinOrderAmount,
			MinItems:       c.MinItems,
			MaxUses:        c.MaxUses,
			IsActive:       true,
			Conditions:     c.Conditions,
		})
	}

	return out, nil
}
