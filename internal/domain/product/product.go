package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product or combo does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a menu item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Image       Image
	Options     []Option
	IsActive    bool
}

// Option is a paid add-on (topping, size upgrade) selectable on a product.
type Option struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// FindOption returns the option with the given id.
func (p *Product) FindOption(id string) (Option, bool) {
	for _, o := range p.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Combo bundles several products under one price.
type Combo struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Image       Image
	Items       []ComboItem
	IsActive    bool
}

// ComboItem is one product line of a combo.
type ComboItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Image holds responsive image paths for a menu item.
type Image struct {
	Thumbnail string `json:"thumbnail"`
	Mobile    string `json:"mobile"`
	Tablet    string `json:"tablet"`
	Desktop   string `json:"desktop"`
}

// WithBaseURL returns a copy of the image with every path prefixed by base.
func (i Image) WithBaseURL(base string) Image {
	if base == "" {
		return i
	}
	prefix := func(p string) string {
		if p == "" {
			return ""
		}
		return base + "/" + p
	}
	return Image{
		Thumbnail: prefix(i.Thumbnail),
		Mobile:    prefix(i.Mobile),
		Tablet:    prefix(i.Tablet),
		Desktop:   prefix(i.Desktop),
	}
}

// Repository defines read operations for the product catalog.
type Repository interface {
	ListActive(ctx context.Context) ([]Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// ComboRepository defines read operations for combos.
type ComboRepository interface {
	ListActiveCombos(ctx context.Context) ([]Combo, error)
	GetCombosByIDs(ctx context.Context, ids []string) ([]Combo, error)
}
