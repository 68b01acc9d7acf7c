package order

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusPreparing  Status = "preparing"
	StatusDelivering Status = "delivering"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

// cancelable lists the states an order may be canceled from.
var cancelable = []Status{StatusPending, StatusConfirmed}

// CanCancel reports whether the order may still be canceled.
func (s Status) CanCancel() bool { return slices.Contains(cancelable, s) }

// Order is a placed customer order. Totals are derived from the items and
// always satisfy GrandTotal = TotalAmount - DiscountAmount + ShippingFee.
type Order struct {
	ID             string
	CustomerID     string
	Items          []Item
	Status         Status
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingFee    decimal.Decimal
	GrandTotal     decimal.Decimal
	CouponCode     string
	VoucherID      string
	DistanceKm     decimal.Decimal
	Note           string
	CreatedAt      time.Time
}

// Item is a point-in-time snapshot of a purchased product or combo.
//
// OriginalBasePrice is the menu price, BasePrice the price after the
// promotion (equal to OriginalBasePrice without one) and Price the final
// unit price including options. PromotionID is set only when the ledger
// granted the promotion for this line.
type Item struct {
	ProductID         string           `json:"productId,omitempty"`
	ComboID           string           `json:"comboId,omitempty"`
	Name              string           `json:"name"`
	Quantity          int              `json:"quantity"`
	OriginalBasePrice decimal.Decimal  `json:"originalBasePrice"`
	BasePrice         decimal.Decimal  `json:"basePrice"`
	Price             decimal.Decimal  `json:"price"`
	Options           []SelectedOption `json:"options,omitempty"`
	PromotionID       string           `json:"promotionId,omitempty"`
}

// LineTotal returns Price * Quantity.
func (i *Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SelectedOption is an add-on chosen for a line, priced at order time.
type SelectedOption struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Totals derives order totals. The discount is clamped to the item total.
func Totals(items []Item, discount, shippingFee decimal.Decimal) (total, appliedDiscount, grand decimal.Decimal) {
	total = decimal.Zero
	for i := range items {
		total = total.Add(items[i].LineTotal())
	}
	appliedDiscount = decimal.Min(discount, total)
	if appliedDiscount.IsNegative() {
		appliedDiscount = decimal.Zero
	}
	grand = total.Sub(appliedDiscount).Add(shippingFee)
	return total, appliedDiscount, grand
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus moves the order to `to` only if its current status is
	// one of from, and reports whether it did.
	UpdateStatus(ctx context.Context, id string, from []Status, to Status) (bool, error)
}

// Transactor runs fn in a single all-or-nothing unit of work. Repositories
// used inside fn must take part in it through ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
