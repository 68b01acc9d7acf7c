package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/order"
	"github.com/xenking/foodcourt/internal/domain/shipping"
)

type pointRequest struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" validate:"min=-180,max=180"`
}

func (p *pointRequest) point() *shipping.Point {
	if p == nil {
		return nil
	}
	return &shipping.Point{Lat: p.Lat, Lng: p.Lng}
}

type orderLineRequest struct {
	ProductID string   `json:"productId,omitempty"`
	ComboID   string   `json:"comboId,omitempty"`
	Quantity  int      `json:"quantity"`
	Options   []string `json:"options,omitempty" validate:"max=20"`
}

type orderRequest struct {
	Items       []orderLineRequest `json:"items" validate:"max=50,dive"`
	CouponCode  string             `json:"couponCode,omitempty" validate:"max=64"`
	Destination *pointRequest      `json:"destination,omitempty"`
	DistanceKm  *float64           `json:"distanceKm,omitempty" validate:"omitempty,min=0,max=100"`
	Note        string             `json:"note,omitempty" validate:"max=500"`
}

type orderResponse struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customerId"`
	Status         order.Status    `json:"status"`
	Items          []order.Item    `json:"items"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	ShippingFee    decimal.Decimal `json:"shippingFee"`
	GrandTotal     decimal.Decimal `json:"grandTotal"`
	CouponCode     string          `json:"couponCode,omitempty"`
	VoucherID      string          `json:"voucherId,omitempty"`
	DistanceKm     decimal.Decimal `json:"distanceKm"`
	Note           string          `json:"note,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func newOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		Status:         o.Status,
		Items:          o.Items,
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		ShippingFee:    o.ShippingFee,
		GrandTotal:     o.GrandTotal,
		CouponCode:     o.CouponCode,
		VoucherID:      o.VoucherID,
		DistanceKm:     o.DistanceKm,
		Note:           o.Note,
		CreatedAt:      o.CreatedAt,
	}
}

// PlaceOrder handles POST /api/order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !h.decode(w, r, &req) {
		return
	}
	customerID, _ := CustomerFromContext(r.Context())

	lines := make([]order.LineRequest, len(req.Items))
	for i, it := range req.Items {
		lines[i] = order.LineRequest{
			ProductID: it.ProductID,
			ComboID:   it.ComboID,
			Quantity:  it.Quantity,
			OptionIDs: it.Options,
		}
	}
	var distance *decimal.Decimal
	if req.DistanceKm != nil {
		d := decimal.NewFromFloat(*req.DistanceKm).Round(1)
		distance = &d
	}

	o, err := h.Orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		CustomerID:  customerID,
		Items:       lines,
		CouponCode:  req.CouponCode,
		Destination: req.Destination.point(),
		DistanceKm:  distance,
		Note:        req.Note,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

// GetOrder handles GET /api/order/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	customerID, _ := CustomerFromContext(r.Context())
	o, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"), customerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// CancelOrder handles POST /api/order/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	customerID, _ := CustomerFromContext(r.Context())
	o, err := h.Orders.Cancel(r.Context(), chi.URLParam(r, "id"), customerID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
