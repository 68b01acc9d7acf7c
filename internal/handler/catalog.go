package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/foodcourt/internal/domain/shipping"
	"github.com/xenking/foodcourt/internal/menu"
)

// GetMenu handles GET /api/menu. Anonymous callers get the shared cached
// view; a valid bearer token adds per-customer promotion usage.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	var viewer *menu.Viewer
	if id, ok := CustomerFromContext(r.Context()); ok {
		viewer = &menu.Viewer{CustomerID: id}
	}

	view, err := h.Menu.BuildMenu(r.Context(), viewer, h.now())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type shippingQuoteRequest struct {
	DistanceKm  *float64      `json:"distanceKm,omitempty" validate:"omitempty,min=0,max=100"`
	Destination *pointRequest `json:"destination,omitempty"`
	At          *time.Time    `json:"at,omitempty"`
}

type shippingQuoteResponse struct {
	DistanceKm decimal.Decimal `json:"distanceKm"`
	Bucket     shipping.Bucket `json:"bucket"`
	Fee        int64           `json:"fee"`
	At         time.Time       `json:"at"`
}

// QuoteShipping handles POST /api/shipping/quote.
func (h *Handler) QuoteShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingQuoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DistanceKm == nil && req.Destination == nil {
		writeError(w, http.StatusBadRequest, "distanceKm or destination required")
		return
	}

	var distance decimal.Decimal
	if req.Destination != nil {
		d, err := h.Distance.DistanceKm(r.Context(), h.Store, *req.Destination.point())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, shipping.ErrUpstreamUnavailable.Error())
			return
		}
		distance = d
	} else {
		distance = decimal.NewFromFloat(*req.DistanceKm).Round(1)
	}

	at := h.now()
	if req.At != nil {
		at = *req.At
	}
	q := shipping.NewQuote(distance, at)
	writeJSON(w, http.StatusOK, shippingQuoteResponse{
		DistanceKm: q.DistanceKm,
		Bucket:     q.Bucket,
		Fee:        q.Fee,
		At:         q.At.In(time.UTC),
	})
}
