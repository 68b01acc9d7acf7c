package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/foodcourt/internal/domain/coupon"
)

type couponItemRequest struct {
	Price    float64 `json:"price" validate:"min=0"`
	Quantity int     `json:"quantity" validate:"min=1"`
}

type couponCheckRequest struct {
	Code  string              `json:"code" validate:"required,max=64"`
	Items []couponItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
}

type discountResponse struct {
	Code        string          `json:"code"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	VoucherID   string          `json:"voucherId,omitempty"`
}

// CheckCoupon handles POST /api/coupon/check. Nothing is consumed.
func (h *Handler) CheckCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	customerID, _ := CustomerFromContext(r.Context())

	items := make([]coupon.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = coupon.Item{Price: decimal.NewFromFloat(it.Price), Quantity: it.Quantity}
	}
	d, err := h.Coupons.Check(r.Context(), coupon.Request{
		Code:       req.Code,
		CustomerID: customerID,
		Items:      items,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, discountResponse{
		Code:        d.Code,
		Amount:      d.Amount,
		Description: d.Description,
		VoucherID:   d.VoucherID,
	})
}

type issueVoucherRequest struct {
	CouponID      string `json:"couponId" validate:"required"`
	CustomerID    string `json:"customerId" validate:"required"`
	ValidForHours int    `json:"validForHours" validate:"min=0,max=8760"`
}

type voucherResponse struct {
	ID         string               `json:"id"`
	Code       string               `json:"code"`
	CouponID   string               `json:"couponId"`
	CustomerID string               `json:"customerId"`
	Status     coupon.VoucherStatus `json:"status"`
	Terms      coupon.Terms         `json:"terms"`
	IssuedAt   time.Time            `json:"issuedAt"`
	ExpiresAt  *time.Time           `json:"expiresAt,omitempty"`
}

// IssueVoucher handles POST /api/admin/vouchers.
func (h *Handler) IssueVoucher(w http.ResponseWriter, r *http.Request) {
	var req issueVoucherRequest
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.Coupons.Issue(r.Context(), req.CouponID, req.CustomerID, time.Duration(req.ValidForHours)*time.Hour)
	if err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Voucher issued",
		zap.String("voucher_id", v.ID),
		zap.String("coupon_id", v.CouponID),
		zap.String("customer_id", v.CustomerID),
	)

	resp := voucherResponse{
		ID:         v.ID,
		Code:       v.Code,
		CouponID:   v.CouponID,
		CustomerID: v.CustomerID,
		Status:     v.Status,
		Terms:      v.Terms,
		IssuedAt:   v.IssuedAt,
	}
	if !v.ExpiresAt.IsZero() {
		resp.ExpiresAt = &v.ExpiresAt
	}
	writeJSON(w, http.StatusCreated, resp)
}

// RevokeVoucher handles POST /api/admin/vouchers/{id}/revoke.
func (h *Handler) RevokeVoucher(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Coupons.Revoke(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Voucher revoked", zap.String("voucher_id", id))
	w.WriteHeader(http.StatusNoContent)
}
