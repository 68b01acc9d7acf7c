// Package handler is the HTTP surface of the service, routed with chi.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/foodcourt/internal/domain/coupon"
	"github.com/xenking/foodcourt/internal/domain/order"
	"github.com/xenking/foodcourt/internal/domain/shipping"
	"github.com/xenking/foodcourt/internal/menu"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Deps are the services the handlers delegate to.
type Deps struct {
	Menu     *menu.Service
	Orders   *order.Service
	Coupons  *coupon.Service
	Auth     *Authenticator
	Distance shipping.DistanceEstimator
	Store    shipping.Point
}

// Handler serves the HTTP API.
type Handler struct {
	Deps
	validate *validator.Validate
	now      func() time.Time
}

// New creates a Handler.
func New(deps Deps) *Handler {
	return &Handler{
		Deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Routes registers the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.With(h.Auth.OptionalCustomer).Get("/menu", h.GetMenu)
		r.Post("/shipping/quote", h.QuoteShipping)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireCustomer)
			r.Post("/order", h.PlaceOrder)
			r.Get("/order/{id}", h.GetOrder)
			r.Post("/order/{id}/cancel", h.CancelOrder)
			r.Post("/coupon/check", h.CheckCoupon)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.Auth.RequireAPIKey(ScopeVouchers))
			r.Post("/vouchers", h.IssueVoucher)
			r.Post("/vouchers/{id}/revoke", h.RevokeVoucher)
		})
	})
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// decode reads a JSON body into v and validates it. It writes the 400
// response itself and reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return "invalid field " + fe.Namespace() + ": failed " + fe.Tag()
}

// fail maps a domain error to its status code. Unknown errors are logged
// and reported as 500 without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pnf *order.ProductNotFoundError
		cnf *order.ComboNotFoundError
		onf *order.OptionNotFoundError
		iq  *order.InvalidQuantityError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidLine),
		errors.Is(err, order.ErrCustomerRequired):
		writeError(w, http.StatusBadRequest, rootMessage(err))
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrVoucherNotFound):
		writeError(w, http.StatusNotFound, rootMessage(err))
	case errors.Is(err, order.ErrNotCancelable),
		errors.Is(err, coupon.ErrVoucherNotUsable):
		writeError(w, http.StatusConflict, rootMessage(err))
	case errors.As(err, &pnf), errors.As(err, &cnf), errors.As(err, &onf), errors.As(err, &iq):
		writeError(w, http.StatusUnprocessableEntity, rootMessage(err))
	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponUsageLimitReached),
		errors.Is(err, coupon.ErrMinimumNotMet),
		errors.Is(err, coupon.ErrConditionsNotMet):
		writeError(w, http.StatusUnprocessableEntity, rootMessage(err))
	case errors.Is(err, shipping.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, shipping.ErrUpstreamUnavailable.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// rootMessage strips wrapping context so clients see the domain message.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
