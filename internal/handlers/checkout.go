package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/platform/httpx"
	"github.com/exambook-store/api/internal/services"
)

const (
	maxCheckoutBodySize   = 32 * 1024
	couponAttemptsPerHour = 30
)

// CheckoutHandlers prices carts and checks coupons before an order is placed.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	carts    services.CartService
	coupons  rateLimiter
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCouponRateLimit caps coupon validations per caller in each window.
func WithCouponRateLimit(limit int, window time.Duration, clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.coupons = newWindowLimiter(limit, window, clock)
	}
}

// NewCheckoutHandlers constructs checkout handlers. carts may be nil, in which
// case requests must list their items.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, carts services.CartService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		carts:    carts,
		coupons:  newWindowLimiter(couponAttemptsPerHour, time.Hour, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers quote and coupon validation.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Post("/checkout/quote", h.quote)
	r.Post("/coupons:validate", h.validateCoupon)
}

type checkoutItemRequest struct {
	BookID   string `json:"book_id"`
	Kind     string `json:"kind"`
	Quantity int    `json:"quantity"`
}

type quoteRequest struct {
	Items      []checkoutItemRequest `json:"items"`
	State      string                `json:"state"`
	CouponCode string                `json:"coupon_code"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	var req quoteRequest
	if !decodeBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	items, err := resolveCheckoutItems(ctx, h.carts, req.Items)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	quote, err := h.checkout.Quote(ctx, services.QuoteCommand{
		Items:      items,
		State:      req.State,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildQuotePayload(quote))
}

type validateCouponRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

func (h *CheckoutHandlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	if h.coupons != nil && !h.coupons.Allow(limiterKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many coupon attempts, try again later", http.StatusTooManyRequests))
		return
	}
	var req validateCouponRequest
	if !decodeBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	applied, err := h.checkout.ValidateCoupon(ctx, services.ValidateCouponCommand{Code: req.Code, Subtotal: req.Subtotal})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"valid":  true,
		"coupon": buildAppliedCouponPayload(&applied),
	})
}

// resolveCheckoutItems uses the request lines when given, else the caller's cart.
func resolveCheckoutItems(ctx context.Context, carts services.CartService, lines []checkoutItemRequest) ([]services.CheckoutItem, error) {
	if len(lines) > 0 {
		items := make([]services.CheckoutItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, services.CheckoutItem{
				BookID:   strings.TrimSpace(line.BookID),
				Kind:     domain.ItemKind(strings.TrimSpace(line.Kind)),
				Quantity: line.Quantity,
			})
		}
		return items, nil
	}
	key, ok := cartKeyFrom(ctx)
	if carts == nil || !ok {
		return nil, nil
	}
	view, err := carts.GetCart(ctx, key)
	if err != nil {
		return nil, err
	}
	items := make([]services.CheckoutItem, 0, len(view.State.Items))
	for _, item := range view.State.Items {
		items = append(items, services.CheckoutItem{BookID: item.BookID, Kind: item.Kind, Quantity: item.Quantity})
	}
	return items, nil
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var unavailable *services.ItemUnavailableError
	var couponErr *services.CouponError
	switch {
	case errors.As(err, &couponErr):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", couponErr.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"reason": string(couponErr.Reason),
			"code":   couponErr.Code,
		}))
	case errors.As(err, &unavailable):
		writeItemUnavailable(ctx, w, unavailable)
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrCheckoutInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrCartInvalidInput), http.StatusBadRequest))
	default:
		writeBackendError(ctx, w, "checkout_error", err)
	}
}

func writeItemUnavailable(ctx context.Context, w http.ResponseWriter, unavailable *services.ItemUnavailableError) {
	status := http.StatusUnprocessableEntity
	if unavailable.Reason == "insufficient_stock" {
		status = http.StatusConflict
	}
	httpx.WriteError(ctx, w, httpx.NewError("item_unavailable", unavailable.Error(), status).WithDetails(map[string]any{
		"book_id":   unavailable.BookID,
		"reason":    unavailable.Reason,
		"requested": unavailable.Requested,
		"available": unavailable.Available,
	}))
}
