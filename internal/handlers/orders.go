package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/platform/httpx"
	"github.com/exambook-store/api/internal/repositories"
	"github.com/exambook-store/api/internal/services"
)

const (
	maxOrderBodySize       = 32 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

// OrderHandlers places orders and serves them back to their owners.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	carts       services.CartService
	idempotency func(http.Handler) http.Handler
	clock       func() time.Time
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithIdempotency guards order placement with mw.
func WithIdempotency(mw func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) { h.idempotency = mw }
}

// WithOrderClock overrides the clock used to report cancellability.
func WithOrderClock(clock func() time.Time) OrderOption {
	return func(h *OrderHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewOrderHandlers constructs order handlers. carts is optional and lets a
// checkout without explicit items order the caller's cart.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, carts services.CartService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders, carts: carts, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /orders and /me/orders.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	place := http.Handler(http.HandlerFunc(h.placeOrder))
	if h.idempotency != nil {
		place = h.idempotency(place)
	}
	r.Method(http.MethodPost, "/orders", place)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}:cancel", h.cancelOrder)
	r.Get("/me/orders", h.listMyOrders)
}

type placeOrderRequest struct {
	Customer        customerPayload       `json:"customer"`
	ShippingAddress addressPayload        `json:"shipping_address"`
	Items           []checkoutItemRequest `json:"items"`
	CouponCode      string                `json:"coupon_code"`
	SaveAddress     bool                  `json:"save_address"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req placeOrderRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	items, err := resolveCheckoutItems(ctx, h.carts, req.Items)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	cmd := services.PlaceOrderCommand{
		Customer: services.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		ShippingAddress: req.ShippingAddress.address(),
		Items:           items,
		CouponCode:      req.CouponCode,
		Guest:           true,
	}
	if identity := identityFrom(ctx); identity != nil {
		cmd.UserID = identity.UID
		cmd.Guest = false
		cmd.SaveAddress = req.SaveAddress
		cmd.Customer.Name = chooseNonEmpty(cmd.Customer.Name, identity.Name)
		cmd.Customer.Email = chooseNonEmpty(cmd.Customer.Email, identity.Email)
		cmd.Customer.Phone = chooseNonEmpty(cmd.Customer.Phone, identity.Phone)
	}
	if key, ok := cartKeyFrom(ctx); ok {
		cmd.Cart = &key
	}

	order, err := h.orders.PlaceOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, h.orderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Viewer:  viewerFrom(ctx, r.URL.Query().Get("email")),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.orderPayload(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
	Email  string `json:"email"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, maxOrderCancelBodySize, &req) {
			return
		}
	}
	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Viewer:  viewerFrom(ctx, req.Email),
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, h.orderPayload(order))
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	listOrders(w, r, h.orders, identity.UID)
}

// listOrders serves a page of orders; an empty userID lists every customer's orders.
func listOrders(w http.ResponseWriter, r *http.Request, orders services.OrderService, userID string) {
	ctx := r.Context()
	page, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter := services.OrderListFilter{UserID: userID, Pagination: page}
	for _, status := range parseFilterValues(r.URL.Query()["status"]) {
		filter.Status = append(filter.Status, domain.OrderStatus(status))
	}
	result, err := orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	resp := orderListResponse{Items: make([]orderSummaryPayload, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, order := range result.Items {
		resp.Items = append(resp.Items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) orderPayload(order domain.Order) orderPayload {
	return buildOrderPayload(order, services.CancellationEligibility(order, h.clock()).Allowed)
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var unavailable *services.ItemUnavailableError
	var couponErr *services.CouponError
	var stockErr *repositories.StockError
	switch {
	case errors.As(err, &couponErr):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", couponErr.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"reason": string(couponErr.Reason),
			"code":   couponErr.Code,
		}))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		details := map[string]any{}
		switch {
		case errors.As(err, &stockErr):
			details["book_id"], details["available"] = stockErr.BookID, stockErr.Available
		case errors.As(err, &unavailable):
			details["book_id"], details["available"] = unavailable.BookID, unavailable.Available
		}
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", errorMessage(err, services.ErrOrderInsufficientStock), http.StatusConflict).WithDetails(details))
	case errors.As(err, &unavailable):
		writeItemUnavailable(ctx, w, unavailable)
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrOrderInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotCancellable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_cancellable", errorMessage(err, services.ErrOrderNotCancellable), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", errorMessage(err, services.ErrOrderInvalidState), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently, please retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrCartInvalidInput), http.StatusBadRequest))
	default:
		writeBackendError(ctx, w, "order_error", err)
	}
}
