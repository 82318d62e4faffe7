package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/platform/httpx"
	"github.com/exambook-store/api/internal/services"
)

const maxCartBodySize = 8 * 1024

// CartHandlers exposes the cart and wishlist for signed-in users and guest sessions.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs cart handlers. Authentication is optional; guests
// identify their cart with the X-Cart-Session header.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Get("/cart", h.getCart)
	r.Post("/cart/actions", h.applyAction)
	r.Delete("/cart", h.clearCart)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.cartKey(ctx, w)
	if !ok {
		return
	}
	view, err := h.carts.GetCart(ctx, key)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}

func (h *CartHandlers) applyAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.cartKey(ctx, w)
	if !ok {
		return
	}
	var req cartActionRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	view, err := h.carts.Apply(ctx, services.CartActionCommand{Key: key, Action: req.action()})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, ok := h.cartKey(ctx, w)
	if !ok {
		return
	}
	if err := h.carts.Clear(ctx, key); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) cartKey(ctx context.Context, w http.ResponseWriter) (services.CartKey, bool) {
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return services.CartKey{}, false
	}
	key, ok := cartKeyFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("cart_session_required", "sign in or send an "+CartSessionHeader+" header", http.StatusBadRequest))
		return services.CartKey{}, false
	}
	return key, true
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("item_unavailable", errorMessage(err, services.ErrCartItemUnavailable), http.StatusConflict))
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrCartInvalidInput), http.StatusBadRequest))
	default:
		writeBackendError(ctx, w, "cart_error", err)
	}
}
