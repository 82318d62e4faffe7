package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/exambook-store/api/internal/cart"
	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/services"
)

func newCartRouter(svc services.CartService) chi.Router {
	r := chi.NewRouter()
	r.Use(CartSessionMiddleware)
	NewCartHandlers(nil, svc).Routes(r)
	return r
}

func TestCartHandlersRequiresSessionOrIdentity(t *testing.T) {
	svc := &stubCartService{}
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "cart_session_required" {
		t.Fatalf("expected cart_session_required, got %s", code)
	}
	if len(svc.getKeys) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestCartHandlersGetCartUsesSessionAndUser(t *testing.T) {
	svc := &stubCartService{
		view: services.CartView{
			State: cart.State{
				Items: []cart.Item{{BookID: "bk-1", Kind: domain.ItemKindBook, Title: "Quant", Price: 300, Quantity: 2}},
			},
			Summary:   services.PriceQuote{Subtotal: 600, ShippingCharges: 50, Total: 650, Policy: domain.ShippingPolicyFlat},
			ItemCount: 2,
		},
	}
	router := newCartRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(CartSessionHeader, "sess-1")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.getKeys) != 1 || svc.getKeys[0].UserID != "user-7" || svc.getKeys[0].SessionID != "sess-1" {
		t.Fatalf("unexpected cart key %+v", svc.getKeys)
	}
	var body cartPayload
	decodeJSONBody(t, rr, &body)
	if len(body.Items) != 1 || body.Items[0].LineTotal != 600 {
		t.Fatalf("unexpected items %+v", body.Items)
	}
	if body.Summary.Total != 650 || body.Summary.Policy != "flat" || body.ItemCount != 2 {
		t.Fatalf("unexpected summary %+v", body)
	}
}

func TestCartHandlersApplyActionBuildsItem(t *testing.T) {
	svc := &stubCartService{}
	req := httptest.NewRequest(http.MethodPost, "/cart/actions", strings.NewReader(`{"type":"add_item","book_id":"bk-9","quantity":3}`))
	req.Header.Set(CartSessionHeader, "sess-2")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.applied) != 1 {
		t.Fatalf("expected one action, got %d", len(svc.applied))
	}
	action := svc.applied[0].Action
	if action.Type != cart.ActionAddItem || action.Item == nil {
		t.Fatalf("unexpected action %+v", action)
	}
	if action.Item.BookID != "bk-9" || action.Item.Kind != domain.ItemKindBook || action.Item.Quantity != 3 {
		t.Fatalf("unexpected item %+v", action.Item)
	}
	if action.Item.Price != 0 || action.Item.Title != "" {
		t.Fatalf("client must not supply price or title, got %+v", action.Item)
	}
}

func TestCartHandlersApplyActionPassesKind(t *testing.T) {
	svc := &stubCartService{}
	req := httptest.NewRequest(http.MethodPost, "/cart/actions", strings.NewReader(`{"type":"remove_item","book_id":"upsc-2025","kind":"test_series"}`))
	req.Header.Set(CartSessionHeader, "sess-4")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	action := svc.applied[0].Action
	if action.BookID != "upsc-2025" || action.Kind != domain.ItemKindTestSeries {
		t.Fatalf("unexpected action %+v", action)
	}
}

func TestCartHandlersApplyActionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", fmt.Errorf("%w: quantity must be positive", services.ErrCartInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"unavailable", fmt.Errorf("%w: bk-1 is out of stock", services.ErrCartItemUnavailable), http.StatusConflict, "item_unavailable"},
		{"backend", fmt.Errorf("redis down"), http.StatusInternalServerError, "cart_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCartService{err: tc.err}
			req := httptest.NewRequest(http.MethodPost, "/cart/actions", strings.NewReader(`{"type":"update_quantity","book_id":"bk-1","quantity":0}`))
			req.Header.Set(CartSessionHeader, "sess-3")
			rr := httptest.NewRecorder()
			newCartRouter(svc).ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if code := decodeErrorCode(t, rr); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	svc := &stubCartService{}
	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req.Header.Set(CartSessionHeader, "sess-4")
	rr := httptest.NewRecorder()
	newCartRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if len(svc.clearedAt) != 1 || svc.clearedAt[0].SessionID != "sess-4" {
		t.Fatalf("unexpected clear calls %+v", svc.clearedAt)
	}
}
