package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/payments"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/services"
)

func newPaymentRouter(svc services.PaymentService) chi.Router {
	h := NewPaymentHandlers(nil, svc)
	r := chi.NewRouter()
	r.Group(h.Routes)
	r.Group(h.WebhookRoutes)
	return r
}

func TestPaymentHandlersInitiate(t *testing.T) {
	svc := &stubPaymentService{session: services.PaymentSession{
		OrderID:       "ORD-20240310-113000-AB12C",
		Provider:      payments.ProviderPhonePe,
		TransactionID: "TXN-ORD-20240310-113000-AB12C-1",
		RedirectURL:   "https://mercury.phonepe.com/pay/abc",
		Amount:        660,
	}}
	req := httptest.NewRequest(http.MethodPost, "/payments/phonepe/initiate", strings.NewReader(`{"order_id":"ORD-20240310-113000-AB12C"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1", Email: "asha@example.com"}))
	rr := httptest.NewRecorder()
	newPaymentRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.initiateCmd.Provider != payments.ProviderPhonePe || svc.initiateCmd.Viewer.UserID != "user-1" {
		t.Fatalf("unexpected command %+v", svc.initiateCmd)
	}
	var body paymentSessionPayload
	decodeJSONBody(t, rr, &body)
	if body.RedirectURL != "https://mercury.phonepe.com/pay/abc" || body.Amount != 660 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestPaymentHandlersInitiateAlreadyPaid(t *testing.T) {
	svc := &stubPaymentService{err: fmt.Errorf("%w: order already paid", services.ErrPaymentInvalidState)}
	rr := httptest.NewRecorder()
	newPaymentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments/phonepe/initiate", strings.NewReader(`{"order_id":"ORD-1","email":"a@b.in"}`)))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if svc.initiateCmd.Viewer.Email != "a@b.in" {
		t.Fatalf("expected guest email on viewer, got %+v", svc.initiateCmd.Viewer)
	}
}

func TestPaymentHandlersWebhookForwardsRawBody(t *testing.T) {
	svc := &stubPaymentService{order: services.Order{ID: "ORD-1", PaymentStatus: domain.PaymentStatusPaid}}
	raw := `{"response":"eyJzdWNjZXNzIjp0cnVlfQ=="}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/phonepe", strings.NewReader(raw))
	req.Header.Set("X-VERIFY", "abc123###1")
	rr := httptest.NewRecorder()
	newPaymentRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if string(svc.callbackCmd.Body) != raw || svc.callbackCmd.Signature != "abc123###1" || svc.callbackCmd.Provider != payments.ProviderPhonePe {
		t.Fatalf("unexpected callback command %+v", svc.callbackCmd)
	}
	var body map[string]any
	decodeJSONBody(t, rr, &body)
	if body["payment_status"] != "paid" {
		t.Fatalf("unexpected ack %+v", body)
	}
}

func TestPaymentHandlersWebhookInvalidSignature(t *testing.T) {
	svc := &stubPaymentService{err: services.ErrPaymentInvalidSignature}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/phonepe", strings.NewReader(`{"response":"x"}`))
	rr := httptest.NewRecorder()
	newPaymentRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "invalid_signature" {
		t.Fatalf("expected invalid_signature, got %s", code)
	}
}

func TestPaymentHandlersRedirect(t *testing.T) {
	t.Run("form post", func(t *testing.T) {
		svc := &stubPaymentService{redirect: services.PaymentRedirect{Paid: true, Location: "https://shop.example.com/orders/ORD-1?payment=success"}}
		form := url.Values{"transactionId": {" TXN-1 "}, "code": {"PAYMENT_SUCCESS"}}
		req := httptest.NewRequest(http.MethodPost, "/payments/phonepe/redirect/ORD-1", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		newPaymentRouter(svc).ServeHTTP(rr, req)

		if rr.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != "https://shop.example.com/orders/ORD-1?payment=success" {
			t.Fatalf("unexpected location %q", loc)
		}
		if svc.redirectCmd.OrderID != "ORD-1" || svc.redirectCmd.TransactionID != "TXN-1" {
			t.Fatalf("unexpected redirect command %+v", svc.redirectCmd)
		}
	})

	t.Run("get without transaction", func(t *testing.T) {
		svc := &stubPaymentService{redirect: services.PaymentRedirect{Location: "https://shop.example.com/orders/ORD-1?payment=failed"}}
		rr := httptest.NewRecorder()
		newPaymentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/phonepe/redirect/ORD-1", nil))
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", rr.Code)
		}
		if svc.redirectCmd.TransactionID != "" {
			t.Fatalf("expected empty transaction, got %q", svc.redirectCmd.TransactionID)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		svc := &stubPaymentService{err: services.ErrPaymentNotFound}
		rr := httptest.NewRecorder()
		newPaymentRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/phonepe/redirect/ORD-404", nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})
}
