package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/exambook-store/api/internal/payments"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/platform/httpx"
	"github.com/exambook-store/api/internal/services"
)

const (
	maxPaymentBodySize  = 4 * 1024
	maxCallbackBodySize = 64 * 1024
	phonePeVerifyHeader = "X-VERIFY"
)

// PaymentHandlers starts PhonePe payments and receives their results.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments}
}

// Routes registers the browser-facing payment endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Post("/payments/phonepe/initiate", h.initiate)
	r.Get("/payments/phonepe/redirect/{orderID}", h.redirect)
	r.Post("/payments/phonepe/redirect/{orderID}", h.redirect)
}

// WebhookRoutes registers the server-to-server gateway callback. It carries no
// user authentication; the checksum header authenticates the body.
func (h *PaymentHandlers) WebhookRoutes(r chi.Router) {
	r.Post("/webhooks/payments/phonepe", h.callback)
}

type initiatePaymentRequest struct {
	OrderID string `json:"order_id"`
	Email   string `json:"email"`
}

type paymentSessionPayload struct {
	OrderID       string `json:"order_id"`
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id,omitempty"`
	RedirectURL   string `json:"redirect_url"`
	Amount        int64  `json:"amount"`
}

func (h *PaymentHandlers) initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	var req initiatePaymentRequest
	if !decodeBody(w, r, maxPaymentBodySize, &req) {
		return
	}
	session, err := h.payments.Initiate(ctx, services.InitiatePaymentCommand{
		OrderID:  req.OrderID,
		Provider: payments.ProviderPhonePe,
		Viewer:   viewerFrom(ctx, req.Email),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentSessionPayload{
		OrderID:       session.OrderID,
		Provider:      session.Provider,
		TransactionID: session.TransactionID,
		RedirectURL:   session.RedirectURL,
		Amount:        session.Amount,
	})
}

func (h *PaymentHandlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	body, err := httpx.ReadBody(r, maxCallbackBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadBody(err))
		return
	}
	order, err := h.payments.HandleCallback(ctx, services.PaymentCallbackCommand{
		Provider:  payments.ProviderPhonePe,
		Body:      body,
		Signature: r.Header.Get(phonePeVerifyHeader),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"order_id":       order.ID,
		"payment_status": string(order.PaymentStatus),
	})
}

// redirect is where the gateway sends the browser back. PhonePe posts a form;
// a plain GET works too and falls back to the last recorded transaction.
func (h *PaymentHandlers) redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPaymentBodySize)
	var txnID string
	if err := r.ParseForm(); err == nil {
		txnID = strings.TrimSpace(r.Form.Get("transactionId"))
	}
	result, err := h.payments.HandleRedirect(ctx, services.PaymentRedirectCommand{
		OrderID:       chi.URLParam(r, "orderID"),
		Provider:      payments.ProviderPhonePe,
		TransactionID: txnID,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	http.Redirect(w, r, result.Location, http.StatusSeeOther)
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "payment checksum verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrPaymentInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("payment_invalid_state", errorMessage(err, services.ErrPaymentInvalidState), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment gateway unavailable, please retry", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently, please retry", http.StatusConflict))
	default:
		writeBackendError(ctx, w, "payment_error", err)
	}
}
