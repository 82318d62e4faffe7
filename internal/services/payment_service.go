package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/payments"
	"github.com/exambook-store/api/internal/repositories"
)

const (
	paymentEventInitiated        = "payment.initiated"
	paymentEventCallbackRejected = "payment.callback.rejected"
	paymentEventApplied          = "payment.applied"
	paymentEventAmountMismatch   = "payment.amount_mismatch"
	paymentEventPaidAfterCancel  = "payment.paid_after_cancel"
	paymentEventLookupFailed     = "payment.lookup.failed"
	paymentEventGatewayFailed    = "payment.gateway.failed"

	// PaymentCodeAmountMismatch is recorded when a gateway reports success for a different amount.
	PaymentCodeAmountMismatch = "AMOUNT_MISMATCH"
	paymentCodeZeroAmount     = "ZERO_AMOUNT"
	paymentProviderNone       = "none"

	orderIDPlaceholder = "{orderId}"
)

var (
	// ErrPaymentInvalidInput signals a malformed payment request or callback payload.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidSignature indicates the callback checksum did not verify.
	ErrPaymentInvalidSignature = errors.New("payment: invalid signature")
	// ErrPaymentNotFound indicates the order behind the payment does not exist.
	ErrPaymentNotFound = errors.New("payment: order not found")
	// ErrPaymentInvalidState indicates the order cannot accept a payment now.
	ErrPaymentInvalidState = errors.New("payment: invalid order state")
	// ErrPaymentUnavailable indicates the gateway could not be reached or refused the request.
	ErrPaymentUnavailable = errors.New("payment: gateway unavailable")
)

// PaymentGateway is the provider registry the service talks to.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, provider string, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	VerifyCallback(ctx context.Context, provider string, req payments.CallbackRequest) (payments.PaymentDetails, error)
	LookupPayment(ctx context.Context, provider string, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// PaymentMetrics counts callback outcomes.
type PaymentMetrics interface {
	PaymentCallback(ctx context.Context, provider, outcome string)
}

// PaymentURLs are the public endpoints the gateway and browser are sent to.
// RedirectURL may contain {orderId}; otherwise the order ID is appended as a path segment.
type PaymentURLs struct {
	CallbackURL string
	RedirectURL string
	SuccessURL  string
	FailureURL  string
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders    repositories.OrderRepository
	Gateway   PaymentGateway
	Notifier  Notifier
	Metrics   PaymentMetrics
	URLs      PaymentURLs
	Clock     func() time.Time
	TxnSuffix func() string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders    repositories.OrderRepository
	gateway   PaymentGateway
	notifier  Notifier
	metrics   PaymentMetrics
	urls      PaymentURLs
	clock     func() time.Time
	txnSuffix func() string
	logger    serviceLogger
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}
	suffix := deps.TxnSuffix
	if suffix == nil {
		suffix = func() string {
			id := ulid.Make().String()
			return id[len(id)-6:]
		}
	}
	return &paymentService{
		orders:    deps.Orders,
		gateway:   deps.Gateway,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		urls:      deps.URLs,
		clock:     ensureClock(deps.Clock),
		txnSuffix: suffix,
		logger:    ensureLogger(deps.Logger),
	}, nil
}

func (s *paymentService) Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentSession, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if !IsOrderID(orderID) {
		return PaymentSession{}, fmt.Errorf("%w: invalid order id", ErrPaymentInvalidInput)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return PaymentSession{}, mapRepositoryError(err, "payment", ErrPaymentNotFound, nil)
	}
	if !canViewOrder(order, cmd.Viewer) {
		return PaymentSession{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, orderID)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return PaymentSession{}, fmt.Errorf("%w: order is already paid", ErrPaymentInvalidState)
	}
	if order.Status != domain.OrderStatusPaymentPending {
		return PaymentSession{}, fmt.Errorf("%w: order is %s", ErrPaymentInvalidState, order.Status)
	}

	if order.TotalAmount <= 0 {
		paid, err := s.applyOutcome(ctx, order, domain.PaymentStatusPaid, domain.PaymentRecord{
			Provider:      paymentProviderNone,
			TransactionID: orderID,
			Code:          paymentCodeZeroAmount,
		})
		if err != nil {
			return PaymentSession{}, err
		}
		return PaymentSession{OrderID: paid.ID, Provider: paymentProviderNone, RedirectURL: s.resultURL(paid, true)}, nil
	}

	txnID := TransactionID(orderID, s.txnSuffix())
	session, err := s.gateway.CreateCheckoutSession(ctx, cmd.Provider, payments.CheckoutSessionRequest{
		TransactionID: txnID,
		CustomerID:    merchantUserID(order.UserID),
		AmountPaise:   order.TotalAmount * 100,
		Phone:         order.Customer.Phone,
		RedirectURL:   s.redirectURL(orderID),
		CallbackURL:   s.urls.CallbackURL,
	})
	if err != nil {
		s.logger(ctx, paymentEventGatewayFailed, map[string]any{"orderId": orderID, "error": err.Error()})
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return PaymentSession{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
		}
		return PaymentSession{}, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}

	s.logger(ctx, paymentEventInitiated, map[string]any{
		"orderId":       orderID,
		"provider":      session.Provider,
		"transactionId": txnID,
		"amount":        order.TotalAmount,
	})
	return PaymentSession{
		OrderID:       orderID,
		Provider:      session.Provider,
		TransactionID: txnID,
		RedirectURL:   session.RedirectURL,
		Amount:        order.TotalAmount,
	}, nil
}

func (s *paymentService) HandleCallback(ctx context.Context, cmd PaymentCallbackCommand) (Order, error) {
	provider := strings.ToLower(strings.TrimSpace(cmd.Provider))
	details, err := s.gateway.VerifyCallback(ctx, provider, payments.CallbackRequest{
		Body:      cmd.Body,
		Signature: cmd.Signature,
	})
	if err != nil {
		s.countCallback(ctx, provider, "rejected")
		s.logger(ctx, paymentEventCallbackRejected, map[string]any{"provider": provider, "error": err.Error()})
		switch {
		case errors.Is(err, payments.ErrInvalidSignature):
			return Order{}, ErrPaymentInvalidSignature
		case errors.Is(err, payments.ErrMalformedCallback), errors.Is(err, payments.ErrUnsupportedProvider):
			return Order{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
		}
		return Order{}, err
	}

	order, err := s.apply(ctx, details)
	if err != nil {
		s.countCallback(ctx, details.Provider, "error")
		return Order{}, err
	}
	s.countCallback(ctx, details.Provider, string(details.Status))
	return order, nil
}

func (s *paymentService) HandleRedirect(ctx context.Context, cmd PaymentRedirectCommand) (PaymentRedirect, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if !IsOrderID(orderID) {
		return PaymentRedirect{}, fmt.Errorf("%w: invalid order id", ErrPaymentInvalidInput)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return PaymentRedirect{}, mapRepositoryError(err, "payment", ErrPaymentNotFound, nil)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return PaymentRedirect{Order: order, Paid: true, Location: s.resultURL(order, true)}, nil
	}

	txnID := strings.TrimSpace(cmd.TransactionID)
	if owner, ok := OrderIDFromTransaction(txnID); !ok || owner != orderID {
		txnID = ""
		if order.Payment != nil {
			txnID = order.Payment.TransactionID
		}
	}
	if txnID == "" {
		return PaymentRedirect{Order: order, Location: s.resultURL(order, false)}, nil
	}

	details, err := s.gateway.LookupPayment(ctx, cmd.Provider, payments.LookupRequest{TransactionID: txnID})
	if err != nil {
		s.logger(ctx, paymentEventLookupFailed, map[string]any{"orderId": orderID, "transactionId": txnID, "error": err.Error()})
		return PaymentRedirect{Order: order, Location: s.resultURL(order, false)}, nil
	}
	updated, err := s.apply(ctx, details)
	if err != nil {
		s.logger(ctx, paymentEventLookupFailed, map[string]any{"orderId": orderID, "transactionId": txnID, "error": err.Error()})
		return PaymentRedirect{Order: order, Location: s.resultURL(order, false)}, nil
	}
	paid := updated.PaymentStatus == domain.PaymentStatusPaid
	return PaymentRedirect{Order: updated, Paid: paid, Location: s.resultURL(updated, paid)}, nil
}

// apply records a verified gateway result against the order it belongs to.
// Pending results leave the order untouched.
func (s *paymentService) apply(ctx context.Context, details payments.PaymentDetails) (Order, error) {
	orderID, ok := OrderIDFromTransaction(details.TransactionID)
	if !ok {
		return Order{}, fmt.Errorf("%w: unrecognised transaction id %q", ErrPaymentInvalidInput, details.TransactionID)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, "payment", ErrPaymentNotFound, nil)
	}
	if details.Status == payments.StatusPending {
		return order, nil
	}

	record := domain.PaymentRecord{
		Provider:          details.Provider,
		TransactionID:     details.TransactionID,
		ProviderReference: details.ProviderReference,
		Code:              details.Code,
		Amount:            details.AmountPaise / 100,
	}
	status := domain.PaymentStatusFailed
	if details.Status == payments.StatusSucceeded {
		status = domain.PaymentStatusPaid
		if details.AmountPaise != order.TotalAmount*100 {
			s.logger(ctx, paymentEventAmountMismatch, map[string]any{
				"orderId":       orderID,
				"expectedPaise": order.TotalAmount * 100,
				"reportedPaise": details.AmountPaise,
			})
			status = domain.PaymentStatusFailed
			record.Code = PaymentCodeAmountMismatch
		}
	}
	return s.applyOutcome(ctx, order, status, record)
}

func (s *paymentService) applyOutcome(ctx context.Context, order Order, status domain.PaymentStatus, record domain.PaymentRecord) (Order, error) {
	record.UpdatedAt = s.clock()
	before := order.PaymentStatus
	updated, err := s.orders.ApplyPayment(ctx, order.ID, status, record)
	if err != nil {
		return Order{}, mapRepositoryError(err, "payment", ErrPaymentNotFound, ErrOrderConflict)
	}
	s.logger(ctx, paymentEventApplied, map[string]any{
		"orderId":       updated.ID,
		"provider":      record.Provider,
		"transactionId": record.TransactionID,
		"code":          record.Code,
		"paymentStatus": string(updated.PaymentStatus),
		"orderStatus":   string(updated.Status),
	})
	if updated.PaymentStatus == domain.PaymentStatusPaid && updated.Status == domain.OrderStatusCancelled {
		s.logger(ctx, paymentEventPaidAfterCancel, map[string]any{"orderId": updated.ID, "transactionId": record.TransactionID})
	}
	if s.notifier != nil && updated.PaymentStatus != before {
		s.notifier.PaymentResult(ctx, updated)
	}
	return updated, nil
}

func (s *paymentService) countCallback(ctx context.Context, provider, outcome string) {
	if s.metrics != nil {
		s.metrics.PaymentCallback(ctx, provider, outcome)
	}
}

func (s *paymentService) redirectURL(orderID string) string {
	base := strings.TrimSpace(s.urls.RedirectURL)
	if base == "" {
		return ""
	}
	if strings.Contains(base, orderIDPlaceholder) {
		return strings.ReplaceAll(base, orderIDPlaceholder, url.PathEscape(orderID))
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(orderID)
}

func (s *paymentService) resultURL(order Order, paid bool) string {
	target := s.urls.FailureURL
	if paid {
		target = s.urls.SuccessURL
	}
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || target == "" {
		return ""
	}
	q := u.Query()
	q.Set("orderId", order.ID)
	q.Set("status", string(order.PaymentStatus))
	u.RawQuery = q.Encode()
	return u.String()
}

// merchantUserID keeps the characters gateways accept in a customer reference.
func merchantUserID(uid string) string {
	var b strings.Builder
	for _, r := range uid {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() > 36 {
		return b.String()[:36]
	}
	return b.String()
}
