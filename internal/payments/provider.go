package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as completed.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a terminal failure.
	StatusFailed Status = "failed"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidSignature is returned when a callback checksum does not verify.
	ErrInvalidSignature = errors.New("payments: invalid callback signature")
	// ErrMalformedCallback is returned when a callback body cannot be decoded.
	ErrMalformedCallback = errors.New("payments: malformed callback")
)

// CheckoutSessionRequest captures what a gateway needs to start a payment.
type CheckoutSessionRequest struct {
	TransactionID string
	CustomerID    string
	// AmountPaise is the charge in the smallest currency unit.
	AmountPaise int64
	Phone       string
	RedirectURL string
	CallbackURL string
}

// CheckoutSession is the gateway response the client follows to pay.
type CheckoutSession struct {
	Provider      string
	TransactionID string
	RedirectURL   string
}

// CallbackRequest is a raw server-to-server notification.
type CallbackRequest struct {
	Body      []byte
	Signature string
}

// LookupRequest asks the gateway for the latest state of a transaction.
type LookupRequest struct {
	TransactionID string
}

// PaymentDetails normalises gateway specific fields for storage.
type PaymentDetails struct {
	Provider          string
	TransactionID     string
	ProviderReference string
	Code              string
	Status            Status
	AmountPaise       int64
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// VerifyCallback authenticates and decodes a callback. Signature failures
	// wrap ErrInvalidSignature and must leave orders untouched.
	VerifyCallback(ctx context.Context, req CallbackRequest) (PaymentDetails, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when callers do not name one.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = normaliseKey(provider)
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := normaliseKey(k)
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	if _, ok := registered[ProviderPhonePe]; ok {
		m.defaultProvider = ProviderPhonePe
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (m *Manager) resolveProvider(name string) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if key := normaliseKey(name); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return m.defaultProvider, p, nil
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCheckoutSession delegates to the named or default provider.
func (m *Manager) CreateCheckoutSession(ctx context.Context, provider string, req CheckoutSessionRequest) (CheckoutSession, error) {
	key, p, err := m.resolveProvider(provider)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := p.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = key
	return session, nil
}

// VerifyCallback delegates to the named or default provider.
func (m *Manager) VerifyCallback(ctx context.Context, provider string, req CallbackRequest) (PaymentDetails, error) {
	key, p, err := m.resolveProvider(provider)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := p.VerifyCallback(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// LookupPayment delegates to the named or default provider.
func (m *Manager) LookupPayment(ctx context.Context, provider string, req LookupRequest) (PaymentDetails, error) {
	key, p, err := m.resolveProvider(provider)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := p.LookupPayment(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}
