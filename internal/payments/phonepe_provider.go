package payments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// ProviderPhonePe is the registry key of the PhonePe gateway.
	ProviderPhonePe = "phonepe"

	phonePePayPath    = "/pg/v1/pay"
	phonePeStatusPath = "/pg/v1/status"

	// PhonePeCodeSuccess is the only code treated as a completed payment.
	PhonePeCodeSuccess = "PAYMENT_SUCCESS"
	phonePeCodePending = "PAYMENT_PENDING"

	checksumSeparator   = "###"
	maxGatewayBodyBytes = 1 << 20
)

// PhonePeConfig carries merchant credentials and endpoints.
type PhonePeConfig struct {
	MerchantID string
	SaltKey    string
	SaltIndex  string
	BaseURL    string
	HTTPClient *http.Client
}

// PhonePeProvider talks to the PhonePe PG v1 API.
type PhonePeProvider struct {
	merchantID string
	saltKey    string
	saltIndex  string
	baseURL    string
	client     *http.Client
}

var _ Provider = (*PhonePeProvider)(nil)

// NewPhonePeProvider validates cfg and builds the provider.
func NewPhonePeProvider(cfg PhonePeConfig) (*PhonePeProvider, error) {
	merchantID := strings.TrimSpace(cfg.MerchantID)
	if merchantID == "" {
		return nil, errors.New("phonepe: merchant id is required")
	}
	if cfg.SaltKey == "" {
		return nil, errors.New("phonepe: salt key is required")
	}
	saltIndex := strings.TrimSpace(cfg.SaltIndex)
	if saltIndex == "" {
		return nil, errors.New("phonepe: salt index is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("phonepe: base url is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PhonePeProvider{
		merchantID: merchantID,
		saltKey:    cfg.SaltKey,
		saltIndex:  saltIndex,
		baseURL:    baseURL,
		client:     client,
	}, nil
}

// Checksum computes the X-VERIFY value: sha256hex(payload + salt) + "###" + index.
func Checksum(payload, saltKey, saltIndex string) string {
	sum := sha256.Sum256([]byte(payload + saltKey))
	return hex.EncodeToString(sum[:]) + checksumSeparator + saltIndex
}

// VerifyChecksum checks header against payload in constant time. A header
// without the separator or with a different salt index never verifies.
func VerifyChecksum(payload, header, saltKey, saltIndex string) bool {
	digest, index, ok := strings.Cut(strings.TrimSpace(header), checksumSeparator)
	if !ok || digest == "" || index != saltIndex {
		return false
	}
	expected := Checksum(payload, saltKey, saltIndex)
	expectedDigest, _, _ := strings.Cut(expected, checksumSeparator)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(digest)), []byte(expectedDigest)) == 1
}

type phonePePayRequest struct {
	MerchantID            string                   `json:"merchantId"`
	MerchantTransactionID string                   `json:"merchantTransactionId"`
	MerchantUserID        string                   `json:"merchantUserId"`
	Amount                int64                    `json:"amount"`
	RedirectURL           string                   `json:"redirectUrl"`
	RedirectMode          string                   `json:"redirectMode"`
	CallbackURL           string                   `json:"callbackUrl"`
	MobileNumber          string                   `json:"mobileNumber,omitempty"`
	PaymentInstrument     phonePePaymentInstrument `json:"paymentInstrument"`
}

type phonePePaymentInstrument struct {
	Type string `json:"type"`
}

type phonePeEnvelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type phonePePayData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	InstrumentResponse    struct {
		RedirectInfo struct {
			URL    string `json:"url"`
			Method string `json:"method"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type phonePeTransactionData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
}

// CreateCheckoutSession registers a pay-page transaction and returns the
// URL the customer must be sent to.
func (p *PhonePeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return CheckoutSession{}, errors.New("phonepe: transaction id is required")
	}
	if req.AmountPaise <= 0 {
		return CheckoutSession{}, errors.New("phonepe: amount must be positive")
	}
	payload, err := json.Marshal(phonePePayRequest{
		MerchantID:            p.merchantID,
		MerchantTransactionID: req.TransactionID,
		MerchantUserID:        req.CustomerID,
		Amount:                req.AmountPaise,
		RedirectURL:           req.RedirectURL,
		RedirectMode:          http.MethodPost,
		CallbackURL:           req.CallbackURL,
		MobileNumber:          req.Phone,
		PaymentInstrument:     phonePePaymentInstrument{Type: "PAY_PAGE"},
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("phonepe: encode pay request: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(payload)
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("phonepe: encode pay body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+phonePePayPath, bytes.NewReader(body))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("phonepe: build pay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", Checksum(encoded+phonePePayPath, p.saltKey, p.saltIndex))

	env, err := p.do(httpReq)
	if err != nil {
		return CheckoutSession{}, err
	}
	if !env.Success {
		return CheckoutSession{}, fmt.Errorf("phonepe: pay rejected: %s %s", env.Code, env.Message)
	}
	var data phonePePayData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return CheckoutSession{}, fmt.Errorf("phonepe: decode pay data: %w", err)
	}
	if data.InstrumentResponse.RedirectInfo.URL == "" {
		return CheckoutSession{}, errors.New("phonepe: pay response missing redirect url")
	}
	return CheckoutSession{
		Provider:      ProviderPhonePe,
		TransactionID: req.TransactionID,
		RedirectURL:   data.InstrumentResponse.RedirectInfo.URL,
	}, nil
}

// VerifyCallback authenticates a server-to-server callback. The body is
// {"response": base64} and X-VERIFY covers the base64 string.
func (p *PhonePeProvider) VerifyCallback(_ context.Context, req CallbackRequest) (PaymentDetails, error) {
	var body struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil || body.Response == "" {
		return PaymentDetails{}, fmt.Errorf("%w: missing response field", ErrMalformedCallback)
	}
	if !VerifyChecksum(body.Response, req.Signature, p.saltKey, p.saltIndex) {
		return PaymentDetails{}, ErrInvalidSignature
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Response)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	var env phonePeEnvelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	return p.details(env)
}

// LookupPayment queries the status API for a transaction.
func (p *PhonePeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	txn := strings.TrimSpace(req.TransactionID)
	if txn == "" {
		return PaymentDetails{}, errors.New("phonepe: transaction id is required")
	}
	path := fmt.Sprintf("%s/%s/%s", phonePeStatusPath, p.merchantID, txn)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("phonepe: build status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", Checksum(path, p.saltKey, p.saltIndex))
	httpReq.Header.Set("X-MERCHANT-ID", p.merchantID)

	env, err := p.do(httpReq)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := p.details(env)
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.TransactionID == "" {
		details.TransactionID = txn
	}
	return details, nil
}

func (p *PhonePeProvider) details(env phonePeEnvelope) (PaymentDetails, error) {
	var data phonePeTransactionData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return PaymentDetails{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
	}
	if data.MerchantID != "" && data.MerchantID != p.merchantID {
		return PaymentDetails{}, fmt.Errorf("%w: merchant id mismatch", ErrMalformedCallback)
	}
	// PAYMENT_PENDING is interim and is followed by a final callback. Every
	// other non-success code is final.
	status := StatusFailed
	switch env.Code {
	case PhonePeCodeSuccess:
		status = StatusSucceeded
	case phonePeCodePending:
		status = StatusPending
	}
	return PaymentDetails{
		Provider:          ProviderPhonePe,
		TransactionID:     data.MerchantTransactionID,
		ProviderReference: data.TransactionID,
		Code:              env.Code,
		Status:            status,
		AmountPaise:       data.Amount,
	}, nil
}

// do sends req and decodes the gateway envelope. Non-2xx answers that still
// carry an envelope are returned as envelopes so callers see the code.
func (p *PhonePeProvider) do(req *http.Request) (phonePeEnvelope, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return phonePeEnvelope{}, fmt.Errorf("phonepe: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBodyBytes))
	if err != nil {
		return phonePeEnvelope{}, fmt.Errorf("phonepe: read response: %w", err)
	}
	var env phonePeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Code == "" {
		return phonePeEnvelope{}, fmt.Errorf("phonepe: unexpected response status %d", resp.StatusCode)
	}
	return env, nil
}
