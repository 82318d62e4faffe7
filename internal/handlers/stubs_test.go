package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/services"
)

type stubRepoError struct {
	msg         string
	notFound    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return false }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

type stubCatalogService struct {
	listFilter  services.BookFilter
	listResult  domain.Page[services.Book]
	book        services.Book
	series      []services.TestSeries
	seriesExam  string
	upsertCmd   services.UpsertBookCommand
	adjustCmd   services.AdjustStockCommand
	couponCmd   services.UpsertCouponCommand
	err         error
	upsertBookF func(services.UpsertBookCommand) (services.Book, error)
}

func (s *stubCatalogService) ListBooks(_ context.Context, filter services.BookFilter) (domain.Page[services.Book], error) {
	s.listFilter = filter
	return s.listResult, s.err
}

func (s *stubCatalogService) GetBook(_ context.Context, bookID string) (services.Book, error) {
	if s.err != nil {
		return services.Book{}, s.err
	}
	book := s.book
	if book.ID == "" {
		book.ID = bookID
	}
	return book, nil
}

func (s *stubCatalogService) ListTestSeries(_ context.Context, exam string) ([]services.TestSeries, error) {
	s.seriesExam = exam
	return s.series, s.err
}

func (s *stubCatalogService) UpsertBook(_ context.Context, cmd services.UpsertBookCommand) (services.Book, error) {
	s.upsertCmd = cmd
	if s.upsertBookF != nil {
		return s.upsertBookF(cmd)
	}
	return cmd.Book, s.err
}

func (s *stubCatalogService) AdjustStock(_ context.Context, cmd services.AdjustStockCommand) (services.Book, error) {
	s.adjustCmd = cmd
	if s.err != nil {
		return services.Book{}, s.err
	}
	book := s.book
	book.ID = cmd.BookID
	book.StockQuantity += cmd.Delta
	return book, nil
}

func (s *stubCatalogService) UpsertCoupon(_ context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	s.couponCmd = cmd
	return cmd.Coupon, s.err
}

type stubCartService struct {
	view      services.CartView
	err       error
	getKeys   []services.CartKey
	applied   []services.CartActionCommand
	clearedAt []services.CartKey
}

func (s *stubCartService) GetCart(_ context.Context, key services.CartKey) (services.CartView, error) {
	s.getKeys = append(s.getKeys, key)
	return s.view, s.err
}

func (s *stubCartService) Apply(_ context.Context, cmd services.CartActionCommand) (services.CartView, error) {
	s.applied = append(s.applied, cmd)
	return s.view, s.err
}

func (s *stubCartService) Clear(_ context.Context, key services.CartKey) error {
	s.clearedAt = append(s.clearedAt, key)
	return s.err
}

type stubCheckoutService struct {
	quote       services.PriceQuote
	quoteCmd    services.QuoteCommand
	applied     services.AppliedCoupon
	couponCmd   services.ValidateCouponCommand
	couponCalls int
	err         error
}

func (s *stubCheckoutService) Quote(_ context.Context, cmd services.QuoteCommand) (services.PriceQuote, error) {
	s.quoteCmd = cmd
	return s.quote, s.err
}

func (s *stubCheckoutService) ValidateCoupon(_ context.Context, cmd services.ValidateCouponCommand) (services.AppliedCoupon, error) {
	s.couponCalls++
	s.couponCmd = cmd
	return s.applied, s.err
}

type stubOrderService struct {
	order       services.Order
	page        domain.Page[services.Order]
	err         error
	placeCalls  int
	placeCmd    services.PlaceOrderCommand
	getCmd      services.GetOrderCommand
	cancelCmd   services.CancelOrderCommand
	listFilter  services.OrderListFilter
	transitions []services.OrderStatusTransitionCommand
}

func (s *stubOrderService) PlaceOrder(_ context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	s.placeCalls++
	s.placeCmd = cmd
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, cmd services.GetOrderCommand) (services.Order, error) {
	s.getCmd = cmd
	return s.order, s.err
}

func (s *stubOrderService) ListOrders(_ context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
	s.listFilter = filter
	return s.page, s.err
}

func (s *stubOrderService) Cancel(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	s.cancelCmd = cmd
	return s.order, s.err
}

func (s *stubOrderService) TransitionStatus(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	s.transitions = append(s.transitions, cmd)
	if s.err != nil {
		return services.Order{}, s.err
	}
	order := s.order
	order.Status = cmd.TargetStatus
	return order, nil
}

type stubPaymentService struct {
	session     services.PaymentSession
	order       services.Order
	redirect    services.PaymentRedirect
	err         error
	initiateCmd services.InitiatePaymentCommand
	callbackCmd services.PaymentCallbackCommand
	redirectCmd services.PaymentRedirectCommand
}

func (s *stubPaymentService) Initiate(_ context.Context, cmd services.InitiatePaymentCommand) (services.PaymentSession, error) {
	s.initiateCmd = cmd
	return s.session, s.err
}

func (s *stubPaymentService) HandleCallback(_ context.Context, cmd services.PaymentCallbackCommand) (services.Order, error) {
	s.callbackCmd = cmd
	return s.order, s.err
}

func (s *stubPaymentService) HandleRedirect(_ context.Context, cmd services.PaymentRedirectCommand) (services.PaymentRedirect, error) {
	s.redirectCmd = cmd
	return s.redirect, s.err
}

type stubAssetService struct {
	upload    services.CoverUpload
	err       error
	uploadCmd services.CoverUploadCommand
	deleteCmd services.DeleteUploadCommand
}

func (s *stubAssetService) IssueCoverUpload(_ context.Context, cmd services.CoverUploadCommand) (services.CoverUpload, error) {
	s.uploadCmd = cmd
	return s.upload, s.err
}

func (s *stubAssetService) DeleteUpload(_ context.Context, cmd services.DeleteUploadCommand) error {
	s.deleteCmd = cmd
	return s.err
}

// decodeErrorBody reads the error envelope; details sit next to the standard keys.
func decodeErrorBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return body
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	code, _ := decodeErrorBody(t, rr)["error"].(string)
	return code
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

type stubProfileService struct {
	profile services.UserProfile
	err     error
	cmd     services.GetProfileCommand
}

func (s *stubProfileService) GetProfile(_ context.Context, cmd services.GetProfileCommand) (services.UserProfile, error) {
	s.cmd = cmd
	if s.err != nil {
		return services.UserProfile{}, s.err
	}
	return s.profile, nil
}
