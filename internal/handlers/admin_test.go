package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/services"
)

var adminIdentity = &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}}

func newAdminRouter(orders services.OrderService, catalog services.CatalogService, opts ...AdminOption) chi.Router {
	r := chi.NewRouter()
	NewAdminHandlers(nil, orders, catalog, opts...).Routes(r)
	return r
}

func adminRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(auth.WithIdentity(req.Context(), adminIdentity))
}

func TestAdminHandlersTransitionStatus(t *testing.T) {
	svc := &stubOrderService{order: sampleOrder()}
	rr := httptest.NewRecorder()
	newAdminRouter(svc, nil).ServeHTTP(rr, adminRequest(http.MethodPatch, "/orders/ORD-1/status", `{"target_status":" shipped ","note":"AWB 123"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.transitions) != 1 {
		t.Fatalf("expected one transition, got %d", len(svc.transitions))
	}
	cmd := svc.transitions[0]
	if cmd.OrderID != "ORD-1" || cmd.TargetStatus != domain.OrderStatusShipped || cmd.ActorID != "admin-1" || cmd.Note != "AWB 123" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	var body orderPayload
	decodeJSONBody(t, rr, &body)
	if body.Status != "shipped" || body.Cancellable {
		t.Fatalf("unexpected payload %+v", body)
	}
}

func TestAdminHandlersTransitionStatusInvalid(t *testing.T) {
	svc := &stubOrderService{err: fmt.Errorf("%w: delivered -> placed", services.ErrOrderInvalidState)}
	rr := httptest.NewRecorder()
	newAdminRouter(svc, nil).ServeHTTP(rr, adminRequest(http.MethodPatch, "/orders/ORD-1/status", `{"target_status":"placed"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "order_invalid_state" {
		t.Fatalf("expected order_invalid_state, got %s", code)
	}
}

func TestAdminHandlersRequireIdentity(t *testing.T) {
	svc := &stubOrderService{}
	rr := httptest.NewRecorder()
	newAdminRouter(svc, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/orders/ORD-1/status", strings.NewReader(`{"target_status":"shipped"}`)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if len(svc.transitions) != 0 {
		t.Fatalf("service must not be called")
	}
}

func TestAdminHandlersListOrdersAcrossCustomers(t *testing.T) {
	svc := &stubOrderService{page: domain.Page[services.Order]{Items: []services.Order{sampleOrder()}}}
	rr := httptest.NewRecorder()
	newAdminRouter(svc, nil).ServeHTTP(rr, adminRequest(http.MethodGet, "/orders?status=placed", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if svc.listFilter.UserID != "" || len(svc.listFilter.Status) != 1 {
		t.Fatalf("unexpected filter %+v", svc.listFilter)
	}
}

func TestAdminHandlersUpsertBook(t *testing.T) {
	catalog := &stubCatalogService{}
	body := `{"title":"Reasoning Made Easy","author":"R. Kumar","category":"ssc","price":350,"stock_quantity":12,"weight_grams":400}`
	rr := httptest.NewRecorder()
	newAdminRouter(nil, catalog).ServeHTTP(rr, adminRequest(http.MethodPut, "/books/bk-77", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	book := catalog.upsertCmd.Book
	if book.ID != "bk-77" || book.Title != "Reasoning Made Easy" || book.WeightGrams != 400 || !book.IsActive {
		t.Fatalf("unexpected book %+v", book)
	}
	if catalog.upsertCmd.ActorID != "admin-1" {
		t.Fatalf("expected actor admin-1, got %q", catalog.upsertCmd.ActorID)
	}

	catalog = &stubCatalogService{}
	rr = httptest.NewRecorder()
	newAdminRouter(nil, catalog).ServeHTTP(rr, adminRequest(http.MethodPut, "/books/bk-77", `{"title":"Old","is_active":false}`))
	if catalog.upsertCmd.Book.IsActive {
		t.Fatalf("expected explicit is_active=false to be kept")
	}
}

func TestAdminHandlersAdjustStock(t *testing.T) {
	catalog := &stubCatalogService{book: services.Book{StockQuantity: 5}}
	rr := httptest.NewRecorder()
	newAdminRouter(nil, catalog).ServeHTTP(rr, adminRequest(http.MethodPatch, "/books/bk-1/stock", `{"delta":-2}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if catalog.adjustCmd.BookID != "bk-1" || catalog.adjustCmd.Delta != -2 {
		t.Fatalf("unexpected command %+v", catalog.adjustCmd)
	}
	var body bookPayload
	decodeJSONBody(t, rr, &body)
	if body.StockQuantity != 3 {
		t.Fatalf("expected stock 3, got %d", body.StockQuantity)
	}

	catalog = &stubCatalogService{err: fmt.Errorf("%w: stock cannot go negative", services.ErrCatalogInvalidInput)}
	rr = httptest.NewRecorder()
	newAdminRouter(nil, catalog).ServeHTTP(rr, adminRequest(http.MethodPatch, "/books/bk-1/stock", `{"delta":-20}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminHandlersUpsertCoupon(t *testing.T) {
	catalog := &stubCatalogService{}
	body := `{"type":"Percentage","value":10,"min_purchase_amount":499,"expiry_date":"2024-12-31T18:30:00+05:30"}`
	rr := httptest.NewRecorder()
	newAdminRouter(nil, catalog).ServeHTTP(rr, adminRequest(http.MethodPut, "/coupons/DIWALI10", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	coupon := catalog.couponCmd.Coupon
	if coupon.Code != "DIWALI10" || coupon.Type != domain.CouponTypePercentage || !coupon.IsActive {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
	if !coupon.ExpiryDate.Equal(time.Date(2024, 12, 31, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %s", coupon.ExpiryDate)
	}

	rr = httptest.NewRecorder()
	newAdminRouter(nil, catalog).ServeHTTP(rr, adminRequest(http.MethodPut, "/coupons/DIWALI10", `{"type":"flat","value":50,"expiry_date":"31/12/2024"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad expiry, got %d", rr.Code)
	}
}

func TestAdminHandlersCoverUploads(t *testing.T) {
	expires := time.Date(2024, 3, 10, 12, 15, 0, 0, time.UTC)
	assets := &stubAssetService{upload: services.CoverUpload{
		UploadID:  "01HQUPLOAD",
		Key:       "covers/bk-1/01HQUPLOAD.jpg",
		URL:       "https://storage.googleapis.com/signed",
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": "image/jpeg"},
		ExpiresAt: expires,
	}}
	router := newAdminRouter(nil, nil, WithAdminAssets(assets))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/uploads", `{"book_id":"bk-1","file_name":"cover.jpg","content_type":"image/jpeg","size":204800}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if assets.uploadCmd.BookID != "bk-1" || assets.uploadCmd.Size != 204800 || assets.uploadCmd.ActorID != "admin-1" {
		t.Fatalf("unexpected upload command %+v", assets.uploadCmd)
	}
	var body coverUploadPayload
	decodeJSONBody(t, rr, &body)
	if body.Key != "covers/bk-1/01HQUPLOAD.jpg" || body.ExpiresAt != "2024-03-10T12:15:00Z" {
		t.Fatalf("unexpected body %+v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodDelete, "/uploads?key=covers/bk-1/old.jpg", ""))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if assets.deleteCmd.Key != "covers/bk-1/old.jpg" {
		t.Fatalf("unexpected delete command %+v", assets.deleteCmd)
	}

	assets.err = fmt.Errorf("%w: unsupported content type", services.ErrAssetInvalidInput)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, adminRequest(http.MethodPost, "/uploads", `{"book_id":"bk-1","file_name":"cover.exe","content_type":"application/octet-stream","size":10}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminHandlersUploadsDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	newAdminRouter(nil, nil).ServeHTTP(rr, adminRequest(http.MethodPost, "/uploads", `{}`))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
