package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/auth"
	"github.com/exambook-store/api/internal/platform/httpx"
	"github.com/exambook-store/api/internal/services"
)

const maxAdminBodySize = 64 * 1024

// AdminHandlers exposes the back-office endpoints. Every route requires the admin role.
type AdminHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	catalog services.CatalogService
	assets  services.AssetService
	clock   func() time.Time
}

// AdminOption customises AdminHandlers.
type AdminOption func(*AdminHandlers)

// WithAdminAssets enables the cover upload endpoints.
func WithAdminAssets(assets services.AssetService) AdminOption {
	return func(h *AdminHandlers) { h.assets = assets }
}

// WithAdminClock overrides the clock used to report cancellability.
func WithAdminClock(clock func() time.Time) AdminOption {
	return func(h *AdminHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, catalog services.CatalogService, opts ...AdminOption) *AdminHandlers {
	h := &AdminHandlers{authn: authn, orders: orders, catalog: catalog, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers admin endpoints relative to the /admin mount.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}/status", h.transitionStatus)
	r.Put("/books/{bookID}", h.upsertBook)
	r.Patch("/books/{bookID}/stock", h.adjustStock)
	r.Put("/coupons/{code}", h.upsertCoupon)
	r.Post("/uploads", h.issueUpload)
	r.Delete("/uploads", h.deleteUpload)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		serviceUnavailable(r.Context(), w, "order")
		return
	}
	listOrders(w, r, h.orders, "")
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Viewer:  services.OrderViewer{UserID: identity.UID, IsAdmin: true},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order, services.CancellationEligibility(order, h.clock()).Allowed))
}

type statusTransitionRequest struct {
	TargetStatus string `json:"target_status"`
	Note         string `json:"note"`
}

func (h *AdminHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req statusTransitionRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: domain.OrderStatus(strings.TrimSpace(req.TargetStatus)),
		ActorID:      identity.UID,
		Note:         req.Note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order, services.CancellationEligibility(order, h.clock()).Allowed))
}

type upsertBookRequest struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Exam          string `json:"exam"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"original_price"`
	StockQuantity int    `json:"stock_quantity"`
	WeightGrams   int    `json:"weight_grams"`
	CoverImage    string `json:"cover_image"`
	IsActive      *bool  `json:"is_active"`
}

func (req upsertBookRequest) book(id string) domain.Book {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return domain.Book{
		ID:            id,
		Title:         req.Title,
		Author:        req.Author,
		Slug:          req.Slug,
		Description:   req.Description,
		Category:      req.Category,
		Exam:          req.Exam,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		StockQuantity: req.StockQuantity,
		WeightGrams:   req.WeightGrams,
		CoverImage:    req.CoverImage,
		IsActive:      active,
	}
}

func (h *AdminHandlers) upsertBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req upsertBookRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	book, err := h.catalog.UpsertBook(ctx, services.UpsertBookCommand{
		Book:    req.book(strings.TrimSpace(chi.URLParam(r, "bookID"))),
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBookPayload(book))
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

func (h *AdminHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req adjustStockRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	book, err := h.catalog.AdjustStock(ctx, services.AdjustStockCommand{
		BookID:  strings.TrimSpace(chi.URLParam(r, "bookID")),
		Delta:   req.Delta,
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBookPayload(book))
}

type upsertCouponRequest struct {
	Type              string `json:"type"`
	Value             int64  `json:"value"`
	MinPurchaseAmount int64  `json:"min_purchase_amount"`
	IsActive          *bool  `json:"is_active"`
	ExpiryDate        string `json:"expiry_date"`
	Description       string `json:"description"`
}

type couponPayload struct {
	Code              string `json:"code"`
	Type              string `json:"type"`
	Value             int64  `json:"value"`
	MinPurchaseAmount int64  `json:"min_purchase_amount"`
	IsActive          bool   `json:"is_active"`
	ExpiryDate        string `json:"expiry_date,omitempty"`
	Description       string `json:"description,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

func buildCouponPayload(c domain.Coupon) couponPayload {
	return couponPayload{
		Code:              c.Code,
		Type:              string(c.Type),
		Value:             c.Value,
		MinPurchaseAmount: c.MinPurchaseAmount,
		IsActive:          c.IsActive,
		ExpiryDate:        formatTime(c.ExpiryDate),
		Description:       c.Description,
		UpdatedAt:         formatTime(c.UpdatedAt),
	}
}

func (h *AdminHandlers) upsertCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req upsertCouponRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	coupon := domain.Coupon{
		Code:              strings.TrimSpace(chi.URLParam(r, "code")),
		Type:              domain.CouponType(strings.ToLower(strings.TrimSpace(req.Type))),
		Value:             req.Value,
		MinPurchaseAmount: req.MinPurchaseAmount,
		IsActive:          req.IsActive == nil || *req.IsActive,
		Description:       req.Description,
	}
	if expiry := strings.TrimSpace(req.ExpiryDate); expiry != "" {
		parsed, err := time.Parse(time.RFC3339, expiry)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expiry_date must be RFC3339", http.StatusBadRequest))
			return
		}
		coupon.ExpiryDate = parsed.UTC()
	}
	saved, err := h.catalog.UpsertCoupon(ctx, services.UpsertCouponCommand{Coupon: coupon, ActorID: identity.UID})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCouponPayload(saved))
}

type coverUploadRequest struct {
	BookID      string `json:"book_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	ContentMD5  string `json:"content_md5"`
	Size        int64  `json:"size"`
}

type coverUploadPayload struct {
	UploadID  string            `json:"upload_id"`
	Key       string            `json:"key"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt string            `json:"expires_at"`
	PublicURL string            `json:"public_url,omitempty"`
}

func (h *AdminHandlers) issueUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil {
		serviceUnavailable(ctx, w, "asset")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req coverUploadRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	upload, err := h.assets.IssueCoverUpload(ctx, services.CoverUploadCommand{
		BookID:      req.BookID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		ContentMD5:  req.ContentMD5,
		Size:        req.Size,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeAssetError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, coverUploadPayload{
		UploadID:  upload.UploadID,
		Key:       upload.Key,
		URL:       upload.URL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		ExpiresAt: formatTime(upload.ExpiresAt),
		PublicURL: upload.PublicURL,
	})
}

func (h *AdminHandlers) deleteUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil {
		serviceUnavailable(ctx, w, "asset")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	err := h.assets.DeleteUpload(ctx, services.DeleteUploadCommand{
		Key:     r.URL.Query().Get("key"),
		ActorID: identity.UID,
	})
	if err != nil {
		writeAssetError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAssetError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAssetInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrAssetInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrAssetNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "upload not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAssetUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "storage unavailable", http.StatusServiceUnavailable))
	default:
		writeBackendError(ctx, w, "asset_error", err)
	}
}
