package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/exambook-store/api/internal/platform/httpx"
	"github.com/exambook-store/api/internal/services"
)

// CatalogHandlers serves the public catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers /books and /test-series.
func (h *CatalogHandlers) Routes(r chi.Router) {
	r.Get("/books", h.listBooks)
	r.Get("/books/{bookID}", h.getBook)
	r.Get("/test-series", h.listTestSeries)
}

type bookListResponse struct {
	Items         []bookPayload `json:"items"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

func (h *CatalogHandlers) listBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	page, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()
	result, err := h.catalog.ListBooks(ctx, services.BookFilter{
		Category:   strings.TrimSpace(query.Get("category")),
		Exam:       strings.TrimSpace(query.Get("exam")),
		ActiveOnly: true,
		Pagination: page,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	resp := bookListResponse{Items: make([]bookPayload, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, book := range result.Items {
		resp.Items = append(resp.Items, buildBookPayload(book))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) getBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	book, err := h.catalog.GetBook(ctx, chi.URLParam(r, "bookID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildBookPayload(book))
}

func (h *CatalogHandlers) listTestSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	series, err := h.catalog.ListTestSeries(ctx, strings.TrimSpace(r.URL.Query().Get("exam")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	items := make([]testSeriesPayload, 0, len(series))
	for _, ts := range series {
		items = append(items, buildTestSeriesPayload(ts))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errorMessage(err, services.ErrCatalogInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "book not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", errorMessage(err, services.ErrCatalogConflict), http.StatusConflict))
	default:
		writeBackendError(ctx, w, "catalog_error", err)
	}
}
