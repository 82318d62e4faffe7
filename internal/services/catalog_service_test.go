package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/repositories"
)

func newTestCatalogService(t *testing.T, books *stubBookRepo, coupons *stubCouponRepo) CatalogService {
	t.Helper()
	_, series, defaultCoupons := catalogFixture()
	if coupons == nil {
		coupons = defaultCoupons
	}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Books:      books,
		TestSeries: series,
		Coupons:    coupons,
		Clock:      fixedClock(testNow),
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc
}

func TestCatalogServiceGetBookHidesInactive(t *testing.T) {
	books, _, _ := catalogFixture()
	svc := newTestCatalogService(t, books, nil)

	if _, err := svc.GetBook(context.Background(), "retired"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found for inactive book, got %v", err)
	}
	if _, err := svc.GetBook(context.Background(), "missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	book, err := svc.GetBook(context.Background(), " polity ")
	if err != nil || book.ID != "polity" {
		t.Fatalf("expected polity, got %+v %v", book, err)
	}
}

func TestCatalogServiceUpsertBookNormalises(t *testing.T) {
	var saved domain.Book
	books := &stubBookRepo{upsertFn: func(_ context.Context, b domain.Book) (domain.Book, error) {
		saved = b
		return b, nil
	}}
	svc := newTestCatalogService(t, books, nil)

	_, err := svc.UpsertBook(context.Background(), UpsertBookCommand{
		ActorID: "admin-1",
		Book: domain.Book{
			ID:            "quant",
			Title:         "  Quantitative   Aptitude ",
			Description:   `<p>Practice sets</p><script>alert(1)</script><a href="https://example.com">site</a>`,
			Price:         399,
			StockQuantity: 12,
			IsActive:      true,
		},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.Title != "Quantitative Aptitude" || saved.Slug != "quantitative-aptitude" {
		t.Fatalf("unexpected title/slug %q %q", saved.Title, saved.Slug)
	}
	if strings.Contains(saved.Description, "<script") || !strings.Contains(saved.Description, "<p>Practice sets</p>") {
		t.Fatalf("description not sanitised: %q", saved.Description)
	}
	if !strings.Contains(saved.Description, `rel="nofollow"`) {
		t.Fatalf("expected nofollow links, got %q", saved.Description)
	}
	if saved.OriginalPrice != 399 || !saved.UpdatedAt.Equal(testNow) {
		t.Fatalf("unexpected defaults %+v", saved)
	}
}

func TestCatalogServiceUpsertBookValidation(t *testing.T) {
	svc := newTestCatalogService(t, &stubBookRepo{}, nil)
	tests := []struct {
		name string
		book domain.Book
	}{
		{"missing id", domain.Book{Title: "T", Price: 10}},
		{"slash id", domain.Book{ID: "a/b", Title: "T", Price: 10}},
		{"missing title", domain.Book{ID: "a", Price: 10}},
		{"zero price", domain.Book{ID: "a", Title: "T"}},
		{"negative stock", domain.Book{ID: "a", Title: "T", Price: 10, StockQuantity: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpsertBook(context.Background(), UpsertBookCommand{Book: tc.book})
			if !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCatalogServiceAdjustStock(t *testing.T) {
	books := &stubBookRepo{adjustFn: func(_ context.Context, id string, delta int, now time.Time) (domain.Book, error) {
		switch id {
		case "missing":
			return domain.Book{}, &repositories.StockError{Code: repositories.StockErrorNotFound, BookID: id}
		case "low":
			return domain.Book{}, &repositories.StockError{Code: repositories.StockErrorInsufficient, BookID: id, Available: 1}
		}
		return domain.Book{ID: id, StockQuantity: 5 + delta, UpdatedAt: now}, nil
	}}
	svc := newTestCatalogService(t, books, nil)

	book, err := svc.AdjustStock(context.Background(), AdjustStockCommand{BookID: "polity", Delta: 3})
	if err != nil || book.StockQuantity != 8 {
		t.Fatalf("unexpected adjust result %+v %v", book, err)
	}
	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{BookID: "missing", Delta: 1}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{BookID: "low", Delta: -3}); !errors.Is(err, ErrCatalogConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.AdjustStock(context.Background(), AdjustStockCommand{BookID: "polity"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for zero delta, got %v", err)
	}
}

func TestCatalogServiceUpsertCoupon(t *testing.T) {
	var saved domain.Coupon
	coupons := &stubCouponRepo{upsertFn: func(_ context.Context, c domain.Coupon) (domain.Coupon, error) {
		saved = c
		return c, nil
	}}
	svc := newTestCatalogService(t, &stubBookRepo{}, coupons)

	_, err := svc.UpsertCoupon(context.Background(), UpsertCouponCommand{Coupon: domain.Coupon{
		Code: " welcome50 ", Type: domain.CouponTypeFlat, Value: 50, IsActive: true,
	}})
	if err != nil {
		t.Fatalf("upsert coupon: %v", err)
	}
	if saved.Code != "WELCOME50" || !saved.CreatedAt.Equal(testNow) {
		t.Fatalf("unexpected coupon %+v", saved)
	}

	_, err = svc.UpsertCoupon(context.Background(), UpsertCouponCommand{Coupon: domain.Coupon{
		Code: "HALF", Type: domain.CouponTypePercentage, Value: 150,
	}})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid percentage, got %v", err)
	}
}
