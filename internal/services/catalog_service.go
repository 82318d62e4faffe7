package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/textutil"
	"github.com/exambook-store/api/internal/repositories"
)

const (
	catalogEventBookUpserted   = "catalog.book.upserted"
	catalogEventStockAdjusted  = "catalog.book.stock_adjusted"
	catalogEventCouponUpserted = "catalog.coupon.upserted"

	maxBookTitleLength       = 200
	maxBookDescriptionLength = 20000
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the book or coupon does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a concurrent write or a stock adjustment below zero.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Books      repositories.BookRepository
	TestSeries repositories.TestSeriesRepository
	Coupons    repositories.CouponRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	books    repositories.BookRepository
	series   repositories.TestSeriesRepository
	coupons  repositories.CouponRepository
	clock    func() time.Time
	logger   serviceLogger
	sanitize *bluemonday.Policy
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Books == nil {
		return nil, errors.New("catalog service: book repository is required")
	}
	if deps.TestSeries == nil {
		return nil, errors.New("catalog service: test series repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("catalog service: coupon repository is required")
	}
	return &catalogService{
		books:    deps.Books,
		series:   deps.TestSeries,
		coupons:  deps.Coupons,
		clock:    ensureClock(deps.Clock),
		logger:   ensureLogger(deps.Logger),
		sanitize: newDescriptionPolicy(),
	}, nil
}

func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "ul", "ol", "li")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

func (s *catalogService) ListBooks(ctx context.Context, filter BookFilter) (domain.Page[Book], error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Exam = strings.TrimSpace(filter.Exam)
	page, err := s.books.List(ctx, filter)
	if err != nil {
		return domain.Page[Book]{}, mapRepositoryError(err, "catalog", ErrCatalogNotFound, ErrCatalogConflict)
	}
	return page, nil
}

func (s *catalogService) GetBook(ctx context.Context, bookID string) (Book, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return Book{}, fmt.Errorf("%w: book id is required", ErrCatalogInvalidInput)
	}
	book, err := s.books.Get(ctx, bookID)
	if err != nil {
		return Book{}, mapRepositoryError(err, "catalog", ErrCatalogNotFound, ErrCatalogConflict)
	}
	if !book.IsActive {
		return Book{}, fmt.Errorf("%w: book %s is not available", ErrCatalogNotFound, bookID)
	}
	return book, nil
}

func (s *catalogService) ListTestSeries(ctx context.Context, exam string) ([]TestSeries, error) {
	series, err := s.series.List(ctx, strings.TrimSpace(exam), true)
	if err != nil {
		return nil, mapRepositoryError(err, "catalog", ErrCatalogNotFound, ErrCatalogConflict)
	}
	return series, nil
}

func (s *catalogService) UpsertBook(ctx context.Context, cmd UpsertBookCommand) (Book, error) {
	book := cmd.Book
	book.ID = strings.TrimSpace(book.ID)
	book.Title = textutil.CollapseSpace(book.Title)
	book.Author = textutil.CollapseSpace(book.Author)
	book.Category = strings.TrimSpace(book.Category)
	book.Exam = strings.TrimSpace(book.Exam)
	book.CoverImage = strings.TrimSpace(book.CoverImage)

	switch {
	case book.ID == "":
		return Book{}, fmt.Errorf("%w: book id is required", ErrCatalogInvalidInput)
	case strings.ContainsAny(book.ID, "/\\"):
		return Book{}, fmt.Errorf("%w: book id must not contain slashes", ErrCatalogInvalidInput)
	case book.Title == "":
		return Book{}, fmt.Errorf("%w: title is required", ErrCatalogInvalidInput)
	case len(book.Title) > maxBookTitleLength:
		return Book{}, fmt.Errorf("%w: title exceeds %d characters", ErrCatalogInvalidInput, maxBookTitleLength)
	case book.Price <= 0:
		return Book{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	case book.OriginalPrice < 0:
		return Book{}, fmt.Errorf("%w: original price must not be negative", ErrCatalogInvalidInput)
	case book.StockQuantity < 0:
		return Book{}, fmt.Errorf("%w: stock quantity must not be negative", ErrCatalogInvalidInput)
	case book.WeightGrams < 0:
		return Book{}, fmt.Errorf("%w: weight must not be negative", ErrCatalogInvalidInput)
	case len(book.Description) > maxBookDescriptionLength:
		return Book{}, fmt.Errorf("%w: description is too long", ErrCatalogInvalidInput)
	}
	if book.OriginalPrice == 0 {
		book.OriginalPrice = book.Price
	}
	book.Slug = textutil.Slugify(chooseFirstNonEmpty(book.Slug, book.Title))
	book.Description = strings.TrimSpace(s.sanitize.Sanitize(book.Description))
	book.UpdatedAt = s.clock()

	saved, err := s.books.Upsert(ctx, book)
	if err != nil {
		return Book{}, mapRepositoryError(err, "catalog", ErrCatalogNotFound, ErrCatalogConflict)
	}
	s.logger(ctx, catalogEventBookUpserted, map[string]any{
		"bookId":  saved.ID,
		"actorId": cmd.ActorID,
		"stock":   saved.StockQuantity,
	})
	return saved, nil
}

func (s *catalogService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Book, error) {
	bookID := strings.TrimSpace(cmd.BookID)
	if bookID == "" {
		return Book{}, fmt.Errorf("%w: book id is required", ErrCatalogInvalidInput)
	}
	if cmd.Delta == 0 {
		return Book{}, fmt.Errorf("%w: delta must not be zero", ErrCatalogInvalidInput)
	}
	book, err := s.books.AdjustStock(ctx, bookID, cmd.Delta, s.clock())
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			switch stockErr.Code {
			case repositories.StockErrorNotFound:
				return Book{}, fmt.Errorf("%w: %s", ErrCatalogNotFound, stockErr.Error())
			case repositories.StockErrorInsufficient:
				return Book{}, fmt.Errorf("%w: stock would drop below zero (available %d)", ErrCatalogConflict, stockErr.Available)
			}
		}
		return Book{}, mapRepositoryError(err, "catalog", ErrCatalogNotFound, ErrCatalogConflict)
	}
	s.logger(ctx, catalogEventStockAdjusted, map[string]any{
		"bookId":  book.ID,
		"actorId": cmd.ActorID,
		"delta":   cmd.Delta,
		"stock":   book.StockQuantity,
	})
	return book, nil
}

func (s *catalogService) UpsertCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon := cmd.Coupon
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	coupon.Description = textutil.CollapseSpace(coupon.Description)

	switch {
	case coupon.Code == "":
		return Coupon{}, fmt.Errorf("%w: coupon code is required", ErrCatalogInvalidInput)
	case strings.ContainsAny(coupon.Code, "/\\ "):
		return Coupon{}, fmt.Errorf("%w: coupon code must not contain spaces or slashes", ErrCatalogInvalidInput)
	case coupon.Value <= 0:
		return Coupon{}, fmt.Errorf("%w: coupon value must be positive", ErrCatalogInvalidInput)
	case coupon.MinPurchaseAmount < 0:
		return Coupon{}, fmt.Errorf("%w: minimum purchase must not be negative", ErrCatalogInvalidInput)
	}
	switch coupon.Type {
	case domain.CouponTypePercentage:
		if coupon.Value > 100 {
			return Coupon{}, fmt.Errorf("%w: percentage coupons cannot exceed 100", ErrCatalogInvalidInput)
		}
	case domain.CouponTypeFlat:
	default:
		return Coupon{}, fmt.Errorf("%w: coupon type must be percentage or flat", ErrCatalogInvalidInput)
	}

	now := s.clock()
	coupon.UpdatedAt = now
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = now
	}
	if !coupon.ExpiryDate.IsZero() {
		coupon.ExpiryDate = coupon.ExpiryDate.UTC()
	}

	saved, err := s.coupons.Upsert(ctx, coupon)
	if err != nil {
		return Coupon{}, mapRepositoryError(err, "catalog", ErrCatalogNotFound, ErrCatalogConflict)
	}
	s.logger(ctx, catalogEventCouponUpserted, map[string]any{
		"code":    saved.Code,
		"actorId": cmd.ActorID,
		"active":  saved.IsActive,
	})
	return saved, nil
}
