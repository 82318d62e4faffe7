package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/repositories"
)

const maxCheckoutLines = 50

var (
	// ErrCheckoutInvalidInput signals a malformed quote or coupon request.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutItemUnavailable indicates an item is unknown, inactive or out of stock.
	ErrCheckoutItemUnavailable = errors.New("checkout: item unavailable")
)

// ItemUnavailableError names the catalog item that blocked pricing.
type ItemUnavailableError struct {
	BookID    string
	Title     string
	Reason    string
	Requested int
	Available int
}

func (e *ItemUnavailableError) Error() string {
	name := e.Title
	if name == "" {
		name = e.BookID
	}
	switch e.Reason {
	case "insufficient_stock":
		return fmt.Sprintf("only %d left in stock for %s", e.Available, name)
	case "inactive":
		return fmt.Sprintf("%s is no longer available", name)
	}
	return fmt.Sprintf("item %s not found", e.BookID)
}

func (e *ItemUnavailableError) Unwrap() error { return ErrCheckoutItemUnavailable }

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Books      repositories.BookRepository
	TestSeries repositories.TestSeriesRepository
	Coupons    repositories.CouponRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	catalog itemResolver
	coupons repositories.CouponRepository
	clock   func() time.Time
	logger  serviceLogger
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Books == nil || deps.TestSeries == nil {
		return nil, errors.New("checkout service: catalog repositories are required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("checkout service: coupon repository is required")
	}
	return &checkoutService{
		catalog: itemResolver{books: deps.Books, series: deps.TestSeries},
		coupons: deps.Coupons,
		clock:   ensureClock(deps.Clock),
		logger:  ensureLogger(deps.Logger),
	}, nil
}

func (s *checkoutService) Quote(ctx context.Context, cmd QuoteCommand) (PriceQuote, error) {
	items, err := s.catalog.resolve(ctx, cmd.Items, true)
	if err != nil {
		return PriceQuote{}, err
	}
	coupon, err := lookupCoupon(ctx, s.coupons, cmd.CouponCode)
	if err != nil {
		return PriceQuote{}, err
	}
	quote, err := CalculatePrice(PriceInput{
		Items:      items,
		State:      cmd.State,
		Coupon:     coupon,
		CouponCode: cmd.CouponCode,
		Policy:     zoneWeightShippingPolicy{},
		Now:        s.clock(),
	})
	if err != nil {
		if errors.Is(err, ErrCouponRejected) {
			return PriceQuote{}, err
		}
		return PriceQuote{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	return quote, nil
}

func (s *checkoutService) ValidateCoupon(ctx context.Context, cmd ValidateCouponCommand) (AppliedCoupon, error) {
	code := strings.TrimSpace(cmd.Code)
	if code == "" {
		return AppliedCoupon{}, fmt.Errorf("%w: coupon code is required", ErrCheckoutInvalidInput)
	}
	if cmd.Subtotal < 0 {
		return AppliedCoupon{}, fmt.Errorf("%w: subtotal must not be negative", ErrCheckoutInvalidInput)
	}
	coupon, err := lookupCoupon(ctx, s.coupons, code)
	if err != nil {
		return AppliedCoupon{}, err
	}
	applied, err := ValidateCoupon(coupon, cmd.Subtotal, s.clock())
	if err != nil {
		var couponErr *CouponError
		if errors.As(err, &couponErr) && couponErr.Code == "" {
			couponErr.Code = strings.ToUpper(code)
		}
		s.logger(ctx, "checkout.coupon.rejected", map[string]any{"code": strings.ToUpper(code), "error": err.Error()})
		return AppliedCoupon{}, err
	}
	return applied, nil
}

// lookupCoupon returns nil without error when code is blank or unknown so
// ValidateCoupon reports not_found.
func lookupCoupon(ctx context.Context, coupons repositories.CouponRepository, code string) (*domain.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	coupon, err := coupons.Get(ctx, code)
	if err != nil {
		if isRepositoryNotFound(err) {
			return nil, nil
		}
		return nil, mapRepositoryError(err, "checkout", nil, nil)
	}
	return &coupon, nil
}

// itemResolver turns client item references into priced cart lines using
// catalog data only.
type itemResolver struct {
	books  repositories.BookRepository
	series repositories.TestSeriesRepository
}

// resolve merges duplicate references, loads each product and, when
// checkStock is set, rejects quantities beyond current stock. The order
// transaction re-checks stock, so this is a pre-flight only.
func (r itemResolver) resolve(ctx context.Context, refs []CheckoutItem, checkStock bool) ([]domain.CartItem, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrCheckoutInvalidInput)
	}
	type key struct {
		id   string
		kind domain.ItemKind
	}
	quantities := make(map[key]int)
	var order []key
	for _, ref := range refs {
		id := strings.TrimSpace(ref.BookID)
		if id == "" {
			return nil, fmt.Errorf("%w: item id is required", ErrCheckoutInvalidInput)
		}
		if ref.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", ErrCheckoutInvalidInput, id)
		}
		kind := ref.Kind
		switch kind {
		case "":
			kind = domain.ItemKindBook
		case domain.ItemKindBook, domain.ItemKindTestSeries:
		default:
			return nil, fmt.Errorf("%w: unknown item kind %q", ErrCheckoutInvalidInput, kind)
		}
		k := key{id: id, kind: kind}
		if _, seen := quantities[k]; !seen {
			order = append(order, k)
		}
		quantities[k] += ref.Quantity
	}
	if len(order) > maxCheckoutLines {
		return nil, fmt.Errorf("%w: at most %d distinct items per order", ErrCheckoutInvalidInput, maxCheckoutLines)
	}

	var bookIDs, seriesIDs []string
	for _, k := range order {
		if k.kind.IsDigital() {
			seriesIDs = append(seriesIDs, k.id)
		} else {
			bookIDs = append(bookIDs, k.id)
		}
	}
	books, err := r.books.GetMany(ctx, bookIDs)
	if err != nil {
		return nil, mapRepositoryError(err, "checkout", nil, nil)
	}
	series, err := r.series.GetMany(ctx, seriesIDs)
	if err != nil {
		return nil, mapRepositoryError(err, "checkout", nil, nil)
	}

	items := make([]domain.CartItem, 0, len(order))
	for _, k := range order {
		qty := quantities[k]
		if k.kind.IsDigital() {
			ts, ok := series[k.id]
			if !ok {
				return nil, &ItemUnavailableError{BookID: k.id, Reason: "not_found"}
			}
			if !ts.IsActive {
				return nil, &ItemUnavailableError{BookID: k.id, Title: ts.Title, Reason: "inactive"}
			}
			items = append(items, testSeriesCartItem(ts, qty))
			continue
		}
		book, ok := books[k.id]
		if !ok {
			return nil, &ItemUnavailableError{BookID: k.id, Reason: "not_found"}
		}
		if !book.IsActive {
			return nil, &ItemUnavailableError{BookID: k.id, Title: book.Title, Reason: "inactive"}
		}
		if checkStock && !book.InStock(qty) {
			return nil, &ItemUnavailableError{
				BookID:    k.id,
				Title:     book.Title,
				Reason:    "insufficient_stock",
				Requested: qty,
				Available: book.StockQuantity,
			}
		}
		items = append(items, bookCartItem(book, qty))
	}
	return items, nil
}

func bookCartItem(book domain.Book, qty int) domain.CartItem {
	return domain.CartItem{
		BookID:        book.ID,
		Kind:          domain.ItemKindBook,
		Title:         book.Title,
		Author:        book.Author,
		Price:         book.Price,
		OriginalPrice: book.OriginalPrice,
		Image:         book.CoverImage,
		Quantity:      qty,
		Slug:          book.Slug,
		WeightGrams:   book.WeightGrams,
	}
}

func testSeriesCartItem(ts domain.TestSeries, qty int) domain.CartItem {
	return domain.CartItem{
		BookID:        ts.ID,
		Kind:          domain.ItemKindTestSeries,
		Title:         ts.Title,
		Price:         ts.Price,
		OriginalPrice: ts.OriginalPrice,
		Quantity:      qty,
		Slug:          ts.Slug,
	}
}
