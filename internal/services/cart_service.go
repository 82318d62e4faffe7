package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/exambook-store/api/internal/cart"
	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/repositories"
)

const (
	cartEventActionApplied = "cart.action.applied"
	cartEventRefreshFailed = "cart.refresh.failed"

	maxCartLineQuantity = 20
)

var (
	// ErrCartInvalidInput signals a malformed cart request.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemUnavailable indicates the product cannot be added to the cart.
	ErrCartItemUnavailable = errors.New("cart: item unavailable")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
// UserStore keeps carts of signed-in users; SessionStore keeps guest carts.
type CartServiceDeps struct {
	UserStore    cart.Store
	SessionStore cart.Store
	Books        repositories.BookRepository
	TestSeries   repositories.TestSeriesRepository
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	users    cart.Store
	sessions cart.Store
	books    repositories.BookRepository
	series   repositories.TestSeriesRepository
	clock    func() time.Time
	logger   serviceLogger
}

var _ CartService = (*cartService)(nil)

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.UserStore == nil {
		return nil, errors.New("cart service: user store is required")
	}
	if deps.SessionStore == nil {
		return nil, errors.New("cart service: session store is required")
	}
	if deps.Books == nil || deps.TestSeries == nil {
		return nil, errors.New("cart service: catalog repositories are required")
	}
	return &cartService{
		users:    deps.UserStore,
		sessions: deps.SessionStore,
		books:    deps.Books,
		series:   deps.TestSeries,
		clock:    ensureClock(deps.Clock),
		logger:   ensureLogger(deps.Logger),
	}, nil
}

func (s *cartService) store(key CartKey) (cart.Store, string, error) {
	if uid := strings.TrimSpace(key.UserID); uid != "" {
		return s.users, uid, nil
	}
	if sid := strings.TrimSpace(key.SessionID); sid != "" {
		return s.sessions, sid, nil
	}
	return nil, "", fmt.Errorf("%w: a signed-in user or cart session is required", ErrCartInvalidInput)
}

func (s *cartService) GetCart(ctx context.Context, key CartKey) (CartView, error) {
	store, id, err := s.store(key)
	if err != nil {
		return CartView{}, err
	}
	state, err := store.Load(ctx, id)
	if err != nil {
		return CartView{}, fmt.Errorf("cart: load: %w", err)
	}
	state = s.refresh(ctx, state)
	return s.view(state)
}

func (s *cartService) Apply(ctx context.Context, cmd CartActionCommand) (CartView, error) {
	store, id, err := s.store(cmd.Key)
	if err != nil {
		return CartView{}, err
	}
	action := cmd.Action
	if err := action.Validate(); err != nil {
		return CartView{}, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	if action.Type == cart.ActionUpdateQuantity && action.Quantity > maxCartLineQuantity {
		return CartView{}, fmt.Errorf("%w: at most %d copies per item", ErrCartInvalidInput, maxCartLineQuantity)
	}
	if action.Type == cart.ActionAddItem || action.Type == cart.ActionAddToWishlist {
		item, err := s.catalogItem(ctx, *action.Item, action.Type == cart.ActionAddItem)
		if err != nil {
			return CartView{}, err
		}
		action.Item = &item
	}

	state, err := store.Load(ctx, id)
	if err != nil {
		return CartView{}, fmt.Errorf("cart: load: %w", err)
	}
	next := cart.Reduce(state, action, s.clock())
	if err := store.Save(ctx, id, next); err != nil {
		return CartView{}, fmt.Errorf("cart: save: %w", err)
	}
	s.logger(ctx, cartEventActionApplied, map[string]any{
		"action": string(action.Type),
		"bookId": action.TargetID(),
		"lines":  len(next.Items),
	})
	return s.view(next)
}

func (s *cartService) Clear(ctx context.Context, key CartKey) error {
	store, id, err := s.store(key)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, id); err != nil {
		return fmt.Errorf("cart: delete: %w", err)
	}
	return nil
}

// catalogItem replaces client supplied item details with catalog data so a
// client cannot set its own price. Sold-out books may still be wishlisted.
func (s *cartService) catalogItem(ctx context.Context, requested cart.Item, requireStock bool) (cart.Item, error) {
	id := strings.TrimSpace(requested.BookID)
	qty := max(1, requested.Quantity)
	if qty > maxCartLineQuantity {
		return cart.Item{}, fmt.Errorf("%w: at most %d copies per item", ErrCartInvalidInput, maxCartLineQuantity)
	}

	if requested.Kind.IsDigital() {
		ts, err := s.series.Get(ctx, id)
		if err != nil {
			if isRepositoryNotFound(err) {
				return cart.Item{}, fmt.Errorf("%w: test series %s not found", ErrCartItemUnavailable, id)
			}
			return cart.Item{}, mapRepositoryError(err, "cart", nil, nil)
		}
		if !ts.IsActive {
			return cart.Item{}, fmt.Errorf("%w: %s is no longer available", ErrCartItemUnavailable, ts.Title)
		}
		return cartItemFrom(testSeriesCartItem(ts, qty)), nil
	}

	book, err := s.books.Get(ctx, id)
	if err != nil {
		if isRepositoryNotFound(err) {
			return cart.Item{}, fmt.Errorf("%w: book %s not found", ErrCartItemUnavailable, id)
		}
		return cart.Item{}, mapRepositoryError(err, "cart", nil, nil)
	}
	if !book.IsActive {
		return cart.Item{}, fmt.Errorf("%w: %s is no longer available", ErrCartItemUnavailable, book.Title)
	}
	if requireStock && book.StockQuantity < 1 {
		return cart.Item{}, fmt.Errorf("%w: %s is out of stock", ErrCartItemUnavailable, book.Title)
	}
	return cartItemFrom(bookCartItem(book, qty)), nil
}

// refresh re-reads catalog prices for stored lines. Lookup failures keep the
// stored values; the order path prices from the catalog regardless.
func (s *cartService) refresh(ctx context.Context, state cart.State) cart.State {
	if len(state.Items) == 0 {
		return state
	}
	var bookIDs, seriesIDs []string
	for _, item := range state.Items {
		if item.Kind.IsDigital() {
			seriesIDs = append(seriesIDs, item.BookID)
		} else {
			bookIDs = append(bookIDs, item.BookID)
		}
	}
	books, err := s.books.GetMany(ctx, bookIDs)
	if err != nil {
		s.logger(ctx, cartEventRefreshFailed, map[string]any{"error": err.Error()})
		return state
	}
	series, err := s.series.GetMany(ctx, seriesIDs)
	if err != nil {
		s.logger(ctx, cartEventRefreshFailed, map[string]any{"error": err.Error()})
		return state
	}

	items := make([]cart.Item, 0, len(state.Items))
	for _, item := range state.Items {
		if item.Kind.IsDigital() {
			if ts, ok := series[item.BookID]; ok && ts.IsActive {
				items = append(items, cartItemFrom(testSeriesCartItem(ts, item.Quantity)))
			}
			continue
		}
		if book, ok := books[item.BookID]; ok && book.IsActive {
			items = append(items, cartItemFrom(bookCartItem(book, item.Quantity)))
		}
	}
	state.Items = items
	return state
}

func (s *cartService) view(state cart.State) (CartView, error) {
	if state.Items == nil {
		state.Items = []cart.Item{}
	}
	if state.Wishlist == nil {
		state.Wishlist = []cart.WishlistItem{}
	}
	quote, err := CalculatePrice(PriceInput{
		Items:  state.CartItems(),
		Policy: flatShippingPolicy{},
		Now:    s.clock(),
	})
	if err != nil {
		return CartView{}, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	}
	return CartView{State: state, Summary: quote, ItemCount: state.ItemCount()}, nil
}

func cartItemFrom(item domain.CartItem) cart.Item {
	return cart.Item{
		BookID:        item.BookID,
		Kind:          item.Kind,
		Title:         item.Title,
		Author:        item.Author,
		Price:         item.Price,
		OriginalPrice: item.OriginalPrice,
		Image:         item.Image,
		Quantity:      item.Quantity,
		Slug:          item.Slug,
		WeightGrams:   item.WeightGrams,
	}
}
