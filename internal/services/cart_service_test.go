package services

import (
	"context"
	"errors"
	"testing"

	"github.com/exambook-store/api/internal/cart"
	domain "github.com/exambook-store/api/internal/domain"
)

func newTestCartService(t *testing.T) (CartService, *cart.MemoryStore, *cart.MemoryStore, *stubBookRepo) {
	t.Helper()
	books, series, _ := catalogFixture()
	users := cart.NewMemoryStore()
	sessions := cart.NewMemoryStore()
	svc, err := NewCartService(CartServiceDeps{
		UserStore:    users,
		SessionStore: sessions,
		Books:        books,
		TestSeries:   series,
		Clock:        fixedClock(testNow),
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc, users, sessions, books
}

func TestCartServiceAddItemUsesCatalogPrice(t *testing.T) {
	svc, _, sessions, _ := newTestCartService(t)
	key := CartKey{SessionID: "sess-1"}

	view, err := svc.Apply(context.Background(), CartActionCommand{
		Key: key,
		Action: cart.Action{
			Type: cart.ActionAddItem,
			Item: &cart.Item{BookID: "polity", Price: 1, Title: "tampered", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(view.State.Items) != 1 {
		t.Fatalf("expected one line, got %+v", view.State.Items)
	}
	line := view.State.Items[0]
	if line.Price != 450 || line.Title != "Indian Polity" || line.Quantity != 2 {
		t.Fatalf("expected catalog data, got %+v", line)
	}
	// 900 is above the free threshold on the flat policy.
	if view.Summary.Subtotal != 900 || view.Summary.ShippingCharges != 0 || view.Summary.Policy != domain.ShippingPolicyFlat {
		t.Fatalf("unexpected summary %+v", view.Summary)
	}
	if view.ItemCount != 2 {
		t.Fatalf("expected item count 2, got %d", view.ItemCount)
	}

	stored, err := sessions.Load(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(stored.Items) != 1 {
		t.Fatalf("expected state to be persisted in the session store")
	}
}

func TestCartServiceFlatShippingBelowThreshold(t *testing.T) {
	svc, _, _, _ := newTestCartService(t)
	view, err := svc.Apply(context.Background(), CartActionCommand{
		Key:    CartKey{SessionID: "sess-1"},
		Action: cart.Action{Type: cart.ActionAddItem, Item: &cart.Item{BookID: "history"}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if view.Summary.ShippingCharges != FlatShippingCharge || view.Summary.Total != 350 {
		t.Fatalf("unexpected summary %+v", view.Summary)
	}
}

func TestCartServiceUserKeyWinsOverSession(t *testing.T) {
	svc, users, sessions, _ := newTestCartService(t)
	_, err := svc.Apply(context.Background(), CartActionCommand{
		Key:    CartKey{UserID: "uid-1", SessionID: "sess-1"},
		Action: cart.Action{Type: cart.ActionAddItem, Item: &cart.Item{BookID: "polity"}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	userState, _ := users.Load(context.Background(), "uid-1")
	sessionState, _ := sessions.Load(context.Background(), "sess-1")
	if len(userState.Items) != 1 || len(sessionState.Items) != 0 {
		t.Fatalf("expected write to the user store only")
	}
}

func TestCartServiceRejectsUnavailableItems(t *testing.T) {
	svc, _, _, _ := newTestCartService(t)
	for _, id := range []string{"missing", "retired", "sold-out"} {
		_, err := svc.Apply(context.Background(), CartActionCommand{
			Key:    CartKey{SessionID: "sess-1"},
			Action: cart.Action{Type: cart.ActionAddItem, Item: &cart.Item{BookID: id}},
		})
		if !errors.Is(err, ErrCartItemUnavailable) {
			t.Fatalf("%s: expected unavailable, got %v", id, err)
		}
	}
}

func TestCartServiceValidation(t *testing.T) {
	svc, _, _, _ := newTestCartService(t)
	tests := []struct {
		name string
		cmd  CartActionCommand
	}{
		{"no key", CartActionCommand{Action: cart.Action{Type: cart.ActionClearCart}}},
		{"unknown action", CartActionCommand{Key: CartKey{SessionID: "s"}, Action: cart.Action{Type: "explode"}}},
		{"add without item", CartActionCommand{Key: CartKey{SessionID: "s"}, Action: cart.Action{Type: cart.ActionAddItem}}},
		{"too many copies", CartActionCommand{Key: CartKey{SessionID: "s"}, Action: cart.Action{
			Type: cart.ActionUpdateQuantity, BookID: "polity", Quantity: 500,
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Apply(context.Background(), tc.cmd); !errors.Is(err, ErrCartInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCartServiceGetCartRefreshesPrices(t *testing.T) {
	svc, _, sessions, books := newTestCartService(t)
	if err := sessions.Save(context.Background(), "sess-1", cart.State{Items: []cart.Item{
		{BookID: "polity", Kind: domain.ItemKindBook, Title: "Indian Polity", Price: 400, Quantity: 1},
		{BookID: "retired", Kind: domain.ItemKindBook, Title: "Old Edition", Price: 100, Quantity: 1},
		{BookID: "upsc-mock", Kind: domain.ItemKindTestSeries, Title: "UPSC Prelims Mocks", Price: 999, Quantity: 1},
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	polity := books.books["polity"]
	polity.Price = 475
	books.books["polity"] = polity

	view, err := svc.GetCart(context.Background(), CartKey{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(view.State.Items) != 2 {
		t.Fatalf("expected inactive line to drop, got %+v", view.State.Items)
	}
	if view.State.Items[0].Price != 475 {
		t.Fatalf("expected refreshed price, got %d", view.State.Items[0].Price)
	}
	if view.Summary.Subtotal != 475+999 {
		t.Fatalf("unexpected subtotal %d", view.Summary.Subtotal)
	}
}

func TestCartServiceClear(t *testing.T) {
	svc, _, sessions, _ := newTestCartService(t)
	key := CartKey{SessionID: "sess-1"}
	if _, err := svc.Apply(context.Background(), CartActionCommand{
		Key:    key,
		Action: cart.Action{Type: cart.ActionAddItem, Item: &cart.Item{BookID: "polity"}},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := svc.Clear(context.Background(), key); err != nil {
		t.Fatalf("clear: %v", err)
	}
	state, _ := sessions.Load(context.Background(), "sess-1")
	if !state.IsEmpty() {
		t.Fatalf("expected empty cart after clear")
	}

	view, err := svc.GetCart(context.Background(), key)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if view.State.Items == nil || view.Summary.Total != 0 {
		t.Fatalf("expected empty priced view, got %+v", view)
	}
}

func TestCartServiceWishlistAcceptsSoldOutBooks(t *testing.T) {
	svc, _, _, _ := newTestCartService(t)
	view, err := svc.Apply(context.Background(), CartActionCommand{
		Key:    CartKey{UserID: "uid-1"},
		Action: cart.Action{Type: cart.ActionAddToWishlist, Item: &cart.Item{BookID: "sold-out"}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(view.State.Wishlist) != 1 || view.State.Wishlist[0].Title != "Sold Out" {
		t.Fatalf("unexpected wishlist %+v", view.State.Wishlist)
	}
	if !view.State.Wishlist[0].AddedAt.Equal(testNow) {
		t.Fatalf("expected addedAt from clock, got %s", view.State.Wishlist[0].AddedAt)
	}
}
