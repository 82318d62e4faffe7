// Package cart holds the cart and wishlist state, the pure reducer that
// evolves it, and the stores that persist it between requests.
package cart

import (
	"time"

	domain "github.com/exambook-store/api/internal/domain"
)

// Item is a cart line as persisted and returned to clients.
type Item struct {
	BookID        string          `json:"bookId"`
	Kind          domain.ItemKind `json:"kind"`
	Title         string          `json:"title"`
	Author        string          `json:"author,omitempty"`
	Price         int64           `json:"price"`
	OriginalPrice int64           `json:"originalPrice,omitempty"`
	Image         string          `json:"image,omitempty"`
	Quantity      int             `json:"quantity"`
	Slug          string          `json:"slug,omitempty"`
	WeightGrams   int             `json:"weightGrams,omitempty"`
}

// CartItem converts the line for pricing.
func (i Item) CartItem() domain.CartItem {
	return domain.CartItem{
		BookID:        i.BookID,
		Kind:          i.Kind,
		Title:         i.Title,
		Author:        i.Author,
		Price:         i.Price,
		OriginalPrice: i.OriginalPrice,
		Image:         i.Image,
		Quantity:      i.Quantity,
		Slug:          i.Slug,
		WeightGrams:   i.WeightGrams,
	}
}

// WishlistItem is a saved-for-later entry.
type WishlistItem struct {
	BookID  string          `json:"bookId"`
	Kind    domain.ItemKind `json:"kind"`
	Title   string          `json:"title"`
	Author  string          `json:"author,omitempty"`
	Price   int64           `json:"price"`
	Image   string          `json:"image,omitempty"`
	Slug    string          `json:"slug,omitempty"`
	Weight  int             `json:"weightGrams,omitempty"`
	AddedAt time.Time       `json:"addedAt"`
}

// State is the whole cart plus wishlist. The zero value is an empty cart.
type State struct {
	Items     []Item         `json:"items"`
	Wishlist  []WishlistItem `json:"wishlist"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// CartItems converts every line for pricing.
func (s State) CartItems() []domain.CartItem {
	out := make([]domain.CartItem, 0, len(s.Items))
	for _, item := range s.Items {
		out = append(out, item.CartItem())
	}
	return out
}

// ItemCount sums quantities across lines.
func (s State) ItemCount() int {
	total := 0
	for _, item := range s.Items {
		total += item.Quantity
	}
	return total
}

// IsEmpty reports a state with neither cart lines nor wishlist entries.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0 && len(s.Wishlist) == 0
}

func (s State) indexOfItem(bookID string, kind domain.ItemKind) int {
	for i, item := range s.Items {
		if sameProduct(item.BookID, item.Kind, bookID, kind) {
			return i
		}
	}
	return -1
}

func (s State) indexOfWish(bookID string, kind domain.ItemKind) int {
	for i, item := range s.Wishlist {
		if sameProduct(item.BookID, item.Kind, bookID, kind) {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	return State{
		Items:     append([]Item(nil), s.Items...),
		Wishlist:  append([]WishlistItem(nil), s.Wishlist...),
		UpdatedAt: s.UpdatedAt,
	}
}
