package cart

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
)

// ActionType names a cart mutation.
type ActionType string

const (
	ActionAddItem            ActionType = "add_item"
	ActionRemoveItem         ActionType = "remove_item"
	ActionUpdateQuantity     ActionType = "update_quantity"
	ActionClearCart          ActionType = "clear_cart"
	ActionAddToWishlist      ActionType = "add_to_wishlist"
	ActionRemoveFromWishlist ActionType = "remove_from_wishlist"
	ActionMoveToCart         ActionType = "move_to_cart"
)

// ErrInvalidAction is wrapped by Validate failures.
var ErrInvalidAction = errors.New("cart: invalid action")

// Action is one mutation. Item is required by add_item and add_to_wishlist;
// BookID by the others except clear_cart. Kind narrows BookID when a book and
// a test series share an ID; empty matches the first line with that ID.
type Action struct {
	Type     ActionType      `json:"type"`
	BookID   string          `json:"bookId,omitempty"`
	Kind     domain.ItemKind `json:"kind,omitempty"`
	Quantity int             `json:"quantity,omitempty"`
	Item     *Item           `json:"item,omitempty"`
}

// TargetID returns the book the action refers to.
func (a Action) TargetID() string {
	if a.Item != nil && a.Item.BookID != "" {
		return a.Item.BookID
	}
	return strings.TrimSpace(a.BookID)
}

// TargetKind returns the product kind the action refers to, if known.
func (a Action) TargetKind() domain.ItemKind {
	if a.Item != nil && a.Item.BookID != "" {
		return lineKind(a.Item.Kind)
	}
	return a.Kind
}

// Validate checks the action shape before it reaches Reduce.
func (a Action) Validate() error {
	switch a.Type {
	case ActionClearCart:
		return nil
	case ActionAddItem, ActionAddToWishlist:
		if a.Item == nil || strings.TrimSpace(a.Item.BookID) == "" {
			return fmt.Errorf("%w: %s requires an item", ErrInvalidAction, a.Type)
		}
		return nil
	case ActionRemoveItem, ActionUpdateQuantity, ActionRemoveFromWishlist, ActionMoveToCart:
		if a.TargetID() == "" {
			return fmt.Errorf("%w: %s requires bookId", ErrInvalidAction, a.Type)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
}

// Reduce applies action to state and returns the new state. It never mutates
// its input. Unknown actions and actions on missing lines return state as is.
func Reduce(state State, action Action, now time.Time) State {
	next := state.clone()
	changed := true

	switch action.Type {
	case ActionAddItem:
		if action.Item == nil {
			return state
		}
		next.Items = addItem(next.Items, *action.Item, max(1, action.Item.Quantity))

	case ActionRemoveItem:
		idx := next.indexOfItem(action.TargetID(), action.TargetKind())
		if idx < 0 {
			return state
		}
		next.Items = slices.Delete(next.Items, idx, idx+1)

	case ActionUpdateQuantity:
		idx := next.indexOfItem(action.TargetID(), action.TargetKind())
		if idx < 0 {
			return state
		}
		next.Items[idx].Quantity = max(1, action.Quantity)

	case ActionClearCart:
		next.Items = nil

	case ActionAddToWishlist:
		if action.Item == nil || next.indexOfWish(action.Item.BookID, lineKind(action.Item.Kind)) >= 0 {
			return state
		}
		next.Wishlist = append(next.Wishlist, toWishlist(*action.Item, now))

	case ActionRemoveFromWishlist:
		idx := next.indexOfWish(action.TargetID(), action.TargetKind())
		if idx < 0 {
			return state
		}
		next.Wishlist = slices.Delete(next.Wishlist, idx, idx+1)

	case ActionMoveToCart:
		idx := next.indexOfWish(action.TargetID(), action.TargetKind())
		if idx < 0 {
			return state
		}
		wish := next.Wishlist[idx]
		next.Wishlist = slices.Delete(next.Wishlist, idx, idx+1)
		next.Items = addItem(next.Items, fromWishlist(wish), 1)

	default:
		changed = false
	}

	if !changed {
		return state
	}
	next.UpdatedAt = now.UTC()
	return next
}

// addItem appends item or bumps the quantity of the line with the same ID and kind.
func addItem(items []Item, item Item, qty int) []Item {
	item.Kind = lineKind(item.Kind)
	for i := range items {
		if sameProduct(items[i].BookID, items[i].Kind, item.BookID, item.Kind) {
			items[i].Quantity += qty
			return items
		}
	}
	item.Quantity = qty
	return append(items, item)
}

// lineKind treats lines stored without a kind as books.
func lineKind(kind domain.ItemKind) domain.ItemKind {
	if kind == "" {
		return domain.ItemKindBook
	}
	return kind
}

// sameProduct matches a stored line against a target. An empty target kind
// matches on ID alone.
func sameProduct(lineID string, kind domain.ItemKind, targetID string, targetKind domain.ItemKind) bool {
	if lineID != targetID {
		return false
	}
	return targetKind == "" || lineKind(kind) == lineKind(targetKind)
}

func toWishlist(item Item, now time.Time) WishlistItem {
	return WishlistItem{
		BookID:  item.BookID,
		Kind:    item.Kind,
		Title:   item.Title,
		Author:  item.Author,
		Price:   item.Price,
		Image:   item.Image,
		Slug:    item.Slug,
		Weight:  item.WeightGrams,
		AddedAt: now.UTC(),
	}
}

func fromWishlist(w WishlistItem) Item {
	return Item{
		BookID:      w.BookID,
		Kind:        w.Kind,
		Title:       w.Title,
		Author:      w.Author,
		Price:       w.Price,
		Image:       w.Image,
		Slug:        w.Slug,
		WeightGrams: w.Weight,
	}
}
