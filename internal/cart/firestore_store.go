package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
	pfirestore "github.com/exambook-store/api/internal/platform/firestore"
)

const cartsCollection = "carts"

type cartItemDocument struct {
	BookID        string `firestore:"bookId"`
	Kind          string `firestore:"kind"`
	Title         string `firestore:"title"`
	Author        string `firestore:"author"`
	Price         int64  `firestore:"price"`
	OriginalPrice int64  `firestore:"originalPrice"`
	Image         string `firestore:"image"`
	Quantity      int    `firestore:"quantity"`
	Slug          string `firestore:"slug"`
	WeightGrams   int    `firestore:"weight"`
}

type wishlistDocument struct {
	BookID      string    `firestore:"bookId"`
	Kind        string    `firestore:"kind"`
	Title       string    `firestore:"title"`
	Author      string    `firestore:"author"`
	Price       int64     `firestore:"price"`
	Image       string    `firestore:"image"`
	Slug        string    `firestore:"slug"`
	WeightGrams int       `firestore:"weight"`
	AddedAt     time.Time `firestore:"addedAt"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	Wishlist  []wishlistDocument `firestore:"wishlist"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

func (d *cartDocument) Validate() error {
	for _, item := range d.Items {
		if strings.TrimSpace(item.BookID) == "" {
			return errors.New("cart item missing bookId")
		}
		if item.Quantity < 1 {
			return fmt.Errorf("cart item %s has quantity %d", item.BookID, item.Quantity)
		}
	}
	return nil
}

func newCartDocument(s State) cartDocument {
	doc := cartDocument{
		Items:     make([]cartItemDocument, 0, len(s.Items)),
		Wishlist:  make([]wishlistDocument, 0, len(s.Wishlist)),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
	for _, item := range s.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			BookID:        item.BookID,
			Kind:          string(item.Kind),
			Title:         item.Title,
			Author:        item.Author,
			Price:         item.Price,
			OriginalPrice: item.OriginalPrice,
			Image:         item.Image,
			Quantity:      item.Quantity,
			Slug:          item.Slug,
			WeightGrams:   item.WeightGrams,
		})
	}
	for _, w := range s.Wishlist {
		doc.Wishlist = append(doc.Wishlist, wishlistDocument{
			BookID:      w.BookID,
			Kind:        string(w.Kind),
			Title:       w.Title,
			Author:      w.Author,
			Price:       w.Price,
			Image:       w.Image,
			Slug:        w.Slug,
			WeightGrams: w.Weight,
			AddedAt:     w.AddedAt.UTC(),
		})
	}
	return doc
}

func (d cartDocument) toState() State {
	state := State{UpdatedAt: d.UpdatedAt.UTC()}
	for _, item := range d.Items {
		state.Items = append(state.Items, Item{
			BookID:        item.BookID,
			Kind:          domain.ItemKind(item.Kind),
			Title:         item.Title,
			Author:        item.Author,
			Price:         item.Price,
			OriginalPrice: item.OriginalPrice,
			Image:         item.Image,
			Quantity:      item.Quantity,
			Slug:          item.Slug,
			WeightGrams:   item.WeightGrams,
		})
	}
	for _, w := range d.Wishlist {
		state.Wishlist = append(state.Wishlist, WishlistItem{
			BookID:  w.BookID,
			Kind:    domain.ItemKind(w.Kind),
			Title:   w.Title,
			Author:  w.Author,
			Price:   w.Price,
			Image:   w.Image,
			Slug:    w.Slug,
			Weight:  w.WeightGrams,
			AddedAt: w.AddedAt.UTC(),
		})
	}
	return state
}

// FirestoreStore keeps signed-in users' carts in carts/{uid}.
type FirestoreStore struct {
	carts *pfirestore.Collection[cartDocument]
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore binds the store to the carts collection.
func NewFirestoreStore(provider *pfirestore.Provider) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("cart: firestore provider is required")
	}
	return &FirestoreStore{carts: pfirestore.NewCollection[cartDocument](provider, cartsCollection)}, nil
}

func (s *FirestoreStore) Load(ctx context.Context, key string) (State, error) {
	key, err := normaliseKey(key)
	if err != nil {
		return State{}, err
	}
	doc, err := s.carts.Get(ctx, key)
	if err != nil {
		var fsErr *pfirestore.Error
		if errors.As(err, &fsErr) && fsErr.IsNotFound() {
			return State{}, nil
		}
		return State{}, err
	}
	return doc.Data.toState(), nil
}

func (s *FirestoreStore) Save(ctx context.Context, key string, state State) error {
	key, err := normaliseKey(key)
	if err != nil {
		return err
	}
	return s.carts.Set(ctx, key, newCartDocument(state))
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	key, err := normaliseKey(key)
	if err != nil {
		return err
	}
	return s.carts.Delete(ctx, key)
}
