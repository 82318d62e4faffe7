package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/exambook-store/api/internal/domain"
	pfirestore "github.com/exambook-store/api/internal/platform/firestore"
	"github.com/exambook-store/api/internal/platform/pagination"
	"github.com/exambook-store/api/internal/repositories"
)

// BookRepository stores books/{bookId}.
type BookRepository struct {
	provider *pfirestore.Provider
	books    *pfirestore.Collection[bookDocument]
}

var _ repositories.BookRepository = (*BookRepository)(nil)

// NewBookRepository constructs a Firestore-backed book repository.
func NewBookRepository(provider *pfirestore.Provider) (*BookRepository, error) {
	if provider == nil {
		return nil, errors.New("book repository requires firestore provider")
	}
	return &BookRepository{
		provider: provider,
		books:    pfirestore.NewCollection[bookDocument](provider, booksCollection),
	}, nil
}

// Get loads a single book.
func (r *BookRepository) Get(ctx context.Context, bookID string) (domain.Book, error) {
	doc, err := r.books.Get(ctx, strings.TrimSpace(bookID))
	if err != nil {
		return domain.Book{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// GetMany loads books in one round trip. Missing IDs are absent from the result.
func (r *BookRepository) GetMany(ctx context.Context, bookIDs []string) (map[string]domain.Book, error) {
	result := make(map[string]domain.Book, len(bookIDs))
	if len(bookIDs) == 0 {
		return result, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(bookIDs))
	seen := make(map[string]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ref, err := r.books.Ref(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("books.getAll", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		doc, err := r.books.Decode(snap)
		if err != nil {
			return nil, err
		}
		result[doc.ID] = doc.Data.toDomain(doc.ID)
	}
	return result, nil
}

// List pages through books newest first.
func (r *BookRepository) List(ctx context.Context, filter domain.BookFilter) (domain.Page[domain.Book], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.Page[domain.Book]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize, pagination.Options{})

	docs, err := r.books.List(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if exam := strings.TrimSpace(filter.Exam); exam != "" {
			q = q.Where("exam", "==", exam)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.Page[domain.Book]{}, err
	}

	page := domain.Page[domain.Book]{Items: make([]domain.Book, 0, min(len(docs), pageSize))}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.Page[domain.Book]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// Upsert writes the full book, preserving its creation time.
func (r *BookRepository) Upsert(ctx context.Context, book domain.Book) (domain.Book, error) {
	id := strings.TrimSpace(book.ID)
	if id == "" {
		return domain.Book{}, errors.New("book id is required")
	}
	doc := newBookDocument(book)
	if err := doc.Validate(); err != nil {
		return domain.Book{}, fmt.Errorf("book %s: %w", id, err)
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.books.Ref(ctx, id)
		if err != nil {
			return err
		}
		existing, found, err := r.books.GetTx(tx, ref)
		if err != nil {
			return err
		}
		if found && !existing.Data.CreatedAt.IsZero() {
			doc.CreatedAt = existing.Data.CreatedAt
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = doc.UpdatedAt
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Book{}, err
	}
	return doc.toDomain(id), nil
}

// AdjustStock adds delta to stockQuantity. A result below zero is rejected
// with a *repositories.StockError and nothing is written.
func (r *BookRepository) AdjustStock(ctx context.Context, bookID string, delta int, now time.Time) (domain.Book, error) {
	id := strings.TrimSpace(bookID)
	var updated domain.Book
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.books.Ref(ctx, id)
		if err != nil {
			return err
		}
		doc, found, err := r.books.GetTx(tx, ref)
		if err != nil {
			return err
		}
		if !found {
			return &repositories.StockError{Code: repositories.StockErrorNotFound, BookID: id}
		}
		next := doc.Data.StockQuantity + delta
		if next < 0 {
			return &repositories.StockError{
				Code:      repositories.StockErrorInsufficient,
				BookID:    id,
				Title:     doc.Data.Title,
				Requested: -delta,
				Available: doc.Data.StockQuantity,
			}
		}
		doc.Data.StockQuantity = next
		doc.Data.UpdatedAt = now.UTC()
		updated = doc.Data.toDomain(id)
		return tx.Update(ref, []firestore.Update{
			{Path: "stockQuantity", Value: next},
			{Path: "updatedAt", Value: now.UTC()},
		})
	})
	if err != nil {
		return domain.Book{}, err
	}
	return updated, nil
}
