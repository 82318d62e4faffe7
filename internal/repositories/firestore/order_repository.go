package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/exambook-store/api/internal/domain"
	pfirestore "github.com/exambook-store/api/internal/platform/firestore"
	"github.com/exambook-store/api/internal/platform/pagination"
	"github.com/exambook-store/api/internal/repositories"
)

// OrderRepository stores orders/{orderId} and moves book stock in the same
// transaction as the order write.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	books    *pfirestore.Collection[bookDocument]
	users    *pfirestore.Collection[userDocument]
	txOpts   []pfirestore.TxOption
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, txOpts ...pfirestore.TxOption) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		books:    pfirestore.NewCollection[bookDocument](provider, booksCollection),
		users:    pfirestore.NewCollection[userDocument](provider, usersCollection),
		txOpts:   txOpts,
	}, nil
}

type stockLine struct {
	ref      *firestore.DocumentRef
	id       string
	doc      bookDocument
	found    bool
	quantity int
}

// readStock loads every book in quantities inside tx, in a stable order.
func (r *OrderRepository) readStock(ctx context.Context, tx *firestore.Transaction, quantities map[string]int) ([]stockLine, error) {
	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]stockLine, 0, len(ids))
	for _, id := range ids {
		ref, err := r.books.Ref(ctx, id)
		if err != nil {
			return nil, err
		}
		doc, found, err := r.books.GetTx(tx, ref)
		if err != nil {
			return nil, err
		}
		lines = append(lines, stockLine{ref: ref, id: id, doc: doc.Data, found: found, quantity: quantities[id]})
	}
	return lines, nil
}

// PlaceOrder runs the checkout transaction. All reads happen before any
// write; Firestore may rerun the function on contention.
func (r *OrderRepository) PlaceOrder(ctx context.Context, placement domain.OrderPlacement) (domain.Order, error) {
	order := placement.Order
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if strings.TrimSpace(order.UserID) == "" {
		return domain.Order{}, errors.New("order user id is required")
	}
	if len(order.Items) == 0 {
		return domain.Order{}, errors.New("order has no items")
	}
	// createdAt comes from the caller's clock rather than a server timestamp;
	// the cancellation window is measured from it.
	now := order.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	order.CreatedAt = now
	order.UpdatedAt = now
	orderDoc := newOrderDocument(order)
	if err := orderDoc.Validate(); err != nil {
		return domain.Order{}, err
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		lines, err := r.readStock(ctx, tx, order.ItemQuantities())
		if err != nil {
			return err
		}
		for _, line := range lines {
			if !line.found {
				return &repositories.StockError{Code: repositories.StockErrorNotFound, BookID: line.id}
			}
			if line.doc.StockQuantity < line.quantity {
				return &repositories.StockError{
					Code:      repositories.StockErrorInsufficient,
					BookID:    line.id,
					Title:     line.doc.Title,
					Requested: line.quantity,
					Available: line.doc.StockQuantity,
				}
			}
		}

		userRef, err := r.users.Ref(ctx, order.UserID)
		if err != nil {
			return err
		}
		existingUser, userFound, err := r.users.GetTx(tx, userRef)
		if err != nil {
			return err
		}

		for _, line := range lines {
			if err := tx.Update(line.ref, []firestore.Update{
				{Path: "stockQuantity", Value: line.doc.StockQuantity - line.quantity},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		orderRef, err := r.orders.Ref(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, orderDoc); err != nil {
			return err
		}

		return tx.Set(userRef, profileUpdate(placement.Profile, existingUser.Data, userFound, now), firestore.MergeAll)
	}, r.txOpts...)
	if pfirestore.IsAlreadyExists(err) {
		return domain.Order{}, fmt.Errorf("%w: %s: %w", repositories.ErrOrderIDTaken, order.ID, err)
	}
	if err != nil {
		return domain.Order{}, err
	}
	return orderDoc.toDomain(order.ID), nil
}

// profileUpdate builds the merge payload for users/{uid}. Guests are always
// tagged guest; registered users keep an existing admin role.
func profileUpdate(profile domain.UserProfile, existing userDocument, found bool, now time.Time) map[string]any {
	role := profile.Role
	if role == "" {
		role = domain.UserRoleCustomer
	}
	if role != domain.UserRoleGuest && found && domain.UserRole(existing.Role) == domain.UserRoleAdmin {
		role = domain.UserRoleAdmin
	}
	update := map[string]any{
		"name":      profile.Name,
		"email":     profile.Email,
		"phone":     profile.Phone,
		"role":      string(role),
		"updatedAt": now,
	}
	if profile.DefaultAddress != nil {
		update["defaultAddress"] = newAddressDocument(*profile.DefaultAddress)
	}
	if !found || existing.CreatedAt.IsZero() {
		update["createdAt"] = now
	}
	return update
}

// Get loads an order by ID.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List pages through orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderListFilter) (domain.Page[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	pageSize := pagination.Clamp(filter.Pagination.PageSize, pagination.Options{})

	docs, err := r.orders.List(ctx, func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Status[0]))
		default:
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	page := domain.Page[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), pageSize))}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.Page[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// readOrder loads the order inside tx and runs check against it.
func (r *OrderRepository) readOrder(ctx context.Context, tx *firestore.Transaction, orderID string, check repositories.OrderCheck) (*firestore.DocumentRef, domain.Order, error) {
	ref, err := r.orders.Ref(ctx, orderID)
	if err != nil {
		return nil, domain.Order{}, err
	}
	doc, found, err := r.orders.GetTx(tx, ref)
	if err != nil {
		return nil, domain.Order{}, err
	}
	if !found {
		return nil, domain.Order{}, pfirestore.NotFound(r.orders.Name()+".get", orderID)
	}
	order := doc.Data.toDomain(doc.ID)
	if check != nil {
		if err := check(order); err != nil {
			return nil, domain.Order{}, err
		}
	}
	return ref, order, nil
}

// UpdateStatus moves the order to change.To after check accepts it.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, change domain.StatusChange, check repositories.OrderCheck) (domain.Order, error) {
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, order, err := r.readOrder(ctx, tx, strings.TrimSpace(orderID), check)
		if err != nil {
			return err
		}
		change.From = order.Status
		updated = applyStatus(order, change)
		return tx.Update(ref, statusUpdates(updated, change))
	}, r.txOpts...)
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// Cancel marks the order cancelled and returns its physical items to stock.
// Books deleted since checkout are skipped.
func (r *OrderRepository) Cancel(ctx context.Context, orderID string, change domain.StatusChange, check repositories.OrderCheck) (domain.Order, error) {
	change.To = domain.OrderStatusCancelled
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, order, err := r.readOrder(ctx, tx, strings.TrimSpace(orderID), check)
		if err != nil {
			return err
		}
		lines, err := r.readStock(ctx, tx, order.ItemQuantities())
		if err != nil {
			return err
		}

		now := change.ChangedAt.UTC()
		for _, line := range lines {
			if !line.found {
				continue
			}
			if err := tx.Update(line.ref, []firestore.Update{
				{Path: "stockQuantity", Value: line.doc.StockQuantity + line.quantity},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		change.From = order.Status
		updated = applyStatus(order, change)
		updated.CancelledAt = &now
		updates := statusUpdates(updated, change)
		updates = append(updates, firestore.Update{Path: "cancelledAt", Value: now})
		return tx.Update(ref, updates)
	}, r.txOpts...)
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// ApplyPayment records the gateway result. A paid order is never downgraded,
// and only payment_pending orders are promoted to placed.
func (r *OrderRepository) ApplyPayment(ctx context.Context, orderID string, status domain.PaymentStatus, record domain.PaymentRecord) (domain.Order, error) {
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, order, err := r.readOrder(ctx, tx, strings.TrimSpace(orderID), nil)
		if err != nil {
			return err
		}
		if order.PaymentStatus == domain.PaymentStatusPaid {
			updated = order
			return nil
		}

		now := record.UpdatedAt.UTC()
		order.PaymentStatus = status
		order.Payment = &record
		order.UpdatedAt = now
		updates := []firestore.Update{
			{Path: "paymentStatus", Value: string(status)},
			{Path: "payment", Value: newPaymentDocument(record)},
			{Path: "updatedAt", Value: now},
		}
		if status == domain.PaymentStatusPaid && order.Status == domain.OrderStatusPaymentPending {
			change := domain.StatusChange{
				From:      order.Status,
				To:        domain.OrderStatusPlaced,
				Actor:     "payment:" + record.Provider,
				ChangedAt: now,
			}
			order = applyStatus(order, change)
			updates = append(updates,
				firestore.Update{Path: "status", Value: string(order.Status)},
				firestore.Update{Path: "statusHistory", Value: firestore.ArrayUnion(newStatusChangeDocument(change))},
			)
		}
		updated = order
		return tx.Update(ref, updates)
	}, r.txOpts...)
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func applyStatus(order domain.Order, change domain.StatusChange) domain.Order {
	order.Status = change.To
	order.UpdatedAt = change.ChangedAt.UTC()
	order.StatusHistory = append(append([]domain.StatusChange(nil), order.StatusHistory...), change)
	return order
}

func statusUpdates(order domain.Order, change domain.StatusChange) []firestore.Update {
	return []firestore.Update{
		{Path: "status", Value: string(order.Status)},
		{Path: "updatedAt", Value: order.UpdatedAt},
		{Path: "statusHistory", Value: firestore.ArrayUnion(newStatusChangeDocument(change))},
	}
}
