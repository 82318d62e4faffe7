//go:build integration

package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/firestore/firestoretest"
	"github.com/exambook-store/api/internal/repositories"
)

func TestOrderRepositoryPlaceOrderIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx := context.Background()
	now := time.Date(2025, time.February, 3, 10, 30, 0, 0, time.UTC)

	books, err := NewBookRepository(provider)
	if err != nil {
		t.Fatalf("NewBookRepository: %v", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("NewOrderRepository: %v", err)
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		t.Fatalf("NewUserRepository: %v", err)
	}

	if _, err := books.Upsert(ctx, domain.Book{
		ID: "ssc-cgl-guide", Title: "SSC CGL Guide", Price: 450, StockQuantity: 3,
		WeightGrams: 700, IsActive: true, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed book: %v", err)
	}

	placement := func(id string, qty int) domain.OrderPlacement {
		return domain.OrderPlacement{
			Order: domain.Order{
				ID:       id,
				UserID:   "user-1",
				Customer: domain.Customer{Name: "Asha", Email: "asha@example.com", Phone: "9999999999"},
				Items: []domain.OrderItem{{
					BookID: "ssc-cgl-guide", Kind: domain.ItemKindBook, Title: "SSC CGL Guide", Price: 450, Quantity: qty,
				}},
				ShippingAddress: domain.Address{Name: "Asha", City: "Pune", State: "Maharashtra", Pincode: "411001"},
				Subtotal:        450 * int64(qty),
				TotalAmount:     450 * int64(qty),
				Status:          domain.OrderStatusPaymentPending,
				PaymentStatus:   domain.PaymentStatusPending,
				CreatedAt:       now,
			},
			Profile: domain.UserProfile{UID: "user-1", Name: "Asha", Email: "asha@example.com", Role: domain.UserRoleCustomer},
		}
	}

	t.Run("insufficient stock aborts without writes", func(t *testing.T) {
		_, err := orders.PlaceOrder(ctx, placement("ORD-20250203-103000-00001", 5))
		var stockErr *repositories.StockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected StockError, got %v", err)
		}
		if stockErr.Code != repositories.StockErrorInsufficient || stockErr.Available != 3 {
			t.Fatalf("unexpected stock error %+v", stockErr)
		}
		book, err := books.Get(ctx, "ssc-cgl-guide")
		if err != nil {
			t.Fatalf("get book: %v", err)
		}
		if book.StockQuantity != 3 {
			t.Fatalf("expected stock 3, got %d", book.StockQuantity)
		}
		if _, err := orders.Get(ctx, "ORD-20250203-103000-00001"); err == nil {
			t.Fatal("expected order to be absent")
		}
	})

	t.Run("successful placement decrements stock and writes profile", func(t *testing.T) {
		order, err := orders.PlaceOrder(ctx, placement("ORD-20250203-103000-00002", 2))
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		if order.Status != domain.OrderStatusPaymentPending {
			t.Fatalf("expected payment_pending, got %s", order.Status)
		}
		stored, err := orders.Get(ctx, "ORD-20250203-103000-00002")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !stored.CreatedAt.Equal(now) || !stored.UpdatedAt.Equal(now) {
			t.Fatalf("expected stored timestamps to come from the caller clock, got %s/%s", stored.CreatedAt, stored.UpdatedAt)
		}
		book, _ := books.Get(ctx, "ssc-cgl-guide")
		if book.StockQuantity != 1 {
			t.Fatalf("expected stock 1, got %d", book.StockQuantity)
		}
		profile, err := users.Get(ctx, "user-1")
		if err != nil {
			t.Fatalf("get profile: %v", err)
		}
		if profile.Role != domain.UserRoleCustomer || profile.Email != "asha@example.com" {
			t.Fatalf("unexpected profile %+v", profile)
		}
	})

	t.Run("duplicate order id conflicts", func(t *testing.T) {
		_, err := orders.PlaceOrder(ctx, placement("ORD-20250203-103000-00002", 1))
		if !errors.Is(err, repositories.ErrOrderIDTaken) {
			t.Fatalf("expected ErrOrderIDTaken, got %v", err)
		}
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected conflict, got %v", err)
		}
		book, _ := books.Get(ctx, "ssc-cgl-guide")
		if book.StockQuantity != 1 {
			t.Fatalf("expected stock to stay 1, got %d", book.StockQuantity)
		}
	})

	t.Run("payment then cancel restores stock", func(t *testing.T) {
		paid, err := orders.ApplyPayment(ctx, "ORD-20250203-103000-00002", domain.PaymentStatusPaid, domain.PaymentRecord{
			Provider: "phonepe", TransactionID: "T1", Code: "PAYMENT_SUCCESS", Amount: 900, UpdatedAt: now.Add(time.Minute),
		})
		if err != nil {
			t.Fatalf("ApplyPayment: %v", err)
		}
		if paid.Status != domain.OrderStatusPlaced || paid.PaymentStatus != domain.PaymentStatusPaid {
			t.Fatalf("unexpected order after payment %s/%s", paid.Status, paid.PaymentStatus)
		}

		cancelled, err := orders.Cancel(ctx, "ORD-20250203-103000-00002", domain.StatusChange{
			Actor: "user-1", ChangedAt: now.Add(time.Hour),
		}, func(o domain.Order) error {
			if o.Status != domain.OrderStatusPlaced {
				return errors.New("not cancellable")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if cancelled.Status != domain.OrderStatusCancelled || cancelled.CancelledAt == nil {
			t.Fatalf("unexpected cancelled order %+v", cancelled)
		}
		book, _ := books.Get(ctx, "ssc-cgl-guide")
		if book.StockQuantity != 3 {
			t.Fatalf("expected stock restored to 3, got %d", book.StockQuantity)
		}

		stored, err := orders.Get(ctx, "ORD-20250203-103000-00002")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(stored.StatusHistory) != 2 {
			t.Fatalf("expected 2 history entries, got %d", len(stored.StatusHistory))
		}
	})

	for _, book := range []domain.Book{
		{ID: "reasoning-primer", Title: "Reasoning Primer", Price: 300, StockQuantity: 10, WeightGrams: 400, IsActive: true, UpdatedAt: now},
		{ID: "gk-capsule", Title: "GK Capsule", Price: 150, StockQuantity: 3, WeightGrams: 200, IsActive: true, UpdatedAt: now},
	} {
		if _, err := books.Upsert(ctx, book); err != nil {
			t.Fatalf("seed book %s: %v", book.ID, err)
		}
	}

	t.Run("one short item aborts every line", func(t *testing.T) {
		p := placement("ORD-20250203-103000-00003", 1)
		p.Order.Items = []domain.OrderItem{
			{BookID: "reasoning-primer", Kind: domain.ItemKindBook, Title: "Reasoning Primer", Price: 300, Quantity: 2},
			{BookID: "gk-capsule", Kind: domain.ItemKindBook, Title: "GK Capsule", Price: 150, Quantity: 5},
		}
		p.Order.Subtotal = 1350
		p.Order.TotalAmount = 1350

		_, err := orders.PlaceOrder(ctx, p)
		var stockErr *repositories.StockError
		if !errors.As(err, &stockErr) || stockErr.BookID != "gk-capsule" {
			t.Fatalf("expected StockError for gk-capsule, got %v", err)
		}
		for id, want := range map[string]int{"reasoning-primer": 10, "gk-capsule": 3} {
			book, err := books.Get(ctx, id)
			if err != nil {
				t.Fatalf("get %s: %v", id, err)
			}
			if book.StockQuantity != want {
				t.Fatalf("expected %s stock %d, got %d", id, want, book.StockQuantity)
			}
		}
		if _, err := orders.Get(ctx, "ORD-20250203-103000-00003"); err == nil {
			t.Fatal("expected order to be absent")
		}
	})

	t.Run("guest placement writes guest profile", func(t *testing.T) {
		p := placement("ORD-20250203-103000-00004", 1)
		p.Order.UserID = "guest-01JABCDEF"
		p.Order.Guest = true
		p.Profile = domain.UserProfile{UID: "guest-01JABCDEF", Name: "Ravi", Email: "ravi@example.com", Role: domain.UserRoleGuest}

		order, err := orders.PlaceOrder(ctx, p)
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		if !order.Guest {
			t.Fatalf("expected guest order")
		}
		profile, err := users.Get(ctx, "guest-01JABCDEF")
		if err != nil {
			t.Fatalf("get guest profile: %v", err)
		}
		if profile.Role != domain.UserRoleGuest || profile.Email != "ravi@example.com" {
			t.Fatalf("unexpected guest profile %+v", profile)
		}
	})

	t.Run("registered checkout keeps admin role", func(t *testing.T) {
		client, err := provider.Client(ctx)
		if err != nil {
			t.Fatalf("client: %v", err)
		}
		if _, err := client.Collection(usersCollection).Doc("admin-1").Set(ctx, userDocument{
			Name: "Store Admin", Email: "admin@example.com", Role: string(domain.UserRoleAdmin), CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("seed admin: %v", err)
		}

		p := placement("ORD-20250203-103000-00005", 1)
		p.Order.UserID = "admin-1"
		p.Profile = domain.UserProfile{UID: "admin-1", Name: "Store Admin", Email: "admin@example.com", Phone: "8888888888", Role: domain.UserRoleCustomer}
		if _, err := orders.PlaceOrder(ctx, p); err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		profile, err := users.Get(ctx, "admin-1")
		if err != nil {
			t.Fatalf("get admin profile: %v", err)
		}
		if profile.Role != domain.UserRoleAdmin {
			t.Fatalf("expected admin role to survive checkout, got %s", profile.Role)
		}
		if profile.Phone != "8888888888" || !profile.CreatedAt.Equal(now) {
			t.Fatalf("unexpected merged profile %+v", profile)
		}
	})

	t.Run("rejected check leaves order untouched", func(t *testing.T) {
		sentinel := errors.New("too late")
		_, err := orders.UpdateStatus(ctx, "ORD-20250203-103000-00002", domain.StatusChange{
			To: domain.OrderStatusShipped, ChangedAt: now,
		}, func(domain.Order) error { return sentinel })
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected sentinel, got %v", err)
		}
	})
}
