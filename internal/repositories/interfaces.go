package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
)

// ErrOrderIDTaken reports that PlaceOrder found an order document with the
// same ID. Callers may retry with a fresh ID; transaction contention is not
// reported this way.
var ErrOrderIDTaken = errors.New("order id already taken")

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// BookRepository reads and maintains the book catalog.
type BookRepository interface {
	Get(ctx context.Context, bookID string) (domain.Book, error)
	GetMany(ctx context.Context, bookIDs []string) (map[string]domain.Book, error)
	List(ctx context.Context, filter domain.BookFilter) (domain.Page[domain.Book], error)
	Upsert(ctx context.Context, book domain.Book) (domain.Book, error)
	AdjustStock(ctx context.Context, bookID string, delta int, now time.Time) (domain.Book, error)
}

// TestSeriesRepository reads digital products.
type TestSeriesRepository interface {
	Get(ctx context.Context, id string) (domain.TestSeries, error)
	GetMany(ctx context.Context, ids []string) (map[string]domain.TestSeries, error)
	List(ctx context.Context, exam string, activeOnly bool) ([]domain.TestSeries, error)
}

// CouponRepository stores coupons keyed by upper-case code.
type CouponRepository interface {
	Get(ctx context.Context, code string) (domain.Coupon, error)
	Upsert(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error)
}

// UserRepository reads user profiles. Checkout writes them inside the order transaction.
type UserRepository interface {
	Get(ctx context.Context, uid string) (domain.UserProfile, error)
}

// OrderRepository persists orders. PlaceOrder and Cancel move stock atomically with the order write.
type OrderRepository interface {
	// PlaceOrder decrements stock for every physical item, creates the order
	// and upserts the customer profile in one transaction. Any shortfall aborts
	// the whole transaction with a *StockError and leaves stock untouched.
	// An existing order with the same ID yields ErrOrderIDTaken.
	PlaceOrder(ctx context.Context, placement domain.OrderPlacement) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderListFilter) (domain.Page[domain.Order], error)
	// UpdateStatus applies change when check accepts the current order.
	UpdateStatus(ctx context.Context, orderID string, change domain.StatusChange, check OrderCheck) (domain.Order, error)
	// Cancel marks the order cancelled and restores stock when check accepts it.
	Cancel(ctx context.Context, orderID string, change domain.StatusChange, check OrderCheck) (domain.Order, error)
	// ApplyPayment records a gateway outcome and, when paid, promotes a
	// payment_pending order to placed.
	ApplyPayment(ctx context.Context, orderID string, status domain.PaymentStatus, record domain.PaymentRecord) (domain.Order, error)
}

// OrderCheck validates the freshly read order inside a transaction before a mutation.
type OrderCheck func(order domain.Order) error

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
