package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/repositories"
)

type stubRepoError struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.err.Error() }
func (e *stubRepoError) Unwrap() error       { return e.err }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr() error { return &stubRepoError{err: errors.New("not found"), notFound: true} }
func conflictErr() error { return &stubRepoError{err: errors.New("transaction aborted"), conflict: true} }

func idTakenErr() error {
	return fmt.Errorf("%w: %w", repositories.ErrOrderIDTaken, &stubRepoError{err: errors.New("already exists"), conflict: true})
}

type stubBookRepo struct {
	books    map[string]domain.Book
	upsertFn func(context.Context, domain.Book) (domain.Book, error)
	adjustFn func(context.Context, string, int, time.Time) (domain.Book, error)
	listFn   func(context.Context, domain.BookFilter) (domain.Page[domain.Book], error)
}

func (s *stubBookRepo) Get(_ context.Context, bookID string) (domain.Book, error) {
	book, ok := s.books[bookID]
	if !ok {
		return domain.Book{}, notFoundErr()
	}
	return book, nil
}

func (s *stubBookRepo) GetMany(_ context.Context, bookIDs []string) (map[string]domain.Book, error) {
	out := make(map[string]domain.Book, len(bookIDs))
	for _, id := range bookIDs {
		if book, ok := s.books[id]; ok {
			out[id] = book
		}
	}
	return out, nil
}

func (s *stubBookRepo) List(ctx context.Context, filter domain.BookFilter) (domain.Page[domain.Book], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[domain.Book]{}, nil
}

func (s *stubBookRepo) Upsert(ctx context.Context, book domain.Book) (domain.Book, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, book)
	}
	return book, nil
}

func (s *stubBookRepo) AdjustStock(ctx context.Context, bookID string, delta int, now time.Time) (domain.Book, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, bookID, delta, now)
	}
	return domain.Book{}, errors.New("not implemented")
}

type stubSeriesRepo struct {
	series map[string]domain.TestSeries
}

func (s *stubSeriesRepo) Get(_ context.Context, id string) (domain.TestSeries, error) {
	ts, ok := s.series[id]
	if !ok {
		return domain.TestSeries{}, notFoundErr()
	}
	return ts, nil
}

func (s *stubSeriesRepo) GetMany(_ context.Context, ids []string) (map[string]domain.TestSeries, error) {
	out := make(map[string]domain.TestSeries, len(ids))
	for _, id := range ids {
		if ts, ok := s.series[id]; ok {
			out[id] = ts
		}
	}
	return out, nil
}

func (s *stubSeriesRepo) List(_ context.Context, exam string, activeOnly bool) ([]domain.TestSeries, error) {
	var out []domain.TestSeries
	for _, ts := range s.series {
		if (exam == "" || ts.Exam == exam) && (!activeOnly || ts.IsActive) {
			out = append(out, ts)
		}
	}
	return out, nil
}

type stubCouponRepo struct {
	coupons  map[string]domain.Coupon
	upsertFn func(context.Context, domain.Coupon) (domain.Coupon, error)
}

func (s *stubCouponRepo) Get(_ context.Context, code string) (domain.Coupon, error) {
	coupon, ok := s.coupons[code]
	if !ok {
		return domain.Coupon{}, notFoundErr()
	}
	return coupon, nil
}

func (s *stubCouponRepo) Upsert(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, coupon)
	}
	return coupon, nil
}

type stubOrderRepo struct {
	placeFn  func(context.Context, domain.OrderPlacement) (domain.Order, error)
	getFn    func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, domain.OrderListFilter) (domain.Page[domain.Order], error)
	updateFn func(context.Context, string, domain.StatusChange, repositories.OrderCheck) (domain.Order, error)
	cancelFn func(context.Context, string, domain.StatusChange, repositories.OrderCheck) (domain.Order, error)
	applyFn  func(context.Context, string, domain.PaymentStatus, domain.PaymentRecord) (domain.Order, error)
}

func (s *stubOrderRepo) PlaceOrder(ctx context.Context, placement domain.OrderPlacement) (domain.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, placement)
	}
	return placement.Order, nil
}

func (s *stubOrderRepo) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, notFoundErr()
}

func (s *stubOrderRepo) List(ctx context.Context, filter domain.OrderListFilter) (domain.Page[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.Page[domain.Order]{}, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, change domain.StatusChange, check repositories.OrderCheck) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, orderID, change, check)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) Cancel(ctx context.Context, orderID string, change domain.StatusChange, check repositories.OrderCheck) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, orderID, change, check)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ApplyPayment(ctx context.Context, orderID string, status domain.PaymentStatus, record domain.PaymentRecord) (domain.Order, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, orderID, status, record)
	}
	return domain.Order{}, errors.New("not implemented")
}

// transition mimics the repository: load, run check, apply change.
func transition(order domain.Order, change domain.StatusChange, check repositories.OrderCheck) (domain.Order, error) {
	if check != nil {
		if err := check(order); err != nil {
			return domain.Order{}, &stubRepoError{err: err}
		}
	}
	change.From = order.Status
	order.Status = change.To
	order.StatusHistory = append(order.StatusHistory, change)
	order.UpdatedAt = change.ChangedAt
	return order, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	placed  []domain.Order
	payment []domain.Order
	changes []domain.StatusChange
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, order domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, order)
}

func (n *recordingNotifier) PaymentResult(_ context.Context, order domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payment = append(n.payment, order)
}

func (n *recordingNotifier) StatusChanged(_ context.Context, _ domain.Order, change domain.StatusChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

type recordingMetrics struct {
	placed   int
	rejected []string
	outcomes []string
}

func (m *recordingMetrics) OrderPlaced(context.Context, bool) { m.placed++ }

func (m *recordingMetrics) OrderRejected(_ context.Context, reason string) {
	m.rejected = append(m.rejected, reason)
}

func (m *recordingMetrics) PaymentCallback(_ context.Context, provider, outcome string) {
	m.outcomes = append(m.outcomes, provider+":"+outcome)
}

type logEntry struct {
	event  string
	fields map[string]any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, logEntry{event: event, fields: fields})
}

func (c *captureLogger) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.event == event {
			return true
		}
	}
	return false
}

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func catalogFixture() (*stubBookRepo, *stubSeriesRepo, *stubCouponRepo) {
	books := &stubBookRepo{books: map[string]domain.Book{
		"polity": {
			ID: "polity", Title: "Indian Polity", Author: "M. Laxmikanth", Slug: "indian-polity",
			Price: 450, OriginalPrice: 550, StockQuantity: 10, WeightGrams: 900, IsActive: true,
		},
		"history": {
			ID: "history", Title: "Modern History", Price: 300, StockQuantity: 2, WeightGrams: 400, IsActive: true,
		},
		"retired": {ID: "retired", Title: "Old Edition", Price: 100, StockQuantity: 5, IsActive: false},
		"sold-out": {ID: "sold-out", Title: "Sold Out", Price: 100, StockQuantity: 0, IsActive: true},
	}}
	series := &stubSeriesRepo{series: map[string]domain.TestSeries{
		"upsc-mock": {ID: "upsc-mock", Title: "UPSC Prelims Mocks", Exam: "upsc", Price: 999, IsActive: true},
	}}
	coupons := &stubCouponRepo{coupons: map[string]domain.Coupon{
		"SAVE10": {
			Code: "SAVE10", Type: domain.CouponTypePercentage, Value: 10, MinPurchaseAmount: 200,
			IsActive: true, ExpiryDate: testNow.Add(30 * 24 * time.Hour),
		},
	}}
	return books, series, coupons
}
