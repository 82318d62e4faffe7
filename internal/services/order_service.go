package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/platform/textutil"
	"github.com/exambook-store/api/internal/repositories"
)

const (
	orderEventPlaced        = "order.placed"
	orderEventRejected      = "order.rejected"
	orderEventCancelled     = "order.cancelled"
	orderEventStatusChanged = "order.status.changed"
	orderEventIDCollision   = "order.id.collision"
	orderEventCartClear     = "order.cart.clear_failed"

	guestUserIDPrefix     = "guest_"
	defaultOrderIDRetries = 3
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderInsufficientStock indicates a book cannot cover the requested quantity.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderNotCancellable indicates the customer cancel rule rejected the order.
	ErrOrderNotCancellable = errors.New("order: not cancellable")

	pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)
)

// OrderMetrics records checkout outcomes.
type OrderMetrics interface {
	OrderPlaced(ctx context.Context, guest bool)
	OrderRejected(ctx context.Context, reason string)
}

// CartClearer empties a cart once its order has been placed.
type CartClearer interface {
	Clear(ctx context.Context, key CartKey) error
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Books       repositories.BookRepository
	TestSeries  repositories.TestSeriesRepository
	Coupons     repositories.CouponRepository
	Notifier    Notifier
	Carts       CartClearer
	Metrics     OrderMetrics
	Clock       func() time.Time
	IDGenerator func(now time.Time) string
	GuestID     func() string
	// IDAttempts bounds retries when a generated order ID already exists.
	IDAttempts int
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	catalog    itemResolver
	coupons    repositories.CouponRepository
	notifier   Notifier
	carts      CartClearer
	metrics    OrderMetrics
	clock      func() time.Time
	newID      func(time.Time) string
	guestID    func() string
	idAttempts int
	logger     serviceLogger
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Books == nil || deps.TestSeries == nil {
		return nil, errors.New("order service: catalog repositories are required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service: coupon repository is required")
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = NewOrderID
	}
	guestID := deps.GuestID
	if guestID == nil {
		guestID = func() string { return guestUserIDPrefix + ulid.Make().String() }
	}
	attempts := deps.IDAttempts
	if attempts <= 0 {
		attempts = defaultOrderIDRetries
	}

	return &orderService{
		orders:     deps.Orders,
		catalog:    itemResolver{books: deps.Books, series: deps.TestSeries},
		coupons:    deps.Coupons,
		notifier:   deps.Notifier,
		carts:      deps.Carts,
		metrics:    deps.Metrics,
		clock:      ensureClock(deps.Clock),
		newID:      idGen,
		guestID:    guestID,
		idAttempts: attempts,
		logger:     ensureLogger(deps.Logger),
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	customer, err := normaliseCustomer(cmd.Customer)
	if err != nil {
		return Order{}, s.reject(ctx, "invalid_customer", err)
	}
	address, err := normaliseAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, s.reject(ctx, "invalid_address", err)
	}

	items, err := s.catalog.resolve(ctx, cmd.Items, true)
	if err != nil {
		return Order{}, s.reject(ctx, "items", s.mapItemError(err))
	}
	coupon, err := lookupCoupon(ctx, s.coupons, cmd.CouponCode)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	quote, err := CalculatePrice(PriceInput{
		Items:      items,
		State:      address.State,
		Coupon:     coupon,
		CouponCode: cmd.CouponCode,
		Policy:     zoneWeightShippingPolicy{},
		Now:        now,
	})
	if err != nil {
		if errors.Is(err, ErrCouponRejected) {
			return Order{}, s.reject(ctx, "coupon", fmt.Errorf("%w: %w", ErrOrderInvalidInput, err))
		}
		return Order{}, s.reject(ctx, "pricing", fmt.Errorf("%w: %v", ErrOrderInvalidInput, err))
	}

	userID := strings.TrimSpace(cmd.UserID)
	guest := cmd.Guest || userID == ""
	if userID == "" {
		userID = s.guestID()
	}

	order := Order{
		UserID:          userID,
		Guest:           guest,
		Customer:        customer,
		Items:           orderItems(items),
		ShippingAddress: address,
		Subtotal:        quote.Subtotal,
		ShippingCharges: quote.ShippingCharges,
		Discount:        quote.Discount,
		AppliedCoupon:   quote.AppliedCoupon,
		TotalAmount:     quote.Total,
		Status:          domain.OrderStatusPaymentPending,
		PaymentStatus:   domain.PaymentStatusPending,
		StatusHistory: []StatusChange{{
			To:        domain.OrderStatusPaymentPending,
			Actor:     userID,
			ChangedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	profile := domain.UserProfile{
		UID:   userID,
		Name:  customer.Name,
		Email: customer.Email,
		Phone: customer.Phone,
		Role:  domain.UserRoleCustomer,
	}
	if guest {
		profile.Role = domain.UserRoleGuest
	}
	if cmd.SaveAddress && !guest {
		addr := address
		profile.DefaultAddress = &addr
	}

	var placed Order
	for attempt := 1; ; attempt++ {
		order.ID = s.newID(now)
		placed, err = s.orders.PlaceOrder(ctx, domain.OrderPlacement{Order: order, Profile: profile})
		if err == nil {
			break
		}
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return Order{}, s.reject(ctx, string(stockErr.Code), mapStockError(stockErr))
		}
		if errors.Is(err, repositories.ErrOrderIDTaken) && attempt < s.idAttempts {
			s.logger(ctx, orderEventIDCollision, map[string]any{"orderId": order.ID, "attempt": attempt})
			continue
		}
		return Order{}, s.reject(ctx, "repository", mapRepositoryError(err, "order", ErrOrderNotFound, ErrOrderConflict))
	}

	if s.metrics != nil {
		s.metrics.OrderPlaced(ctx, placed.Guest)
	}
	s.logger(ctx, orderEventPlaced, map[string]any{
		"orderId": placed.ID,
		"userId":  placed.UserID,
		"guest":   placed.Guest,
		"total":   placed.TotalAmount,
		"items":   len(placed.Items),
	})
	if s.notifier != nil {
		s.notifier.OrderPlaced(ctx, placed)
	}
	if s.carts != nil && cmd.Cart != nil {
		if err := s.carts.Clear(ctx, *cmd.Cart); err != nil {
			s.logger(ctx, orderEventCartClear, map[string]any{"orderId": placed.ID, "error": err.Error()})
		}
	}
	return placed, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, "order", ErrOrderNotFound, ErrOrderConflict)
	}
	if !canViewOrder(order, cmd.Viewer) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	for _, status := range filter.Status {
		if !isKnownStatus(status) {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.Page[Order]{}, mapRepositoryError(err, "order", ErrOrderNotFound, ErrOrderConflict)
	}
	return page, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	current, err := s.GetOrder(ctx, GetOrderCommand{OrderID: cmd.OrderID, Viewer: cmd.Viewer})
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	change := StatusChange{
		To:        domain.OrderStatusCancelled,
		Actor:     chooseFirstNonEmpty(cmd.Viewer.UserID, current.UserID),
		Note:      strings.TrimSpace(cmd.Reason),
		ChangedAt: now,
	}
	// The rule is evaluated again against the order read inside the
	// transaction, so a concurrent status change cannot slip past it.
	var rejected error
	check := func(order domain.Order) error {
		rejected = nil
		if eligibility := CancellationEligibility(order, now); !eligibility.Allowed {
			rejected = fmt.Errorf("%w: %s", ErrOrderNotCancellable, eligibility.Reason)
			return rejected
		}
		return nil
	}

	cancelled, err := s.orders.Cancel(ctx, current.ID, change, check)
	if err != nil {
		if rejected != nil {
			return Order{}, rejected
		}
		return Order{}, mapRepositoryError(err, "order", ErrOrderNotFound, ErrOrderConflict)
	}

	s.logger(ctx, orderEventCancelled, map[string]any{
		"orderId": cancelled.ID,
		"actorId": change.Actor,
		"reason":  change.Note,
	})
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, cancelled, lastChange(cancelled, change))
	}
	return cancelled, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.TargetStatus))))
	if !isKnownStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}
	if target == domain.OrderStatusPlaced {
		return Order{}, fmt.Errorf("%w: orders become placed only through payment confirmation", ErrOrderInvalidState)
	}

	change := StatusChange{
		To:        target,
		Actor:     strings.TrimSpace(cmd.ActorID),
		Note:      strings.TrimSpace(cmd.Note),
		ChangedAt: s.clock(),
	}
	var rejected error
	check := func(order domain.Order) error {
		rejected = ValidateTransition(order.Status, target)
		return rejected
	}

	var (
		updated Order
		err     error
	)
	if target == domain.OrderStatusCancelled {
		updated, err = s.orders.Cancel(ctx, orderID, change, check)
	} else {
		updated, err = s.orders.UpdateStatus(ctx, orderID, change, check)
	}
	if err != nil {
		if rejected != nil {
			return Order{}, rejected
		}
		return Order{}, mapRepositoryError(err, "order", ErrOrderNotFound, ErrOrderConflict)
	}

	applied := lastChange(updated, change)
	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderId": updated.ID,
		"from":    string(applied.From),
		"to":      string(applied.To),
		"actorId": change.Actor,
	})
	if s.notifier != nil {
		s.notifier.StatusChanged(ctx, updated, applied)
	}
	return updated, nil
}

func (s *orderService) reject(ctx context.Context, reason string, err error) error {
	if s.metrics != nil {
		s.metrics.OrderRejected(ctx, reason)
	}
	s.logger(ctx, orderEventRejected, map[string]any{"reason": reason, "error": err.Error()})
	return err
}

func (s *orderService) mapItemError(err error) error {
	var unavailable *ItemUnavailableError
	if errors.As(err, &unavailable) {
		if unavailable.Reason == "insufficient_stock" {
			return fmt.Errorf("%w: %w", ErrOrderInsufficientStock, unavailable)
		}
		return fmt.Errorf("%w: %w", ErrOrderInvalidInput, unavailable)
	}
	if errors.Is(err, ErrCheckoutInvalidInput) {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, strings.TrimPrefix(err.Error(), ErrCheckoutInvalidInput.Error()+": "))
	}
	return err
}

func mapStockError(err *repositories.StockError) error {
	if err.Code == repositories.StockErrorInsufficient {
		return fmt.Errorf("%w: %w", ErrOrderInsufficientStock, err)
	}
	return fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
}

// lastChange returns the history entry the repository appended for change.
func lastChange(order Order, change StatusChange) StatusChange {
	if n := len(order.StatusHistory); n > 0 {
		return order.StatusHistory[n-1]
	}
	return change
}

func canViewOrder(order Order, viewer OrderViewer) bool {
	if viewer.IsAdmin {
		return true
	}
	if uid := strings.TrimSpace(viewer.UserID); uid != "" && uid == order.UserID {
		return true
	}
	email := textutil.NormalizeEmail(viewer.Email)
	return order.Guest && email != "" && email == textutil.NormalizeEmail(order.Customer.Email)
}

func isKnownStatus(status OrderStatus) bool {
	switch status {
	case domain.OrderStatusPaymentPending, domain.OrderStatusPlaced, domain.OrderStatusProcessing,
		domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled,
		domain.OrderStatusReturned:
		return true
	}
	return false
}

func orderItems(items []domain.CartItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItem{
			BookID:      item.BookID,
			Kind:        item.Kind,
			Title:       item.Title,
			Author:      item.Author,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Image:       item.Image,
			WeightGrams: item.WeightGrams,
		})
	}
	return out
}

func normaliseCustomer(c Customer) (Customer, error) {
	c.Name = textutil.CollapseSpace(c.Name)
	c.Email = textutil.NormalizeEmail(c.Email)
	c.Phone = textutil.NormalizePhone(c.Phone)
	switch {
	case c.Name == "":
		return Customer{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	case !strings.Contains(c.Email, "@") || strings.HasPrefix(c.Email, "@") || strings.HasSuffix(c.Email, "@"):
		return Customer{}, fmt.Errorf("%w: a valid email is required", ErrOrderInvalidInput)
	case len(strings.TrimPrefix(c.Phone, "+")) < 10:
		return Customer{}, fmt.Errorf("%w: a valid phone number is required", ErrOrderInvalidInput)
	}
	return c, nil
}

func normaliseAddress(a Address) (Address, error) {
	a.Name = textutil.CollapseSpace(a.Name)
	a.Phone = textutil.NormalizePhone(a.Phone)
	a.Line1 = textutil.CollapseSpace(a.Line1)
	a.Line2 = textutil.CollapseSpace(a.Line2)
	a.City = textutil.CollapseSpace(a.City)
	a.State = textutil.CollapseSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	switch {
	case a.Line1 == "":
		return Address{}, fmt.Errorf("%w: address line 1 is required", ErrOrderInvalidInput)
	case a.City == "":
		return Address{}, fmt.Errorf("%w: city is required", ErrOrderInvalidInput)
	case a.State == "":
		return Address{}, fmt.Errorf("%w: state is required", ErrOrderInvalidInput)
	case !pincodePattern.MatchString(a.Pincode):
		return Address{}, fmt.Errorf("%w: pincode must be 6 digits", ErrOrderInvalidInput)
	}
	return a, nil
}
