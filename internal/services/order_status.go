package services

import (
	"fmt"
	"slices"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
)

// CancellationWindow is how long after placement a customer may cancel.
const CancellationWindow = 24 * time.Hour

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPaymentPending: {domain.OrderStatusPlaced, domain.OrderStatusCancelled},
	domain.OrderStatusPlaced:         {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing:     {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:        {domain.OrderStatusDelivered, domain.OrderStatusReturned},
	domain.OrderStatusDelivered:      {domain.OrderStatusReturned},
}

var customerCancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPlaced,
	domain.OrderStatusProcessing,
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// ValidateTransition returns ErrOrderInvalidState when the edge is not allowed.
func ValidateTransition(from, to domain.OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, from, to)
	}
	return nil
}

// Cancellation explains whether a customer can cancel an order right now.
type Cancellation struct {
	Allowed bool
	Reason  string
	// Deadline is when the window closes; zero when the status alone forbids it.
	Deadline time.Time
}

// CancellationEligibility applies the customer cancel rule: the order must be
// placed or processing and younger than CancellationWindow.
func CancellationEligibility(order domain.Order, now time.Time) Cancellation {
	if !slices.Contains(customerCancellableStatuses, order.Status) {
		return Cancellation{Reason: fmt.Sprintf("orders in status %s cannot be cancelled", order.Status)}
	}
	deadline := order.CreatedAt.Add(CancellationWindow)
	if !now.Before(deadline) {
		return Cancellation{Reason: "the 24 hour cancellation window has passed", Deadline: deadline}
	}
	return Cancellation{Allowed: true, Deadline: deadline}
}
