package domain

import "time"

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	OrderStatusPlaced         OrderStatus = "placed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusReturned       OrderStatus = "returned"
)

// PaymentStatus tracks the gateway outcome separately from OrderStatus.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Customer is the contact captured at checkout.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// OrderItem is an immutable copy of a cart line taken at checkout.
type OrderItem struct {
	BookID      string
	Kind        ItemKind
	Title       string
	Author      string
	Price       int64
	Quantity    int
	Image       string
	WeightGrams int
}

// AppliedCoupon records the coupon that produced an order's discount.
type AppliedCoupon struct {
	Code     string
	Type     CouponType
	Value    int64
	Discount int64
}

// PaymentRecord is the last gateway result attached to an order.
type PaymentRecord struct {
	Provider          string
	TransactionID     string
	ProviderReference string
	Code              string
	Amount            int64
	UpdatedAt         time.Time
}

// StatusChange is one entry of an order's status history.
type StatusChange struct {
	From      OrderStatus
	To        OrderStatus
	Actor     string
	Note      string
	ChangedAt time.Time
}

// Order is an orders/{orderId} document. Items never change after creation.
type Order struct {
	ID              string
	UserID          string
	Guest           bool
	Customer        Customer
	Items           []OrderItem
	ShippingAddress Address
	Subtotal        int64
	ShippingCharges int64
	Discount        int64
	AppliedCoupon   *AppliedCoupon
	TotalAmount     int64
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	Payment         *PaymentRecord
	StatusHistory   []StatusChange
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
}

// ItemQuantities sums requested quantities per physical book.
func (o Order) ItemQuantities() map[string]int {
	out := make(map[string]int)
	for _, item := range o.Items {
		if item.Kind.IsDigital() {
			continue
		}
		out[item.BookID] += item.Quantity
	}
	return out
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID     string
	Status     []OrderStatus
	Pagination Pagination
}

// OrderPlacement is everything the order transaction needs to commit an order.
// Totals are computed before the transaction; the transaction only re-checks stock.
type OrderPlacement struct {
	Order   Order
	Profile UserProfile
}
