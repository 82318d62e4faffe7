package services

import (
	"context"
	"time"

	"github.com/exambook-store/api/internal/cart"
	domain "github.com/exambook-store/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Book               = domain.Book
	BookFilter         = domain.BookFilter
	TestSeries         = domain.TestSeries
	Coupon             = domain.Coupon
	AppliedCoupon      = domain.AppliedCoupon
	PriceQuote         = domain.PriceQuote
	Address            = domain.Address
	Customer           = domain.Customer
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderListFilter    = domain.OrderListFilter
	StatusChange       = domain.StatusChange
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService serves the storefront catalog and its admin maintenance.
type CatalogService interface {
	ListBooks(ctx context.Context, filter BookFilter) (domain.Page[Book], error)
	GetBook(ctx context.Context, bookID string) (Book, error)
	ListTestSeries(ctx context.Context, exam string) ([]TestSeries, error)
	UpsertBook(ctx context.Context, cmd UpsertBookCommand) (Book, error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Book, error)
	UpsertCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
}

// CartService loads, mutates and prices carts kept in a cart.Store.
type CartService interface {
	GetCart(ctx context.Context, key CartKey) (CartView, error)
	Apply(ctx context.Context, cmd CartActionCommand) (CartView, error)
	Clear(ctx context.Context, key CartKey) error
}

// CheckoutService prices a prospective order without committing it.
type CheckoutService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (PriceQuote, error)
	ValidateCoupon(ctx context.Context, cmd ValidateCouponCommand) (AppliedCoupon, error)
}

// OrderService places and manages orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
}

// PaymentService starts gateway payments and applies their outcomes to orders.
type PaymentService interface {
	Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentSession, error)
	HandleCallback(ctx context.Context, cmd PaymentCallbackCommand) (Order, error)
	HandleRedirect(ctx context.Context, cmd PaymentRedirectCommand) (PaymentRedirect, error)
}

// Notifier sends customer and admin notifications. Methods never block the
// caller on delivery and never report failures.
type Notifier interface {
	OrderPlaced(ctx context.Context, order Order)
	PaymentResult(ctx context.Context, order Order)
	StatusChanged(ctx context.Context, order Order, change StatusChange)
}

// NotificationPublisher hands rendered notifications to the delivery workers.
type NotificationPublisher interface {
	PublishEmail(ctx context.Context, msg EmailNotification) error
	PublishWhatsApp(ctx context.Context, msg WhatsAppNotification) error
}

// AssetService issues signed cover uploads and removes stale objects.
type AssetService interface {
	IssueCoverUpload(ctx context.Context, cmd CoverUploadCommand) (CoverUpload, error)
	DeleteUpload(ctx context.Context, cmd DeleteUploadCommand) error
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// UpsertBookCommand creates or replaces a book.
type UpsertBookCommand struct {
	Book    Book
	ActorID string
}

// AdjustStockCommand adds Delta (possibly negative) to a book's stock.
type AdjustStockCommand struct {
	BookID  string
	Delta   int
	ActorID string
}

// UpsertCouponCommand creates or replaces a coupon.
type UpsertCouponCommand struct {
	Coupon  Coupon
	ActorID string
}

// CartKey addresses a cart. UserID wins over SessionID when both are set.
type CartKey struct {
	UserID    string
	SessionID string
}

// CartActionCommand applies one reducer action to the cart at Key.
type CartActionCommand struct {
	Key    CartKey
	Action cart.Action
}

// CartView is a cart plus its flat-policy summary.
type CartView struct {
	State     cart.State
	Summary   PriceQuote
	ItemCount int
}

// CheckoutItem references a catalog product by ID. Prices always come from the catalog.
type CheckoutItem struct {
	BookID   string
	Kind     domain.ItemKind
	Quantity int
}

// QuoteCommand prices items for delivery to State.
type QuoteCommand struct {
	Items      []CheckoutItem
	State      string
	CouponCode string
}

// ValidateCouponCommand checks a coupon code against a subtotal.
type ValidateCouponCommand struct {
	Code     string
	Subtotal int64
}

// PlaceOrderCommand is a checkout submission. UserID is the Firebase UID,
// anonymous or registered; an empty UserID marks a guest without a token.
type PlaceOrderCommand struct {
	UserID          string
	Guest           bool
	Customer        Customer
	ShippingAddress Address
	Items           []CheckoutItem
	CouponCode      string
	SaveAddress     bool
	// Cart, when set, is cleared after the order commits.
	Cart *CartKey
}

// OrderViewer identifies who is reading or acting on an order.
type OrderViewer struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// GetOrderCommand loads one order on behalf of Viewer.
type GetOrderCommand struct {
	OrderID string
	Viewer  OrderViewer
}

// CancelOrderCommand is a customer cancel request.
type CancelOrderCommand struct {
	OrderID string
	Viewer  OrderViewer
	Reason  string
}

// OrderStatusTransitionCommand is an admin status update.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Note         string
}

// InitiatePaymentCommand starts a gateway payment for an unpaid order.
type InitiatePaymentCommand struct {
	OrderID  string
	Provider string
	Viewer   OrderViewer
}

// PaymentSession tells the client where to pay.
type PaymentSession struct {
	OrderID       string
	Provider      string
	TransactionID string
	RedirectURL   string
	Amount        int64
}

// PaymentCallbackCommand is a raw server-to-server gateway notification.
type PaymentCallbackCommand struct {
	Provider  string
	Body      []byte
	Signature string
}

// PaymentRedirectCommand is the browser returning from the gateway pay page.
type PaymentRedirectCommand struct {
	OrderID       string
	Provider      string
	TransactionID string
}

// PaymentRedirect is where the browser should land after the gateway.
type PaymentRedirect struct {
	Order    Order
	Paid     bool
	Location string
}

// NotificationKind tags a notification with the order event that produced it.
type NotificationKind string

const (
	NotificationOrderPlaced   NotificationKind = "order.placed"
	NotificationPaymentResult NotificationKind = "order.payment"
	NotificationStatusChanged NotificationKind = "order.status"
)

// EmailNotification is a rendered email ready for the mail worker.
type EmailNotification struct {
	Kind      NotificationKind `json:"kind"`
	OrderID   string           `json:"orderId"`
	To        string           `json:"to"`
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"createdAt"`
}

// WhatsAppNotification carries the template parameters for the WhatsApp worker.
type WhatsAppNotification struct {
	Kind         NotificationKind `json:"kind"`
	OrderID      string           `json:"orderId"`
	CustomerName string           `json:"customerName"`
	Phone        string           `json:"phone"`
	Amount       int64            `json:"amount"`
	AmountText   string           `json:"amountText"`
	Items        []string         `json:"items"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// CoverUploadCommand requests a signed URL for a book cover image.
type CoverUploadCommand struct {
	BookID      string
	FileName    string
	ContentType string
	ContentMD5  string
	Size        int64
	ActorID     string
}

// CoverUpload is a signed upload the admin browser performs directly against storage.
type CoverUpload struct {
	UploadID  string
	Key       string
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
	PublicURL string
}

// DeleteUploadCommand removes a previously uploaded object.
type DeleteUploadCommand struct {
	Key     string
	ActorID string
}
