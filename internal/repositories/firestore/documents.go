package firestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/exambook-store/api/internal/domain"
)

const (
	booksCollection      = "books"
	testSeriesCollection = "testSeries"
	couponsCollection    = "coupons"
	usersCollection      = "users"
	ordersCollection     = "orders"
)

type bookDocument struct {
	Title         string    `firestore:"title"`
	Author        string    `firestore:"author"`
	Slug          string    `firestore:"slug"`
	Description   string    `firestore:"description"`
	Category      string    `firestore:"category"`
	Exam          string    `firestore:"exam"`
	Price         int64     `firestore:"price"`
	OriginalPrice int64     `firestore:"originalPrice"`
	StockQuantity int       `firestore:"stockQuantity"`
	WeightGrams   int       `firestore:"weight"`
	CoverImage    string    `firestore:"coverImage"`
	IsActive      bool      `firestore:"isActive"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d *bookDocument) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("title is required")
	}
	if d.Price < 0 {
		return fmt.Errorf("price %d is negative", d.Price)
	}
	if d.StockQuantity < 0 {
		return fmt.Errorf("stockQuantity %d is negative", d.StockQuantity)
	}
	return nil
}

func (d bookDocument) toDomain(id string) domain.Book {
	return domain.Book{
		ID:            id,
		Title:         d.Title,
		Author:        d.Author,
		Slug:          d.Slug,
		Description:   d.Description,
		Category:      d.Category,
		Exam:          d.Exam,
		Price:         d.Price,
		OriginalPrice: d.OriginalPrice,
		StockQuantity: d.StockQuantity,
		WeightGrams:   d.WeightGrams,
		CoverImage:    d.CoverImage,
		IsActive:      d.IsActive,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

func newBookDocument(b domain.Book) bookDocument {
	return bookDocument{
		Title:         b.Title,
		Author:        b.Author,
		Slug:          b.Slug,
		Description:   b.Description,
		Category:      b.Category,
		Exam:          b.Exam,
		Price:         b.Price,
		OriginalPrice: b.OriginalPrice,
		StockQuantity: b.StockQuantity,
		WeightGrams:   b.WeightGrams,
		CoverImage:    b.CoverImage,
		IsActive:      b.IsActive,
		CreatedAt:     b.CreatedAt.UTC(),
		UpdatedAt:     b.UpdatedAt.UTC(),
	}
}

type testSeriesDocument struct {
	Title         string    `firestore:"title"`
	Slug          string    `firestore:"slug"`
	Exam          string    `firestore:"exam"`
	Price         int64     `firestore:"price"`
	OriginalPrice int64     `firestore:"originalPrice"`
	IsActive      bool      `firestore:"isActive"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d *testSeriesDocument) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("title is required")
	}
	if d.Price < 0 {
		return fmt.Errorf("price %d is negative", d.Price)
	}
	return nil
}

func (d testSeriesDocument) toDomain(id string) domain.TestSeries {
	return domain.TestSeries{
		ID:            id,
		Title:         d.Title,
		Slug:          d.Slug,
		Exam:          d.Exam,
		Price:         d.Price,
		OriginalPrice: d.OriginalPrice,
		IsActive:      d.IsActive,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

type couponDocument struct {
	Code              string    `firestore:"code"`
	Type              string    `firestore:"type"`
	Value             int64     `firestore:"value"`
	MinPurchaseAmount int64     `firestore:"minPurchaseAmount"`
	IsActive          bool      `firestore:"isActive"`
	ExpiryDate        time.Time `firestore:"expiryDate"`
	Description       string    `firestore:"description"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func (d *couponDocument) Validate() error {
	switch domain.CouponType(d.Type) {
	case domain.CouponTypePercentage:
		if d.Value <= 0 || d.Value > 100 {
			return fmt.Errorf("percentage value %d out of range", d.Value)
		}
	case domain.CouponTypeFlat:
		if d.Value <= 0 {
			return fmt.Errorf("flat value %d must be positive", d.Value)
		}
	default:
		return fmt.Errorf("unknown coupon type %q", d.Type)
	}
	if d.MinPurchaseAmount < 0 {
		return errors.New("minPurchaseAmount is negative")
	}
	return nil
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	code := d.Code
	if code == "" {
		code = id
	}
	return domain.Coupon{
		Code:              code,
		Type:              domain.CouponType(d.Type),
		Value:             d.Value,
		MinPurchaseAmount: d.MinPurchaseAmount,
		IsActive:          d.IsActive,
		ExpiryDate:        d.ExpiryDate.UTC(),
		Description:       d.Description,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

func newCouponDocument(c domain.Coupon) couponDocument {
	return couponDocument{
		Code:              c.Code,
		Type:              string(c.Type),
		Value:             c.Value,
		MinPurchaseAmount: c.MinPurchaseAmount,
		IsActive:          c.IsActive,
		ExpiryDate:        c.ExpiryDate.UTC(),
		Description:       c.Description,
		CreatedAt:         c.CreatedAt.UTC(),
		UpdatedAt:         c.UpdatedAt.UTC(),
	}
}

type addressDocument struct {
	Name    string `firestore:"name"`
	Phone   string `firestore:"phone"`
	Line1   string `firestore:"addressLine1"`
	Line2   string `firestore:"addressLine2,omitempty"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Pincode string `firestore:"pincode"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument(a)
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address(d)
}

type userDocument struct {
	Name           string           `firestore:"name"`
	Email          string           `firestore:"email"`
	Phone          string           `firestore:"phone"`
	Role           string           `firestore:"role"`
	DefaultAddress *addressDocument `firestore:"defaultAddress,omitempty"`
	CreatedAt      time.Time        `firestore:"createdAt"`
	UpdatedAt      time.Time        `firestore:"updatedAt"`
}

func (d *userDocument) Validate() error {
	switch domain.UserRole(d.Role) {
	case domain.UserRoleCustomer, domain.UserRoleGuest, domain.UserRoleAdmin, "":
		return nil
	}
	return fmt.Errorf("unknown role %q", d.Role)
}

func (d userDocument) toDomain(uid string) domain.UserProfile {
	profile := domain.UserProfile{
		UID:       uid,
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		Role:      domain.UserRole(d.Role),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if profile.Role == "" {
		profile.Role = domain.UserRoleCustomer
	}
	if d.DefaultAddress != nil {
		addr := d.DefaultAddress.toDomain()
		profile.DefaultAddress = &addr
	}
	return profile
}

type orderItemDocument struct {
	BookID      string `firestore:"bookId"`
	Kind        string `firestore:"kind"`
	Title       string `firestore:"title"`
	Author      string `firestore:"author"`
	Price       int64  `firestore:"price"`
	Quantity    int    `firestore:"quantity"`
	Image       string `firestore:"image"`
	WeightGrams int    `firestore:"weight"`
}

type appliedCouponDocument struct {
	Code     string `firestore:"code"`
	Type     string `firestore:"type"`
	Value    int64  `firestore:"value"`
	Discount int64  `firestore:"discount"`
}

type paymentDocument struct {
	Provider          string    `firestore:"provider"`
	TransactionID     string    `firestore:"transactionId"`
	ProviderReference string    `firestore:"providerReference"`
	Code              string    `firestore:"code"`
	Amount            int64     `firestore:"amount"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

type statusChangeDocument struct {
	From      string    `firestore:"from"`
	To        string    `firestore:"to"`
	Actor     string    `firestore:"actor"`
	Note      string    `firestore:"note,omitempty"`
	ChangedAt time.Time `firestore:"changedAt"`
}

type customerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone"`
}

type orderDocument struct {
	OrderID         string                 `firestore:"orderId"`
	UserID          string                 `firestore:"userId"`
	Guest           bool                   `firestore:"guest"`
	Customer        customerDocument       `firestore:"customer"`
	Items           []orderItemDocument    `firestore:"items"`
	ShippingAddress addressDocument        `firestore:"shippingAddress"`
	Subtotal        int64                  `firestore:"subtotal"`
	ShippingCharges int64                  `firestore:"shippingCharges"`
	Discount        int64                  `firestore:"discount"`
	AppliedCoupon   *appliedCouponDocument `firestore:"appliedCoupon,omitempty"`
	TotalAmount     int64                  `firestore:"totalAmount"`
	Status          string                 `firestore:"status"`
	PaymentStatus   string                 `firestore:"paymentStatus"`
	Payment         *paymentDocument       `firestore:"payment,omitempty"`
	StatusHistory   []statusChangeDocument `firestore:"statusHistory"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
	CancelledAt     *time.Time             `firestore:"cancelledAt,omitempty"`
}

func (d *orderDocument) Validate() error {
	if strings.TrimSpace(d.UserID) == "" {
		return errors.New("userId is required")
	}
	if len(d.Items) == 0 {
		return errors.New("order has no items")
	}
	if d.TotalAmount < 0 {
		return fmt.Errorf("totalAmount %d is negative", d.TotalAmount)
	}
	switch domain.OrderStatus(d.Status) {
	case domain.OrderStatusPaymentPending, domain.OrderStatusPlaced, domain.OrderStatusProcessing,
		domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusReturned:
	default:
		return fmt.Errorf("unknown status %q", d.Status)
	}
	return nil
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		OrderID: o.ID,
		UserID:  o.UserID,
		Guest:   o.Guest,
		Customer: customerDocument{
			Name:  o.Customer.Name,
			Email: o.Customer.Email,
			Phone: o.Customer.Phone,
		},
		Items:           make([]orderItemDocument, 0, len(o.Items)),
		ShippingAddress: newAddressDocument(o.ShippingAddress),
		Subtotal:        o.Subtotal,
		ShippingCharges: o.ShippingCharges,
		Discount:        o.Discount,
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		StatusHistory:   make([]statusChangeDocument, 0, len(o.StatusHistory)),
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			BookID:      item.BookID,
			Kind:        string(item.Kind),
			Title:       item.Title,
			Author:      item.Author,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Image:       item.Image,
			WeightGrams: item.WeightGrams,
		})
	}
	if o.AppliedCoupon != nil {
		doc.AppliedCoupon = &appliedCouponDocument{
			Code:     o.AppliedCoupon.Code,
			Type:     string(o.AppliedCoupon.Type),
			Value:    o.AppliedCoupon.Value,
			Discount: o.AppliedCoupon.Discount,
		}
	}
	if o.Payment != nil {
		doc.Payment = newPaymentDocument(*o.Payment)
	}
	for _, change := range o.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, newStatusChangeDocument(change))
	}
	if o.CancelledAt != nil {
		at := o.CancelledAt.UTC()
		doc.CancelledAt = &at
	}
	return doc
}

func newPaymentDocument(p domain.PaymentRecord) *paymentDocument {
	return &paymentDocument{
		Provider:          p.Provider,
		TransactionID:     p.TransactionID,
		ProviderReference: p.ProviderReference,
		Code:              p.Code,
		Amount:            p.Amount,
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
}

func newStatusChangeDocument(c domain.StatusChange) statusChangeDocument {
	return statusChangeDocument{
		From:      string(c.From),
		To:        string(c.To),
		Actor:     c.Actor,
		Note:      c.Note,
		ChangedAt: c.ChangedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:     id,
		UserID: d.UserID,
		Guest:  d.Guest,
		Customer: domain.Customer{
			Name:  d.Customer.Name,
			Email: d.Customer.Email,
			Phone: d.Customer.Phone,
		},
		Items:           make([]domain.OrderItem, 0, len(d.Items)),
		ShippingAddress: d.ShippingAddress.toDomain(),
		Subtotal:        d.Subtotal,
		ShippingCharges: d.ShippingCharges,
		Discount:        d.Discount,
		TotalAmount:     d.TotalAmount,
		Status:          domain.OrderStatus(d.Status),
		PaymentStatus:   domain.PaymentStatus(d.PaymentStatus),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			BookID:      item.BookID,
			Kind:        domain.ItemKind(item.Kind),
			Title:       item.Title,
			Author:      item.Author,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Image:       item.Image,
			WeightGrams: item.WeightGrams,
		})
	}
	if d.AppliedCoupon != nil {
		order.AppliedCoupon = &domain.AppliedCoupon{
			Code:     d.AppliedCoupon.Code,
			Type:     domain.CouponType(d.AppliedCoupon.Type),
			Value:    d.AppliedCoupon.Value,
			Discount: d.AppliedCoupon.Discount,
		}
	}
	if d.Payment != nil {
		order.Payment = &domain.PaymentRecord{
			Provider:          d.Payment.Provider,
			TransactionID:     d.Payment.TransactionID,
			ProviderReference: d.Payment.ProviderReference,
			Code:              d.Payment.Code,
			Amount:            d.Payment.Amount,
			UpdatedAt:         d.Payment.UpdatedAt.UTC(),
		}
	}
	for _, change := range d.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
			From:      domain.OrderStatus(change.From),
			To:        domain.OrderStatus(change.To),
			Actor:     change.Actor,
			Note:      change.Note,
			ChangedAt: change.ChangedAt.UTC(),
		})
	}
	if d.CancelledAt != nil {
		at := d.CancelledAt.UTC()
		order.CancelledAt = &at
	}
	return order
}
