package handlers

import (
	"github.com/exambook-store/api/internal/cart"
	domain "github.com/exambook-store/api/internal/domain"
	"github.com/exambook-store/api/internal/services"
)

type bookPayload struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Author        string `json:"author,omitempty"`
	Slug          string `json:"slug,omitempty"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category,omitempty"`
	Exam          string `json:"exam,omitempty"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"original_price,omitempty"`
	StockQuantity int    `json:"stock_quantity"`
	InStock       bool   `json:"in_stock"`
	WeightGrams   int    `json:"weight_grams,omitempty"`
	CoverImage    string `json:"cover_image,omitempty"`
	IsActive      bool   `json:"is_active"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func buildBookPayload(b domain.Book) bookPayload {
	return bookPayload{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Slug:          b.Slug,
		Description:   b.Description,
		Category:      b.Category,
		Exam:          b.Exam,
		Price:         b.Price,
		OriginalPrice: b.OriginalPrice,
		StockQuantity: b.StockQuantity,
		InStock:       b.InStock(1),
		WeightGrams:   b.WeightGrams,
		CoverImage:    b.CoverImage,
		IsActive:      b.IsActive,
		UpdatedAt:     formatTime(b.UpdatedAt),
	}
}

type testSeriesPayload struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Slug          string `json:"slug,omitempty"`
	Exam          string `json:"exam,omitempty"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"original_price,omitempty"`
}

func buildTestSeriesPayload(ts domain.TestSeries) testSeriesPayload {
	return testSeriesPayload{
		ID:            ts.ID,
		Title:         ts.Title,
		Slug:          ts.Slug,
		Exam:          ts.Exam,
		Price:         ts.Price,
		OriginalPrice: ts.OriginalPrice,
	}
}

type appliedCouponPayload struct {
	Code     string `json:"code"`
	Type     string `json:"type"`
	Value    int64  `json:"value"`
	Discount int64  `json:"discount"`
}

func buildAppliedCouponPayload(c *domain.AppliedCoupon) *appliedCouponPayload {
	if c == nil {
		return nil
	}
	return &appliedCouponPayload{Code: c.Code, Type: string(c.Type), Value: c.Value, Discount: c.Discount}
}

type quotePayload struct {
	Subtotal        int64                 `json:"subtotal"`
	ShippingCharges int64                 `json:"shipping_charges"`
	Discount        int64                 `json:"discount"`
	Total           int64                 `json:"total"`
	Policy          string                `json:"shipping_policy"`
	Zone            string                `json:"zone,omitempty"`
	WeightGrams     int                   `json:"weight_grams,omitempty"`
	Coupon          *appliedCouponPayload `json:"coupon,omitempty"`
}

func buildQuotePayload(q domain.PriceQuote) quotePayload {
	return quotePayload{
		Subtotal:        q.Subtotal,
		ShippingCharges: q.ShippingCharges,
		Discount:        q.Discount,
		Total:           q.Total,
		Policy:          string(q.Policy),
		Zone:            string(q.Zone),
		WeightGrams:     q.WeightGrams,
		Coupon:          buildAppliedCouponPayload(q.AppliedCoupon),
	}
}

type cartItemPayload struct {
	BookID        string `json:"book_id"`
	Kind          string `json:"kind"`
	Title         string `json:"title"`
	Author        string `json:"author,omitempty"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"original_price,omitempty"`
	Image         string `json:"image,omitempty"`
	Quantity      int    `json:"quantity"`
	Slug          string `json:"slug,omitempty"`
	LineTotal     int64  `json:"line_total"`
}

type wishlistItemPayload struct {
	BookID  string `json:"book_id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Author  string `json:"author,omitempty"`
	Price   int64  `json:"price"`
	Image   string `json:"image,omitempty"`
	Slug    string `json:"slug,omitempty"`
	AddedAt string `json:"added_at,omitempty"`
}

type cartPayload struct {
	Items     []cartItemPayload     `json:"items"`
	Wishlist  []wishlistItemPayload `json:"wishlist"`
	ItemCount int                   `json:"item_count"`
	Summary   quotePayload          `json:"summary"`
	UpdatedAt string                `json:"updated_at,omitempty"`
}

func buildCartPayload(view services.CartView) cartPayload {
	payload := cartPayload{
		Items:     make([]cartItemPayload, 0, len(view.State.Items)),
		Wishlist:  make([]wishlistItemPayload, 0, len(view.State.Wishlist)),
		ItemCount: view.ItemCount,
		Summary:   buildQuotePayload(view.Summary),
		UpdatedAt: formatTime(view.State.UpdatedAt),
	}
	for _, item := range view.State.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			BookID:        item.BookID,
			Kind:          string(item.Kind),
			Title:         item.Title,
			Author:        item.Author,
			Price:         item.Price,
			OriginalPrice: item.OriginalPrice,
			Image:         item.Image,
			Quantity:      item.Quantity,
			Slug:          item.Slug,
			LineTotal:     item.CartItem().LineTotal(),
		})
	}
	for _, wish := range view.State.Wishlist {
		payload.Wishlist = append(payload.Wishlist, wishlistItemPayload{
			BookID:  wish.BookID,
			Kind:    string(wish.Kind),
			Title:   wish.Title,
			Author:  wish.Author,
			Price:   wish.Price,
			Image:   wish.Image,
			Slug:    wish.Slug,
			AddedAt: formatTime(wish.AddedAt),
		})
	}
	return payload
}

type cartActionRequest struct {
	Type     string `json:"type"`
	BookID   string `json:"book_id"`
	Kind     string `json:"kind"`
	Quantity int    `json:"quantity"`
}

// action turns the request into a reducer action. Only the product reference
// is taken from the client; the service fills title and price from the catalog.
func (req cartActionRequest) action() cart.Action {
	action := cart.Action{
		Type:     cart.ActionType(req.Type),
		BookID:   req.BookID,
		Kind:     domain.ItemKind(req.Kind),
		Quantity: req.Quantity,
	}
	switch action.Type {
	case cart.ActionAddItem, cart.ActionAddToWishlist:
		kind := domain.ItemKind(req.Kind)
		if kind == "" {
			kind = domain.ItemKindBook
		}
		action.Item = &cart.Item{BookID: req.BookID, Kind: kind, Quantity: req.Quantity}
	}
	return action
}

type addressPayload struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

func (p addressPayload) address() domain.Address {
	return domain.Address(p)
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload(a)
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type orderItemPayload struct {
	BookID    string `json:"book_id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Author    string `json:"author,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
	LineTotal int64  `json:"line_total"`
}

type paymentRecordPayload struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Code          string `json:"code,omitempty"`
	Amount        int64  `json:"amount"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type statusChangePayload struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Actor     string `json:"actor,omitempty"`
	Note      string `json:"note,omitempty"`
	ChangedAt string `json:"changed_at"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	UserID          string                `json:"user_id"`
	Guest           bool                  `json:"guest"`
	Customer        customerPayload       `json:"customer"`
	Items           []orderItemPayload    `json:"items"`
	ShippingAddress addressPayload        `json:"shipping_address"`
	Subtotal        int64                 `json:"subtotal"`
	ShippingCharges int64                 `json:"shipping_charges"`
	Discount        int64                 `json:"discount"`
	Coupon          *appliedCouponPayload `json:"coupon,omitempty"`
	TotalAmount     int64                 `json:"total_amount"`
	Status          string                `json:"status"`
	PaymentStatus   string                `json:"payment_status"`
	Payment         *paymentRecordPayload `json:"payment,omitempty"`
	StatusHistory   []statusChangePayload `json:"status_history,omitempty"`
	Cancellable     bool                  `json:"cancellable"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
	CancelledAt     string                `json:"cancelled_at,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	TotalAmount   int64  `json:"total_amount"`
	ItemCount     int    `json:"item_count"`
	CreatedAt     string `json:"created_at"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

func buildOrderSummary(o domain.Order) orderSummaryPayload {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return orderSummaryPayload{
		ID:            o.ID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		TotalAmount:   o.TotalAmount,
		ItemCount:     count,
		CreatedAt:     formatTime(o.CreatedAt),
	}
}

func buildOrderPayload(o domain.Order, cancellable bool) orderPayload {
	payload := orderPayload{
		ID:     o.ID,
		UserID: o.UserID,
		Guest:  o.Guest,
		Customer: customerPayload{
			Name:  o.Customer.Name,
			Email: o.Customer.Email,
			Phone: o.Customer.Phone,
		},
		Items:           make([]orderItemPayload, 0, len(o.Items)),
		ShippingAddress: buildAddressPayload(o.ShippingAddress),
		Subtotal:        o.Subtotal,
		ShippingCharges: o.ShippingCharges,
		Discount:        o.Discount,
		Coupon:          buildAppliedCouponPayload(o.AppliedCoupon),
		TotalAmount:     o.TotalAmount,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		Cancellable:     cancellable,
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
		CancelledAt:     formatTimePtr(o.CancelledAt),
	}
	for _, item := range o.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			BookID:    item.BookID,
			Kind:      string(item.Kind),
			Title:     item.Title,
			Author:    item.Author,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
			LineTotal: item.Price * int64(item.Quantity),
		})
	}
	if o.Payment != nil {
		payload.Payment = &paymentRecordPayload{
			Provider:      o.Payment.Provider,
			TransactionID: o.Payment.TransactionID,
			Reference:     o.Payment.ProviderReference,
			Code:          o.Payment.Code,
			Amount:        o.Payment.Amount,
			UpdatedAt:     formatTime(o.Payment.UpdatedAt),
		}
	}
	for _, change := range o.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusChangePayload{
			From:      string(change.From),
			To:        string(change.To),
			Actor:     change.Actor,
			Note:      change.Note,
			ChangedAt: formatTime(change.ChangedAt),
		})
	}
	return payload
}
