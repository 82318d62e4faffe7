package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/exambook-store/api/internal/domain"
)

// ErrCouponRejected is matched by every *CouponError.
var ErrCouponRejected = errors.New("coupon: rejected")

// CouponRejection names why a coupon cannot be applied.
type CouponRejection string

const (
	CouponRejectNotFound    CouponRejection = "not_found"
	CouponRejectInactive    CouponRejection = "inactive"
	CouponRejectExpired     CouponRejection = "expired"
	CouponRejectMinPurchase CouponRejection = "min_purchase"
)

// CouponError carries the rejection reason and a customer-facing message.
type CouponError struct {
	Reason      CouponRejection
	Code        string
	MinPurchase int64
}

func (e *CouponError) Error() string {
	switch e.Reason {
	case CouponRejectNotFound:
		return "Invalid coupon code"
	case CouponRejectInactive:
		return "This coupon is no longer active"
	case CouponRejectExpired:
		return "This coupon has expired"
	case CouponRejectMinPurchase:
		return fmt.Sprintf("Minimum purchase of %s required for this coupon", FormatINR(e.MinPurchase))
	}
	return "coupon rejected"
}

func (e *CouponError) Unwrap() error { return ErrCouponRejected }

// ValidateCoupon checks coupon against subtotal at now and returns the
// discount it grants. A nil coupon is treated as an unknown code.
func ValidateCoupon(coupon *domain.Coupon, subtotal int64, now time.Time) (domain.AppliedCoupon, error) {
	if coupon == nil {
		return domain.AppliedCoupon{}, &CouponError{Reason: CouponRejectNotFound}
	}
	code := strings.ToUpper(strings.TrimSpace(coupon.Code))
	if !coupon.IsActive {
		return domain.AppliedCoupon{}, &CouponError{Reason: CouponRejectInactive, Code: code}
	}
	if !coupon.ExpiryDate.IsZero() && now.After(coupon.ExpiryDate) {
		return domain.AppliedCoupon{}, &CouponError{Reason: CouponRejectExpired, Code: code}
	}
	if subtotal < coupon.MinPurchaseAmount {
		return domain.AppliedCoupon{}, &CouponError{Reason: CouponRejectMinPurchase, Code: code, MinPurchase: coupon.MinPurchaseAmount}
	}

	var discount int64
	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(coupon.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case domain.CouponTypeFlat:
		discount = coupon.Value
	default:
		return domain.AppliedCoupon{}, fmt.Errorf("coupon %s: unknown type %q", code, coupon.Type)
	}
	discount = max(0, min(discount, subtotal))

	return domain.AppliedCoupon{
		Code:     code,
		Type:     coupon.Type,
		Value:    coupon.Value,
		Discount: discount,
	}, nil
}

// PriceInput is everything CalculatePrice needs.
type PriceInput struct {
	Items  []domain.CartItem
	State  string
	Coupon *domain.Coupon
	// CouponCode is set when the customer entered a code; Coupon is nil when
	// the lookup found nothing.
	CouponCode string
	Policy     ShippingPolicy
	Now        time.Time
}

// CalculatePrice prices a cart. It has no side effects; callers look up the
// coupon and pick the policy.
func CalculatePrice(in PriceInput) (domain.PriceQuote, error) {
	policy := in.Policy
	if policy == nil {
		policy = zoneWeightShippingPolicy{}
	}

	var subtotal int64
	digitalOnly := true
	for _, item := range in.Items {
		if item.Quantity < 1 {
			return domain.PriceQuote{}, fmt.Errorf("item %s: quantity must be at least 1", item.BookID)
		}
		subtotal += item.LineTotal()
		if !item.Kind.IsDigital() {
			digitalOnly = false
		}
	}

	weight := ParcelWeightGrams(in.Items)
	quote := domain.PriceQuote{
		Subtotal:    subtotal,
		Policy:      policy.Name(),
		WeightGrams: weight,
	}
	if policy.Name() == domain.ShippingPolicyZoneWeight {
		quote.Zone = ZoneForState(in.State)
	}
	quote.ShippingCharges = policy.Quote(ShippingInput{
		Subtotal:    subtotal,
		State:       in.State,
		WeightGrams: weight,
		DigitalOnly: digitalOnly,
	})

	if in.Coupon != nil || strings.TrimSpace(in.CouponCode) != "" {
		applied, err := ValidateCoupon(in.Coupon, subtotal, in.Now)
		if err != nil {
			var couponErr *CouponError
			if errors.As(err, &couponErr) && couponErr.Code == "" {
				couponErr.Code = strings.ToUpper(strings.TrimSpace(in.CouponCode))
			}
			return domain.PriceQuote{}, err
		}
		quote.Discount = applied.Discount
		quote.AppliedCoupon = &applied
	}

	quote.Total = max(0, quote.Subtotal+quote.ShippingCharges-quote.Discount)
	return quote, nil
}
