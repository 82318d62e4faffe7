package domain

import "time"

// CouponType selects how a coupon's value is applied.
type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFlat       CouponType = "flat"
)

// Coupon is a coupons/{code} document.
type Coupon struct {
	Code              string
	Type              CouponType
	Value             int64
	MinPurchaseAmount int64
	IsActive          bool
	ExpiryDate        time.Time
	Description       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ShippingZone is one of the five delivery zones.
type ShippingZone string

const (
	ZoneA ShippingZone = "A"
	ZoneB ShippingZone = "B"
	ZoneC ShippingZone = "C"
	ZoneD ShippingZone = "D"
	ZoneE ShippingZone = "E"
)

// ShippingPolicyName selects which shipping rule prices a cart.
type ShippingPolicyName string

const (
	// ShippingPolicyFlat is the cart page rule: a flat fee waived above a threshold.
	ShippingPolicyFlat ShippingPolicyName = "flat"
	// ShippingPolicyZoneWeight is the checkout rule driven by state and parcel weight.
	ShippingPolicyZoneWeight ShippingPolicyName = "zone_weight"
)

// PriceQuote is the outcome of pricing a cart.
type PriceQuote struct {
	Subtotal        int64
	ShippingCharges int64
	Discount        int64
	Total           int64
	Policy          ShippingPolicyName
	Zone            ShippingZone
	WeightGrams     int
	AppliedCoupon   *AppliedCoupon
}
