package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/exambook-store/api/internal/domain"
)

var pricingNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func save10() *domain.Coupon {
	return &domain.Coupon{
		Code:              "SAVE10",
		Type:              domain.CouponTypePercentage,
		Value:             10,
		MinPurchaseAmount: 200,
		IsActive:          true,
		ExpiryDate:        pricingNow.Add(30 * 24 * time.Hour),
	}
}

func TestValidateCouponPercentage(t *testing.T) {
	applied, err := ValidateCoupon(save10(), 500, pricingNow)
	require.NoError(t, err)
	assert.Equal(t, int64(50), applied.Discount)
	assert.Equal(t, "SAVE10", applied.Code)
}

func TestValidateCouponRoundsHalfUp(t *testing.T) {
	coupon := save10()
	coupon.Value = 15
	applied, err := ValidateCoupon(coupon, 210, pricingNow)
	require.NoError(t, err)
	// 15% of 210 is 31.5.
	assert.Equal(t, int64(32), applied.Discount)
}

func TestValidateCouponRejections(t *testing.T) {
	expired := save10()
	expired.ExpiryDate = pricingNow.Add(-time.Minute)
	inactive := save10()
	inactive.IsActive = false

	cases := []struct {
		name     string
		coupon   *domain.Coupon
		subtotal int64
		reason   CouponRejection
	}{
		{"below minimum", save10(), 150, CouponRejectMinPurchase},
		{"expired", expired, 5000, CouponRejectExpired},
		{"inactive", inactive, 500, CouponRejectInactive},
		{"missing", nil, 500, CouponRejectNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCoupon(tc.coupon, tc.subtotal, pricingNow)
			require.ErrorIs(t, err, ErrCouponRejected)
			var couponErr *CouponError
			require.True(t, errors.As(err, &couponErr))
			assert.Equal(t, tc.reason, couponErr.Reason)
		})
	}
}

func TestValidateCouponMinimumMessage(t *testing.T) {
	_, err := ValidateCoupon(save10(), 150, pricingNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Minimum purchase of")
	assert.Contains(t, err.Error(), "200")
}

func TestValidateCouponFlatCappedAtSubtotal(t *testing.T) {
	coupon := &domain.Coupon{Code: "FLAT300", Type: domain.CouponTypeFlat, Value: 300, IsActive: true}
	applied, err := ValidateCoupon(coupon, 250, pricingNow)
	require.NoError(t, err)
	assert.Equal(t, int64(250), applied.Discount)
}

func TestCalculatePriceZoneWeight(t *testing.T) {
	quote, err := CalculatePrice(PriceInput{
		Items: []domain.CartItem{
			{BookID: "b1", Kind: domain.ItemKindBook, Price: 250, Quantity: 2, WeightGrams: 400},
			{BookID: "ts1", Kind: domain.ItemKindTestSeries, Price: 99, Quantity: 1},
		},
		State:      "Delhi",
		Coupon:     save10(),
		CouponCode: "save10",
		Policy:     zoneWeightShippingPolicy{},
		Now:        pricingNow,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(599), quote.Subtotal)
	assert.Equal(t, 800, quote.WeightGrams)
	assert.Equal(t, domain.ZoneA, quote.Zone)
	assert.Equal(t, int64(60), quote.ShippingCharges)
	assert.Equal(t, int64(60), quote.Discount)
	assert.Equal(t, int64(599+60-60), quote.Total)
	require.NotNil(t, quote.AppliedCoupon)
	assert.Equal(t, "SAVE10", quote.AppliedCoupon.Code)
}

func TestCalculatePriceFlatPolicy(t *testing.T) {
	quote, err := CalculatePrice(PriceInput{
		Items:  []domain.CartItem{{BookID: "b1", Kind: domain.ItemKindBook, Price: 300, Quantity: 1}},
		Policy: flatShippingPolicy{},
		Now:    pricingNow,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), quote.ShippingCharges)
	assert.Equal(t, int64(350), quote.Total)
	assert.Empty(t, quote.Zone)
}

func TestCalculatePriceUnknownCouponCode(t *testing.T) {
	_, err := CalculatePrice(PriceInput{
		Items:      []domain.CartItem{{BookID: "b1", Kind: domain.ItemKindBook, Price: 300, Quantity: 1}},
		CouponCode: "nope",
		Now:        pricingNow,
	})
	var couponErr *CouponError
	require.True(t, errors.As(err, &couponErr))
	assert.Equal(t, CouponRejectNotFound, couponErr.Reason)
	assert.Equal(t, "NOPE", couponErr.Code)
}

func TestCalculatePriceRejectsZeroQuantity(t *testing.T) {
	_, err := CalculatePrice(PriceInput{
		Items: []domain.CartItem{{BookID: "b1", Price: 300, Quantity: 0}},
		Now:   pricingNow,
	})
	assert.Error(t, err)
}

func TestFormatINR(t *testing.T) {
	assert.Contains(t, FormatINR(450), "450")
	assert.Contains(t, FormatINR(450), "₹")
}
