package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/exambook-store/api/internal/domain"
)

func newTestCheckoutService(t *testing.T) CheckoutService {
	t.Helper()
	books, series, coupons := catalogFixture()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Books:      books,
		TestSeries: series,
		Coupons:    coupons,
		Clock:      fixedClock(testNow),
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func TestCheckoutServiceQuoteZoneWeight(t *testing.T) {
	svc := newTestCheckoutService(t)
	quote, err := svc.Quote(context.Background(), QuoteCommand{
		Items: []CheckoutItem{
			{BookID: "polity", Quantity: 1},
			{BookID: "history", Quantity: 1},
			{BookID: "upsc-mock", Kind: domain.ItemKindTestSeries, Quantity: 1},
		},
		State:      "Kerala",
		CouponCode: "save10",
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// 1300g to zone D lands in the 2kg tier.
	if quote.Zone != domain.ZoneD || quote.WeightGrams != 1300 || quote.ShippingCharges != 130 {
		t.Fatalf("unexpected shipping %+v", quote)
	}
	if quote.Subtotal != 1749 || quote.Discount != 175 || quote.Total != 1749+130-175 {
		t.Fatalf("unexpected totals %+v", quote)
	}
}

func TestCheckoutServiceQuoteDigitalOnlyShipsFree(t *testing.T) {
	svc := newTestCheckoutService(t)
	quote, err := svc.Quote(context.Background(), QuoteCommand{
		Items: []CheckoutItem{{BookID: "upsc-mock", Kind: domain.ItemKindTestSeries, Quantity: 1}},
		State: "Assam",
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.ShippingCharges != 0 || quote.Total != 999 {
		t.Fatalf("unexpected quote %+v", quote)
	}
}

func TestCheckoutServiceQuoteItemErrors(t *testing.T) {
	svc := newTestCheckoutService(t)
	tests := []struct {
		name   string
		items  []CheckoutItem
		reason string
		want   error
	}{
		{"empty", nil, "", ErrCheckoutInvalidInput},
		{"bad kind", []CheckoutItem{{BookID: "polity", Kind: "ebook", Quantity: 1}}, "", ErrCheckoutInvalidInput},
		{"unknown", []CheckoutItem{{BookID: "missing", Quantity: 1}}, "not_found", ErrCheckoutItemUnavailable},
		{"inactive", []CheckoutItem{{BookID: "retired", Quantity: 1}}, "inactive", ErrCheckoutItemUnavailable},
		{"stock", []CheckoutItem{{BookID: "history", Quantity: 3}}, "insufficient_stock", ErrCheckoutItemUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Quote(context.Background(), QuoteCommand{Items: tc.items, State: "Delhi"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if tc.reason == "" {
				return
			}
			var unavailable *ItemUnavailableError
			if !errors.As(err, &unavailable) || unavailable.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %v", tc.reason, err)
			}
		})
	}
}

func TestCheckoutServiceValidateCoupon(t *testing.T) {
	svc := newTestCheckoutService(t)

	applied, err := svc.ValidateCoupon(context.Background(), ValidateCouponCommand{Code: "save10", Subtotal: 1000})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if applied.Discount != 100 || applied.Code != "SAVE10" {
		t.Fatalf("unexpected coupon %+v", applied)
	}

	_, err = svc.ValidateCoupon(context.Background(), ValidateCouponCommand{Code: "save10", Subtotal: 100})
	var couponErr *CouponError
	if !errors.As(err, &couponErr) || couponErr.Reason != CouponRejectMinPurchase {
		t.Fatalf("expected min purchase rejection, got %v", err)
	}

	_, err = svc.ValidateCoupon(context.Background(), ValidateCouponCommand{Code: "nope", Subtotal: 1000})
	if !errors.As(err, &couponErr) || couponErr.Reason != CouponRejectNotFound || couponErr.Code != "NOPE" {
		t.Fatalf("expected not found rejection, got %v", err)
	}

	if _, err := svc.ValidateCoupon(context.Background(), ValidateCouponCommand{}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
