package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/exambook-store/api"

// StoreMetrics holds the business counters recorded by the order and payment flows.
type StoreMetrics struct {
	ordersPlaced     metric.Int64Counter
	orderFailures    metric.Int64Counter
	paymentCallbacks metric.Int64Counter
}

// NewStoreMetrics registers counters on the global meter provider. Registration
// failures leave the affected counter disabled.
func NewStoreMetrics() *StoreMetrics {
	meter := otel.GetMeterProvider().Meter(meterName)
	m := &StoreMetrics{}
	m.ordersPlaced, _ = meter.Int64Counter("store.orders.placed",
		metric.WithDescription("Orders committed by the checkout transaction"))
	m.orderFailures, _ = meter.Int64Counter("store.orders.rejected",
		metric.WithDescription("Checkout attempts rejected, by reason"))
	m.paymentCallbacks, _ = meter.Int64Counter("store.payments.callbacks",
		metric.WithDescription("Payment gateway callbacks, by outcome"))
	return m
}

// OrderPlaced counts a committed order.
func (m *StoreMetrics) OrderPlaced(ctx context.Context, guest bool) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.Bool("guest", guest)))
}

// OrderRejected counts a failed checkout.
func (m *StoreMetrics) OrderRejected(ctx context.Context, reason string) {
	if m == nil || m.orderFailures == nil {
		return
	}
	m.orderFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// PaymentCallback counts a gateway callback by provider and outcome.
func (m *StoreMetrics) PaymentCallback(ctx context.Context, provider, outcome string) {
	if m == nil || m.paymentCallbacks == nil {
		return
	}
	m.paymentCallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}
