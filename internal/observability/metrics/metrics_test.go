package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "razorpay"),
		attribute.String("order_id", "order_123"),
		attribute.String("outcome", "synced"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "order_id" {
			t.Fatalf("expected order_id to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordPaymentEvent(context.Background(), "razorpay", "payment.captured", "synced")
	m.RecordReconciliation(context.Background(), "gateway_amount_trusted")
	m.RecordCommerceCall(context.Background(), "get_order", 200)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordPaymentEvent(context.Background(), "razorpay", "payment.failed", "failed")
	m.RecordRateLimitDenied(context.Background(), "/webhooks/:provider", "rate_limited")
}
