package context

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  req-1 ")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if got := RequestIDFromContext(WithRequestID(context.Background(), " ")); got != "" {
		t.Fatalf("expected blank request id to be ignored, got %q", got)
	}
}

func TestOrderIDFromNilContext(t *testing.T) {
	//nolint:staticcheck
	if got := OrderIDFromContext(nil); got != "" {
		t.Fatalf("expected empty order id, got %q", got)
	}
}
