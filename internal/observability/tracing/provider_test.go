package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/webhooks/:provider"),
		attribute.String("http.request.body", "{}"),
		attribute.String("order_id", "order_1"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
}

func TestSafeErrorTruncates(t *testing.T) {
	err := SafeError(errors.New("first line\nsecond line"))
	if err.Error() != "first line" {
		t.Fatalf("expected first line only, got %q", err.Error())
	}

	long := SafeError(errors.New(strings.Repeat("x", 400)))
	if len(long.Error()) != 256 {
		t.Fatalf("expected 256 chars, got %d", len(long.Error()))
	}

	if SafeError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
