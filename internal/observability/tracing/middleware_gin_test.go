package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(t.Context())
	})
	return recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareNamesSpanAfterRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/webhooks/:provider", func(c *gin.Context) {
		c.Set("webhook_outcome", "synced")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/Razorpay", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "POST /webhooks/:provider" {
		t.Fatalf("unexpected span name %q", span.Name())
	}
	attrs := spanAttrs(span)
	if got := attrs["provider"].AsString(); got != "razorpay" {
		t.Fatalf("expected provider razorpay, got %q", got)
	}
	if got := attrs["webhook.outcome"].AsString(); got != "synced" {
		t.Fatalf("expected webhook outcome synced, got %q", got)
	}
	if got := attrs["http.status_code"].AsInt64(); got != http.StatusOK {
		t.Fatalf("expected status 200, got %d", got)
	}
	if span.Status().Code == codes.Error {
		t.Fatalf("expected span without error status")
	}
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) {
		_ = c.Error(http.ErrHandlerTimeout)
		c.Status(http.StatusServiceUnavailable)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status().Code)
	}
	if _, ok := spanAttrs(spans[0])["provider"]; ok {
		t.Fatalf("expected no provider attribute outside webhook routes")
	}
	if len(spans[0].Events()) == 0 {
		t.Fatalf("expected recorded error event")
	}
}
