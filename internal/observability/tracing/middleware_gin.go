package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/paysync/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// webhookOutcomeKey is the gin context key the webhook handler stores its
// delivery outcome under.
const webhookOutcomeKey = "webhook_outcome"

// GinMiddleware opens one server span per request. Spans are named after the
// matched route, so deliveries for every provider share a span name and the
// provider travels as an attribute.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("paysync/http")
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := strings.ToUpper(c.Request.Method)

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx = withRequestBaggage(ctx)

		startAttrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		}
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			startAttrs = append(startAttrs, attribute.String("request_id", requestID))
		}
		if provider := strings.ToLower(strings.TrimSpace(c.Param("provider"))); provider != "" {
			startAttrs = append(startAttrs, attribute.String("provider", provider))
		}

		ctx, span := tracer.Start(ctx, method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(SafeAttributes(startAttrs...)...),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		endAttrs := []attribute.KeyValue{
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		if outcome := c.GetString(webhookOutcomeKey); outcome != "" {
			endAttrs = append(endAttrs, attribute.String("webhook.outcome", outcome))
		}
		span.SetAttributes(SafeAttributes(endAttrs...)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// withRequestBaggage propagates the request id to downstream services.
func withRequestBaggage(ctx context.Context) context.Context {
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
