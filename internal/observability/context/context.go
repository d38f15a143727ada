package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}

type orderIDKey struct{}

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithOrderID stores the commerce order the current request is acting on.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ctx
	}
	return context.WithValue(ctx, orderIDKey{}, orderID)
}

func OrderIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(orderIDKey{}).(string)
	return value
}
