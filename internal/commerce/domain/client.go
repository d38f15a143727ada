package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

//go:generate mockgen -destination=../mock/mock_client.go -package=mock github.com/smallbiznis/paysync/internal/commerce/domain Client

// Client talks to the commerce backend admin API. Every call is a single
// HTTP request; retries are left to webhook redelivery.
type Client interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	RegisterTransaction(ctx context.Context, orderID string, req TransactionRequest) error
	UpdateMetadata(ctx context.Context, orderID string, draft bool, metadata map[string]any) error
	SetPaymentSummary(ctx context.Context, orderID string, req PaymentSummaryRequest) error
	ConvertDraftOrder(ctx context.Context, orderID string) error
	DeleteDraftOrder(ctx context.Context, orderID string) error
}

var (
	ErrInvalidOrderID  = errors.New("invalid_order_id")
	ErrInvalidResponse = errors.New("invalid_commerce_response")
)

// StatusError is returned for any non-2xx commerce response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("commerce %s: unexpected status %d", e.Op, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the commerce backend.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusNotFound
	}
	return false
}
