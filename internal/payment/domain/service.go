package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/smallbiznis/paysync/pkg/db/pagination"
)

type AdapterConfig struct {
	Provider      string
	WebhookSecret string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// PaymentAdapter verifies and normalizes one gateway's webhooks. Verify must
// run on the raw body before Parse looks at it.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte, headers http.Header) (*PaymentEvent, error)
}

// Service applies a verified event to the correlated commerce order.
type Service interface {
	ProcessEvent(ctx context.Context, event *PaymentEvent) (*WebhookResult, error)
}

// WebhookService is the entrypoint used by the HTTP handlers.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*WebhookResult, error)
	ListEvents(ctx context.Context, filter ListEventsFilter, page pagination.Pagination) (*ListEventsResponse, error)
}

// Locker serializes deliveries that share an idempotency key.
type Locker interface {
	TryLock(ctx context.Context, key string) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

var (
	ErrInvalidProvider      = errors.New("invalid_provider")
	ErrProviderNotFound     = errors.New("provider_not_found")
	ErrInvalidConfig        = errors.New("invalid_config")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrUnknownPayloadShape  = errors.New("unknown_payload_shape")
	ErrInvalidEvent         = errors.New("invalid_event")
	ErrMissingCorrelationID = errors.New("missing_correlation_id")
	ErrMissingPaymentID     = errors.New("missing_payment_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrCurrencyMismatch     = errors.New("currency_mismatch")
	ErrMissingAmount        = errors.New("missing_amount")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrEventInProgress      = errors.New("event_in_progress")
	ErrTransactionFailed    = errors.New("transaction_registration_failed")
	ErrSyncFailed           = errors.New("order_sync_failed")
	ErrEventIgnored         = errors.New("event_ignored")
)
