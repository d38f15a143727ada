package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EventRecord is one verified webhook delivery in the delivery log.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"size:64;not null;uniqueIndex:ux_webhook_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"size:191;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"size:128;not null"`
	OrderID         string         `json:"order_id" gorm:"size:191;index"`
	PaymentID       string         `json:"payment_id" gorm:"type:text"`
	Status          string         `json:"status" gorm:"type:text"`
	Outcome         string         `json:"outcome" gorm:"type:text"`
	Reconciliation  string         `json:"reconciliation" gorm:"type:text"`
	Matched         bool           `json:"matched"`
	AmountMinor     int64          `json:"amount_minor"`
	Currency        string         `json:"currency" gorm:"type:text"`
	Payload         datatypes.JSON `json:"-"`
	Error           string         `json:"error,omitempty" gorm:"type:text"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_webhook_events" }

// Delivery log outcomes. A processed row with a terminal outcome short-circuits redelivery.
const (
	OutcomeReceived     = "received"
	OutcomeSynced       = "synced"
	OutcomeFailed       = "failed"
	OutcomeIgnored      = "ignored"
	OutcomeIdempotent   = "idempotent"
	OutcomeNotSupported = "not_supported"
	OutcomeError        = "error"
)

func IsTerminalOutcome(outcome string) bool {
	switch outcome {
	case OutcomeSynced, OutcomeFailed, OutcomeIgnored, OutcomeIdempotent, OutcomeNotSupported:
		return true
	default:
		return false
	}
}

// Payment statuses derived from gateway events.
const (
	StatusCaptured = "captured"
	StatusFailed   = "failed"
	StatusIgnored  = "ignored"
)

// Capture statuses persisted on the order record.
const (
	CaptureStatusTransactionRegistered = "transaction_registered"
	CaptureStatusSynced                = "synced"
	CaptureStatusNotSupported          = "not_supported"
	CaptureStatusError                 = "error"
)

// Reconciliation reason tags.
const (
	ReasonGatewayMinorMatchesOrderTotal = "gateway_minor_matches_order_total"
	ReasonOrderTotalMajorUnits          = "order_total_major_units"
	ReasonGatewayAmountTrusted          = "gateway_amount_trusted"
	ReasonOrderTotalFallback            = "order_total_fallback"
)

const ReasonTransactionsNotSupported = "transactions_not_supported"

// PaymentEvent is the canonical payment event parsed by adapters.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	EventName       string
	Status          string
	PaymentID       string
	GatewayOrderID  string
	OrderID         string
	AmountMinor     int64
	Currency        string
	Notes           map[string]string
	OccurredAt      time.Time
	RawPayload      []byte
}

// IdempotencyKey is the (order, payment, target status) tuple.
func (e *PaymentEvent) IdempotencyKey() string {
	return e.OrderID + ":" + e.PaymentID + ":" + e.Status
}

// Reconciliation is the canonical amount chosen for a delivery.
type Reconciliation struct {
	Matched     bool            `json:"matched"`
	AmountMinor int64           `json:"amount_minor"`
	AmountMajor decimal.Decimal `json:"amount_major"`
	Reason      string          `json:"reason"`
}

// WebhookResult is the body returned to the gateway on a 200.
type WebhookResult struct {
	OK             bool            `json:"ok"`
	Ignored        bool            `json:"ignored,omitempty"`
	Idempotent     bool            `json:"idempotent,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	OrderID        string          `json:"order_id,omitempty"`
	PaymentID      string          `json:"payment_id,omitempty"`
	Status         string          `json:"status,omitempty"`
	Reconciliation *Reconciliation `json:"reconciliation,omitempty"`
}

// Outcome maps a result onto the delivery log outcome.
func (r *WebhookResult) Outcome() string {
	switch {
	case r == nil:
		return OutcomeError
	case r.Ignored:
		return OutcomeIgnored
	case r.Idempotent:
		return OutcomeIdempotent
	case r.Reason == ReasonTransactionsNotSupported:
		return OutcomeNotSupported
	case r.Status == StatusFailed:
		return OutcomeFailed
	default:
		return OutcomeSynced
	}
}
