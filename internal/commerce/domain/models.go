package domain

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusCaptured = "captured"
	OrderStatusDraft      = "draft"
)

// Order is the subset of the commerce order we read and patch.
type Order struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	CurrencyCode  string          `json:"currency_code"`
	PaymentStatus string          `json:"payment_status"`
	PaidTotal     decimal.Decimal `json:"paid_total"`
	IsDraftOrder  bool            `json:"is_draft_order"`
	Metadata      map[string]any  `json:"metadata"`
}

// IsDraft reports whether the order still has to be converted or deleted.
func (o *Order) IsDraft() bool {
	if o == nil {
		return false
	}
	return o.IsDraftOrder || strings.EqualFold(strings.TrimSpace(o.Status), OrderStatusDraft)
}

type TransactionRequest struct {
	Amount       json.Number `json:"amount"`
	AmountMinor  int64       `json:"amount_minor"`
	CurrencyCode string      `json:"currency_code"`
	Reference    string      `json:"reference"`
	ReferenceID  string      `json:"reference_id"`
}

type PaymentSummaryRequest struct {
	PaidTotal     json.Number `json:"paid_total"`
	PaymentStatus string      `json:"payment_status"`
}
