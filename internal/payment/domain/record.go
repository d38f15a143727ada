package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	MetaPaymentStatus  = "razorpay_payment_status"
	MetaPaymentID      = "razorpay_payment_id"
	MetaOrderID        = "razorpay_order_id"
	MetaReconciliation = "razorpay_reconciliation"
	MetaCaptureStatus  = "razorpay_capture_status"
	MetaAmountMinor    = "razorpay_amount_minor"
	MetaCurrency       = "razorpay_currency"
	MetaMatched        = "razorpay_matched"
	MetaUpdatedAt      = "razorpay_updated_at"
	MetaError          = "razorpay_error"
)

// PaymentRecord is the payment state we keep on the commerce order. The
// commerce backend only offers a free-form metadata bag, so the record is
// flattened into prefixed keys there.
type PaymentRecord struct {
	PaymentStatus  string
	PaymentID      string
	GatewayOrderID string
	Reconciliation string
	CaptureStatus  string
	AmountMinor    int64
	Currency       string
	Matched        bool
	UpdatedAt      time.Time
	Error          string
}

func RecordFromMetadata(meta map[string]any) PaymentRecord {
	record := PaymentRecord{
		PaymentStatus:  metaString(meta, MetaPaymentStatus),
		PaymentID:      metaString(meta, MetaPaymentID),
		GatewayOrderID: metaString(meta, MetaOrderID),
		Reconciliation: metaString(meta, MetaReconciliation),
		CaptureStatus:  metaString(meta, MetaCaptureStatus),
		AmountMinor:    metaInt(meta, MetaAmountMinor),
		Currency:       metaString(meta, MetaCurrency),
		Matched:        metaBool(meta, MetaMatched),
		Error:          metaString(meta, MetaError),
	}
	if ts := metaString(meta, MetaUpdatedAt); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			record.UpdatedAt = parsed
		}
	}
	return record
}

// IsCapturedBy reports whether the record already holds a capture for paymentID.
func (r PaymentRecord) IsCapturedBy(paymentID string) bool {
	return r.PaymentStatus == StatusCaptured && paymentID != "" && r.PaymentID == paymentID
}

func (r PaymentRecord) IsFailedBy(paymentID string) bool {
	return r.PaymentStatus == StatusFailed && paymentID != "" && r.PaymentID == paymentID
}

// Metadata returns the record's keys merged over existing order metadata.
func (r PaymentRecord) Metadata(existing map[string]any) map[string]any {
	fields := map[string]any{
		MetaPaymentStatus:  r.PaymentStatus,
		MetaPaymentID:      r.PaymentID,
		MetaOrderID:        r.GatewayOrderID,
		MetaReconciliation: r.Reconciliation,
		MetaCaptureStatus:  r.CaptureStatus,
		MetaAmountMinor:    r.AmountMinor,
		MetaCurrency:       r.Currency,
		MetaMatched:        r.Matched,
		MetaUpdatedAt:      r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r.Error != "" {
		fields[MetaError] = r.Error
	} else if _, ok := existing[MetaError]; ok {
		fields[MetaError] = nil
	}
	return lo.Assign(existing, fields)
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func metaInt(meta map[string]any, key string) int64 {
	switch v := meta[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	default:
		return 0
	}
}

func metaBool(meta map[string]any, key string) bool {
	switch v := meta[key].(type) {
	case bool:
		return v
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(v))
		return parsed
	default:
		return false
	}
}
