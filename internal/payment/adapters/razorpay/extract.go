package razorpay

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
)

// Note keys that may carry the commerce order id, in priority order.
var correlationKeys = []string{"medusa_order_id", "order_id", "draft_order_id", "cart_id"}

var eventStatuses = map[string]string{
	"payment.captured":   paymentdomain.StatusCaptured,
	"payment.authorized": paymentdomain.StatusCaptured,
	"order.paid":         paymentdomain.StatusCaptured,
	"payment.failed":     paymentdomain.StatusFailed,
}

type envelope struct {
	Entity    string                     `json:"entity"`
	AccountID string                     `json:"account_id"`
	Event     string                     `json:"event"`
	Contains  []string                   `json:"contains"`
	Payload   map[string]json.RawMessage `json:"payload"`
	CreatedAt int64                      `json:"created_at"`
}

type paymentEntity struct {
	ID        string  `json:"id"`
	Amount    flexInt `json:"amount"`
	Currency  string  `json:"currency"`
	Status    string  `json:"status"`
	OrderID   string  `json:"order_id"`
	Notes     notes   `json:"notes"`
	CreatedAt int64   `json:"created_at"`
}

type orderEntity struct {
	ID         string  `json:"id"`
	Amount     flexInt `json:"amount"`
	AmountPaid flexInt `json:"amount_paid"`
	Currency   string  `json:"currency"`
	Receipt    string  `json:"receipt"`
	Status     string  `json:"status"`
	Notes      notes   `json:"notes"`
}

// Extract normalizes a verified webhook body into a PaymentEvent. Events that
// do not move payment state come back with StatusIgnored and are not
// validated further.
func Extract(payload []byte) (*paymentdomain.PaymentEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	eventName := strings.ToLower(strings.TrimSpace(env.Event))
	event := &paymentdomain.PaymentEvent{
		Provider:   ProviderName,
		EventName:  eventName,
		RawPayload: payload,
	}
	if env.CreatedAt > 0 {
		event.OccurredAt = time.Unix(env.CreatedAt, 0).UTC()
	}

	status, known := eventStatuses[eventName]
	if !known && eventName != "" {
		event.Status = paymentdomain.StatusIgnored
		return event, nil
	}

	payment, ok := findPayment(env.Payload)
	if !ok {
		return nil, paymentdomain.ErrUnknownPayloadShape
	}
	order, hasOrder := findOrder(env.Payload)

	if !known {
		status = statusFromEntity(payment.Status)
	}
	event.Status = status
	event.PaymentID = strings.TrimSpace(payment.ID)
	event.GatewayOrderID = strings.TrimSpace(payment.OrderID)
	event.Notes = payment.Notes
	if hasOrder && event.GatewayOrderID == "" {
		event.GatewayOrderID = strings.TrimSpace(order.ID)
	}
	if payment.CreatedAt > 0 {
		event.OccurredAt = time.Unix(payment.CreatedAt, 0).UTC()
	}
	if event.Status == paymentdomain.StatusIgnored {
		return event, nil
	}

	event.AmountMinor = payment.Amount.Int64()
	if event.AmountMinor <= 0 && hasOrder {
		event.AmountMinor = order.AmountPaid.Int64()
		if event.AmountMinor <= 0 {
			event.AmountMinor = order.Amount.Int64()
		}
	}

	currency := payment.Currency
	if strings.TrimSpace(currency) == "" && hasOrder {
		currency = order.Currency
	}
	event.Currency = strings.ToUpper(strings.TrimSpace(currency))

	event.OrderID = correlationID(payment, order, hasOrder)
	if event.OrderID == "" {
		return nil, paymentdomain.ErrMissingCorrelationID
	}
	if event.PaymentID == "" {
		return nil, paymentdomain.ErrMissingPaymentID
	}
	event.ProviderEventID = event.PaymentID + ":" + eventName
	return event, nil
}

func findPayment(payload map[string]json.RawMessage) (paymentEntity, bool) {
	for _, raw := range []json.RawMessage{
		payload["entity"],
		nested(payload["payment"], "entity"),
		payload["payment"],
	} {
		var out paymentEntity
		if decodeObject(raw, &out) {
			return out, true
		}
	}
	return paymentEntity{}, false
}

func findOrder(payload map[string]json.RawMessage) (orderEntity, bool) {
	for _, raw := range []json.RawMessage{
		nested(payload["order"], "entity"),
		payload["order"],
	} {
		var out orderEntity
		if decodeObject(raw, &out) {
			return out, true
		}
	}
	return orderEntity{}, false
}

func nested(raw json.RawMessage, key string) json.RawMessage {
	if !isObject(raw) {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields[key]
}

func decodeObject(raw json.RawMessage, out any) bool {
	if !isObject(raw) {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 1 && trimmed[0] == '{'
}

func statusFromEntity(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "captured", "authorized":
		return paymentdomain.StatusCaptured
	case "failed":
		return paymentdomain.StatusFailed
	default:
		return paymentdomain.StatusIgnored
	}
}

func correlationID(payment paymentEntity, order orderEntity, hasOrder bool) string {
	if id := payment.Notes.first(correlationKeys...); id != "" {
		return id
	}
	if !hasOrder {
		return ""
	}
	if id := order.Notes.first(correlationKeys...); id != "" {
		return id
	}
	return strings.TrimSpace(order.Receipt)
}

// notes accepts the gateway's object form and its empty-array form.
type notes map[string]string

func (n *notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*n = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	out := make(notes, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			out[key] = strings.TrimSpace(v)
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	*n = out
	return nil
}

func (n notes) first(keys ...string) string {
	for _, key := range keys {
		if value := n[key]; value != "" {
			return value
		}
	}
	return ""
}

// flexInt accepts JSON numbers and numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if trimmed == "" || trimmed == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(int64(parsed))
	return nil
}

func (f flexInt) Int64() int64 { return int64(f) }
