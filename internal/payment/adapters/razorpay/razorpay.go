package razorpay

import (
	"context"
	"net/http"
	"strings"

	"github.com/razorpay/razorpay-go/utils"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
)

const (
	ProviderName = "razorpay"

	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

// Verify checks the HMAC-SHA256 of the exact raw body.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(HeaderSignature))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if !utils.VerifyWebhookSignature(string(payload), signature, a.webhookSecret) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.PaymentEvent, error) {
	event, err := Extract(payload)
	if err != nil {
		return nil, err
	}
	if eventID := strings.TrimSpace(headers.Get(HeaderEventID)); eventID != "" {
		event.ProviderEventID = eventID
	}
	return event, nil
}
