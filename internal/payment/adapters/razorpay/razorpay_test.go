package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`)

	adapter := &Adapter{webhookSecret: secret}
	headers := http.Header{}
	headers.Set(HeaderSignature, sign(secret, payload))
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	headers.Set(HeaderSignature, sign("wrong", payload))
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing signature to be rejected, got %v", err)
	}
}

func TestVerifyRejectsAnyTamperedByte(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","amount":50000}}}}`)
	headers := http.Header{}
	headers.Set(HeaderSignature, sign(secret, payload))
	adapter := &Adapter{webhookSecret: secret}

	for i := range payload {
		tampered := append([]byte(nil), payload...)
		tampered[i] ^= 0x01
		if err := adapter.Verify(context.Background(), tampered, headers); err == nil {
			t.Fatalf("expected tampered byte %d to invalidate signature", i)
		}
	}
}

func TestParseUsesEventIDHeader(t *testing.T) {
	payload := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","amount":50000,"currency":"inr","notes":{"medusa_order_id":"order_1"}}}}}`)
	headers := http.Header{}
	headers.Set(HeaderEventID, "evt_123")

	event, err := (&Adapter{webhookSecret: "x"}).Parse(context.Background(), payload, headers)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ProviderEventID != "evt_123" {
		t.Fatalf("expected header event id, got %q", event.ProviderEventID)
	}

	event, err = (&Adapter{webhookSecret: "x"}).Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ProviderEventID != "pay_1:payment.captured" {
		t.Fatalf("expected derived event id, got %q", event.ProviderEventID)
	}
}
