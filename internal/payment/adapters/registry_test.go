package adapters

import (
	"errors"
	"testing"

	"github.com/smallbiznis/paysync/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/paysync/internal/payment/domain"
)

func TestRegistrySupports(t *testing.T) {
	registry := NewRegistry(Gateway{Factory: razorpay.NewFactory(), WebhookSecret: "whsec"}, Gateway{})

	if !registry.Supports(" Razorpay ") {
		t.Fatalf("expected razorpay to be registered")
	}
	if registry.Supports("stripe") {
		t.Fatalf("expected stripe to be unknown")
	}
	if got := registry.Providers(); len(got) != 1 || got[0] != "razorpay" {
		t.Fatalf("expected [razorpay], got %v", got)
	}

	var nilRegistry *Registry
	if nilRegistry.Supports("razorpay") {
		t.Fatalf("expected nil registry to know no providers")
	}
	if _, err := nilRegistry.Adapter("razorpay"); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound from nil registry, got %v", err)
	}
}

func TestRegistryAdapter(t *testing.T) {
	registry := NewRegistry(Gateway{Factory: razorpay.NewFactory(), WebhookSecret: " whsec "})

	if _, err := registry.Adapter("stripe"); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if _, err := registry.Adapter("RAZORPAY"); err != nil {
		t.Fatalf("expected adapter, got %v", err)
	}
}

func TestRegistryAdapterWithoutSecret(t *testing.T) {
	registry := NewRegistry(Gateway{Factory: razorpay.NewFactory(), WebhookSecret: "  "})

	if _, err := registry.Adapter("razorpay"); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without secret, got %v", err)
	}
}
