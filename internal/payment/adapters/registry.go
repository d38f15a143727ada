package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/paysync/internal/payment/domain"
)

// Gateway pairs an adapter factory with the secret its deliveries are signed with.
type Gateway struct {
	Factory       domain.AdapterFactory
	WebhookSecret string
}

// Registry resolves the provider segment of a webhook path to a ready adapter.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	registry := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw.Factory == nil {
			continue
		}
		name := normalizeProvider(gw.Factory.Provider())
		if name == "" {
			continue
		}
		gw.WebhookSecret = strings.TrimSpace(gw.WebhookSecret)
		registry.gateways[name] = gw
	}
	return registry
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Supports reports whether deliveries for provider are accepted at all.
func (r *Registry) Supports(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.gateways[normalizeProvider(provider)]
	return ok
}

// Providers lists the registered provider names in order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Adapter builds the provider's adapter with its configured secret. A
// provider without a secret fails with domain.ErrInvalidConfig.
func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	name := normalizeProvider(provider)
	gw, ok := r.gateways[name]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return gw.Factory.NewAdapter(domain.AdapterConfig{
		Provider:      name,
		WebhookSecret: gw.WebhookSecret,
	})
}
