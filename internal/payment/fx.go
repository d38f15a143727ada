package payment

import (
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/payment/adapters"
	"github.com/smallbiznis/paysync/internal/payment/adapters/razorpay"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/internal/payment/reconcile"
	"github.com/smallbiznis/paysync/internal/payment/repository"
	paymentservice "github.com/smallbiznis/paysync/internal/payment/service"
	"github.com/smallbiznis/paysync/internal/payment/webhook"
	"github.com/smallbiznis/paysync/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideRegistry),
	fx.Provide(reconcile.NewReconciler),
	fx.Provide(provideLocker),
	fx.Provide(
		fx.Annotate(paymentservice.NewService, fx.As(new(paymentdomain.Service))),
	),
	fx.Provide(webhook.NewService),
)

func provideRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	registry := adapters.NewRegistry(
		adapters.Gateway{Factory: razorpay.NewFactory(), WebhookSecret: cfg.RazorpayWebhookSecret},
	)
	log.Named("payment").Info("payment gateways registered", zap.Strings("providers", registry.Providers()))
	return registry
}

// provideLocker keeps a missing Redis from surfacing as a typed-nil Locker.
func provideLocker(limiter *ratelimit.WebhookLimiter) paymentdomain.Locker {
	if limiter == nil {
		return nil
	}
	return limiter
}
