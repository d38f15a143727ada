package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/smallbiznis/paysync/internal/clock"
	commercedomain "github.com/smallbiznis/paysync/internal/commerce/domain"
	obscontext "github.com/smallbiznis/paysync/internal/observability/context"
	"github.com/smallbiznis/paysync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	"github.com/smallbiznis/paysync/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/internal/payment/reconcile"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const transactionReference = "razorpay_payment"

const (
	reasonResumed         = "resumed"
	reasonAlreadyCaptured = "already_captured"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Commerce    commercedomain.Client
	Reconciler  *reconcile.Reconciler
	Locker      paymentdomain.Locker    `optional:"true"`
	Clock       clock.Clock             `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics     `optional:"true"`
	SyncMetrics *obsmetrics.SyncMetrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	commerce    commercedomain.Client
	reconciler  *reconcile.Reconciler
	locker      paymentdomain.Locker
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
	syncMetrics *obsmetrics.SyncMetrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:         p.Log.Named("payment.service"),
		commerce:    p.Commerce,
		reconciler:  p.Reconciler,
		locker:      p.Locker,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
		syncMetrics: p.SyncMetrics,
	}
}

// ProcessEvent drives the correlated commerce order toward the event's status.
// Every step re-reads the order record first, so redelivery after a partial
// failure resumes instead of repeating completed mutations.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (*paymentdomain.WebhookResult, error) {
	if event == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if event.Status == paymentdomain.StatusIgnored {
		return &paymentdomain.WebhookResult{
			OK:        true,
			Ignored:   true,
			OrderID:   event.OrderID,
			PaymentID: event.PaymentID,
			Status:    paymentdomain.StatusIgnored,
		}, nil
	}
	if err := validateEvent(event); err != nil {
		return nil, err
	}
	ctx = obscontext.WithOrderID(ctx, event.OrderID)

	ctx, span := otel.Tracer("paysync/payment").Start(ctx, "payment.process_event")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("provider", event.Provider),
		attribute.String("event_type", event.EventName),
		attribute.String("order_id", event.OrderID),
		attribute.String("payment_id", event.PaymentID),
	)...)

	log := logger.WithPayment(logger.WithContext(ctx, s.log), event.Provider, event.PaymentID, event.OrderID)

	release, err := s.acquire(ctx, log, event.IdempotencyKey())
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.commerce.GetOrder(ctx, event.OrderID)
	if err != nil {
		if commercedomain.IsNotFound(err) {
			return nil, paymentdomain.ErrOrderNotFound
		}
		span.SetStatus(codes.Error, tracing.SafeError(err).Error())
		return nil, fmt.Errorf("fetch order %s: %w", event.OrderID, err)
	}

	orderCurrency := strings.ToUpper(strings.TrimSpace(order.CurrencyCode))
	if orderCurrency == "" || orderCurrency != event.Currency {
		log.Warn("currency mismatch",
			zap.String("order_currency", orderCurrency),
			zap.String("event_currency", event.Currency),
		)
		return nil, paymentdomain.ErrCurrencyMismatch
	}

	rec, err := s.reconciler.Reconcile(order.Total, event.AmountMinor, event.Currency)
	if err != nil {
		return nil, err
	}
	s.syncMetrics.IncReconcileReason(rec.Reason)
	s.obsMetrics.RecordReconciliation(ctx, rec.Reason)
	if !rec.Matched {
		log.Warn("gateway amount does not match order total",
			zap.String("order_total", order.Total.String()),
			zap.Int64("gateway_amount_minor", event.AmountMinor),
			zap.Int64("amount_minor", rec.AmountMinor),
			zap.String("reason", rec.Reason),
		)
	}

	record := paymentdomain.RecordFromMetadata(order.Metadata)

	var result *paymentdomain.WebhookResult
	switch event.Status {
	case paymentdomain.StatusCaptured:
		result, err = s.capture(ctx, log, order, event, rec, record)
	case paymentdomain.StatusFailed:
		result, err = s.fail(ctx, log, order, event, rec, record)
	default:
		return nil, paymentdomain.ErrInvalidEvent
	}
	if err != nil {
		span.SetStatus(codes.Error, tracing.SafeError(err).Error())
		if !isClassified(err) {
			s.recordError(ctx, log, order, record, err)
		}
		return nil, err
	}

	result.OrderID = event.OrderID
	result.PaymentID = event.PaymentID
	result.Status = event.Status
	result.Reconciliation = &rec
	return result, nil
}

func (s *Service) capture(
	ctx context.Context,
	log *zap.Logger,
	order *commercedomain.Order,
	event *paymentdomain.PaymentEvent,
	rec paymentdomain.Reconciliation,
	record paymentdomain.PaymentRecord,
) (*paymentdomain.WebhookResult, error) {
	register := true
	writeRecord := true
	if record.IsCapturedBy(event.PaymentID) {
		switch record.CaptureStatus {
		case paymentdomain.CaptureStatusNotSupported:
			return &paymentdomain.WebhookResult{OK: true, Idempotent: true, Reason: paymentdomain.ReasonTransactionsNotSupported}, nil
		case paymentdomain.CaptureStatusSynced:
			if !order.IsDraft() && strings.EqualFold(order.PaymentStatus, commercedomain.PaymentStatusCaptured) {
				return &paymentdomain.WebhookResult{OK: true, Idempotent: true}, nil
			}
			register, writeRecord = false, false
		case paymentdomain.CaptureStatusTransactionRegistered:
			register = false
		}
	} else if record.PaymentStatus == paymentdomain.StatusCaptured {
		log.Warn("order already captured by another payment", zap.String("previous_payment_id", record.PaymentID))
	}

	if register {
		err := s.commerce.RegisterTransaction(ctx, order.ID, commercedomain.TransactionRequest{
			Amount:       json.Number(rec.AmountMajor.String()),
			AmountMinor:  rec.AmountMinor,
			CurrencyCode: strings.ToLower(event.Currency),
			Reference:    transactionReference,
			ReferenceID:  event.PaymentID,
		})
		if commercedomain.IsNotFound(err) {
			log.Warn("commerce backend does not support transactions")
			next := s.newRecord(event, rec, paymentdomain.StatusCaptured, paymentdomain.CaptureStatusNotSupported)
			if err := s.commerce.UpdateMetadata(ctx, order.ID, order.IsDraft(), next.Metadata(order.Metadata)); err != nil {
				log.Error("failed to record unsupported transactions", zap.Error(err))
				return nil, fmt.Errorf("%w: %v", paymentdomain.ErrSyncFailed, err)
			}
			return &paymentdomain.WebhookResult{OK: false, Reason: paymentdomain.ReasonTransactionsNotSupported}, nil
		}
		if err != nil {
			log.Error("failed to register transaction", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", paymentdomain.ErrTransactionFailed, err)
		}
	}

	if writeRecord {
		next := s.newRecord(event, rec, paymentdomain.StatusCaptured, paymentdomain.CaptureStatusSynced)
		if err := s.commerce.UpdateMetadata(ctx, order.ID, order.IsDraft(), next.Metadata(order.Metadata)); err != nil {
			log.Error("failed to sync order metadata", zap.Error(err))
			if register {
				s.markRegistered(ctx, log, order, event, rec, err)
			}
			return nil, fmt.Errorf("%w: %v", paymentdomain.ErrSyncFailed, err)
		}
	}

	err := s.commerce.SetPaymentSummary(ctx, order.ID, commercedomain.PaymentSummaryRequest{
		PaidTotal:     json.Number(rec.AmountMajor.String()),
		PaymentStatus: commercedomain.PaymentStatusCaptured,
	})
	if err != nil {
		log.Error("failed to set payment summary", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrSyncFailed, err)
	}

	if order.IsDraft() {
		if err := s.commerce.ConvertDraftOrder(ctx, order.ID); err != nil {
			log.Error("failed to convert draft order", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", paymentdomain.ErrSyncFailed, err)
		}
		log.Info("draft order converted")
	}

	result := &paymentdomain.WebhookResult{OK: true}
	if !register {
		result.Reason = reasonResumed
	}
	log.Info("payment captured",
		zap.Int64("amount_minor", rec.AmountMinor),
		zap.String("reconciliation", rec.Reason),
	)
	return result, nil
}

func (s *Service) fail(
	ctx context.Context,
	log *zap.Logger,
	order *commercedomain.Order,
	event *paymentdomain.PaymentEvent,
	rec paymentdomain.Reconciliation,
	record paymentdomain.PaymentRecord,
) (*paymentdomain.WebhookResult, error) {
	if record.PaymentStatus == paymentdomain.StatusCaptured ||
		strings.EqualFold(order.PaymentStatus, commercedomain.PaymentStatusCaptured) {
		log.Info("ignoring failure for captured order")
		return &paymentdomain.WebhookResult{OK: true, Idempotent: true, Reason: reasonAlreadyCaptured}, nil
	}
	if record.IsFailedBy(event.PaymentID) {
		return &paymentdomain.WebhookResult{OK: true, Idempotent: true}, nil
	}

	next := s.newRecord(event, rec, paymentdomain.StatusFailed, "")
	if err := s.commerce.UpdateMetadata(ctx, order.ID, order.IsDraft(), next.Metadata(order.Metadata)); err != nil {
		return nil, fmt.Errorf("record payment failure: %w", err)
	}

	if order.IsDraft() {
		err := s.commerce.DeleteDraftOrder(ctx, order.ID)
		if err != nil && !commercedomain.IsNotFound(err) {
			return nil, fmt.Errorf("delete draft order: %w", err)
		}
		log.Info("draft order deleted")
	}

	log.Info("payment failed")
	return &paymentdomain.WebhookResult{OK: true}, nil
}

func (s *Service) newRecord(event *paymentdomain.PaymentEvent, rec paymentdomain.Reconciliation, status, captureStatus string) paymentdomain.PaymentRecord {
	return paymentdomain.PaymentRecord{
		PaymentStatus:  status,
		PaymentID:      event.PaymentID,
		GatewayOrderID: event.GatewayOrderID,
		Reconciliation: rec.Reason,
		CaptureStatus:  captureStatus,
		AmountMinor:    rec.AmountMinor,
		Currency:       event.Currency,
		Matched:        rec.Matched,
		UpdatedAt:      s.clock.Now(),
	}
}

// markRegistered retries the record write once so a redelivery can skip the
// registration that already went through.
func (s *Service) markRegistered(
	ctx context.Context,
	log *zap.Logger,
	order *commercedomain.Order,
	event *paymentdomain.PaymentEvent,
	rec paymentdomain.Reconciliation,
	cause error,
) {
	next := s.newRecord(event, rec, paymentdomain.StatusCaptured, paymentdomain.CaptureStatusTransactionRegistered)
	next.Error = tracing.SafeError(cause).Error()
	if err := s.commerce.UpdateMetadata(ctx, order.ID, order.IsDraft(), next.Metadata(order.Metadata)); err != nil {
		log.Warn("failed to record registered transaction", zap.Error(err))
	}
}

// recordError is best effort. A captured record keeps its capture status so
// redelivery stays idempotent.
func (s *Service) recordError(ctx context.Context, log *zap.Logger, order *commercedomain.Order, record paymentdomain.PaymentRecord, cause error) {
	fields := map[string]any{
		paymentdomain.MetaError:     tracing.SafeError(cause).Error(),
		paymentdomain.MetaUpdatedAt: s.clock.Now().Format(time.RFC3339),
	}
	if record.PaymentStatus != paymentdomain.StatusCaptured {
		fields[paymentdomain.MetaCaptureStatus] = paymentdomain.CaptureStatusError
	}
	metadata := lo.Assign(order.Metadata, fields)
	if err := s.commerce.UpdateMetadata(ctx, order.ID, order.IsDraft(), metadata); err != nil {
		log.Warn("failed to record sync error", zap.Error(err))
	}
}

func (s *Service) acquire(ctx context.Context, log *zap.Logger, key string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	token, ok, err := s.locker.TryLock(ctx, key)
	if err != nil {
		log.Warn("event lock unavailable, continuing without it", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, paymentdomain.ErrEventInProgress
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn("failed to release event lock", zap.Error(err))
		}
	}, nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	event.OrderID = strings.TrimSpace(event.OrderID)
	event.PaymentID = strings.TrimSpace(event.PaymentID)
	event.Currency = strings.ToUpper(strings.TrimSpace(event.Currency))
	switch {
	case event.OrderID == "":
		return paymentdomain.ErrMissingCorrelationID
	case event.PaymentID == "":
		return paymentdomain.ErrMissingPaymentID
	case event.Currency == "":
		return paymentdomain.ErrInvalidCurrency
	case event.Status != paymentdomain.StatusCaptured && event.Status != paymentdomain.StatusFailed:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

func isClassified(err error) bool {
	return errors.Is(err, paymentdomain.ErrTransactionFailed) ||
		errors.Is(err, paymentdomain.ErrSyncFailed) ||
		errors.Is(err, paymentdomain.ErrCurrencyMismatch)
}
