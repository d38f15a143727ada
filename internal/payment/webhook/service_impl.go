package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysync/internal/clock"
	"github.com/smallbiznis/paysync/internal/events"
	"github.com/smallbiznis/paysync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	"github.com/smallbiznis/paysync/internal/observability/tracing"
	"github.com/smallbiznis/paysync/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        paymentdomain.Repository
	PaymentSvc  paymentdomain.Service
	Adapters    *adapters.Registry
	Publisher   events.Publisher        `optional:"true"`
	Clock       clock.Clock             `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics     `optional:"true"`
	SyncMetrics *obsmetrics.SyncMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        paymentdomain.Repository
	paymentSvc  paymentdomain.Service
	adapters    *adapters.Registry
	publisher   events.Publisher
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
	syncMetrics *obsmetrics.SyncMetrics
}

func NewService(p Params) paymentdomain.WebhookService {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.webhook"),
		genID:       p.GenID,
		repo:        p.Repo,
		paymentSvc:  p.PaymentSvc,
		adapters:    p.Adapters,
		publisher:   publisher,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
		syncMetrics: p.SyncMetrics,
	}
}

// IngestWebhook verifies, normalizes and applies one gateway delivery. The
// delivery log is consulted before any commerce call so a redelivered event
// that already reached a terminal outcome is acknowledged without side effects.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.WebhookResult, error) {
	start := time.Now()
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.Supports(provider) {
		return nil, paymentdomain.ErrProviderNotFound
	}

	result, err := s.ingest(ctx, provider, payload, headers)

	outcome := result.Outcome()
	if err != nil {
		outcome = obsmetrics.OutcomeError
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			outcome = obsmetrics.OutcomeRejected
		}
	}
	s.syncMetrics.IncWebhookOutcome(provider, outcome)
	s.syncMetrics.ObserveWebhookDuration(provider, time.Since(start))
	s.obsMetrics.RecordPaymentEvent(ctx, provider, eventType(result), outcome)

	return result, err
}

func (s *Service) ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.WebhookResult, error) {
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		s.log.Error("payment adapter unavailable", zap.String("provider", provider), zap.Error(err))
		return nil, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return nil, err
	}

	event, err := adapter.Parse(ctx, payload, headers)
	if err != nil {
		s.log.Warn("webhook payload rejected", zap.String("provider", provider), zap.Error(err))
		return nil, err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	if event.ProviderEventID == "" {
		event.ProviderEventID = payloadDigest(payload)
	}

	log := logger.WithPayment(logger.WithContext(ctx, s.log), provider, event.PaymentID, event.OrderID).
		With(zap.String("event_id", event.ProviderEventID), zap.String("event_type", event.EventName))

	record, replay := s.logDelivery(ctx, log, event)
	if replay != nil {
		log.Info("duplicate webhook delivery acknowledged", zap.String("outcome", record.Outcome))
		return replay, nil
	}

	result, err := s.paymentSvc.ProcessEvent(ctx, event)
	if errors.Is(err, paymentdomain.ErrEventInProgress) {
		return nil, err
	}
	s.markProcessed(ctx, log, record, result, err)

	if err != nil {
		log.Error("webhook processing failed", zap.Error(err))
		return nil, err
	}

	if mutated(result) {
		s.publish(ctx, log, event, result)
	}
	return result, nil
}

// logDelivery returns a replay result when the event already reached a
// terminal outcome. Log write failures never block processing.
func (s *Service) logDelivery(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent) (*paymentdomain.EventRecord, *paymentdomain.WebhookResult) {
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.EventName,
		OrderID:         event.OrderID,
		PaymentID:       event.PaymentID,
		Status:          event.Status,
		Outcome:         paymentdomain.OutcomeReceived,
		AmountMinor:     event.AmountMinor,
		Currency:        event.Currency,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		s.syncMetrics.IncDeliveryLogError(err)
		log.Warn("failed to log webhook delivery", zap.Error(err))
		return nil, nil
	}
	if inserted {
		return record, nil
	}

	existing, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
	if err != nil || existing == nil {
		if err != nil {
			s.syncMetrics.IncDeliveryLogError(err)
		}
		log.Warn("failed to load logged webhook delivery", zap.Error(err))
		return nil, nil
	}
	if existing.ProcessedAt != nil && paymentdomain.IsTerminalOutcome(existing.Outcome) {
		return existing, replayResult(existing)
	}
	return existing, nil
}

// replayResult answers a redelivery the way the first delivery was answered.
func replayResult(existing *paymentdomain.EventRecord) *paymentdomain.WebhookResult {
	result := &paymentdomain.WebhookResult{
		OK:        true,
		OrderID:   existing.OrderID,
		PaymentID: existing.PaymentID,
		Status:    existing.Status,
	}
	switch existing.Outcome {
	case paymentdomain.OutcomeIgnored:
		result.Ignored = true
	case paymentdomain.OutcomeNotSupported:
		result.Idempotent = true
		result.Reason = paymentdomain.ReasonTransactionsNotSupported
	default:
		result.Idempotent = true
	}
	return result
}

func (s *Service) markProcessed(ctx context.Context, log *zap.Logger, record *paymentdomain.EventRecord, result *paymentdomain.WebhookResult, procErr error) {
	if record == nil {
		return
	}
	outcome := result.Outcome()
	errMsg := ""
	var rec *paymentdomain.Reconciliation
	if procErr != nil {
		outcome = paymentdomain.OutcomeError
		errMsg = tracing.SafeError(procErr).Error()
	} else {
		rec = result.Reconciliation
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, outcome, rec, errMsg, s.clock.Now()); err != nil {
		s.syncMetrics.IncDeliveryLogError(err)
		log.Warn("failed to update webhook delivery", zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent, result *paymentdomain.WebhookResult) {
	evt := events.PaymentSynced{
		Type:       events.TypeForStatus(result.Status),
		EventID:    event.ProviderEventID,
		Provider:   event.Provider,
		OrderID:    result.OrderID,
		PaymentID:  result.PaymentID,
		Status:     result.Status,
		Outcome:    result.Outcome(),
		Currency:   event.Currency,
		OccurredAt: s.clock.Now(),
	}
	if rec := result.Reconciliation; rec != nil {
		evt.AmountMinor = rec.AmountMinor
		evt.Matched = rec.Matched
		evt.Reconciliation = rec.Reason
	}
	if err := s.publisher.PublishPaymentSynced(ctx, evt); err != nil {
		log.Warn("failed to publish payment event", zap.Error(err))
	}
}

func (s *Service) ListEvents(ctx context.Context, filter paymentdomain.ListEventsFilter, page pagination.Pagination) (*paymentdomain.ListEventsResponse, error) {
	filter.Provider = strings.ToLower(strings.TrimSpace(filter.Provider))
	items, err := s.repo.ListEvents(ctx, s.db, filter, page)
	if err != nil {
		return nil, err
	}

	items, pageInfo, err := pagination.BuildCursorPageInfo(items, page.Limit(), func(e *paymentdomain.EventRecord) pagination.Cursor {
		return pagination.Cursor{
			ID:        strconv.FormatInt(e.ID.Int64(), 10),
			CreatedAt: e.ReceivedAt.UTC().Format(time.RFC3339),
		}
	})
	if err != nil {
		return nil, err
	}
	return &paymentdomain.ListEventsResponse{PageInfo: pageInfo, Events: items}, nil
}

// mutated reports whether the delivery changed the commerce order.
func mutated(result *paymentdomain.WebhookResult) bool {
	if result == nil || result.Ignored || result.Idempotent {
		return false
	}
	return true
}

func payloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func eventType(result *paymentdomain.WebhookResult) string {
	if result != nil && result.Status != "" {
		return result.Status
	}
	return "unknown"
}
