package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	OutcomeSynced       = "synced"
	OutcomeFailed       = "failed"
	OutcomeIgnored      = "ignored"
	OutcomeIdempotent   = "idempotent"
	OutcomeNotSupported = "not_supported"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

const (
	ErrorReasonDeadlineExceeded     = "deadline_exceeded"
	ErrorReasonDBLockTimeout        = "db_lock_timeout"
	ErrorReasonSerializationFailure = "serialization_failure"
	ErrorReasonUniqueViolation      = "unique_violation"
	ErrorReasonDB                   = "db"
	ErrorReasonUnknown              = "unknown"
)

const (
	CommerceOpGetOrder          = "get_order"
	CommerceOpGetDraftOrder     = "get_draft_order"
	CommerceOpAddTransaction    = "add_transaction"
	CommerceOpUpdateMetadata    = "update_metadata"
	CommerceOpPaymentSummary    = "payment_summary"
	CommerceOpConvertDraftOrder = "convert_draft_order"
	CommerceOpDeleteDraftOrder  = "delete_draft_order"
)

// SyncMetrics captures webhook-to-order sync health signals.
type SyncMetrics struct {
	webhookOutcomes  *prometheus.CounterVec
	webhookDuration  *prometheus.HistogramVec
	reconcileReasons *prometheus.CounterVec
	commerceDuration *prometheus.HistogramVec
	commerceErrors   *prometheus.CounterVec
	deliveryLogErrs  *prometheus.CounterVec
	commerceObserver map[string]prometheus.Observer
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the sync metrics singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

// NewSyncMetrics builds a registry against a caller-owned registerer.
func NewSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	return newSyncMetrics(registerer, cfg)
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "paysync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	webhookOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "paysync_webhook_outcomes_total",
		Help:        "Webhook deliveries by provider and outcome.",
		ConstLabels: constLabels,
	}, []string{"provider", "outcome"})
	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "paysync_webhook_duration_seconds",
		Help:        "End-to-end webhook handling latency including commerce calls.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"provider"})
	reconcileReasons := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "paysync_reconcile_reason_total",
		Help:        "Amount reconciliation decisions by reason tag.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	commerceDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "paysync_commerce_request_duration_seconds",
		Help:        "Commerce admin API latency by operation.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"operation"})
	commerceErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "paysync_commerce_errors_total",
		Help:        "Commerce admin API failures by operation and status code.",
		ConstLabels: constLabels,
	}, []string{"operation", "status_code"})
	deliveryLogErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "paysync_delivery_log_errors_total",
		Help:        "Delivery log write failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	registerer.MustRegister(
		webhookOutcomes,
		webhookDuration,
		reconcileReasons,
		commerceDuration,
		commerceErrors,
		deliveryLogErrs,
	)

	commerceObserver := map[string]prometheus.Observer{}
	for _, op := range []string{
		CommerceOpGetOrder,
		CommerceOpGetDraftOrder,
		CommerceOpAddTransaction,
		CommerceOpUpdateMetadata,
		CommerceOpPaymentSummary,
		CommerceOpConvertDraftOrder,
		CommerceOpDeleteDraftOrder,
	} {
		commerceObserver[op] = commerceDuration.WithLabelValues(op)
	}

	return &SyncMetrics{
		webhookOutcomes:  webhookOutcomes,
		webhookDuration:  webhookDuration,
		reconcileReasons: reconcileReasons,
		commerceDuration: commerceDuration,
		commerceErrors:   commerceErrors,
		deliveryLogErrs:  deliveryLogErrs,
		commerceObserver: commerceObserver,
	}
}

// IncWebhookOutcome increments the outcome counter for a provider.
func (m *SyncMetrics) IncWebhookOutcome(provider, outcome string) {
	if m == nil || m.webhookOutcomes == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(provider, outcome).Inc()
}

// ObserveWebhookDuration records webhook handling latency in seconds.
func (m *SyncMetrics) ObserveWebhookDuration(provider string, duration time.Duration) {
	if m == nil || m.webhookDuration == nil {
		return
	}
	m.webhookDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *SyncMetrics) IncReconcileReason(reason string) {
	if m == nil || m.reconcileReasons == nil || reason == "" {
		return
	}
	m.reconcileReasons.WithLabelValues(reason).Inc()
}

// ObserveCommerceCall records a commerce API round trip. statusCode 0 means
// the request never produced a response.
func (m *SyncMetrics) ObserveCommerceCall(operation string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.commerceObserver[operation]; ok {
		observer.Observe(duration.Seconds())
	} else if m.commerceDuration != nil {
		m.commerceDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}
	if statusCode >= 200 && statusCode < 300 {
		return
	}
	if m.commerceErrors != nil {
		m.commerceErrors.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	}
}

// IncDeliveryLogError counts delivery log write failures with classification.
func (m *SyncMetrics) IncDeliveryLogError(err error) {
	if m == nil || err == nil || m.deliveryLogErrs == nil {
		return
	}
	m.deliveryLogErrs.WithLabelValues(ClassifyErrorReason(err)).Inc()
}

// ClassifyErrorReason maps storage errors to low-cardinality reasons.
func ClassifyErrorReason(err error) string {
	if err == nil {
		return ErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return ErrorReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ErrorReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ErrorReasonUniqueViolation
	}
	if isDBError(err) {
		return ErrorReasonDB
	}
	return ErrorReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
