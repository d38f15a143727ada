package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paysync/internal/clock"
	commercedomain "github.com/smallbiznis/paysync/internal/commerce/domain"
	commercemock "github.com/smallbiznis/paysync/internal/commerce/mock"
	"github.com/smallbiznis/paysync/internal/config"
	obscontext "github.com/smallbiznis/paysync/internal/observability/context"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/internal/payment/reconcile"
	paymentservice "github.com/smallbiznis/paysync/internal/payment/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newService(client commercedomain.Client, locker paymentdomain.Locker) *paymentservice.Service {
	return paymentservice.NewService(paymentservice.Params{
		Log:        zap.NewNop(),
		Commerce:   client,
		Reconciler: reconcile.NewReconciler(config.NewStaticReconcileConfigHolder(config.DefaultReconcilePolicy())),
		Locker:     locker,
		Clock:      clock.NewFakeClock(fixedNow),
	})
}

func capturedEvent() *paymentdomain.PaymentEvent {
	return &paymentdomain.PaymentEvent{
		Provider:        "razorpay",
		ProviderEventID: "pay_1:payment.captured",
		EventName:       "payment.captured",
		Status:          paymentdomain.StatusCaptured,
		PaymentID:       "pay_1",
		GatewayOrderID:  "order_rzp_1",
		OrderID:         "order_1",
		AmountMinor:     50000,
		Currency:        "INR",
	}
}

func failedEvent() *paymentdomain.PaymentEvent {
	event := capturedEvent()
	event.EventName = "payment.failed"
	event.ProviderEventID = "pay_1:payment.failed"
	event.Status = paymentdomain.StatusFailed
	return event
}

func order(total string) *commercedomain.Order {
	return &commercedomain.Order{
		ID:           "order_1",
		Status:       "pending",
		Total:        decimal.RequireFromString(total),
		CurrencyCode: "inr",
		Metadata:     map[string]any{"source": "storefront"},
	}
}

func statusErr(code int) error {
	return &commercedomain.StatusError{Op: "test", StatusCode: code}
}

func TestCaptureRegistersTransactionAndSyncsOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(order("50000"), nil)
	gomock.InOrder(
		client.EXPECT().RegisterTransaction(gomock.Any(), "order_1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, req commercedomain.TransactionRequest) error {
				assert.Equal(t, json.Number("500"), req.Amount)
				assert.Equal(t, int64(50000), req.AmountMinor)
				assert.Equal(t, "inr", req.CurrencyCode)
				assert.Equal(t, "pay_1", req.ReferenceID)
				return nil
			}),
		client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ bool, meta map[string]any) error {
				assert.Equal(t, "storefront", meta["source"])
				assert.Equal(t, paymentdomain.StatusCaptured, meta[paymentdomain.MetaPaymentStatus])
				assert.Equal(t, "pay_1", meta[paymentdomain.MetaPaymentID])
				assert.Equal(t, "order_rzp_1", meta[paymentdomain.MetaOrderID])
				assert.Equal(t, paymentdomain.CaptureStatusSynced, meta[paymentdomain.MetaCaptureStatus])
				assert.Equal(t, paymentdomain.ReasonGatewayMinorMatchesOrderTotal, meta[paymentdomain.MetaReconciliation])
				assert.Equal(t, true, meta[paymentdomain.MetaMatched])
				assert.Equal(t, fixedNow.Format(time.RFC3339), meta[paymentdomain.MetaUpdatedAt])
				return nil
			}),
		client.EXPECT().SetPaymentSummary(gomock.Any(), "order_1", commercedomain.PaymentSummaryRequest{
			PaidTotal:     json.Number("500"),
			PaymentStatus: commercedomain.PaymentStatusCaptured,
		}).Return(nil),
	)

	result, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.False(t, result.Idempotent)
	assert.Equal(t, "order_1", result.OrderID)
	assert.Equal(t, paymentdomain.StatusCaptured, result.Status)
	require.NotNil(t, result.Reconciliation)
	assert.True(t, result.Reconciliation.Matched)
	assert.Equal(t, int64(50000), result.Reconciliation.AmountMinor)
	assert.Equal(t, paymentdomain.ReasonGatewayMinorMatchesOrderTotal, result.Reconciliation.Reason)
}

func TestCommerceCallsCarryOrderID(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	client.EXPECT().GetOrder(gomock.Any(), "order_1").
		DoAndReturn(func(ctx context.Context, _ string) (*commercedomain.Order, error) {
			assert.Equal(t, "order_1", obscontext.OrderIDFromContext(ctx))
			return order("50000"), nil
		})
	client.EXPECT().RegisterTransaction(gomock.Any(), "order_1", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ commercedomain.TransactionRequest) error {
			assert.Equal(t, "order_1", obscontext.OrderIDFromContext(ctx))
			return nil
		})
	client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).Return(nil)
	client.EXPECT().SetPaymentSummary(gomock.Any(), "order_1", gomock.Any()).Return(nil)

	_, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
}

func TestCaptureMatchesMajorUnitTotal(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(order("500"), nil)
	client.EXPECT().RegisterTransaction(gomock.Any(), "order_1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req commercedomain.TransactionRequest) error {
			assert.Equal(t, int64(50000), req.AmountMinor)
			return nil
		})
	client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).Return(nil)
	client.EXPECT().SetPaymentSummary(gomock.Any(), "order_1", gomock.Any()).Return(nil)

	result, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.True(t, result.Reconciliation.Matched)
	assert.Equal(t, paymentdomain.ReasonOrderTotalMajorUnits, result.Reconciliation.Reason)
}

func TestCaptureTrustsGatewayAmountOnMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(order("700"), nil)
	client.EXPECT().RegisterTransaction(gomock.Any(), "order_1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req commercedomain.TransactionRequest) error {
			assert.Equal(t, int64(50000), req.AmountMinor)
			return nil
		})
	client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ bool, meta map[string]any) error {
			assert.Equal(t, false, meta[paymentdomain.MetaMatched])
			return nil
		})
	client.EXPECT().SetPaymentSummary(gomock.Any(), "order_1", gomock.Any()).Return(nil)

	result, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.False(t, result.Reconciliation.Matched)
	assert.Equal(t, paymentdomain.ReasonGatewayAmountTrusted, result.Reconciliation.Reason)
}

// fakeBackend keeps one order in memory so repeated deliveries see the
// effects of earlier ones.
type fakeBackend struct {
	order         *commercedomain.Order
	registrations int
	metadataCalls int
	conversions   int
	deletions     int
}

func (f *fakeBackend) expect(client *commercemock.MockClient) {
	client.EXPECT().GetOrder(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) (*commercedomain.Order, error) {
		copied := *f.order
		copied.Metadata = make(map[string]any, len(f.order.Metadata))
		for k, v := range f.order.Metadata {
			copied.Metadata[k] = v
		}
		return &copied, nil
	}).AnyTimes()
	client.EXPECT().RegisterTransaction(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string, commercedomain.TransactionRequest) error {
		f.registrations++
		return nil
	}).AnyTimes()
	client.EXPECT().UpdateMetadata(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, _ string, _ bool, meta map[string]any) error {
		f.metadataCalls++
		f.order.Metadata = meta
		return nil
	}).AnyTimes()
	client.EXPECT().SetPaymentSummary(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, _ string, req commercedomain.PaymentSummaryRequest) error {
		f.order.PaymentStatus = req.PaymentStatus
		return nil
	}).AnyTimes()
	client.EXPECT().ConvertDraftOrder(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) error {
		f.conversions++
		f.order.IsDraftOrder = false
		f.order.Status = "pending"
		return nil
	}).AnyTimes()
	client.EXPECT().DeleteDraftOrder(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) error {
		f.deletions++
		return nil
	}).AnyTimes()
}

func TestDuplicateCaptureIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)
	backend := &fakeBackend{order: order("50000")}
	backend.expect(client)
	svc := newService(client, nil)

	first, err := svc.ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.False(t, first.Idempotent)

	second, err := svc.ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.True(t, second.Idempotent)

	assert.Equal(t, 1, backend.registrations)
	assert.Equal(t, 1, backend.metadataCalls)
}

func TestDraftCaptureConvertsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)
	draft := order("500")
	draft.ID = "order_1"
	draft.IsDraftOrder = true
	draft.Status = commercedomain.OrderStatusDraft
	backend := &fakeBackend{order: draft}
	backend.expect(client)
	svc := newService(client, nil)

	for i := 0; i < 2; i++ {
		_, err := svc.ProcessEvent(context.Background(), capturedEvent())
		require.NoError(t, err)
	}

	assert.Equal(t, 1, backend.conversions)
	assert.Equal(t, 1, backend.registrations)
	assert.Equal(t, 0, backend.deletions)
}

func TestFailedDraftIsDeletedWithoutTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)
	draft := order("500")
	draft.IsDraftOrder = true
	backend := &fakeBackend{order: draft}
	backend.expect(client)
	svc := newService(client, nil)

	result, err := svc.ProcessEvent(context.Background(), failedEvent())
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, paymentdomain.StatusFailed, result.Status)
	assert.Equal(t, paymentdomain.StatusFailed, backend.order.Metadata[paymentdomain.MetaPaymentStatus])

	// Redelivery of the same failure is a no-op.
	again, err := svc.ProcessEvent(context.Background(), failedEvent())
	require.NoError(t, err)
	assert.True(t, again.Idempotent)

	assert.Equal(t, 0, backend.registrations)
	assert.Equal(t, 1, backend.deletions)
	assert.Equal(t, 1, backend.metadataCalls)
}

func TestFailureNeverDowngradesCapturedOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)
	backend := &fakeBackend{order: order("50000")}
	backend.expect(client)
	svc := newService(client, nil)

	_, err := svc.ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)

	failure := failedEvent()
	failure.PaymentID = "pay_2"
	result, err := svc.ProcessEvent(context.Background(), failure)
	require.NoError(t, err)
	assert.True(t, result.Idempotent)
	assert.Equal(t, paymentdomain.StatusCaptured, backend.order.Metadata[paymentdomain.MetaPaymentStatus])
	assert.Equal(t, "pay_1", backend.order.Metadata[paymentdomain.MetaPaymentID])
	assert.Equal(t, 1, backend.metadataCalls)
}

func TestCurrencyMismatchDoesNotMutate(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	usd := order("50000")
	usd.CurrencyCode = "usd"
	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(usd, nil)

	_, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	assert.ErrorIs(t, err, paymentdomain.ErrCurrencyMismatch)
}

func TestOrderNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)
	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(nil, statusErr(http.StatusNotFound))

	_, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	assert.ErrorIs(t, err, paymentdomain.ErrOrderNotFound)
}

func TestTransactionsNotSupported(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(order("50000"), nil)
	client.EXPECT().RegisterTransaction(gomock.Any(), "order_1", gomock.Any()).Return(statusErr(http.StatusNotFound))
	client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ bool, meta map[string]any) error {
			assert.Equal(t, paymentdomain.CaptureStatusNotSupported, meta[paymentdomain.MetaCaptureStatus])
			return nil
		})

	result, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, paymentdomain.ReasonTransactionsNotSupported, result.Reason)
	assert.Equal(t, paymentdomain.OutcomeNotSupported, result.Outcome())
}

func TestTransactionFailureIsHard(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(order("50000"), nil)
	client.EXPECT().RegisterTransaction(gomock.Any(), "order_1", gomock.Any()).Return(statusErr(http.StatusInternalServerError))

	_, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	assert.ErrorIs(t, err, paymentdomain.ErrTransactionFailed)
}

func TestSummaryFailureResumesWithoutRegistering(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	synced := order("50000")
	synced.Metadata = map[string]any{
		paymentdomain.MetaPaymentStatus: paymentdomain.StatusCaptured,
		paymentdomain.MetaPaymentID:     "pay_1",
		paymentdomain.MetaCaptureStatus: paymentdomain.CaptureStatusSynced,
	}
	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(synced, nil)
	client.EXPECT().SetPaymentSummary(gomock.Any(), "order_1", gomock.Any()).Return(nil)

	result, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "resumed", result.Reason)
}

func TestResumeAfterRegisteredTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	registered := order("50000")
	registered.Metadata = map[string]any{
		paymentdomain.MetaPaymentStatus: paymentdomain.StatusCaptured,
		paymentdomain.MetaPaymentID:     "pay_1",
		paymentdomain.MetaCaptureStatus: paymentdomain.CaptureStatusTransactionRegistered,
		paymentdomain.MetaError:         "timeout",
	}
	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(registered, nil)
	client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ bool, meta map[string]any) error {
			assert.Equal(t, paymentdomain.CaptureStatusSynced, meta[paymentdomain.MetaCaptureStatus])
			assert.Nil(t, meta[paymentdomain.MetaError])
			return nil
		})
	client.EXPECT().SetPaymentSummary(gomock.Any(), "order_1", gomock.Any()).Return(nil)

	result, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.Equal(t, "resumed", result.Reason)
}

func TestMetadataFailureMarksRegisteredTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(order("50000"), nil)
	client.EXPECT().RegisterTransaction(gomock.Any(), "order_1", gomock.Any()).Return(nil)
	gomock.InOrder(
		client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).Return(statusErr(http.StatusBadGateway)),
		client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ bool, meta map[string]any) error {
				assert.Equal(t, paymentdomain.CaptureStatusTransactionRegistered, meta[paymentdomain.MetaCaptureStatus])
				return nil
			}),
	)

	_, err := newService(client, nil).ProcessEvent(context.Background(), capturedEvent())
	assert.ErrorIs(t, err, paymentdomain.ErrSyncFailed)
}

func TestUnexpectedFailureRecordsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	client.EXPECT().GetOrder(gomock.Any(), "order_1").Return(order("50000"), nil)
	gomock.InOrder(
		client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).Return(errors.New("connection reset")),
		client.EXPECT().UpdateMetadata(gomock.Any(), "order_1", false, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, _ bool, meta map[string]any) error {
				assert.Equal(t, paymentdomain.CaptureStatusError, meta[paymentdomain.MetaCaptureStatus])
				assert.Contains(t, meta[paymentdomain.MetaError], "connection reset")
				return nil
			}),
	)

	_, err := newService(client, nil).ProcessEvent(context.Background(), failedEvent())
	require.Error(t, err)
	assert.NotErrorIs(t, err, paymentdomain.ErrSyncFailed)
}

func TestIgnoredEventMakesNoCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	result, err := newService(client, nil).ProcessEvent(context.Background(), &paymentdomain.PaymentEvent{
		Provider:  "razorpay",
		EventName: "refund.created",
		Status:    paymentdomain.StatusIgnored,
	})
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.Equal(t, paymentdomain.OutcomeIgnored, result.Outcome())
}

func TestValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)
	svc := newService(client, nil)

	cases := []struct {
		name   string
		mutate func(*paymentdomain.PaymentEvent)
		want   error
	}{
		{"missing order", func(e *paymentdomain.PaymentEvent) { e.OrderID = " " }, paymentdomain.ErrMissingCorrelationID},
		{"missing payment", func(e *paymentdomain.PaymentEvent) { e.PaymentID = "" }, paymentdomain.ErrMissingPaymentID},
		{"missing currency", func(e *paymentdomain.PaymentEvent) { e.Currency = "" }, paymentdomain.ErrInvalidCurrency},
		{"unknown status", func(e *paymentdomain.PaymentEvent) { e.Status = "authorized" }, paymentdomain.ErrInvalidEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := capturedEvent()
			tc.mutate(event)
			_, err := svc.ProcessEvent(context.Background(), event)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

type busyLocker struct {
	held bool
}

func (l *busyLocker) TryLock(context.Context, string) (string, bool, error) {
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "token", true, nil
}

func (l *busyLocker) Release(context.Context, string, string) error {
	l.held = false
	return nil
}

func TestConcurrentDeliveryIsRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)

	_, err := newService(client, &busyLocker{held: true}).ProcessEvent(context.Background(), capturedEvent())
	assert.ErrorIs(t, err, paymentdomain.ErrEventInProgress)
}

func TestLockIsReleased(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := commercemock.NewMockClient(ctrl)
	backend := &fakeBackend{order: order("50000")}
	backend.expect(client)
	locker := &busyLocker{}

	_, err := newService(client, locker).ProcessEvent(context.Background(), capturedEvent())
	require.NoError(t, err)
	assert.False(t, locker.held)
}
