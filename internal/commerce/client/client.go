package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/paysync/internal/commerce/domain"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/observability/metrics"
	"github.com/smallbiznis/paysync/pkg/telemetry/correlation"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxErrorBody = 2048

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	SyncMetrics *metrics.SyncMetrics `optional:"true"`
	ObsMetrics  *metrics.Metrics     `optional:"true"`
}

type Client struct {
	baseURL     string
	apiToken    string
	httpClient  *http.Client
	log         *zap.Logger
	syncMetrics *metrics.SyncMetrics
	obsMetrics  *metrics.Metrics
}

func NewClient(p Params) domain.Client {
	return New(p.Cfg.Commerce, p.Log, p.SyncMetrics, p.ObsMetrics)
}

func New(cfg config.CommerceConfig, log *zap.Logger, syncMetrics *metrics.SyncMetrics, obsMetrics *metrics.Metrics) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiToken: strings.TrimSpace(cfg.APIToken),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "commerce " + r.Method
				}),
			),
		},
		log:         log.Named("commerce.client"),
		syncMetrics: syncMetrics,
		obsMetrics:  obsMetrics,
	}
}

type orderEnvelope struct {
	Order      *domain.Order `json:"order"`
	DraftOrder *domain.Order `json:"draft_order"`
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.ErrInvalidOrderID
	}

	var envelope orderEnvelope
	err := c.do(ctx, metrics.CommerceOpGetOrder, http.MethodGet, "/admin/orders/"+url.PathEscape(orderID), nil, &envelope)
	if domain.IsNotFound(err) {
		envelope = orderEnvelope{}
		err = c.do(ctx, metrics.CommerceOpGetDraftOrder, http.MethodGet, "/admin/draft-orders/"+url.PathEscape(orderID), nil, &envelope)
		if err != nil {
			return nil, err
		}
		order := envelope.DraftOrder
		if order == nil {
			order = envelope.Order
		}
		if order == nil {
			return nil, domain.ErrInvalidResponse
		}
		order.IsDraftOrder = true
		return order, nil
	}
	if err != nil {
		return nil, err
	}

	order := envelope.Order
	if order == nil {
		order = envelope.DraftOrder
	}
	if order == nil || strings.TrimSpace(order.ID) == "" {
		return nil, domain.ErrInvalidResponse
	}
	return order, nil
}

func (c *Client) RegisterTransaction(ctx context.Context, orderID string, req domain.TransactionRequest) error {
	return c.do(ctx, metrics.CommerceOpAddTransaction, http.MethodPost, "/admin/orders/"+url.PathEscape(orderID)+"/transactions", req, nil)
}

func (c *Client) UpdateMetadata(ctx context.Context, orderID string, draft bool, metadata map[string]any) error {
	path := "/admin/orders/" + url.PathEscape(orderID)
	if draft {
		path = "/admin/draft-orders/" + url.PathEscape(orderID)
	}
	return c.do(ctx, metrics.CommerceOpUpdateMetadata, http.MethodPost, path, map[string]any{"metadata": metadata}, nil)
}

func (c *Client) SetPaymentSummary(ctx context.Context, orderID string, req domain.PaymentSummaryRequest) error {
	return c.do(ctx, metrics.CommerceOpPaymentSummary, http.MethodPost, "/admin/orders/"+url.PathEscape(orderID)+"/payment-summary", req, nil)
}

func (c *Client) ConvertDraftOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, metrics.CommerceOpConvertDraftOrder, http.MethodPost, "/admin/draft-orders/"+url.PathEscape(orderID)+"/convert-to-order", nil, nil)
}

func (c *Client) DeleteDraftOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, metrics.CommerceOpDeleteDraftOrder, http.MethodDelete, "/admin/draft-orders/"+url.PathEscape(orderID), nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		req.Header.Set(correlation.HeaderCorrelationID, cid)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(ctx, op, 0, start)
		c.log.Warn("commerce request failed", zap.String("op", op), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	c.observe(ctx, op, resp.StatusCode, start)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug("commerce non-2xx response",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode),
		)
		return &domain.StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ErrInvalidResponse
	}
	return nil
}

func (c *Client) observe(ctx context.Context, op string, statusCode int, start time.Time) {
	c.syncMetrics.ObserveCommerceCall(op, statusCode, time.Since(start))
	c.obsMetrics.RecordCommerceCall(ctx, op, statusCode)
}
