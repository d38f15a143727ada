package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const headerCorrelationID = "x-correlation-id"

// publishTimeout bounds one publish including the writer's retries.
const publishTimeout = 3 * time.Second

const (
	TypePaymentSynced = "order.payment_synced"
	TypePaymentFailed = "order.payment_failed"
)

// TypeForStatus names the message type for an order payment status.
func TypeForStatus(status string) string {
	if status == "failed" {
		return TypePaymentFailed
	}
	return TypePaymentSynced
}

// PaymentSynced is published after an order was moved to a new payment state.
type PaymentSynced struct {
	Type           string    `json:"type"`
	EventID        string    `json:"event_id"`
	Provider       string    `json:"provider"`
	OrderID        string    `json:"order_id"`
	PaymentID      string    `json:"payment_id"`
	Status         string    `json:"status"`
	Outcome        string    `json:"outcome"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency"`
	Matched        bool      `json:"matched"`
	Reconciliation string    `json:"reconciliation"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishPaymentSynced(ctx context.Context, evt PaymentSynced) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	log     *zap.Logger
}

type NoopPublisher struct{}

func (NoopPublisher) PublishPaymentSynced(context.Context, PaymentSynced) error { return nil }

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	log = log.Named("events")
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		log.Info("kafka brokers not configured, payment events disabled")
		return NoopPublisher{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: time.Second,
		MaxAttempts:  3,
		Logger:       zap.NewStdLog(log.With(zap.String("kafka_component", "producer"))),
		ErrorLogger:  zap.NewStdLog(log.With(zap.String("kafka_component", "producer_error"))),
	}
	publisher := newKafkaPublisher(writer, cfg.Kafka.Topic, log)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})

	log.Info("kafka publisher initialized",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
	return publisher
}

func newKafkaPublisher(writer messageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic, timeout: publishTimeout, log: log}
}

// PublishPaymentSynced ignores the caller's cancellation; the write is bounded
// by publishTimeout instead.
func (p *KafkaPublisher) PublishPaymentSynced(ctx context.Context, evt PaymentSynced) error {
	msg, err := buildMessage(ctx, evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("publish payment event: %w", err)
	}
	p.log.Debug("payment event published",
		zap.String("topic", p.topic),
		zap.String("order_id", evt.OrderID),
		zap.String("outcome", evt.Outcome),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// buildMessage keys by order id so all events of one order land on one partition.
func buildMessage(ctx context.Context, evt PaymentSynced) (kafka.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode payment event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.OrderID),
		Value: value,
		Time:  evt.OccurredAt,
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: headerCorrelationID, Value: []byte(cid)})
	}
	return msg, nil
}
