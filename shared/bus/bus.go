// Package bus layers domain-event semantics over the raw Kafka clients:
// envelopes partitioned by event id, a best-effort producer for write paths,
// and a consumer loop that survives poisoned messages.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
	"securities-sales-crm/shared/metricsx"
	"securities-sales-crm/shared/mqx"
)

type Publisher struct {
	producer *mqx.Producer
	logger   logx.Logger
}

func NewPublisher(producer *mqx.Producer, logger logx.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

// Publish appends the envelope to the topic, keyed by event id, and returns
// any producer error to the caller.
func (p *Publisher) Publish(ctx context.Context, topic string, env events.Envelope) error {
	if p == nil || p.producer == nil {
		return errors.New("publisher not initialized")
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	headers := map[string]string{
		"event_id":   env.EventID.String(),
		"event_type": env.EventType,
	}
	if err := p.producer.Publish(ctx, topic, []byte(env.EventID.String()), value, headers); err != nil {
		metricsx.IncEventPublishFailure(topic)
		return err
	}
	metricsx.IncEventPublished(topic, env.EventType)
	return nil
}

// PublishBestEffort is the producer contract for request paths: publication
// must never fail or block the local write that triggered it. A bus failure
// is logged and dropped; the event is lost rather than the user-facing write.
func (p *Publisher) PublishBestEffort(ctx context.Context, topic string, env events.Envelope) {
	if err := p.Publish(ctx, topic, env); err != nil {
		p.logger.Warn(ctx, "event_publish_dropped", "event publish failed, dropping",
			slog.String("topic", topic),
			slog.String("event_type", env.EventType),
			slog.String("event_id", env.EventID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// Handler processes one decoded envelope. Handlers must be idempotent in the
// event id: the group may redeliver a message after rebalance or restart.
type Handler func(ctx context.Context, env events.Envelope) error

// Consume runs the per-topic loop: fetch, decode, handle, commit. A handler
// error or panic is logged with the event type and id and the loop moves on;
// the message is still committed so one poisoned message cannot wedge the
// whole topic.
func Consume(ctx context.Context, reader *kafka.Reader, groupID string, logger logx.Logger, handle Handler) {
	topic := reader.Config().Topic
	logger.Info(ctx, "consumer_start", "consumer started",
		slog.String("topic", topic),
		slog.String("group", groupID),
	)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error(ctx, "kafka_fetch_failed", "failed to fetch message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		spanCtx, span := otel.Tracer("bus").Start(ctx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", topic),
		)
		handleMessage(spanCtx, logger, topic, msg.Value, handle)
		span.End()

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "kafka_commit_failed", "failed to commit message",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
		}
		stats := reader.Stats()
		metricsx.SetKafkaLag(stats.Topic, groupID, stats.Lag)
	}
	logger.Info(context.Background(), "consumer_stop", "consumer stopped",
		slog.String("topic", topic),
	)
}

func handleMessage(ctx context.Context, logger logx.Logger, topic string, value []byte, handle Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, "event_handler_panic", "handler panicked",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("topic", topic),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		logger.Error(ctx, "event_decode_failed", "failed to decode envelope",
			slog.String("error_code", "INVALID_ARGUMENT"),
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := handle(ctx, env); err != nil {
		metricsx.IncEventHandleFailure(topic)
		logger.Error(ctx, "event_handle_failed", "failed to handle event",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("topic", topic),
			slog.String("event_type", env.EventType),
			slog.String("event_id", env.EventID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	metricsx.IncEventConsumed(topic, env.EventType)
}
