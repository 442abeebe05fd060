package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/fitbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler applies one message. Returning an error leaves the offset
// uncommitted so the message is retried.
type Handler func(ctx context.Context, msg kafka.Message) error

type Config struct {
	Brokers    string
	GroupID    string
	Topics     []string
	MaxRetries int
	RetryDelay time.Duration
}

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler Handler
	cfg     Config
}

func New(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{reader: reader, logger: logger, handler: handler, cfg: cfg}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()
	c.logger.Info("consumer started", "topics", c.cfg.Topics, "group_id", c.cfg.GroupID)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			sleep(ctx, time.Second)
			continue
		}

		if !c.process(ctx, msg) {
			if ctx.Err() != nil {
				return
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process runs the handler with bounded retries. A message that keeps
// failing is logged and skipped so one bad event cannot stall the partition.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	meta := kafkax.ExtractEventMeta(msg)
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message_id", meta.EventID),
		),
	)
	defer span.End()

	for attempt := 1; ; attempt++ {
		err := c.handler(ctxSpan, msg)
		if err == nil {
			return true
		}
		span.RecordError(err)
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType, "attempt", attempt)
		if attempt >= c.cfg.MaxRetries || ctx.Err() != nil {
			span.SetStatus(codes.Error, "event dropped")
			c.logger.Warn("event dropped after retries", "event_id", meta.EventID, "topic", msg.Topic, "offset", msg.Offset)
			return false
		}
		sleep(ctx, c.cfg.RetryDelay*time.Duration(attempt))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
