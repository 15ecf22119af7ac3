package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

type ConsumerGroup struct {
	brokers []string
	groupID string
	topics  []string
	handler HandlerFunc
	logger  *zap.Logger
	config  *sarama.Config
	onSetup func()
}

type Option func(*ConsumerGroup)

// WithInitialOffset sets where a group without committed offsets starts.
// The default is sarama.OffsetNewest: projection feeds do a full read
// first and only need later changes.
func WithInitialOffset(offset int64) Option {
	return func(c *ConsumerGroup) {
		c.config.Consumer.Offsets.Initial = offset
	}
}

func WithClientID(id string) Option {
	return func(c *ConsumerGroup) {
		c.config.ClientID = id
	}
}

// WithSetup registers fn to run each time the group session is set up,
// after partitions are assigned and before messages are delivered.
func WithSetup(fn func()) Option {
	return func(c *ConsumerGroup) {
		c.onSetup = fn
	}
}

func NewConsumerGroup(
	brokers []string,
	groupID string,
	topics []string,
	handler HandlerFunc,
	logger *zap.Logger,
	opts ...Option,
) *ConsumerGroup {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.ClientID = "vani-inventory"
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	c := &ConsumerGroup{
		brokers: brokers,
		groupID: groupID,
		topics:  topics,
		handler: handler,
		logger:  logger,
		config:  config,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run consumes until ctx is cancelled. It only returns an error when the
// group cannot be created.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, c.config)
	if err != nil {
		return fmt.Errorf("error creating consumer group %s: %w", c.groupID, err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			mylogger.Error(ctx, c.logger, "Error closing consumer group", zap.Error(err))
		}
	}()

	go func() {
		for err := range group.Errors() {
			mylogger.Warn(ctx, c.logger, "Consumer group error", zap.String("group_id", c.groupID), zap.Error(err))
		}
	}()

	h := &groupHandler{
		handler: c.handler,
		onSetup: c.onSetup,
		logger:  c.logger.With(zap.String("group_id", c.groupID)),
		tracer:  otel.Tracer("pkg/kafka/consumer"),
	}

	// Consume returns on every rebalance, so it runs in a loop.
	for {
		if err := group.Consume(ctx, c.topics, h); err != nil && ctx.Err() == nil {
			mylogger.Error(ctx, c.logger, "Error consuming in consumer loop", zap.Error(err))
		}

		if ctx.Err() != nil {
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer", zap.String("group_id", c.groupID))
			return nil
		}
	}
}

type groupHandler struct {
	handler HandlerFunc
	onSetup func()
	logger  *zap.Logger
	tracer  trace.Tracer
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	mylogger.Debug(session.Context(), h.logger, "Partitions assigned", zap.Any("claims", session.Claims()))
	if h.onSetup != nil {
		h.onSetup()
	}
	return nil
}

func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	mylogger.Debug(session.Context(), h.logger, "Partitions released", zap.Int32("generation", session.GenerationID()))
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(session, msg)
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle marks msg only when the handler succeeds. A failed message is
// logged and left unmarked, later offsets still advance past it.
func (h *groupHandler) handle(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	ctx, span := h.startSpan(session.Context(), msg)
	defer span.End()

	if err := h.handler(ctx, msg); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, h.logger, "Failed to process message",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return
	}

	session.MarkMessage(msg, "")
}

// startSpan continues the producer's trace carried in the message headers.
func (h *groupHandler) startSpan(ctx context.Context, msg *sarama.ConsumerMessage) (context.Context, trace.Span) {
	carrier := propagation.MapCarrier{}
	for _, header := range msg.Headers {
		carrier[string(header.Key)] = string(header.Value)
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	return h.tracer.Start(ctx, "kafka_process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", int(msg.Partition)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
}
