package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/vani-inventory/internal/domain"
	"github.com/sakashimaa/vani-inventory/pkg/kafka"
	"github.com/sakashimaa/vani-inventory/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/vani-inventory/pkg/outbox/domain"
	"go.uber.org/zap"
)

// Consumer turns inventory events published by any instance into
// collection change notifications for the live projection.
type Consumer struct {
	brokers []string
	groupID string
	topic   string
	logger  *zap.Logger
}

func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	return &Consumer{
		brokers: brokers,
		groupID: groupID,
		topic:   topic,
		logger:  logger,
	}
}

// Watch consumes the inventory topic until ctx is done and calls notify
// for every collection an event touched. ready runs each time the group
// session is set up.
func (c *Consumer) Watch(ctx context.Context, ready func(), notify func(domain.Collection)) error {
	consumerGroup := kafka.NewConsumerGroup(
		c.brokers,
		c.groupID,
		[]string{c.topic},
		func(ctx context.Context, msg *sarama.ConsumerMessage) error {
			return c.processMessage(ctx, msg, notify)
		},
		c.logger,
		kafka.WithClientID("vani-inventory-projection"),
		kafka.WithSetup(ready),
	)

	return consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage, notify func(domain.Collection)) error {
	var envelope outboxDomain.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		// A message that can never decode is skipped, retrying it would
		// stall the partition.
		mylogger.Warn(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return nil
	}

	collections := domain.EventCollections(envelope.Event)
	if len(collections) == 0 {
		mylogger.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", envelope.Event))
		return nil
	}

	mylogger.Debug(
		ctx,
		c.logger,
		"Inventory event received",
		zap.String("event_type", envelope.Event),
		zap.Int64("offset", msg.Offset),
	)

	for _, collection := range collections {
		notify(collection)
	}

	return nil
}
