package outbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/pkg/kafka"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

// Publisher sends one record to the broker
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaHandler publishes outbox messages to the topic of their source table
type KafkaHandler struct {
	logger    logger.Logger
	publisher Publisher
	topics    map[string]string
}

// NewKafkaHandler creates a KafkaHandler. topics maps aggregate type (table)
// to topic name.
func NewKafkaHandler(publisher Publisher, topics map[string]string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topics:    topics,
		logger:    logger,
	}
}

// HandleMessage publishes the insert event keyed by record ID, so events for
// one record stay ordered
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	topic, ok := h.topics[message.AggregateType]

	if !ok {
		return fmt.Errorf("no topic configured for %s", message.AggregateType)
	}

	err := h.publisher.Publish(ctx, kafka.Message{
		Topic: topic,
		Key:   message.AggregateID,
		Value: message.Payload,
		Headers: map[string]string{
			"event_type": message.EventType,
			"outbox_id":  strconv.FormatInt(message.ID, 10),
		},
	})

	if err != nil {
		return err
	}

	h.logger.Debug("Outbox message published", "topic", topic, "messageID", message.ID)
	return nil
}
