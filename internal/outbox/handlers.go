package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nzskirting/orderdesk/internal/models"
)

// EventPublisher receives decoded insert events in-process
type EventPublisher interface {
	Publish(ctx context.Context, event models.InsertEvent) error
}

// LocalHandler hands outbox messages straight to an in-process publisher when
// no broker is configured
type LocalHandler struct {
	publisher EventPublisher
}

func NewLocalHandler(publisher EventPublisher) *LocalHandler {
	return &LocalHandler{publisher: publisher}
}

func (h *LocalHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.InsertEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	return h.publisher.Publish(ctx, event)
}
