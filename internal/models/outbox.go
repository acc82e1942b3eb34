package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Event types written alongside new rows
const (
	EventOrderCreated   = "order_created"
	EventInquiryCreated = "inquiry_created"
)

// Aggregate types, matching the table each event came from
const (
	AggregateOrder   = "orders"
	AggregateInquiry = "inquiries"
)

// OutboxMessage is a row in outbox_messages waiting to be published
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	NextAttemptAt      time.Time    `db:"next_attempt_at" json:"next_attempt_at"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// InsertEvent is the payload published for every inserted order or inquiry
type InsertEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Table      string          `json:"table"`
	RecordID   string          `json:"record_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Record     json.RawMessage `json:"record"`
}

func newInsertMessage(eventType, table, id string, record interface{}) (*OutboxMessage, error) {
	body, err := json.Marshal(record)

	if err != nil {
		return nil, err
	}

	now := GetCurrentTime()
	event := InsertEvent{
		EventID:    GenerateID(),
		EventType:  eventType,
		Table:      table,
		RecordID:   id,
		OccurredAt: now,
		Record:     body,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		AggregateType: table,
		AggregateID:   id,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
		NextAttemptAt: now,
		Status:        OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent creates the outbox message for a new order
func NewOrderCreatedEvent(order *Order) (*OutboxMessage, error) {
	return newInsertMessage(EventOrderCreated, AggregateOrder, order.ID, order)
}

// NewInquiryCreatedEvent creates the outbox message for a new inquiry
func NewInquiryCreatedEvent(inquiry *Inquiry) (*OutboxMessage, error) {
	return newInsertMessage(EventInquiryCreated, AggregateInquiry, inquiry.ID, inquiry)
}
