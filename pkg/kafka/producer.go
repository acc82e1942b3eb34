package kafka

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Shopify/sarama"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

// Message is one record to publish. Records with the same Key land on the
// same partition and keep their order.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer publishes records synchronously, waiting for every in-sync replica
type Producer struct {
	producer sarama.SyncProducer
	logger   logger.Logger
}

// NewProducer connects a sync producer to brokers
func NewProducer(brokers []string, logger logger.Logger) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "orderdesk"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Compression = sarama.CompressionSnappy
	// the outbox owns redelivery; keep the client's own retries short
	cfg.Producer.Retry.Max = 1
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)

	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewProducerWith(producer, logger), nil
}

// NewProducerWith wraps an existing sarama.SyncProducer
func NewProducerWith(producer sarama.SyncProducer, logger logger.Logger) *Producer {
	return &Producer{
		producer: producer,
		logger:   logger,
	}
}

func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	return out
}

// Publish sends msg and blocks until the brokers acknowledge it
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record := &sarama.ProducerMessage{
		Topic:   msg.Topic,
		Value:   sarama.ByteEncoder(msg.Value),
		Headers: recordHeaders(msg.Headers),
	}

	if msg.Key != "" {
		record.Key = sarama.StringEncoder(msg.Key)
	}

	partition, offset, err := p.producer.SendMessage(record)

	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Topic, err)
	}

	p.logger.Debug("Published record",
		"topic", msg.Topic,
		"key", msg.Key,
		"partition", partition,
		"offset", offset)

	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
