package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Shopify/sarama"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/pkg/kafka"
)

// EventFunc receives one insert event
type EventFunc func(ctx context.Context, event models.InsertEvent)

// Source delivers insert events per table
type Source interface {
	Subscribe(table string, fn EventFunc) (unsubscribe func(), err error)
}

type subscriptions struct {
	mu     sync.RWMutex
	nextID int
	byName map[string]map[int]EventFunc
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byName: make(map[string]map[int]EventFunc)}
}

func (s *subscriptions) add(table string, fn EventFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	if s.byName[table] == nil {
		s.byName[table] = make(map[int]EventFunc)
	}
	s.byName[table][id] = fn

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.byName[table], id)
		})
	}
}

func (s *subscriptions) dispatch(ctx context.Context, event models.InsertEvent) int {
	s.mu.RLock()
	fns := make([]EventFunc, 0, len(s.byName[event.Table]))
	for _, fn := range s.byName[event.Table] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx, event)
	}

	return len(fns)
}

// LocalSource is an in-process Source fed directly by the outbox processor
type LocalSource struct {
	subs *subscriptions
}

func NewLocalSource() *LocalSource {
	return &LocalSource{subs: newSubscriptions()}
}

func (s *LocalSource) Subscribe(table string, fn EventFunc) (func(), error) {
	return s.subs.add(table, fn), nil
}

// Publish delivers event to the subscribers of its table
func (s *LocalSource) Publish(ctx context.Context, event models.InsertEvent) error {
	s.subs.dispatch(ctx, event)
	return nil
}

// KafkaSource reads insert events from one Kafka topic per table
type KafkaSource struct {
	subs   *subscriptions
	topics map[string]string
}

// NewKafkaSource registers a handler on consumer for every table -> topic
// pair. The caller starts and stops the consumer.
func NewKafkaSource(consumer *kafka.Consumer, topics map[string]string) *KafkaSource {
	s := &KafkaSource{subs: newSubscriptions(), topics: topics}

	for _, topic := range topics {
		consumer.RegisterHandler(topic, kafka.HandlerFunc(s.handle))
	}

	return s
}

func (s *KafkaSource) Subscribe(table string, fn EventFunc) (func(), error) {
	if _, ok := s.topics[table]; !ok {
		return nil, fmt.Errorf("no topic configured for table %q", table)
	}

	return s.subs.add(table, fn), nil
}

func (s *KafkaSource) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.InsertEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// a malformed event can never succeed; drop it
		return nil
	}

	s.subs.dispatch(ctx, event)
	return nil
}
