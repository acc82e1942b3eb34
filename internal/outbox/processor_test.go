package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/pkg/kafka"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"github.com/nzskirting/orderdesk/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	pending   []*models.OutboxMessage
	completed []int64
	failed    map[int64]string
	retries   map[int64]time.Time
	released  int
}

func newFakeStore(msgs ...*models.OutboxMessage) *fakeStore {
	return &fakeStore{pending: msgs, failed: map[int64]string{}, retries: map[int64]time.Time{}}
}

func (s *fakeStore) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	return s.pending, nil
}

func (s *fakeStore) MarkAsProcessing(ctx context.Context, id int64) error { return nil }

func (s *fakeStore) MarkAsCompleted(ctx context.Context, id int64) error {
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeStore) ScheduleRetry(ctx context.Context, id int64, next time.Time, errorMessage string) error {
	s.retries[id] = next
	return nil
}

func (s *fakeStore) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	s.failed[id] = errorMessage
	return nil
}

func (s *fakeStore) ReleaseProcessing(ctx context.Context) (int64, error) {
	s.released++
	return 0, nil
}

type handlerFunc func(ctx context.Context, msg *models.OutboxMessage) error

func (f handlerFunc) HandleMessage(ctx context.Context, msg *models.OutboxMessage) error {
	return f(ctx, msg)
}

func newTestProcessor(store Store) *Processor {
	p := NewProcessor(store, ProcessorConfig{
		PollingInterval: time.Second,
		MaxAttempts:     3,
		Backoff:         &retry.ConstantBackoff{Interval: time.Minute},
	}, logger.NewNop())
	p.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

func TestProcessor_CompletesHandledMessages(t *testing.T) {
	store := newFakeStore(&models.OutboxMessage{ID: 1, EventType: models.EventOrderCreated})
	p := newTestProcessor(store)
	p.RegisterHandler(models.EventOrderCreated, handlerFunc(func(context.Context, *models.OutboxMessage) error { return nil }))

	require.NoError(t, p.processBatch(context.Background()))
	assert.Equal(t, []int64{1}, store.completed)
}

func TestProcessor_SchedulesRetryWithBackoff(t *testing.T) {
	store := newFakeStore(&models.OutboxMessage{ID: 2, EventType: models.EventOrderCreated, ProcessingAttempts: 0})
	p := newTestProcessor(store)
	p.RegisterHandler(models.EventOrderCreated, handlerFunc(func(context.Context, *models.OutboxMessage) error {
		return errors.New("broker unavailable")
	}))

	require.NoError(t, p.processBatch(context.Background()))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC), store.retries[2])
	assert.Empty(t, store.failed)
}

func TestProcessor_FailsAfterMaxAttempts(t *testing.T) {
	store := newFakeStore(&models.OutboxMessage{ID: 3, EventType: models.EventInquiryCreated, ProcessingAttempts: 2})
	p := newTestProcessor(store)
	p.RegisterHandler(models.EventInquiryCreated, handlerFunc(func(context.Context, *models.OutboxMessage) error {
		return errors.New("broker unavailable")
	}))

	require.NoError(t, p.processBatch(context.Background()))
	assert.Contains(t, store.failed[3], "max attempts reached")
	assert.Empty(t, store.retries)
}

func TestProcessor_UnknownEventTypeFails(t *testing.T) {
	store := newFakeStore(&models.OutboxMessage{ID: 4, EventType: "product_created"})
	p := newTestProcessor(store)

	require.NoError(t, p.processBatch(context.Background()))
	assert.Contains(t, store.failed[4], "no handler registered")
}

func TestProcessor_StartStopAndNudge(t *testing.T) {
	handled := make(chan int64, 1)
	store := newFakeStore(&models.OutboxMessage{ID: 5, EventType: models.EventOrderCreated})
	p := NewProcessor(store, ProcessorConfig{PollingInterval: time.Hour}, logger.NewNop())
	p.RegisterHandler(models.EventOrderCreated, handlerFunc(func(ctx context.Context, msg *models.OutboxMessage) error {
		select {
		case handled <- msg.ID:
		default:
		}
		return nil
	}))

	p.Start()
	p.Start()
	p.Nudge()

	select {
	case id := <-handled:
		assert.Equal(t, int64(5), id)
	case <-time.After(2 * time.Second):
		t.Fatal("nudge did not trigger a poll")
	}

	p.Stop()
	p.Stop()
	assert.Equal(t, 1, store.released)
}

type fakePublisher struct {
	msg kafka.Message
	err error
}

func (p *fakePublisher) Publish(ctx context.Context, msg kafka.Message) error {
	p.msg = msg
	return p.err
}

func TestKafkaHandler(t *testing.T) {
	pub := &fakePublisher{}
	h := NewKafkaHandler(pub, map[string]string{models.AggregateOrder: "orders.inserted"}, logger.NewNop())

	msg := &models.OutboxMessage{
		ID:            12,
		AggregateType: models.AggregateOrder,
		AggregateID:   "o-1",
		EventType:     models.EventOrderCreated,
		Payload:       []byte(`{}`),
	}
	require.NoError(t, h.HandleMessage(context.Background(), msg))
	assert.Equal(t, "orders.inserted", pub.msg.Topic)
	assert.Equal(t, "o-1", pub.msg.Key)
	assert.Equal(t, map[string]string{"event_type": models.EventOrderCreated, "outbox_id": "12"}, pub.msg.Headers)

	pub.err = errors.New("down")
	assert.Error(t, h.HandleMessage(context.Background(), msg))

	assert.Error(t, h.HandleMessage(context.Background(), &models.OutboxMessage{AggregateType: "products"}))
}

type recordingPublisher struct{ events []models.InsertEvent }

func (p *recordingPublisher) Publish(ctx context.Context, event models.InsertEvent) error {
	p.events = append(p.events, event)
	return nil
}

func TestLocalHandler(t *testing.T) {
	order := models.NewOrder(time.Now().UTC())
	msg, err := models.NewOrderCreatedEvent(order)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	require.NoError(t, NewLocalHandler(pub).HandleMessage(context.Background(), msg))
	require.Len(t, pub.events, 1)
	assert.Equal(t, order.ID, pub.events[0].RecordID)
	assert.Equal(t, models.AggregateOrder, pub.events[0].Table)

	assert.Error(t, NewLocalHandler(pub).HandleMessage(context.Background(), &models.OutboxMessage{Payload: []byte("{")}))
}
