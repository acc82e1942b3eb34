package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"id":"1"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith(sp, logger.NewNop())

	require.NoError(t, p.Publish(context.Background(), Message{
		Topic:   "orders.inserted",
		Key:     "1",
		Value:   []byte(`{"id":"1"}`),
		Headers: map[string]string{"event_type": "order_created"},
	}))
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Topic: "orders.inserted", Key: "2", Value: []byte(`{}`)}), sarama.ErrOutOfBrokers)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, Message{Topic: "orders.inserted"}), context.Canceled)
	require.NoError(t, p.Close())
}

func TestRecordHeaders(t *testing.T) {
	assert.Nil(t, recordHeaders(nil))

	headers := recordHeaders(map[string]string{"outbox_id": "7", "event_type": "order_created"})
	require.Len(t, headers, 2)
	assert.Equal(t, "event_type", string(headers[0].Key))
	assert.Equal(t, "order_created", string(headers[0].Value))
	assert.Equal(t, "outbox_id", string(headers[1].Key))
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }

func (s *fakeSession) MemberID() string { return "m" }

func (s *fakeSession) GenerationID() int32 { return 1 }

func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {}

func (s *fakeSession) Commit() {}

func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {}

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) Context() context.Context { return s.ctx }

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "orders.inserted" }

func (c *fakeClaim) Partition() int32 { return 0 }

func (c *fakeClaim) InitialOffset() int64 { return 0 }

func (c *fakeClaim) HighWaterMarkOffset() int64 { return 0 }

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumer_ConsumeClaim(t *testing.T) {
	c := newConsumer(nil, []string{"orders.inserted"}, logger.NewNop())
	var handled []string

	c.RegisterHandler("orders.inserted", HandlerFunc(func(ctx context.Context, msg *sarama.ConsumerMessage) error {
		if string(msg.Value) == "bad" {
			return errors.New("bad message")
		}
		handled = append(handled, string(msg.Value))
		return nil
	}))

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders.inserted", Offset: 1, Value: []byte("a")}
	claim.messages <- &sarama.ConsumerMessage{Topic: "orders.inserted", Offset: 2, Value: []byte("bad")}
	claim.messages <- &sarama.ConsumerMessage{Topic: "unknown", Offset: 3, Value: []byte("c")}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}

	require.NoError(t, c.ConsumeClaim(session, claim))
	assert.Equal(t, []string{"a"}, handled)
	assert.Equal(t, []int64{1, 3}, session.marked)
}

func TestConsumer_StartWithoutTopics(t *testing.T) {
	c := newConsumer(nil, nil, logger.NewNop())
	assert.Error(t, c.Start())
}

func TestHeader(t *testing.T) {
	msg := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{
		nil,
		{Key: []byte("event_type"), Value: []byte("inquiry_created")},
	}}

	assert.Equal(t, "inquiry_created", Header(msg, "event_type"))
	assert.Equal(t, "", Header(msg, "outbox_id"))
}
