package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func mockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mockProducer := mocks.NewSyncProducer(t, nil)
	return &Producer{producer: mockProducer, logger: quietLogger()}, mockProducer
}

func TestProducer_PublishEvent(t *testing.T) {
	producer, mockProducer := mockedProducer(t)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, TopicOrderEvents, msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		require.Equal(t, "order-123", string(key), "key must be the order id for partition affinity")

		raw, err := msg.Value.Encode()
		require.NoError(t, err)
		var event OrderEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		require.Equal(t, EventTypeOrderCreated, event.EventType)
		require.JSONEq(t, `{"order_id":"order-123"}`, string(event.Payload))
		return nil
	})

	event := NewOrderEvent(EventTypeOrderCreated, "order-123", json.RawMessage(`{"order_id":"order-123"}`))
	require.NoError(t, producer.PublishEvent(TopicOrderEvents, "order-123", event))
	require.NoError(t, mockProducer.Close())
}

func TestProducer_PublishEvent_BrokerError(t *testing.T) {
	producer, mockProducer := mockedProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewOrderEvent(EventTypeOrderDeleted, "order-123", nil)
	err := producer.PublishEvent(TopicOrderEvents, "order-123", event)
	require.ErrorContains(t, err, "send to "+TopicOrderEvents)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_PublishEvent_UnserializableEvent(t *testing.T) {
	producer, mockProducer := mockedProducer(t)

	err := producer.PublishEvent(TopicOrderEvents, "order-123", func() {})
	require.ErrorContains(t, err, "marshal event")
	require.NoError(t, mockProducer.Close())
}

func TestNewOrderEvent(t *testing.T) {
	payload := json.RawMessage(`{"total_quantity":2}`)

	event := NewOrderEvent(EventTypeOrderUpdated, "order-123", payload)
	require.Equal(t, EventTypeOrderUpdated, event.EventType)
	require.Equal(t, "order-123", event.AggregateID)
	require.Equal(t, "order", event.AggregateType)
	require.Equal(t, string(payload), string(event.Payload))
	require.False(t, event.PublishedAt.IsZero())
	require.LessOrEqual(t, time.Since(event.PublishedAt), time.Second)
}
