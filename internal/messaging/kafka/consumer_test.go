package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("test", "consumer")
}

func orderEventValue(t *testing.T, eventType EventType, orderID string) []byte {
	t.Helper()
	value, err := json.Marshal(OrderEvent{
		ID:            "evt-1",
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       json.RawMessage(`{"order_id":"` + orderID + `"}`),
		PublishedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	return value
}

func testConsumer(handle EventHandler, conf ConsumerConfig) *Consumer {
	if conf.MaxAttempts == 0 {
		conf.MaxAttempts = 3
	}
	return &Consumer{
		conf:   conf,
		handle: handle,
		logger: quietLogger(),
	}
}

func TestDecodeOrderEvent(t *testing.T) {
	event, err := decodeOrderEvent([]byte(`{"event_type":"order.created","aggregate_id":"o-1","payload":{"order_id":"o-1"}}`))
	require.NoError(t, err)
	require.Equal(t, EventTypeOrderCreated, event.EventType)
	require.Equal(t, "o-1", event.AggregateID)

	_, err = decodeOrderEvent([]byte(`{`))
	require.ErrorContains(t, err, "unmarshal order event")

	_, err = decodeOrderEvent([]byte(`{"event_type":"stock.melted","aggregate_id":"o-1"}`))
	require.ErrorContains(t, err, "unexpected event type")

	_, err = decodeOrderEvent([]byte(`{"event_type":"order.deleted"}`))
	require.ErrorContains(t, err, "without aggregate id")
}

func TestNewConsumer_BrokerUnreachable(t *testing.T) {
	_, err := NewConsumer([]string{"unreachable:9092"}, ConsumerConfig{GroupID: "g"},
		func(context.Context, *OrderEvent) error { return nil })
	require.Error(t, err)
}

func TestProcess_HandlerSucceeds(t *testing.T) {
	var seen *OrderEvent
	c := testConsumer(func(_ context.Context, event *OrderEvent) error {
		seen = event
		return nil
	}, ConsumerConfig{})

	msg := &sarama.ConsumerMessage{Value: orderEventValue(t, EventTypeOrderUpdated, "o-7")}
	require.NoError(t, c.process(context.Background(), msg))
	require.NotNil(t, seen)
	require.Equal(t, "o-7", seen.AggregateID)
}

func TestProcess_RetriesUpToBudget(t *testing.T) {
	attempts := 0
	c := testConsumer(func(context.Context, *OrderEvent) error {
		attempts++
		return errors.New("handler down")
	}, ConsumerConfig{MaxAttempts: 3})

	// Одна прошлая доставка уже записана в заголовок, остаются две попытки.
	msg := &sarama.ConsumerMessage{
		Value:   orderEventValue(t, EventTypeOrderCreated, "o-1"),
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("1")}},
	}

	err := c.process(context.Background(), msg)
	require.Error(t, err, "without dlq the handler error surfaces")
	require.Equal(t, 2, attempts)
}

func TestProcess_ExhaustedAttemptsGoToDLQ(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	c := testConsumer(func(context.Context, *OrderEvent) error {
		return errors.New("permanent failure")
	}, ConsumerConfig{
		MaxAttempts: 1,
		DLQ:         &Producer{producer: mockProducer, logger: quietLogger()},
	})

	msg := &sarama.ConsumerMessage{
		Topic: TopicOrderEvents,
		Key:   []byte("o-1"),
		Value: orderEventValue(t, EventTypeOrderCreated, "o-1"),
	}
	require.NoError(t, c.process(context.Background(), msg), "dlq publish counts as handled")
	require.NoError(t, mockProducer.Close())
}

func TestProcess_MalformedEventSkipsHandler(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	handlerCalled := false
	c := testConsumer(func(context.Context, *OrderEvent) error {
		handlerCalled = true
		return nil
	}, ConsumerConfig{DLQ: &Producer{producer: mockProducer, logger: quietLogger()}})

	msg := &sarama.ConsumerMessage{Topic: TopicOrderEvents, Value: []byte("not json at all")}
	require.NoError(t, c.process(context.Background(), msg))
	require.False(t, handlerCalled, "malformed envelope must not reach the handler")
	require.NoError(t, mockProducer.Close())
}

func TestQuarantine_DLQFailure(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	c := testConsumer(func(context.Context, *OrderEvent) error {
		return errors.New("handler down")
	}, ConsumerConfig{
		MaxAttempts: 1,
		DLQ:         &Producer{producer: mockProducer, logger: quietLogger()},
	})

	msg := &sarama.ConsumerMessage{Value: orderEventValue(t, EventTypeOrderDeleted, "o-2")}
	err := c.process(context.Background(), msg)
	require.ErrorContains(t, err, "quarantine to dlq")
	require.NoError(t, mockProducer.Close())
}

func TestRetryCountFromHeaders(t *testing.T) {
	require.Equal(t, 5, retryCountFromHeaders(&sarama.ConsumerMessage{
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("5")}},
	}))
	require.Zero(t, retryCountFromHeaders(&sarama.ConsumerMessage{
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("nan")}},
	}))
	require.Zero(t, retryCountFromHeaders(&sarama.ConsumerMessage{}))
}

type stubConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeFn   func() error
}

func (g *stubConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if g.consumeFn != nil {
		return g.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (g *stubConsumerGroup) Errors() <-chan error { return g.errorsCh }

func (g *stubConsumerGroup) Close() error {
	if g.closeFn != nil {
		return g.closeFn()
	}
	if g.errorsCh != nil {
		close(g.errorsCh)
	}
	return nil
}

func (g *stubConsumerGroup) Pause(map[string][]int32)  {}
func (g *stubConsumerGroup) Resume(map[string][]int32) {}
func (g *stubConsumerGroup) PauseAll()                 {}
func (g *stubConsumerGroup) ResumeAll()                {}

func TestStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errorsCh := make(chan error, 1)

	consumeCalls := 0
	group := &stubConsumerGroup{
		errorsCh: errorsCh,
		consumeFn: func(context.Context, []string, sarama.ConsumerGroupHandler) error {
			consumeCalls++
			cancel()
			return nil
		},
		closeFn: func() error {
			close(errorsCh)
			return nil
		},
	}

	c := testConsumer(func(context.Context, *OrderEvent) error { return nil },
		ConsumerConfig{Topics: []string{TopicOrderEvents}})
	c.group = group

	errorsCh <- errors.New("background rebalance error")
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop())
	require.NotZero(t, consumeCalls)
}

func TestStop_CloseError(t *testing.T) {
	errorsCh := make(chan error)
	group := &stubConsumerGroup{errorsCh: errorsCh, closeFn: func() error {
		close(errorsCh)
		return errors.New("close failed")
	}}

	c := testConsumer(func(context.Context, *OrderEvent) error { return nil }, ConsumerConfig{})
	c.group = group
	require.ErrorContains(t, c.Stop(), "close consumer group")
}

type stubSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (s *stubSession) Claims() map[string][]int32               { return nil }
func (s *stubSession) MemberID() string                         { return "member" }
func (s *stubSession) GenerationID() int32                      { return 1 }
func (s *stubSession) MarkOffset(string, int32, int64, string)  {}
func (s *stubSession) Commit()                                  {}
func (s *stubSession) ResetOffset(string, int32, int64, string) {}
func (s *stubSession) Context() context.Context                 { return s.ctx }
func (s *stubSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg)
}

type stubClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *stubClaim) Topic() string                            { return TopicOrderEvents }
func (c *stubClaim) Partition() int32                         { return 0 }
func (c *stubClaim) InitialOffset() int64                     { return 0 }
func (c *stubClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *stubClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaim_MarksHandledEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := testConsumer(func(context.Context, *OrderEvent) error { return nil }, ConsumerConfig{})

	claim := &stubClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Value: orderEventValue(t, EventTypeOrderCreated, "o-1")}
	close(claim.messages)

	session := &stubSession{ctx: ctx}
	require.NoError(t, c.ConsumeClaim(session, claim))
	require.Len(t, session.marked, 1)
}

func TestConsumeClaim_FailedEventNotMarked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := testConsumer(func(context.Context, *OrderEvent) error { return errors.New("boom") },
		ConsumerConfig{MaxAttempts: 1})

	claim := &stubClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Value: orderEventValue(t, EventTypeOrderCreated, "o-1")}
	close(claim.messages)

	session := &stubSession{ctx: ctx}
	require.NoError(t, c.ConsumeClaim(session, claim))
	require.Empty(t, session.marked)
}

func TestConsumeClaim_StopsWhenSessionEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	c := testConsumer(func(context.Context, *OrderEvent) error { return nil }, ConsumerConfig{})
	session := &stubSession{ctx: ctx}
	claim := &stubClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = c.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after session context cancellation")
	}
}
