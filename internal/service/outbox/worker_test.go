package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ordenio/pedidos/internal/domain"
)

func orderRecord(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   "order-" + id,
		EventType:     "order.updated",
		Payload:       []byte(`{"status":"paid"}`),
	}
}

func fastWorker(repo domain.OutboxRepository, events, dlq domain.OutboxPublisher) *Worker {
	return NewWorker(repo, events, dlq, Config{MaxAttempts: 3, RetryBaseDelay: 0}, nil)
}

func TestProcessOnce_DeliveredRecordMarkedSent(t *testing.T) {
	t.Parallel()

	repo := &recordingRepo{pending: []domain.OutboxMessage{orderRecord("a")}}
	events := &scriptedPublisher{}

	fastWorker(repo, events, nil).ProcessOnce(context.Background())

	require.Equal(t, []string{"a"}, repo.sent)
	require.Empty(t, repo.failed)
	require.Equal(t, 1, events.calls())
}

func TestProcessOnce_TransientErrorRetriedThenSent(t *testing.T) {
	t.Parallel()

	repo := &recordingRepo{pending: []domain.OutboxMessage{orderRecord("b")}}
	events := &scriptedPublisher{script: []error{
		errors.New("broker hiccup"),
		errors.New("still down"),
		nil,
	}}

	fastWorker(repo, events, nil).ProcessOnce(context.Background())

	require.Equal(t, 3, events.calls())
	require.Equal(t, []string{"b"}, repo.sent)
	require.Empty(t, repo.failed)
}

func TestProcessOnce_ExhaustedRecordGoesToDeadLetter(t *testing.T) {
	t.Parallel()

	repo := &recordingRepo{pending: []domain.OutboxMessage{orderRecord("c")}}
	events := &scriptedPublisher{always: errors.New("broker unreachable")}
	dlq := &scriptedPublisher{}

	fastWorker(repo, events, dlq).ProcessOnce(context.Background())

	require.Equal(t, 3, events.calls(), "MaxAttempts bounds delivery attempts")
	require.Empty(t, repo.sent)
	require.Equal(t, []string{"c"}, repo.failed)
	require.Equal(t, 1, dlq.calls())

	// Dead letter несёт исходное событие и причину отказа.
	var letter struct {
		OutboxID     string          `json:"outbox_id"`
		EventType    string          `json:"event_type"`
		Payload      json.RawMessage `json:"payload"`
		PublishError string          `json:"publish_error"`
	}
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &letter))
	require.Equal(t, "c", letter.OutboxID)
	require.Equal(t, "order.updated", letter.EventType)
	require.JSONEq(t, `{"status":"paid"}`, string(letter.Payload))
	require.Contains(t, letter.PublishError, "broker unreachable")
}

func TestProcessOnce_NoDeadLetterPublisher(t *testing.T) {
	t.Parallel()

	repo := &recordingRepo{pending: []domain.OutboxMessage{orderRecord("d")}}
	events := &scriptedPublisher{always: errors.New("boom")}

	fastWorker(repo, events, nil).ProcessOnce(context.Background())

	require.Equal(t, []string{"d"}, repo.failed, "record still marked failed without dlq")
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	conf := Config{}.withDefaults()
	require.Equal(t, time.Second, conf.PollInterval)
	require.Equal(t, 100, conf.BatchSize)
	require.Equal(t, 3, conf.MaxAttempts)

	w := NewWorker(&recordingRepo{}, &scriptedPublisher{}, nil, Config{RetryBaseDelay: 40 * time.Millisecond}, nil)
	require.Equal(t, 40*time.Millisecond, w.backoff(1))
	require.Equal(t, 80*time.Millisecond, w.backoff(2))
	require.Equal(t, 160*time.Millisecond, w.backoff(3))
	require.Zero(t, fastWorker(&recordingRepo{}, &scriptedPublisher{}, nil).backoff(5))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&recordingRepo{}, &scriptedPublisher{},
		nil, Config{PollInterval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestRun_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	// Без publisher-а Run возвращается сразу, без тикера.
	worker := NewWorker(&recordingRepo{}, nil, nil, Config{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher must return immediately")
	}
}

type recordingRepo struct {
	pending []domain.OutboxMessage
	sent    []string
	failed  []string
}

func (r *recordingRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (r *recordingRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit > 0 && limit < len(r.pending) {
		return append([]domain.OutboxMessage(nil), r.pending[:limit]...), nil
	}
	return append([]domain.OutboxMessage(nil), r.pending...), nil
}

func (r *recordingRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(r.pending)}
	if len(r.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (r *recordingRepo) MarkSent(id string) error {
	r.sent = append(r.sent, id)
	return nil
}

func (r *recordingRepo) MarkFailed(id string) error {
	r.failed = append(r.failed, id)
	return nil
}

// scriptedPublisher отдаёт ошибки из script по порядку, затем always.
type scriptedPublisher struct {
	mu       sync.Mutex
	script   []error
	always   error
	count    int
	lastSeen domain.OutboxMessage
}

func (p *scriptedPublisher) Publish(msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	p.lastSeen = msg
	if len(p.script) > 0 {
		err := p.script[0]
		p.script = p.script[1:]
		return err
	}
	return p.always
}

func (p *scriptedPublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *scriptedPublisher) last() domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

var (
	_ domain.OutboxRepository = (*recordingRepo)(nil)
	_ domain.OutboxPublisher  = (*scriptedPublisher)(nil)
)
