package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ordenio/pedidos/internal/domain"
)

type outboxEntry struct {
	msg       domain.OutboxMessage
	delivered bool
	attempts  int
	createdAt time.Time
}

// outboxQueue держит события заказов в порядке постановки. Отправленные и
// отказавшие записи остаются в срезе с пометкой delivered и больше не
// попадают в выборку pending.
type outboxQueue struct {
	mu      sync.RWMutex
	entries []*outboxEntry
	byID    map[string]*outboxEntry
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() *outboxQueue {
	return &outboxQueue{byID: make(map[string]*outboxEntry)}
}

var _ domain.OutboxRepository = (*outboxQueue)(nil)

func (q *outboxQueue) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entry := &outboxEntry{msg: msg, createdAt: time.Now().UTC()}
	q.entries = append(q.entries, entry)
	q.byID[msg.ID] = entry
	return msg, nil
}

func (q *outboxQueue) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	batch := make([]domain.OutboxMessage, 0, limit)
	for _, entry := range q.entries {
		if entry.delivered {
			continue
		}
		batch = append(batch, entry.msg)
		if len(batch) == limit {
			break
		}
	}
	return batch, nil
}

func (q *outboxQueue) Stats() (domain.OutboxStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats domain.OutboxStats
	for _, entry := range q.entries {
		if entry.delivered {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = entry.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (q *outboxQueue) MarkSent(id string) error { return q.settle(id) }

func (q *outboxQueue) MarkFailed(id string) error { return q.settle(id) }

func (q *outboxQueue) settle(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.byID[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	entry.delivered = true
	entry.attempts++
	return nil
}
