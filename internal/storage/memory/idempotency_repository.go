package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/ordenio/pedidos/internal/domain"
)

// idempotencyMap — потокобезопасная карта idempotency-записей для тестов
// и запуска без PostgreSQL.
type idempotencyMap struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyMap{records: make(map[string]domain.IdempotencyRecord)}
}

var _ domain.IdempotencyRepository = (*idempotencyMap)(nil)

func (m *idempotencyMap) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[key]; ok {
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyHashMismatch
		}
		return existing, domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.records[key] = record
	return record, nil
}

func (m *idempotencyMap) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

func (m *idempotencyMap) MarkDone(key, orderID string) error {
	return m.transition(key, func(r *domain.IdempotencyRecord) {
		r.Status = domain.IdempotencyStatusDone
		r.OrderID = orderID
		r.FailReason = ""
	})
}

func (m *idempotencyMap) MarkFailed(key, reason string) error {
	return m.transition(key, func(r *domain.IdempotencyRecord) {
		r.Status = domain.IdempotencyStatusFailed
		r.OrderID = ""
		r.FailReason = reason
	})
}

func (m *idempotencyMap) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, record := range m.records {
		if record.TTLAt.After(before) {
			continue
		}
		delete(m.records, key)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed, nil
}

func (m *idempotencyMap) transition(key string, apply func(*domain.IdempotencyRecord)) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	apply(&record)
	record.UpdatedAt = time.Now().UTC()
	m.records[key] = record
	return nil
}
