package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ordenio/pedidos/internal/domain"
)

const (
	outboxInsertSQL = `
		INSERT INTO outbox_messages
			(id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $6)`

	outboxPullSQL = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages WHERE status = 'pending'
		ORDER BY created_at, id LIMIT $1`

	outboxStatsSQL = `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages WHERE status = 'pending'`

	outboxMarkSQL = `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1`
)

// outboxRepository хранит неопубликованные события заказов в PostgreSQL.
type outboxRepository struct {
	db *sql.DB
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)

// NewOutboxRepository возвращает outbox-хранилище поверх PostgreSQL.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	ctx, cancel := opCtx()
	defer cancel()

	_, err := r.db.ExecContext(ctx, outboxInsertSQL,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		time.Now().UTC())
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("insert outbox record: %w", err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := opCtx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, outboxPullSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox records: %w", err)
	}
	defer rows.Close()

	batch := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode outbox row: %w", err)
		}
		batch = append(batch, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("walk outbox rows: %w", err)
	}
	return batch, nil
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, outboxStatsSQL).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("collect outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error { return r.setStatus(id, "sent") }

func (r *outboxRepository) MarkFailed(id string) error { return r.setStatus(id, "failed") }

func (r *outboxRepository) setStatus(id, status string) error {
	ctx, cancel := opCtx()
	defer cancel()

	res, err := r.db.ExecContext(ctx, outboxMarkSQL, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox message %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}
