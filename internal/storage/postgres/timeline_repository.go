package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ordenio/pedidos/internal/domain"
)

const (
	timelineAppendSQL = `
		INSERT INTO timeline_events (order_id, type, reason, occurred)
		VALUES ($1, $2, $3, $4)`

	timelineListSQL = `
		SELECT order_id, type, reason, occurred
		FROM timeline_events WHERE order_id = $1
		ORDER BY occurred, id`
)

// timelineRepository пишет историю изменений заказа в append-only таблицу.
type timelineRepository struct {
	db *sql.DB
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)

// NewTimelineRepository возвращает таймлайн заказов поверх PostgreSQL.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := opCtx()
	defer cancel()

	_, err := r.db.ExecContext(ctx, timelineAppendSQL,
		event.OrderID, event.Type, event.Reason, event.Occurred)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

func (r *timelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, timelineListSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	events := []domain.TimelineEvent{}
	for rows.Next() {
		var event domain.TimelineEvent
		err := rows.Scan(&event.OrderID, &event.Type, &event.Reason, &event.Occurred)
		if err != nil {
			return nil, fmt.Errorf("decode timeline row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline rows: %w", err)
	}
	return events, nil
}
