package kafka

import (
	"encoding/json"
	"time"
)

// Топики событий заказов.
const (
	TopicOrderEvents     = "pedidos.order.events"
	TopicDeadLetterQueue = "pedidos.dlq"
)

// Заголовки, которыми consumer и dlq-инструменты переносят служебную
// информацию о повторных доставках.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// EventType — тип события жизненного цикла заказа.
type EventType string

const (
	EventTypeOrderCreated EventType = "order.created"
	EventTypeOrderUpdated EventType = "order.updated"
	EventTypeOrderDeleted EventType = "order.deleted"
)

// OrderEvent — конверт события заказа, публикуемого из outbox.
type OrderEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOrderEvent собирает конверт для события заказа с текущим временем публикации.
func NewOrderEvent(eventType EventType, orderID string, payload json.RawMessage) *OrderEvent {
	return &OrderEvent{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
}
