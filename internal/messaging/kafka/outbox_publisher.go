package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ordenio/pedidos/internal/domain"
)

// OutboxTopicPublisher доставляет outbox-записи заказов в Kafka,
// упаковывая их в стандартный конверт OrderEvent.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// Пустой topic заменяется основным топиком событий заказов.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

func (p *OutboxTopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	envelope := OrderEvent{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     EventType(msg.EventType),
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	// Ключ — id заказа: события одного заказа попадают в одну партицию.
	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	return p.producer.PublishEvent(p.topic, key, envelope)
}
