package workflow

import (
	"encoding/json"
	"time"

	"github.com/ordenio/pedidos/internal/domain"
)

// orderEventPayload — тело события заказа, уходящее в outbox.
type orderEventPayload struct {
	OrderID       string    `json:"order_id"`
	ClientID      int64     `json:"client_id"`
	WorkerID      int64     `json:"worker_id"`
	RestaurantID  int64     `json:"restaurant_id"`
	Paid          bool      `json:"paid"`
	TotalQuantity int       `json:"total_quantity"`
	TotalPrice    string    `json:"total_price"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// emitEvent записывает событие в outbox и timeline. Оба шага fire-and-forget:
// отказ уведомления не откатывает уже завершённую операцию над заказом.
func (s *Service) emitEvent(order domain.Order, eventType, reason string) {
	occurred := time.Now().UTC()

	payload, err := json.Marshal(orderEventPayload{
		OrderID:       order.ID,
		ClientID:      order.ClientID,
		WorkerID:      order.WorkerID,
		RestaurantID:  order.RestaurantID,
		Paid:          order.Paid,
		TotalQuantity: order.TotalQuantity,
		TotalPrice:    order.TotalPrice.String(),
		OccurredAt:    occurred,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("marshal event payload")
		return
	}

	if s.outbox != nil {
		_, err := s.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       payload,
		})
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"order_id":   order.ID,
				"event_type": eventType,
			}).Error("enqueue outbox event")
		} else if s.metrics != nil {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline != nil {
		err := s.timeline.Append(domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   reason,
			Occurred: occurred,
		})
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"order_id":   order.ID,
				"event_type": eventType,
			}).Error("append timeline event")
		} else if s.metrics != nil {
			s.metrics.RecordTimelineEvent()
		}
	}
}
