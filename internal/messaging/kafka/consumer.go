package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// EventHandler обрабатывает декодированное событие заказа.
type EventHandler func(ctx context.Context, event *OrderEvent) error

// ConsumerConfig задаёт параметры группы и политику повторов.
type ConsumerConfig struct {
	GroupID     string
	Topics      []string
	MaxAttempts int
	RetryDelay  time.Duration
	// DLQ принимает сообщения, которые не декодируются или не обработались
	// за MaxAttempts попыток. Без него такие сообщения возвращают ошибку.
	DLQ *Producer
}

// Consumer читает события заказов из consumer group и раздаёт их handler-у.
// Сообщение, не являющееся валидным конвертом события, уходит в DLQ сразу,
// без повторных попыток.
type Consumer struct {
	group  sarama.ConsumerGroup
	conf   ConsumerConfig
	handle EventHandler
	logger *log.Entry
	wg     sync.WaitGroup
}

// NewConsumer создаёт consumer событий заказов.
func NewConsumer(brokers []string, conf ConsumerConfig, handle EventHandler) (*Consumer, error) {
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = 3
	}
	if conf.RetryDelay <= 0 {
		conf.RetryDelay = 500 * time.Millisecond
	}
	if len(conf.Topics) == 0 {
		conf.Topics = []string{TopicOrderEvents}
	}

	saramaConf := sarama.NewConfig()
	saramaConf.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConf.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConf.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, conf.GroupID, saramaConf)
	if err != nil {
		return nil, fmt.Errorf("create consumer group %q: %w", conf.GroupID, err)
	}

	return &Consumer{
		group:  group,
		conf:   conf,
		handle: handle,
		logger: log.WithField("component", "order-event-consumer"),
	}, nil
}

// Start запускает чтение в фоне до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume завершается при каждом rebalance и вызывается снова.
			if err := c.group.Consume(ctx, c.conf.Topics, c); err != nil {
				c.logger.WithError(err).Error("consume loop error")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer group error")
		}
	}()

	c.logger.WithField("topics", c.conf.Topics).Info("order event consumer started")
	return nil
}

// Stop закрывает группу и дожидается фоновых горутин.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("order event consumer stopped")
	return nil
}

// Setup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения одной партиции.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg := <-claim.Messages():
			if msg == nil {
				return nil
			}

			if err := c.process(session.Context(), msg); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("order event dropped")
				// Оффсет не коммитится: сообщение либо в DLQ, либо
				// будет перечитано после рестарта.
				continue
			}

			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// process декодирует конверт и гоняет handler с учётом прошлых доставок
// (header x-retry-count). Невалидный конверт — сразу в DLQ.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, err := decodeOrderEvent(msg.Value)
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Warn("malformed order event")
		return c.quarantine(msg, err)
	}

	priorAttempts := retryCountFromHeaders(msg)
	for attempt := 1; ; attempt++ {
		err = c.handle(ctx, event)
		if err == nil {
			return nil
		}
		if priorAttempts+attempt >= c.conf.MaxAttempts {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"event_type": event.EventType,
			"order_id":   event.AggregateID,
			"attempt":    priorAttempts + attempt,
		}).Warn("order event handling failed, retrying")

		if c.conf.RetryDelay > 0 {
			select {
			case <-time.After(c.conf.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return c.quarantine(msg, err)
}

// quarantine отправляет сообщение в DLQ; без DLQ возвращает исходную ошибку.
func (c *Consumer) quarantine(msg *sarama.ConsumerMessage, cause error) error {
	if c.conf.DLQ == nil {
		return cause
	}

	record := map[string]interface{}{
		"original_topic":     msg.Topic,
		"original_partition": msg.Partition,
		"original_offset":    msg.Offset,
		"original_key":       string(msg.Key),
		"original_value":     string(msg.Value),
		"error_message":      cause.Error(),
		"failed_at":          time.Now().UTC().Format(time.RFC3339),
		"retry_count":        retryCountFromHeaders(msg),
	}
	if err := c.conf.DLQ.PublishEvent(TopicDeadLetterQueue, string(msg.Key), record); err != nil {
		return fmt.Errorf("quarantine to dlq: %w (original: %v)", err, cause)
	}

	c.logger.WithFields(log.Fields{
		"topic":  msg.Topic,
		"offset": msg.Offset,
	}).Info("order event moved to dlq")
	return nil
}

func retryCountFromHeaders(msg *sarama.ConsumerMessage) int {
	for _, header := range msg.Headers {
		if string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

// decodeOrderEvent разбирает конверт события заказа и проверяет его тип.
func decodeOrderEvent(value []byte) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal order event: %w", err)
	}

	switch event.EventType {
	case EventTypeOrderCreated, EventTypeOrderUpdated, EventTypeOrderDeleted:
	default:
		return nil, fmt.Errorf("unexpected event type %q", event.EventType)
	}
	if event.AggregateID == "" {
		return nil, fmt.Errorf("order event without aggregate id")
	}
	return &event, nil
}
