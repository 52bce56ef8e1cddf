// dlq-reprocess возвращает события заказов из pedidos.dlq в основной топик.
//
// Утилита понимает обе формы записей DLQ — от consumer-а (original_topic /
// original_value) и от outbox worker-а (outbox_id / publish_error) — и перед
// повтором восстанавливает из каждой полноценный конверт события заказа.
// Запись, из которой не собирается валидное событие order.created /
// order.updated / order.deleted, в основной топик не возвращается.
//
// По умолчанию — сухой прогон: кандидаты только логируются. Повтор включает
// флаг -apply.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/messaging/kafka"
)

const (
	defaultMaxMessages = 100
	defaultDrainWait   = 2 * time.Second
)

type options struct {
	brokers     []string
	dlqTopic    string
	destTopic   string
	maxMessages int
	apply       bool
	tail        bool
	drainWait   time.Duration
}

// replayableEventTypes — единственные типы событий, которые утилита
// возвращает в основной топик.
var replayableEventTypes = map[kafka.EventType]struct{}{
	kafka.EventTypeOrderCreated: {},
	kafka.EventTypeOrderUpdated: {},
	kafka.EventTypeOrderDeleted: {},
}

// recoveredEvent — событие заказа, восстановленное из записи DLQ и готовое
// к повторной публикации.
type recoveredEvent struct {
	key      string
	envelope kafka.OrderEvent
}

// consumerRecord — форма, в которой consumer откладывает необработанное
// сообщение (см. sendToDLQ).
type consumerRecord struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
	ErrorMessage  string `json:"error_message"`
}

// workerRecord — полезная нагрузка, которую outbox worker кладёт внутрь
// конверта при отправке в DLQ (см. publishToDLQ).
type workerRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

var errNotReplayable = errors.New("dlq record is not a replayable order event")

// Интерфейсы под sarama, чтобы reprocessor тестировался без брокера.
type clusterInfo interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Close() error
}

type segmentReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type readerFactory interface {
	OpenSegment(topic string, partition int32, offset int64) (segmentReader, error)
	Close() error
}

type eventSender interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaReaderFactory struct {
	consumer sarama.Consumer
}

func (f saramaReaderFactory) OpenSegment(topic string, partition int32, offset int64) (segmentReader, error) {
	return f.consumer.ConsumePartition(topic, partition, offset)
}

func (f saramaReaderFactory) Close() error {
	if f.consumer == nil {
		return nil
	}
	return f.consumer.Close()
}

// reprocessor сканирует DLQ и возвращает восстановленные события в топик
// заказов.
type reprocessor struct {
	opts    options
	cluster clusterInfo
	readers readerFactory
	sender  eventSender
	logger  *log.Entry
}

// tally — итоги прогона.
type tally struct {
	scanned  int
	queued   int
	rejected int
}

func (t *tally) add(other tally) {
	t.scanned += other.scanned
	t.queued += other.queued
	t.rejected += other.rejected
}

var connectBroker = func(opts options) (clusterInfo, readerFactory, eventSender, error) {
	conf := sarama.NewConfig()
	conf.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, conf)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to kafka: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("open dlq consumer: %w", err)
	}
	readers := saramaReaderFactory{consumer: consumer}

	if !opts.apply {
		return client, readers, nil, nil
	}

	prodConf := sarama.NewConfig()
	prodConf.Producer.RequiredAcks = sarama.WaitForAll
	prodConf.Producer.Retry.Max = 5
	prodConf.Producer.Return.Successes = true
	prodConf.Producer.Compression = sarama.CompressionSnappy
	prodConf.Producer.Idempotent = true
	prodConf.Net.MaxOpenRequests = 1

	sender, err := sarama.NewSyncProducer(opts.brokers, prodConf)
	if err != nil {
		_ = readers.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("open replay producer: %w", err)
	}

	return client, readers, sender, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	opts, err := parseOptions()
	if err != nil {
		fatalf("%v", err)
	}

	cluster, readers, sender, err := connectBroker(opts)
	if err != nil {
		fatalf("%v", err)
	}
	defer func() {
		if sender != nil {
			_ = sender.Close()
		}
		if readers != nil {
			_ = readers.Close()
		}
		if cluster != nil {
			_ = cluster.Close()
		}
	}()

	r := &reprocessor{
		opts:    opts,
		cluster: cluster,
		readers: readers,
		sender:  sender,
		logger:  log.WithField("component", "dlq-reprocess"),
	}
	if _, err := r.run(context.Background()); err != nil {
		fatalf("dlq reprocess failed: %v", err)
	}
}

func parseOptions() (options, error) {
	var (
		brokersRaw string
		opts       options
	)

	flag.StringVar(&brokersRaw, "brokers", "", "kafka brokers, comma-separated (fallback: KAFKA_BROKERS)")
	flag.StringVar(&opts.dlqTopic, "dlq-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	flag.StringVar(&opts.destTopic, "dest-topic", kafka.TopicOrderEvents, "destination topic for recovered events")
	flag.IntVar(&opts.maxMessages, "max", defaultMaxMessages, "max DLQ records to scan")
	flag.BoolVar(&opts.apply, "apply", false, "publish recovered events; default is dry-run")
	flag.BoolVar(&opts.tail, "tail", false, "scan newest records first (bounded by -max)")
	flag.DurationVar(&opts.drainWait, "drain-wait", defaultDrainWait, "how long to wait on an idle partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	for _, chunk := range strings.Split(brokersRaw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			opts.brokers = append(opts.brokers, broker)
		}
	}

	switch {
	case len(opts.brokers) == 0:
		return options{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(opts.dlqTopic) == "":
		return options{}, errors.New("dlq-topic is required")
	case strings.TrimSpace(opts.destTopic) == "":
		return options{}, errors.New("dest-topic is required")
	case opts.maxMessages <= 0:
		return options{}, errors.New("max must be > 0")
	case opts.drainWait <= 0:
		return options{}, errors.New("drain-wait must be > 0")
	}

	return opts, nil
}

func (r *reprocessor) run(ctx context.Context) (tally, error) {
	var totals tally

	if r.cluster == nil || r.readers == nil {
		return totals, errors.New("kafka client and consumer are required")
	}
	if r.opts.apply && r.sender == nil {
		return totals, errors.New("producer is required with -apply")
	}

	r.logger.WithFields(log.Fields{
		"dlq_topic":  r.opts.dlqTopic,
		"dest_topic": r.opts.destTopic,
		"max":        r.opts.maxMessages,
		"apply":      r.opts.apply,
	}).Info("scanning dead letter queue")

	partitions, err := r.cluster.Partitions(r.opts.dlqTopic)
	if err != nil {
		return totals, fmt.Errorf("list partitions of %s: %w", r.opts.dlqTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.opts.dlqTopic).Warn("dlq topic has no partitions")
		return totals, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := r.opts.maxMessages - totals.scanned
		if budget <= 0 {
			break
		}

		partial, err := r.drainPartition(ctx, partition, budget)
		totals.add(partial)
		if err != nil {
			return totals, err
		}
	}

	r.logger.WithFields(log.Fields{
		"apply":    r.opts.apply,
		"scanned":  totals.scanned,
		"queued":   totals.queued,
		"rejected": totals.rejected,
	}).Info("dead letter queue scan finished")

	return totals, nil
}

func (r *reprocessor) drainPartition(ctx context.Context, partition int32, budget int) (tally, error) {
	var counts tally

	oldest, err := r.cluster.GetOffset(r.opts.dlqTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return counts, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.cluster.GetOffset(r.opts.dlqTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return counts, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return counts, nil
	}

	start := oldest
	if r.opts.tail {
		if start = newest - int64(budget); start < oldest {
			start = oldest
		}
	}

	reader, err := r.readers.OpenSegment(r.opts.dlqTopic, partition, start)
	if err != nil {
		return counts, fmt.Errorf("open partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	idle := time.NewTimer(r.opts.drainWait)
	defer idle.Stop()

	for counts.scanned < budget {
		select {
		case <-ctx.Done():
			return counts, ctx.Err()
		case readErr := <-reader.Errors():
			if readErr != nil {
				return counts, fmt.Errorf("read partition %d: %w", partition, readErr)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil {
				return counts, nil
			}
			if msg.Offset >= newest {
				return counts, nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.opts.drainWait)

			counts.scanned++
			event, err := recoverOrderEvent(msg)
			if err != nil {
				counts.rejected++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("dlq record skipped")
			} else if err := r.forward(msg, event); err != nil {
				return counts, err
			} else {
				counts.queued++
			}

			if msg.Offset+1 >= newest {
				return counts, nil
			}
		case <-idle.C:
			return counts, nil
		}
	}

	return counts, nil
}

func (r *reprocessor) forward(msg *sarama.ConsumerMessage, event recoveredEvent) error {
	if !r.opts.apply {
		r.logger.WithFields(log.Fields{
			"partition":  msg.Partition,
			"offset":     msg.Offset,
			"event_type": event.envelope.EventType,
			"order_id":   event.envelope.AggregateID,
		}).Info("replay candidate")
		return nil
	}

	value, err := json.Marshal(event.envelope)
	if err != nil {
		return fmt.Errorf("encode recovered event: %w", err)
	}

	_, _, err = r.sender.SendMessage(&sarama.ProducerMessage{
		Topic:     r.opts.destTopic,
		Key:       sarama.StringEncoder(event.key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish recovered event: %w", err)
	}
	return nil
}

// recoverOrderEvent восстанавливает событие заказа из записи DLQ любой из
// двух известных форм. Записи, не дающие валидного события, отклоняются.
func recoverOrderEvent(msg *sarama.ConsumerMessage) (recoveredEvent, error) {
	var fromConsumer consumerRecord
	if err := json.Unmarshal(msg.Value, &fromConsumer); err == nil && fromConsumer.OriginalValue != "" {
		var envelope kafka.OrderEvent
		if err := json.Unmarshal([]byte(fromConsumer.OriginalValue), &envelope); err != nil {
			return recoveredEvent{}, fmt.Errorf("decode original event: %w", err)
		}
		envelope.PublishedAt = time.Now().UTC()

		key := fromConsumer.OriginalKey
		if key == "" {
			key = envelope.AggregateID
		}
		return validated(recoveredEvent{key: key, envelope: envelope})
	}

	var envelope kafka.OrderEvent
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return recoveredEvent{}, errNotReplayable
	}

	var fromWorker workerRecord
	if err := json.Unmarshal(envelope.Payload, &fromWorker); err != nil {
		return recoveredEvent{}, fmt.Errorf("decode outbox dlq record: %w", err)
	}
	if len(fromWorker.Payload) == 0 {
		return recoveredEvent{}, errors.New("outbox dlq record carries no original payload")
	}

	recovered := kafka.OrderEvent{
		ID:            pick(fromWorker.OutboxID, envelope.ID),
		AggregateType: pick(fromWorker.AggregateType, envelope.AggregateType),
		AggregateID:   pick(fromWorker.AggregateID, envelope.AggregateID),
		EventType:     kafka.EventType(pick(fromWorker.EventType, string(envelope.EventType))),
		Payload:       fromWorker.Payload,
		PublishedAt:   time.Now().UTC(),
	}

	key := recovered.AggregateID
	if key == "" {
		key = recovered.ID
	}
	return validated(recoveredEvent{key: key, envelope: recovered})
}

// validated пропускает только полноценные события заказов.
func validated(event recoveredEvent) (recoveredEvent, error) {
	if _, ok := replayableEventTypes[event.envelope.EventType]; !ok {
		return recoveredEvent{}, fmt.Errorf("%w: event type %q", errNotReplayable, event.envelope.EventType)
	}
	if strings.TrimSpace(event.envelope.AggregateID) == "" {
		return recoveredEvent{}, fmt.Errorf("%w: empty order id", errNotReplayable)
	}
	if len(event.envelope.Payload) > 0 && !json.Valid(event.envelope.Payload) {
		return recoveredEvent{}, fmt.Errorf("%w: payload is not valid json", errNotReplayable)
	}
	return event, nil
}

func pick(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
