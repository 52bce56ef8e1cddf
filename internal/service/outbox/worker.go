package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/domain"
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pedidos_outbox_publish_attempts_total",
		Help: "Outbox delivery attempts grouped by result.",
	}, []string{"result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pedidos_outbox_pending_records",
		Help: "Records currently waiting in the transactional outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pedidos_outbox_oldest_pending_age_seconds",
		Help: "Seconds since the oldest waiting outbox record was enqueued.",
	})
)

// Config задаёт поведение воркера публикации. Нулевые поля заменяются
// значениями по умолчанию.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	return c
}

// Worker переносит события заказов из transactional outbox в брокер.
// Событие, не ушедшее за MaxAttempts попыток, публикуется в dead letter
// и помечается failed.
type Worker struct {
	repo        domain.OutboxRepository
	events      domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
	conf        Config
	logger      *log.Entry
}

// NewWorker создаёт воркер. deadLetters может быть nil — тогда исчерпавшие
// попытки события только помечаются failed.
func NewWorker(repo domain.OutboxRepository, events, deadLetters domain.OutboxPublisher, conf Config, logger *log.Entry) *Worker {
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}
	return &Worker{
		repo:        repo,
		events:      events,
		deadLetters: deadLetters,
		conf:        conf.withDefaults(),
		logger:      logger,
	}
}

// Run опрашивает outbox с интервалом PollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.events == nil {
		w.logger.Warn("outbox worker is idle: no repository or publisher configured")
		return
	}

	ticker := time.NewTicker(w.conf.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce забирает один батч pending-событий и пытается их доставить.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.observeBacklog()

	batch, err := w.repo.PullPending(w.conf.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("pull pending outbox records failed")
		return
	}

	for _, record := range batch {
		if ctx.Err() != nil {
			return
		}
		w.dispatch(ctx, record)
	}

	if len(batch) > 0 {
		w.observeBacklog()
	}
}

func (w *Worker) dispatch(ctx context.Context, record domain.OutboxMessage) {
	err := w.deliver(ctx, record)
	if err == nil {
		if markErr := w.repo.MarkSent(record.ID); markErr != nil {
			w.logger.WithError(markErr).WithField("outbox_id", record.ID).Warn("mark sent failed")
		}
		return
	}

	w.logger.WithError(err).WithFields(log.Fields{
		"outbox_id":  record.ID,
		"event_type": record.EventType,
	}).Error("outbox record undeliverable")
	publishAttempts.WithLabelValues("failed").Inc()

	if dlqErr := w.deadLetter(record, err); dlqErr != nil {
		w.logger.WithError(dlqErr).WithField("outbox_id", record.ID).Warn("dead letter publish failed")
		publishAttempts.WithLabelValues("dlq_failed").Inc()
	}
	if markErr := w.repo.MarkFailed(record.ID); markErr != nil {
		w.logger.WithError(markErr).WithField("outbox_id", record.ID).Warn("mark failed failed")
	}
}

// deliver пытается опубликовать запись с экспоненциальной паузой между
// попытками.
func (w *Worker) deliver(ctx context.Context, record domain.OutboxMessage) error {
	var lastErr error

	for attempt := 1; attempt <= w.conf.MaxAttempts; attempt++ {
		if lastErr = w.events.Publish(record); lastErr == nil {
			publishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		publishAttempts.WithLabelValues("retry_error").Inc()

		if attempt == w.conf.MaxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.conf.MaxAttempts, lastErr)
}

func (w *Worker) backoff(attempt int) time.Duration {
	if w.conf.RetryBaseDelay <= 0 {
		return 0
	}

	delay := w.conf.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > time.Hour {
			return time.Hour
		}
		delay *= 2
	}
	return delay
}

// deadLetter публикует недоставленную запись в DLQ вместе с причиной.
func (w *Worker) deadLetter(record domain.OutboxMessage, cause error) error {
	if w.deadLetters == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"outbox_id":        record.ID,
		"aggregate_type":   record.AggregateType,
		"aggregate_id":     record.AggregateID,
		"event_type":       record.EventType,
		"payload":          json.RawMessage(record.Payload),
		"publish_error":    cause.Error(),
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	record.Payload = payload
	if err := w.deadLetters.Publish(record); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("outbox backlog stats failed")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))

	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		if age = time.Since(stats.OldestPendingAt).Seconds(); age < 0 {
			age = 0
		}
	}
	oldestPendingAge.Set(age)
}
