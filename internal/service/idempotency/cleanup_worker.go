package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/domain"
)

var (
	cleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pedidos_idempotency_cleanup_runs_total",
		Help: "Completed idempotency cleanup sweeps grouped by result.",
	}, []string{"result"})
	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pedidos_idempotency_cleanup_deleted_total",
		Help: "Expired idempotency keys removed since process start.",
	})
	cleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pedidos_idempotency_cleanup_last_deleted",
		Help: "Keys removed by the most recent cleanup sweep.",
	})
)

// CleanupWorker порциями удаляет idempotency-записи с истёкшим TTL, чтобы
// таблица ключей не росла бесконечно.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	interval  time.Duration
	batchSize int
	logger    *log.Entry
}

// NewCleanupWorker создаёт воркер очистки. Неположительные interval и
// batchSize заменяются значениями по умолчанию (10 минут, 500 записей).
func NewCleanupWorker(repo domain.IdempotencyRepository, interval time.Duration, batchSize int, logger *log.Entry) *CleanupWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-cleanup")
	}

	return &CleanupWorker{
		repo:      repo,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run чистит сразу при старте и дальше по тикеру до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: repo is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *CleanupWorker) sweep(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		cleanupRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("idempotency cleanup run failed")
		return
	}

	cleanupRuns.WithLabelValues("ok").Inc()
	cleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// DeleteExpired удаляет записи с ttl <= before батчами, пока репозиторий
// возвращает полный батч.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(before, w.batchSize)
		if err != nil {
			return total, err
		}
		if deleted > 0 {
			total += deleted
			cleanupDeleted.Add(float64(deleted))
		}
		if deleted < w.batchSize {
			return total, nil
		}
	}
}
