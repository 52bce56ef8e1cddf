package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/config"
	"github.com/ordenio/pedidos/internal/domain"
	healthcheck "github.com/ordenio/pedidos/internal/health"
	"github.com/ordenio/pedidos/internal/messaging/kafka"
	idemsvc "github.com/ordenio/pedidos/internal/service/idempotency"
	outboxsvc "github.com/ordenio/pedidos/internal/service/outbox"
	"github.com/ordenio/pedidos/internal/service/workflow"
	"github.com/ordenio/pedidos/internal/version"
)

const shutdownTimeout = 5 * time.Second

// App — собранное приложение: workflow-сервис, фоновые воркеры и
// HTTP-сервер метрик и health-проверок.
type App struct {
	Config   config.Config
	Deps     *Dependencies
	Workflow *workflow.Service

	producer      *kafka.Producer
	outboxWorker  *outboxsvc.Worker
	cleanupWorker *idemsvc.CleanupWorker
	health        *healthcheck.Registry
	logger        *log.Entry
}

// New собирает приложение по конфигурации. Ошибки подключения к внешним
// хранилищам фатальны; недоступный Kafka лишь отключает публикацию.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := log.WithField("component", "app")
	applyLogLevel(cfg.App.LogLevel, logger)

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Deps:     deps,
		Workflow: createWorkflow(deps),
		logger:   logger,
	}

	producer, err := initKafkaProducer(cfg.Kafka.Brokers, logger)
	if err == nil && producer != nil {
		a.producer = producer
		a.outboxWorker = outboxsvc.NewWorker(
			deps.OutboxRepo,
			kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
			outboxsvc.Config{
				PollInterval:   cfg.Outbox.PollInterval,
				BatchSize:      cfg.Outbox.BatchSize,
				MaxAttempts:    cfg.Outbox.MaxAttempts,
				RetryBaseDelay: cfg.Outbox.RetryBaseDelay,
			},
			logger.WithField("component", "outbox-worker"),
		)
	} else {
		logger.Info("outbox worker disabled: kafka is not configured")
	}

	a.cleanupWorker = idemsvc.NewCleanupWorker(
		deps.IdempotencyRepo,
		cfg.Idempotency.CleanupInterval,
		cfg.Idempotency.CleanupBatchSize,
		logger.WithField("component", "idempotency-cleanup"),
	)

	a.health = newHealthRegistry(deps)

	return a, nil
}

// Run запускает фоновые воркеры и HTTP-сервер, блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	srv, srvErrCh := a.startMetricsServer()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	if a.outboxWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.outboxWorker.Run(workerCtx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.cleanupWorker.Run(workerCtx)
	}()

	a.logger.WithField("metrics_addr", a.Config.App.MetricsAddr).Info("приложение запущено")

	select {
	case <-ctx.Done():
		a.logger.Info("получен сигнал остановки, останавливаем воркеры")
		cancelWorkers()
		wg.Wait()
		shutdownHTTP(srv, a.logger)
		return ctx.Err()
	case err := <-srvErrCh:
		cancelWorkers()
		wg.Wait()
		return err
	}
}

// Close освобождает ресурсы приложения.
func (a *App) Close(ctx context.Context) {
	closeKafka(a.producer, a.logger)
	a.producer = nil
	a.Deps.Close(ctx)
}

// Run собирает приложение и работает до отмены ctx.
func Run(ctx context.Context, cfg config.Config) error {
	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Close(closeCtx)
	}()

	return a.Run(ctx)
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проверок.
func (a *App) startMetricsServer() (*http.Server, <-chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/health", a.health)
	mux.HandleFunc("/health/live", healthcheck.Liveness)
	mux.HandleFunc("/health/ready", a.health.Readiness)

	srv := &http.Server{Addr: a.Config.App.MetricsAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("метрики доступны по адресу %s/metrics", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return srv, errCh
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}

// Backlog outbox, после которого readiness помечает компонент degraded:
// публикация отстаёт, но заказы по-прежнему принимаются.
const outboxBacklogThreshold = 1000

// newHealthRegistry регистрирует пробы подключённых хранилищ и backlog outbox.
func newHealthRegistry(deps *Dependencies) *healthcheck.Registry {
	registry := healthcheck.NewRegistry(version.String())

	if deps.pg != nil {
		registry.Register("postgres", deps.pg.Ping)
	}
	if deps.mg != nil {
		registry.Register("mongo", deps.mg.Ping)
	}
	if deps.redis != nil {
		client := deps.redis
		registry.Register("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	registry.Register("outbox", outboxBacklogProbe(deps.OutboxRepo))

	return registry
}

// outboxBacklogProbe понижает статус до degraded, когда очередь неопубликованных
// событий превышает порог. Сам по себе backlog сервис не роняет.
func outboxBacklogProbe(repo domain.OutboxRepository) healthcheck.Probe {
	return func(context.Context) error {
		stats, err := repo.Stats()
		if err != nil {
			return err
		}
		if stats.PendingCount > outboxBacklogThreshold {
			return fmt.Errorf("%w: %d pending outbox messages (threshold %d)",
				healthcheck.ErrDegraded, stats.PendingCount, outboxBacklogThreshold)
		}
		return nil
	}
}

// applyLogLevel устанавливает глобальный уровень логирования.
func applyLogLevel(level string, logger *log.Entry) {
	if level == "" {
		return
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("unknown log level, keeping current")
		return
	}
	log.SetLevel(parsed)
}
