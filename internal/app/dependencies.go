package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/cache"
	"github.com/ordenio/pedidos/internal/config"
	"github.com/ordenio/pedidos/internal/domain"
	catalogsvc "github.com/ordenio/pedidos/internal/service/catalog"
	"github.com/ordenio/pedidos/internal/storage/memory"
	mongostore "github.com/ordenio/pedidos/internal/storage/mongo"
	"github.com/ordenio/pedidos/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения. Пустые DSN в конфиге
// дают in-memory реализации, пригодные для локального запуска и тестов.
type Dependencies struct {
	Orders          domain.OrderRepository
	Catalog         domain.CatalogLookup
	Ledger          domain.StockLedger
	OutboxRepo      domain.OutboxRepository
	TimelineRepo    domain.TimelineRepository
	IdempotencyRepo domain.IdempotencyRepository
	Logger          *log.Entry

	pg    *postgres.Store
	mg    *mongostore.Store
	redis *goredis.Client
}

// NewDependencies создаёт и инициализирует все зависимости приложения
// согласно конфигурации.
func NewDependencies(ctx context.Context, cfg config.Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	if cfg.Postgres.DSN != "" {
		store, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.pg = store

		if cfg.Postgres.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				deps.Close(ctx)
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}

		deps.Catalog = postgres.NewCatalogRepository(store)
		deps.Ledger = postgres.NewStockLedger(store)
		deps.OutboxRepo = postgres.NewOutboxRepository(store)
		deps.TimelineRepo = postgres.NewTimelineRepository(store)
		deps.IdempotencyRepo = postgres.NewIdempotencyRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		catalogRepo := memory.NewCatalogRepository()
		deps.Catalog = catalogRepo
		deps.Ledger = catalogRepo
		deps.OutboxRepo = memory.NewOutboxRepository()
		deps.TimelineRepo = memory.NewTimelineRepository()
		deps.IdempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory catalog and support storage")
	}

	if cfg.Mongo.URI != "" {
		store, err := mongostore.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			deps.Close(ctx)
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		deps.mg = store
		deps.Orders = mongostore.NewOrderRepository(store)
		logger.WithField("database", cfg.Mongo.Database).Info("mongo order storage initialized")
	} else {
		deps.Orders = memory.NewOrderRepository()
		logger.Info("using in-memory order storage")
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			deps.Close(ctx)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		deps.redis = client

		redisCache := cache.NewRedisCache(client)
		cacheLogger := logger.WithField("component", "catalog-cache")
		deps.Catalog = catalogsvc.NewCachedLookup(deps.Catalog, redisCache, cfg.Redis.CacheTTL, cacheLogger)
		deps.Ledger = catalogsvc.NewInvalidatingLedger(deps.Ledger, redisCache, cacheLogger)
		logger.WithField("addr", cfg.Redis.Addr).Info("redis catalog cache initialized")
	}

	return deps, nil
}

// Close освобождает внешние ресурсы. Безопасен при частичной инициализации.
func (d *Dependencies) Close(ctx context.Context) {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
		d.redis = nil
	}
	if d.mg != nil {
		if err := d.mg.Close(ctx); err != nil {
			d.Logger.WithError(err).Warn("failed to close mongo store")
		}
		d.mg = nil
	}
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
		d.pg = nil
	}
}
