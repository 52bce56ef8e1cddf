package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/domain"
)

// Префиксы ключей кэша по типу сущности.
const (
	productKeyPrefix    = "catalog:product:"
	clientKeyPrefix     = "catalog:client:"
	workerKeyPrefix     = "catalog:worker:"
	restaurantKeyPrefix = "catalog:restaurant:"
)

// CachedLookup — read-through декоратор над CatalogLookup. Кэш никогда не
// является источником истины: любая ошибка кэша деградирует в прямое чтение,
// промахи и отказы только логируются.
type CachedLookup struct {
	inner  domain.CatalogLookup
	cache  domain.Cache
	ttl    time.Duration
	logger *log.Entry
}

// NewCachedLookup оборачивает каталог кэшем с заданным TTL.
func NewCachedLookup(inner domain.CatalogLookup, cache domain.Cache, ttl time.Duration, logger *log.Entry) *CachedLookup {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-cache")
	}
	return &CachedLookup{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

// FindProduct читает продукт через кэш.
func (c *CachedLookup) FindProduct(ctx context.Context, id int64) (domain.Product, error) {
	return lookupThrough(ctx, c, productKey(id), func() (domain.Product, error) {
		return c.inner.FindProduct(ctx, id)
	})
}

// FindClient читает клиента через кэш.
func (c *CachedLookup) FindClient(ctx context.Context, id int64) (domain.Client, error) {
	return lookupThrough(ctx, c, fmt.Sprintf("%s%d", clientKeyPrefix, id), func() (domain.Client, error) {
		return c.inner.FindClient(ctx, id)
	})
}

// FindWorker читает сотрудника через кэш.
func (c *CachedLookup) FindWorker(ctx context.Context, id int64) (domain.Worker, error) {
	return lookupThrough(ctx, c, fmt.Sprintf("%s%d", workerKeyPrefix, id), func() (domain.Worker, error) {
		return c.inner.FindWorker(ctx, id)
	})
}

// FindRestaurant читает ресторан через кэш.
func (c *CachedLookup) FindRestaurant(ctx context.Context, id int64) (domain.Restaurant, error) {
	return lookupThrough(ctx, c, fmt.Sprintf("%s%d", restaurantKeyPrefix, id), func() (domain.Restaurant, error) {
		return c.inner.FindRestaurant(ctx, id)
	})
}

func productKey(id int64) string {
	return fmt.Sprintf("%s%d", productKeyPrefix, id)
}

// lookupThrough реализует read-through схему: кэш → источник → кэш.
// Ошибки "не найдено" не кэшируются, чтобы не прятать свежесозданные сущности.
func lookupThrough[T any](ctx context.Context, c *CachedLookup, key string, load func() (T, error)) (T, error) {
	var zero T

	raw, hit, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache read failed, falling back to source")
	} else if hit {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.logger.WithField("key", key).Warn("cache entry is not decodable, falling back to source")
	}

	value, err := load()
	if err != nil {
		return zero, err
	}

	if raw, err := json.Marshal(value); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("cache write failed")
		}
	}
	return value, nil
}

var _ domain.CatalogLookup = (*CachedLookup)(nil)

// InvalidatingLedger — декоратор над StockLedger: после успешной дельты
// инвалидирует кэшированный продукт, чтобы последующая валидация не читала
// устаревший остаток дольше необходимого.
type InvalidatingLedger struct {
	inner  domain.StockLedger
	cache  domain.Cache
	logger *log.Entry
}

// NewInvalidatingLedger оборачивает ledger инвалидацией кэша продуктов.
func NewInvalidatingLedger(inner domain.StockLedger, cache domain.Cache, logger *log.Entry) *InvalidatingLedger {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-cache")
	}
	return &InvalidatingLedger{inner: inner, cache: cache, logger: logger}
}

// AdjustStock применяет дельту и сбрасывает кэш затронутого продукта.
func (l *InvalidatingLedger) AdjustStock(ctx context.Context, productID int64, amount int, add bool) error {
	if err := l.inner.AdjustStock(ctx, productID, amount, add); err != nil {
		return err
	}
	if err := l.cache.DeletePrefix(ctx, productKey(productID)); err != nil {
		l.logger.WithError(err).WithField("product_id", productID).Warn("cache invalidation failed")
	}
	return nil
}

var _ domain.StockLedger = (*InvalidatingLedger)(nil)
