package domain

import (
	"context"
	"time"
)

// CatalogLookup описывает чтение справочных сущностей из реляционного хранилища.
// Каждый метод возвращает соответствующую ошибку семейства "не найдено",
// если сущность отсутствует или помечена удалённой.
type CatalogLookup interface {
	FindProduct(ctx context.Context, id int64) (Product, error)
	FindClient(ctx context.Context, id int64) (Client, error)
	FindWorker(ctx context.Context, id int64) (Worker, error)
	FindRestaurant(ctx context.Context, id int64) (Restaurant, error)
}

// StockLedger применяет знаковую дельту к остатку продукта.
// Вызовы независимы друг от друга: дельты по нескольким продуктам в рамках
// одной операции не объединяются в транзакцию.
type StockLedger interface {
	// AdjustStock увеличивает остаток на amount при add=true и уменьшает при add=false.
	AdjustStock(ctx context.Context, productID int64, amount int, add bool) error
}

// Cache — необязательный кэш одиночных сущностей. Никогда не является
// источником истины: инвалидация выполняется после записи, окно устаревших
// чтений допускается.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix удаляет все ключи с заданным префиксом.
	DeletePrefix(ctx context.Context, prefix string) error
}

// OutboxPublisher доставляет накопленные outbox-записи во внешний брокер.
type OutboxPublisher interface {
	// Publish обязан быть идемпотентным: воркер может повторить доставку.
	Publish(event OutboxMessage) error
}

// OutboxRepository хранит события заказов до их публикации в Kafka.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository ведёт append-only историю изменений заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository отслеживает обработку запросов создания заказа по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key, orderID string) error
	MarkFailed(key, reason string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage — запись outbox, ожидающая публикации.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats — срез состояния очереди неопубликованных событий.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
