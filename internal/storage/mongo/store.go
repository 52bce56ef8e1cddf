package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnTimeout = 5 * time.Second
	defaultDatabase    = "pedidos"
)

// Store оборачивает подключение к MongoDB, где живут документы заказов.
type Store struct {
	client   *mongo.Client
	database *mongo.Database
}

// Open подключается к MongoDB и проверяет доступность сервера.
// Пустое имя базы заменяется значением по умолчанию.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = defaultDatabase
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client:   client,
		database: client.Database(database),
	}, nil
}

// Database возвращает используемую базу.
func (s *Store) Database() *mongo.Database {
	return s.database
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("mongo store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// Close разрывает подключение.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
