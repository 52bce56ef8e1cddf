package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/ordenio/pedidos/internal/domain"
)

const opTimeout = 5 * time.Second

// opCtx ограничивает фоновые операции репозиториев единым таймаутом.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogLookup.
func NewCatalogRepository(store *Store) domain.CatalogLookup {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) FindProduct(ctx context.Context, id int64) (domain.Product, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		product  domain.Product
		priceRaw string
	)
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, name, price, stock
		FROM products
		WHERE id = $1 AND NOT deleted
	`, id).Scan(&product.ID, &product.Name, &priceRaw, &product.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("find product %d: %w", id, err)
	}

	product.Price, err = decimal.NewFromString(priceRaw)
	if err != nil {
		return domain.Product{}, fmt.Errorf("parse price for product %d: %w", id, err)
	}
	return product, nil
}

func (r *catalogRepository) FindClient(ctx context.Context, id int64) (domain.Client, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var client domain.Client
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, name, phone
		FROM clients
		WHERE id = $1 AND NOT deleted
	`, id).Scan(&client.ID, &client.Name, &client.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Client{}, domain.ErrClientNotFound
		}
		return domain.Client{}, fmt.Errorf("find client %d: %w", id, err)
	}
	return client, nil
}

func (r *catalogRepository) FindWorker(ctx context.Context, id int64) (domain.Worker, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var worker domain.Worker
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, name
		FROM workers
		WHERE id = $1 AND NOT deleted
	`, id).Scan(&worker.ID, &worker.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Worker{}, domain.ErrWorkerNotFound
		}
		return domain.Worker{}, fmt.Errorf("find worker %d: %w", id, err)
	}
	return worker, nil
}

func (r *catalogRepository) FindRestaurant(ctx context.Context, id int64) (domain.Restaurant, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var restaurant domain.Restaurant
	err := r.db.QueryRowContext(queryCtx, `
		SELECT id, name, address
		FROM restaurants
		WHERE id = $1 AND NOT deleted
	`, id).Scan(&restaurant.ID, &restaurant.Name, &restaurant.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Restaurant{}, domain.ErrRestaurantNotFound
		}
		return domain.Restaurant{}, fmt.Errorf("find restaurant %d: %w", id, err)
	}
	return restaurant, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.CatalogLookup = (*catalogRepository)(nil)
