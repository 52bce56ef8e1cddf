package memory

import (
	"context"
	"sync"

	"github.com/ordenio/pedidos/internal/domain"
)

// CatalogRepository — in-memory каталог продуктов и справочных сущностей.
// Реализует и CatalogLookup, и StockLedger: дельта остатка применяется как
// read-then-write под общим мьютексом, как и в реляционной реализации без
// внешних блокировок.
type CatalogRepository struct {
	mu          sync.RWMutex
	products    map[int64]domain.Product
	clients     map[int64]domain.Client
	workers     map[int64]domain.Worker
	restaurants map[int64]domain.Restaurant
}

// NewCatalogRepository создаёт пустой каталог для локальной разработки и тестов.
func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products:    make(map[int64]domain.Product),
		clients:     make(map[int64]domain.Client),
		workers:     make(map[int64]domain.Worker),
		restaurants: make(map[int64]domain.Restaurant),
	}
}

// PutProduct добавляет или заменяет продукт (seed для тестов и демо-режима).
func (r *CatalogRepository) PutProduct(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

// PutClient добавляет или заменяет клиента.
func (r *CatalogRepository) PutClient(c domain.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// PutWorker добавляет или заменяет сотрудника.
func (r *CatalogRepository) PutWorker(w domain.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[w.ID] = w
}

// PutRestaurant добавляет или заменяет ресторан.
func (r *CatalogRepository) PutRestaurant(rest domain.Restaurant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restaurants[rest.ID] = rest
}

// FindProduct возвращает продукт или ErrProductNotFound.
func (r *CatalogRepository) FindProduct(_ context.Context, id int64) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok || p.Deleted {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// FindClient возвращает клиента или ErrClientNotFound.
func (r *CatalogRepository) FindClient(_ context.Context, id int64) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok || c.Deleted {
		return domain.Client{}, domain.ErrClientNotFound
	}
	return c, nil
}

// FindWorker возвращает сотрудника или ErrWorkerNotFound.
func (r *CatalogRepository) FindWorker(_ context.Context, id int64) (domain.Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[id]
	if !ok || w.Deleted {
		return domain.Worker{}, domain.ErrWorkerNotFound
	}
	return w, nil
}

// FindRestaurant возвращает ресторан или ErrRestaurantNotFound.
func (r *CatalogRepository) FindRestaurant(_ context.Context, id int64) (domain.Restaurant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rest, ok := r.restaurants[id]
	if !ok || rest.Deleted {
		return domain.Restaurant{}, domain.ErrRestaurantNotFound
	}
	return rest, nil
}

// AdjustStock читает текущий остаток и записывает новый. Никакой проверки
// достаточности здесь нет: единственный страж — валидация позиций перед дельтой.
func (r *CatalogRepository) AdjustStock(_ context.Context, productID int64, amount int, add bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}

	if add {
		p.Stock += amount
	} else {
		p.Stock -= amount
	}
	r.products[productID] = p
	return nil
}

var _ domain.CatalogLookup = (*CatalogRepository)(nil)
var _ domain.StockLedger = (*CatalogRepository)(nil)
