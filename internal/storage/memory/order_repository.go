package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ordenio/pedidos/internal/domain"
)

// orderMap хранит документы заказов в памяти, как их хранил бы MongoDB.
type orderMap struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает хранилище заказов в памяти для разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderMap{items: make(map[string]domain.Order)}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderMap) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	// Внутрь уходит копия: срез позиций не должен делиться с вызывающим кодом.
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderMap) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// Update перезаписывает существующий заказ целиком.
func (r *orderMap) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Delete удаляет документ заказа.
func (r *orderMap) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.items, id)
	return nil
}

// ListByClient возвращает страницу заказов клиента с сортировкой по запрошенному полю.
func (r *orderMap) ListByClient(_ context.Context, clientID int64, page domain.PageRequest) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page = page.Normalize()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.ClientID != clientID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		less := orderLess(result[i], result[j], page.SortField)
		if page.Desc {
			return !less
		}
		return less
	})

	offset := page.Offset()
	if offset >= len(result) {
		return []domain.Order{}, nil
	}
	result = result[offset:]
	if len(result) > page.Limit {
		result = result[:page.Limit]
	}

	return result, nil
}

// ExistsByClient сообщает, есть ли у клиента хотя бы один заказ.
func (r *orderMap) ExistsByClient(_ context.Context, clientID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.items {
		if order.ClientID == clientID {
			return true, nil
		}
	}
	return false, nil
}

func orderLess(a, b domain.Order, field string) bool {
	switch field {
	case "total_price":
		if !a.TotalPrice.Equal(b.TotalPrice) {
			return a.TotalPrice.LessThan(b.TotalPrice)
		}
	case "total_quantity":
		if a.TotalQuantity != b.TotalQuantity {
			return a.TotalQuantity < b.TotalQuantity
		}
	case "updated_at":
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	default:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	return a.ID < b.ID
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Lines = append([]domain.OrderLine(nil), src.Lines...)
	return dst
}

var _ domain.OrderRepository = (*orderMap)(nil)
