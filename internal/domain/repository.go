package domain

import "context"

// OrderRepository описывает требования к документному хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// Update перезаписывает заказ целиком; ErrOrderNotFound, если записи нет.
	Update(ctx context.Context, order Order) error
	// Delete удаляет документ заказа; ErrOrderNotFound, если записи нет.
	Delete(ctx context.Context, id string) error
	// ListByClient возвращает страницу заказов клиента.
	ListByClient(ctx context.Context, clientID int64, page PageRequest) ([]Order, error)
	// ExistsByClient сообщает, есть ли у клиента хотя бы один заказ.
	ExistsByClient(ctx context.Context, clientID int64) (bool, error)
}
