package domain

import "errors"

var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — попытка создать заказ с занятым идентификатором.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrProductNotFound — продукт отсутствует в каталоге или помечен удалённым.
	ErrProductNotFound = errors.New("product not found")
	// ErrClientNotFound — клиент отсутствует или помечен удалённым.
	ErrClientNotFound = errors.New("client not found")
	// ErrWorkerNotFound — сотрудник отсутствует или помечен удалённым.
	ErrWorkerNotFound = errors.New("worker not found")
	// ErrRestaurantNotFound — ресторан отсутствует или помечен удалённым.
	ErrRestaurantNotFound = errors.New("restaurant not found")

	// ErrInvalidReference — одна из ссылок заказа (клиент/сотрудник/ресторан/продукт)
	// не разрешилась; оборачивает причину от коллаборатора.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInvalidLineData — позиция не прошла проверку остатка или цены.
	ErrInvalidLineData = errors.New("invalid order line data")

	// Ошибка отсутствующего идентификатора клиента в заказе.
	ErrClientRequired = errors.New("client_id is required")
	// Ошибка отсутствующего идентификатора сотрудника.
	ErrWorkerRequired = errors.New("worker_id is required")
	// Ошибка отсутствующего идентификатора ресторана.
	ErrRestaurantRequired = errors.New("restaurant_id is required")
	// Ошибка отрицательного количества в позиции.
	ErrLineQuantityInvalid = errors.New("line quantity must be non-negative")
	// Ошибка отрицательной цены позиции.
	ErrLinePriceInvalid = errors.New("line unit price must be non-negative")
	// Ошибка несоответствия суммы позиции её количеству и цене.
	ErrLineTotalMismatch = errors.New("line total does not match quantity * unit price")
	// Ошибка несоответствия общего количества сумме позиций.
	ErrTotalQuantityMismatch = errors.New("order total quantity does not match lines sum")
	// Ошибка несоответствия общей суммы сумме позиций.
	ErrTotalPriceMismatch = errors.New("order total price does not match lines sum")

	// Ошибка некорректной дельты остатка.
	ErrAdjustmentQuantityInvalid = errors.New("stock adjustment quantity must be greater than zero")
	// Ошибка отсутствующего продукта в дельте остатка.
	ErrAdjustmentProductRequired = errors.New("stock adjustment product_id is required")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки хранилища idempotency-ключей.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency request hash mismatch")
)

// IsNotFound проверяет, относится ли ошибка к семейству "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrRestaurantNotFound)
}

// IsInvalidReference проверяет, является ли ошибка ошибкой ссылочной целостности.
func IsInvalidReference(err error) bool {
	return errors.Is(err, ErrInvalidReference)
}

// IsInvalidLineData проверяет, является ли ошибка ошибкой данных позиции.
func IsInvalidLineData(err error) bool {
	return errors.Is(err, ErrInvalidLineData)
}
