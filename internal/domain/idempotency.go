package domain

import "time"

// IdempotencyStatus — этап обработки запроса с idempotency-key.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing: запрос принят, заказ ещё создаётся.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: заказ создан, его ID сохранён в записи.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: обработка закончилась ошибкой, причина сохранена.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord — сохранённое состояние одного запроса создания заказа.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	OrderID     string
	FailReason  string
	Status      IdempotencyStatus
	TTLAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid сообщает, входит ли статус в известный набор.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}
