package domain

import "github.com/shopspring/decimal"

// Product — позиция каталога с текущей ценой и остатком.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	// Stock — текущий доступный остаток; может уходить в минус, если дельты
	// применяются без предварительной валидации.
	Stock   int
	Deleted bool
}

// Client — заказчик.
type Client struct {
	ID      int64
	Name    string
	Phone   string
	Deleted bool
}

// Worker — сотрудник ресторана, оформляющий заказ.
type Worker struct {
	ID      int64
	Name    string
	Deleted bool
}

// Restaurant — точка, к которой привязан заказ.
type Restaurant struct {
	ID      int64
	Name    string
	Address string
	Deleted bool
}
