package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine — одна позиция заказа: продукт, количество и цена на момент оформления.
type OrderLine struct {
	// ProductID — идентификатор продукта в каталоге.
	ProductID int64
	// Quantity — количество единиц; ноль допускается валидацией.
	Quantity int
	// UnitPrice — цена за единицу, обязана точно совпадать с каталожной ценой
	// на момент валидации (не более двух знаков после запятой).
	UnitPrice decimal.Decimal
	// LineTotal — производное значение: Quantity * UnitPrice.
	LineTotal decimal.Decimal
}

// LineRequest — запрошенная позиция до валидации по каталогу.
type LineRequest struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order агрегирует заказ ресторана и его позиции. Хранится в документной базе;
// ссылки на клиента, сотрудника и ресторан проверяются в момент записи.
type Order struct {
	ID           string
	ClientID     int64
	WorkerID     int64
	RestaurantID int64
	// Lines хранит позиции в порядке добавления; порядок не несёт доменного
	// смысла, но сохраняется для отображения.
	Lines []OrderLine
	// Paid выставляется вызывающей стороной, не вычисляется.
	Paid bool
	// TotalQuantity и TotalPrice всегда пересчитываются на сервере из Lines.
	TotalQuantity int
	TotalPrice    decimal.Decimal
	// Deleted объявлен для совместимости со схемой; путь удаления выполняет
	// жёсткое удаление документа.
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ClientID <= 0 {
		errs = append(errs, ErrClientRequired)
	}
	if o.WorkerID <= 0 {
		errs = append(errs, ErrWorkerRequired)
	}
	if o.RestaurantID <= 0 {
		errs = append(errs, ErrRestaurantRequired)
	}

	// Сверяем итоги заказа с суммами позиций.
	var calcQty int
	calcPrice := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity < 0 {
			errs = append(errs, ErrLineQuantityInvalid)
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
		if !line.LineTotal.Equal(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))) {
			errs = append(errs, ErrLineTotalMismatch)
		}
		calcQty += line.Quantity
		calcPrice = calcPrice.Add(line.LineTotal)
	}
	if calcQty != o.TotalQuantity {
		errs = append(errs, ErrTotalQuantityMismatch)
	}
	if !calcPrice.Equal(o.TotalPrice) {
		errs = append(errs, ErrTotalPriceMismatch)
	}

	return errs
}

// NewOrderLine строит позицию с вычисленным LineTotal.
func NewOrderLine(productID int64, quantity int, unitPrice decimal.Decimal) OrderLine {
	return OrderLine{
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		LineTotal: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}
