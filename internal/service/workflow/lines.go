package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ordenio/pedidos/internal/domain"
)

// LineValidation — результат проверки позиций по текущему состоянию каталога.
// Нулевые указатели означают "позиции не передавались": это сигнал
// "изменений нет", отличный от "заказ без позиций" (нулевые итоги).
type LineValidation struct {
	TotalQuantity *int
	TotalPrice    *decimal.Decimal
	Lines         []domain.OrderLine
}

// Requested сообщает, передавались ли позиции на валидацию.
func (v LineValidation) Requested() bool {
	return v.Lines != nil
}

// ValidateLines проверяет каждую запрошенную позицию по каталогу и считает итоги.
// Позиции обрабатываются строго последовательно в порядке запроса: ошибка любой
// позиции отменяет весь батч, частичный результат не имеет смысла. Валидация
// ничего не блокирует — состояние каталога может измениться между проверкой и
// последующей дельтой остатка.
func (s *Service) ValidateLines(ctx context.Context, lines []domain.LineRequest) (LineValidation, error) {
	if lines == nil {
		return LineValidation{}, nil
	}

	totalQuantity := 0
	totalPrice := decimal.Zero
	validated := make([]domain.OrderLine, 0, len(lines))

	for _, req := range lines {
		product, err := s.catalog.FindProduct(ctx, req.ProductID)
		if err != nil {
			return LineValidation{}, fmt.Errorf("%w: product %d: %v", domain.ErrInvalidReference, req.ProductID, err)
		}

		// Остаток обязан быть строго больше количества: заказ ровно на весь
		// остаток отклоняется. Поведение сохранено как в исходной системе.
		if product.Stock <= req.Quantity {
			return LineValidation{}, fmt.Errorf(
				"%w: product %d: stock %d is not greater than requested %d",
				domain.ErrInvalidLineData, req.ProductID, product.Stock, req.Quantity,
			)
		}
		// Сравнение цен точное, без допусков.
		if !product.Price.Equal(req.UnitPrice) {
			return LineValidation{}, fmt.Errorf(
				"%w: product %d: unit price %s does not match catalog price %s",
				domain.ErrInvalidLineData, req.ProductID, req.UnitPrice, product.Price,
			)
		}

		line := domain.NewOrderLine(req.ProductID, req.Quantity, req.UnitPrice)
		totalQuantity += line.Quantity
		totalPrice = totalPrice.Add(line.LineTotal)
		validated = append(validated, line)
	}

	return LineValidation{
		TotalQuantity: &totalQuantity,
		TotalPrice:    &totalPrice,
		Lines:         validated,
	}, nil
}
