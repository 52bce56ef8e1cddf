package workflow

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordenio/pedidos/internal/domain"
)

// buildOrder собирает новый заказ из входных данных и результата валидации.
func buildOrder(in CreateOrderInput, validation LineValidation) domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:           uuid.New().String(),
		ClientID:     in.ClientID,
		WorkerID:     in.WorkerID,
		RestaurantID: in.RestaurantID,
		Paid:         in.Paid,
		TotalPrice:   decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if validation.Requested() {
		order.Lines = validation.Lines
		order.TotalQuantity = *validation.TotalQuantity
		order.TotalPrice = *validation.TotalPrice
	}
	return order
}

// reserveAdjustments переводит валидированные позиции в список резервов
// остатка. Позиции с нулевым количеством пропускаются: валидация их
// допускает, но двигать остаток им нечем.
func reserveAdjustments(lines []domain.OrderLine) []domain.StockAdjustment {
	return lineAdjustments(lines, false)
}

// releaseAdjustments переводит позиции заказа в список возвратов остатка.
func releaseAdjustments(lines []domain.OrderLine) []domain.StockAdjustment {
	return lineAdjustments(lines, true)
}

func lineAdjustments(lines []domain.OrderLine, release bool) []domain.StockAdjustment {
	adjustments := make([]domain.StockAdjustment, 0, len(lines))
	for _, line := range lines {
		if line.Quantity == 0 {
			continue
		}
		adjustments = append(adjustments, domain.StockAdjustment{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Release:   release,
		})
	}
	return adjustments
}
