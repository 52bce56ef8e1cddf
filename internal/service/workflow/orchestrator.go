package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ordenio/pedidos/internal/domain"
)

// Типы событий жизненного цикла заказа.
const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"
)

// Причины отклонения операций для метрик.
const (
	rejectReasonReference = "invalid_reference"
	rejectReasonLineData  = "invalid_line_data"
	rejectReasonStock     = "stock_adjustment"
	rejectReasonNotFound  = "not_found"
)

// Причины событий timeline: что именно произошло с заказом.
const (
	reasonOrderPlaced   = "order placed"
	reasonLinesReplaced = "lines replaced"
	reasonFieldsChanged = "fields changed"
	reasonStockReleased = "reservations released"
)

// Create выполняет полный workflow создания заказа: идемпотентность,
// проверка ссылок, валидация позиций, резерв остатков, запись документа,
// уведомление. Резервы применяются последовательно; при отказе любого шага
// после первого резерва уже применённые дельты компенсируются best-effort.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	start := time.Now()
	defer s.recordDuration("create", start)

	if in.IdempotencyKey != "" && s.idem != nil {
		if order, done, err := s.resolveIdempotency(ctx, in); done {
			return order, err
		}
	}

	if err := s.checkReferences(ctx, in.ClientID, in.WorkerID, in.RestaurantID); err != nil {
		s.reject(rejectReasonReference)
		s.failIdempotency(in.IdempotencyKey, err)
		return domain.Order{}, err
	}

	validation, err := s.ValidateLines(ctx, in.Lines)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidReference) {
			s.reject(rejectReasonReference)
		} else {
			s.reject(rejectReasonLineData)
		}
		s.failIdempotency(in.IdempotencyKey, err)
		return domain.Order{}, err
	}

	order := buildOrder(in, validation)

	applied, err := s.applyAdjustments(ctx, reserveAdjustments(validation.Lines))
	if err != nil {
		s.compensate(ctx, applied)
		s.reject(rejectReasonStock)
		s.failIdempotency(in.IdempotencyKey, err)
		return domain.Order{}, err
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.compensate(ctx, applied)
		s.failIdempotency(in.IdempotencyKey, err)
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	s.emitEvent(order, EventOrderCreated, reasonOrderPlaced)
	s.completeIdempotency(in.IdempotencyKey, order.ID)

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.logger.WithFields(map[string]interface{}{
		"order_id":       order.ID,
		"client_id":      order.ClientID,
		"total_quantity": order.TotalQuantity,
		"total_price":    order.TotalPrice.String(),
	}).Info("order created")

	return order, nil
}

// Update накладывает патч на существующий заказ. Если патч содержит позиции,
// старый набор позиций замещается целиком: сначала резервируются новые
// позиции, затем возвращаются все старые. Дифф между наборами не считается —
// продукт, оставшийся в заказе, проходит через полный цикл резерв/возврат.
func (s *Service) Update(ctx context.Context, id string, patch domain.OrderPatch) (domain.Order, error) {
	start := time.Now()
	defer s.recordDuration("update", start)

	original, err := s.orders.Get(ctx, id)
	if err != nil {
		s.reject(rejectReasonNotFound)
		return domain.Order{}, err
	}

	clientID, workerID, restaurantID := patch.MergedRefs(original)
	if err := s.checkReferences(ctx, clientID, workerID, restaurantID); err != nil {
		s.reject(rejectReasonReference)
		return domain.Order{}, err
	}

	var validation LineValidation
	if patch.HasLines() {
		validation, err = s.ValidateLines(ctx, patch.Lines)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidReference) {
				s.reject(rejectReasonReference)
			} else {
				s.reject(rejectReasonLineData)
			}
			return domain.Order{}, err
		}
	}

	var applied []domain.StockAdjustment
	if patch.HasLines() {
		applied, err = s.applyAdjustments(ctx, reserveAdjustments(validation.Lines))
		if err != nil {
			s.compensate(ctx, applied)
			s.reject(rejectReasonStock)
			return domain.Order{}, err
		}

		released, releaseErr := s.applyAdjustments(ctx, releaseAdjustments(original.Lines))
		applied = append(applied, released...)
		if releaseErr != nil {
			s.compensate(ctx, applied)
			s.reject(rejectReasonStock)
			return domain.Order{}, releaseErr
		}
	}

	updated := patch.Apply(original)
	if patch.HasLines() {
		updated.Lines = validation.Lines
		updated.TotalQuantity = *validation.TotalQuantity
		updated.TotalPrice = *validation.TotalPrice
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := s.orders.Update(ctx, updated); err != nil {
		s.compensate(ctx, applied)
		return domain.Order{}, fmt.Errorf("persist order update: %w", err)
	}

	reason := reasonFieldsChanged
	if patch.HasLines() {
		reason = reasonLinesReplaced
	}
	s.emitEvent(updated, EventOrderUpdated, reason)
	if s.metrics != nil {
		s.metrics.RecordOrderUpdated()
	}
	s.logger.WithFields(map[string]interface{}{
		"order_id":       updated.ID,
		"lines_replaced": patch.HasLines(),
	}).Info("order updated")

	return updated, nil
}

// Delete возвращает остатки по всем позициям заказа и затем удаляет документ
// навсегда. Если удаление документа не удалось после успешных возвратов,
// возвраты компенсируются, чтобы остаток не разошёлся с сохранившимся заказом.
func (s *Service) Delete(ctx context.Context, id string) error {
	start := time.Now()
	defer s.recordDuration("delete", start)

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		s.reject(rejectReasonNotFound)
		return err
	}

	applied, err := s.applyAdjustments(ctx, releaseAdjustments(order.Lines))
	if err != nil {
		s.compensate(ctx, applied)
		s.reject(rejectReasonStock)
		return err
	}

	if err := s.orders.Delete(ctx, id); err != nil {
		s.compensate(ctx, applied)
		return fmt.Errorf("delete order: %w", err)
	}

	s.emitEvent(order, EventOrderDeleted, reasonStockReleased)
	if s.metrics != nil {
		s.metrics.RecordOrderDeleted()
	}
	s.logger.WithField("order_id", id).Info("order deleted")

	return nil
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.orders.Get(ctx, id)
}

// ListByClient возвращает страницу заказов клиента.
func (s *Service) ListByClient(ctx context.Context, clientID int64, page domain.PageRequest) ([]domain.Order, error) {
	return s.orders.ListByClient(ctx, clientID, page)
}

// ExistsByClient сообщает, есть ли у клиента хотя бы один заказ.
func (s *Service) ExistsByClient(ctx context.Context, clientID int64) (bool, error) {
	return s.orders.ExistsByClient(ctx, clientID)
}

// applyAdjustments последовательно применяет дельты остатка и возвращает
// список успешно применённых — он же компенсационный список вызывающего.
func (s *Service) applyAdjustments(ctx context.Context, adjustments []domain.StockAdjustment) ([]domain.StockAdjustment, error) {
	applied := make([]domain.StockAdjustment, 0, len(adjustments))
	for _, adj := range adjustments {
		if err := adj.Validate(); err != nil {
			return applied, err
		}
		if err := s.ledger.AdjustStock(ctx, adj.ProductID, adj.Quantity, adj.Release); err != nil {
			return applied, fmt.Errorf("adjust stock for product %d: %w", adj.ProductID, err)
		}
		if s.metrics != nil {
			s.metrics.RecordStockAdjustment(adj.Release)
		}
		applied = append(applied, adj)
	}
	return applied, nil
}

// compensate откатывает применённые дельты в обратном порядке. Ошибки
// компенсации только логируются: операция уже отказала, и повторный отказ
// здесь оставляет расхождение, которое чинится вручную по timeline.
func (s *Service) compensate(ctx context.Context, applied []domain.StockAdjustment) {
	for i := len(applied) - 1; i >= 0; i-- {
		inverse := applied[i].Invert()
		if err := s.ledger.AdjustStock(ctx, inverse.ProductID, inverse.Quantity, inverse.Release); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"product_id": inverse.ProductID,
				"quantity":   inverse.Quantity,
				"release":    inverse.Release,
			}).Error("stock compensation failed")
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordCompensation()
		}
	}
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.RecordOrderRejected(reason)
	}
}

func (s *Service) recordDuration(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordOperationDuration(operation, time.Since(start))
	}
}
