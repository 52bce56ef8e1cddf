package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ordenio/pedidos/internal/domain"
)

// resolveIdempotency пытается захватить idempotency-ключ перед выполнением
// Create. Возвращает done=true, если workflow запускать не нужно: либо заказ
// уже создан (возвращается он), либо ключ конфликтует (возвращается ошибка).
func (s *Service) resolveIdempotency(ctx context.Context, in CreateOrderInput) (domain.Order, bool, error) {
	requestHash := hashCreateInput(in)
	ttlAt := time.Now().UTC().Add(idempotencyTTL)

	_, err := s.idem.CreateProcessing(in.IdempotencyKey, requestHash, ttlAt)
	if err == nil {
		return domain.Order{}, false, nil
	}
	if errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		return domain.Order{}, true, err
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		return domain.Order{}, true, fmt.Errorf("claim idempotency key: %w", err)
	}

	record, err := s.idem.Get(in.IdempotencyKey)
	if err != nil {
		return domain.Order{}, true, fmt.Errorf("read idempotency record: %w", err)
	}

	switch record.Status {
	case domain.IdempotencyStatusDone:
		order, err := s.orders.Get(ctx, record.OrderID)
		if err != nil {
			return domain.Order{}, true, fmt.Errorf("load order for replayed key %q: %w", in.IdempotencyKey, err)
		}
		s.logger.WithFields(map[string]interface{}{
			"idempotency_key": in.IdempotencyKey,
			"order_id":        record.OrderID,
		}).Info("idempotent replay, returning existing order")
		return order, true, nil
	case domain.IdempotencyStatusFailed:
		// Предыдущая попытка отказала; ключ остаётся занятым до истечения TTL,
		// повтор обязан прийти с новым ключом.
		return domain.Order{}, true, fmt.Errorf("%w: previous attempt failed: %s",
			domain.ErrIdempotencyKeyAlreadyExists, record.FailReason)
	default:
		return domain.Order{}, true, fmt.Errorf("%w: request is still processing",
			domain.ErrIdempotencyKeyAlreadyExists)
	}
}

// completeIdempotency помечает ключ завершённым. Ошибка только логируется:
// заказ уже создан, и терять его из-за служебной записи нельзя.
func (s *Service) completeIdempotency(key, orderID string) {
	if key == "" || s.idem == nil {
		return
	}
	if err := s.idem.MarkDone(key, orderID); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Error("mark idempotency key done")
	}
}

// failIdempotency помечает ключ отказавшим с причиной.
func (s *Service) failIdempotency(key string, cause error) {
	if key == "" || s.idem == nil {
		return
	}
	if err := s.idem.MarkFailed(key, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Error("mark idempotency key failed")
	}
}
