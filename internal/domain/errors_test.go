package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ordenio/pedidos/internal/domain"
)

func TestIsNotFound(t *testing.T) {
	for _, err := range []error{
		domain.ErrOrderNotFound,
		domain.ErrProductNotFound,
		domain.ErrClientNotFound,
		domain.ErrWorkerNotFound,
		domain.ErrRestaurantNotFound,
	} {
		if !domain.IsNotFound(err) {
			t.Fatalf("expected IsNotFound for %v", err)
		}
		// Обёрнутая ошибка должна распознаваться так же.
		if !domain.IsNotFound(fmt.Errorf("lookup: %w", err)) {
			t.Fatalf("expected IsNotFound for wrapped %v", err)
		}
	}

	if domain.IsNotFound(errors.New("boom")) {
		t.Fatal("unexpected IsNotFound for arbitrary error")
	}
}

func TestIsInvalidReference(t *testing.T) {
	wrapped := fmt.Errorf("%w: client 5: %v", domain.ErrInvalidReference, domain.ErrClientNotFound)
	if !domain.IsInvalidReference(wrapped) {
		t.Fatal("expected IsInvalidReference for wrapped sentinel")
	}
	if domain.IsInvalidReference(domain.ErrInvalidLineData) {
		t.Fatal("line data error must not count as reference error")
	}
}

func TestIsInvalidLineData(t *testing.T) {
	wrapped := fmt.Errorf("%w: product 7", domain.ErrInvalidLineData)
	if !domain.IsInvalidLineData(wrapped) {
		t.Fatal("expected IsInvalidLineData for wrapped sentinel")
	}
	if domain.IsInvalidLineData(domain.ErrOrderNotFound) {
		t.Fatal("not-found error must not count as line data error")
	}
}

func TestIdempotencyStatusValid(t *testing.T) {
	for _, status := range []domain.IdempotencyStatus{
		domain.IdempotencyStatusProcessing,
		domain.IdempotencyStatusDone,
		domain.IdempotencyStatusFailed,
	} {
		if !status.Valid() {
			t.Fatalf("expected %s to be valid", status)
		}
	}
	if domain.IdempotencyStatus("unknown").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}
