package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ordenio/pedidos/internal/domain"
)

func seedOrder(t *testing.T, repo domain.OrderRepository, id string, clientID int64, createdAt time.Time) domain.Order {
	t.Helper()

	line := domain.NewOrderLine(1, 2, decimal.RequireFromString("10.50"))
	order := domain.Order{
		ID:            id,
		ClientID:      clientID,
		WorkerID:      1,
		RestaurantID:  1,
		Lines:         []domain.OrderLine{line},
		TotalQuantity: 2,
		TotalPrice:    line.LineTotal,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	if err := repo.Create(context.Background(), order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestOrderRepository_CreateGetDelete(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	seedOrder(t, repo, "order-1", 10, time.Now().UTC())

	got, err := repo.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.ClientID != 10 {
		t.Fatalf("unexpected client: %d", got.ClientID)
	}

	if err := repo.Delete(ctx, "order-1"); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if _, err := repo.Get(ctx, "order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on repeat delete, got %v", err)
	}
}

func TestOrderRepository_UpdateMissing(t *testing.T) {
	repo := NewOrderRepository()
	err := repo.Update(context.Background(), domain.Order{ID: "ghost"})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListByClientPagination(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		seedOrder(t, repo, "order-"+string(rune('a'+i)), 10, base.Add(time.Duration(i)*time.Minute))
	}
	seedOrder(t, repo, "other-client", 99, base)

	page, err := repo.ListByClient(ctx, 10, domain.PageRequest{Page: 1, Limit: 2, Desc: true})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	if page[0].ID != "order-e" || page[1].ID != "order-d" {
		t.Fatalf("unexpected page order: %s, %s", page[0].ID, page[1].ID)
	}

	page, err = repo.ListByClient(ctx, 10, domain.PageRequest{Page: 3, Limit: 2, Desc: true})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page) != 1 || page[0].ID != "order-a" {
		t.Fatalf("unexpected last page: %+v", page)
	}

	page, err = repo.ListByClient(ctx, 10, domain.PageRequest{Page: 9, Limit: 2})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(page))
	}
}

func TestOrderRepository_ExistsByClient(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	seedOrder(t, repo, "order-1", 10, time.Now().UTC())

	ok, err := repo.ExistsByClient(ctx, 10)
	if err != nil || !ok {
		t.Fatalf("expected orders for client 10: ok=%v err=%v", ok, err)
	}
	ok, err = repo.ExistsByClient(ctx, 11)
	if err != nil || ok {
		t.Fatalf("expected no orders for client 11: ok=%v err=%v", ok, err)
	}
}

func TestOrderRepository_GetReturnsCopy(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	seedOrder(t, repo, "order-1", 10, time.Now().UTC())

	got, err := repo.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	got.Lines[0].Quantity = 999

	fresh, err := repo.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if fresh.Lines[0].Quantity == 999 {
		t.Fatal("repository must not expose internal state to mutation")
	}
}
