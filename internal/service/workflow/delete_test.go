package workflow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ordenio/pedidos/internal/domain"
)

func TestDelete_ReleasesStockAndRemovesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Create(ctx, createInput(linesRequest(2)))
	require.NoError(t, err)
	require.Equal(t, 98, env.stock(t, 1))

	require.NoError(t, env.svc.Delete(ctx, order.ID))

	require.Equal(t, 100, env.stock(t, 1))
	_, err = env.orders.Get(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	timeline, err := env.timeline.List(order.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	require.Equal(t, EventOrderDeleted, timeline[1].Type)
	require.Equal(t, reasonStockReleased, timeline[1].Reason)
}

func TestDelete_NotFound(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.Delete(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestDelete_WithoutLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Create(ctx, createInput(nil))
	require.NoError(t, err)

	env.ledger.calls = nil
	require.NoError(t, env.svc.Delete(ctx, order.ID))
	require.Empty(t, env.ledger.calls)
}

// Отказ возврата второй позиции компенсирует уже выполненный возврат первой.
func TestDelete_CompensatesPartialRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := createInput([]domain.LineRequest{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")},
		{ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("3.25")},
	})
	order, err := env.svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 98, env.stock(t, 1))
	require.Equal(t, 4, env.stock(t, 2))

	env.ledger.failOn = 2
	err = env.svc.Delete(ctx, order.ID)
	require.Error(t, err)

	// Заказ остаётся, остатки как до удаления.
	require.Equal(t, 98, env.stock(t, 1))
	require.Equal(t, 4, env.stock(t, 2))
	_, err = env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
}
