package workflow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ordenio/pedidos/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestUpdate_FlagsOnlyKeepsLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Create(ctx, createInput(linesRequest(2)))
	require.NoError(t, err)
	require.Equal(t, 98, env.stock(t, 1))

	updated, err := env.svc.Update(ctx, order.ID, domain.OrderPatch{Paid: boolPtr(true)})
	require.NoError(t, err)

	require.True(t, updated.Paid)
	require.Equal(t, order.TotalQuantity, updated.TotalQuantity)
	require.True(t, updated.TotalPrice.Equal(order.TotalPrice))
	// Позиции не передавались — остаток не трогается.
	require.Equal(t, 98, env.stock(t, 1))

	timeline, err := env.timeline.List(order.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	require.Equal(t, reasonFieldsChanged, timeline[1].Reason)
}

// Замена позиций проходит без диффа: новые резервируются целиком, старые
// возвращаются целиком, даже если продукт совпадает.
func TestUpdate_ReplacesLinesWholesale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Create(ctx, createInput(linesRequest(2)))
	require.NoError(t, err)
	require.Equal(t, 98, env.stock(t, 1))

	env.ledger.calls = nil
	updated, err := env.svc.Update(ctx, order.ID, domain.OrderPatch{Lines: linesRequest(5)})
	require.NoError(t, err)

	require.Equal(t, 5, updated.TotalQuantity)
	require.True(t, updated.TotalPrice.Equal(decimal.RequireFromString("52.50")))
	require.Equal(t, 95, env.stock(t, 1))

	// Две дельты: резерв новых 5 и возврат старых 2.
	require.Len(t, env.ledger.calls, 2)
	require.Equal(t, domain.StockAdjustment{ProductID: 1, Quantity: 5, Release: false}, env.ledger.calls[0])
	require.Equal(t, domain.StockAdjustment{ProductID: 1, Quantity: 2, Release: true}, env.ledger.calls[1])

	timeline, err := env.timeline.List(order.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	require.Equal(t, reasonLinesReplaced, timeline[1].Reason)
}

func TestUpdate_EmptyLinesClearOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Create(ctx, createInput(linesRequest(2)))
	require.NoError(t, err)

	updated, err := env.svc.Update(ctx, order.ID, domain.OrderPatch{Lines: []domain.LineRequest{}})
	require.NoError(t, err)

	require.Empty(t, updated.Lines)
	require.Zero(t, updated.TotalQuantity)
	require.True(t, updated.TotalPrice.IsZero())
	// Старые позиции возвращены на склад.
	require.Equal(t, 100, env.stock(t, 1))
}

func TestUpdate_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Update(context.Background(), "ghost", domain.OrderPatch{Paid: boolPtr(true)})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdate_RejectsUnknownReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Create(ctx, createInput(nil))
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, order.ID, domain.OrderPatch{RestaurantID: int64Ptr(404)})
	require.ErrorIs(t, err, domain.ErrInvalidReference)

	stored, getErr := env.orders.Get(ctx, order.ID)
	require.NoError(t, getErr)
	require.Equal(t, int64(1), stored.RestaurantID)
}

func TestUpdate_ValidationFailureLeavesStockIntact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.svc.Create(ctx, createInput(linesRequest(2)))
	require.NoError(t, err)
	require.Equal(t, 98, env.stock(t, 1))

	_, err = env.svc.Update(ctx, order.ID, domain.OrderPatch{Lines: []domain.LineRequest{{
		ProductID: 1,
		Quantity:  1,
		UnitPrice: decimal.RequireFromString("9.99"),
	}}})
	require.ErrorIs(t, err, domain.ErrInvalidLineData)
	require.Equal(t, 98, env.stock(t, 1))

	stored, getErr := env.orders.Get(ctx, order.ID)
	require.NoError(t, getErr)
	require.Equal(t, 2, stored.TotalQuantity)
}

// Отказ возврата старых позиций компенсирует уже применённый резерв новых.
func TestUpdate_CompensatesWhenReleaseFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := createInput([]domain.LineRequest{{
		ProductID: 2,
		Quantity:  1,
		UnitPrice: decimal.RequireFromString("3.25"),
	}})
	order, err := env.svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 4, env.stock(t, 2))

	// Новые позиции по продукту 1 резервируются, возврат старых по продукту 2 отказывает.
	env.ledger.failOn = 2
	_, err = env.svc.Update(ctx, order.ID, domain.OrderPatch{Lines: linesRequest(3)})
	require.Error(t, err)

	// Резерв продукта 1 откатился; остаток продукта 2 не изменился.
	require.Equal(t, 100, env.stock(t, 1))
	require.Equal(t, 4, env.stock(t, 2))

	stored, getErr := env.orders.Get(ctx, order.ID)
	require.NoError(t, getErr)
	require.Equal(t, 1, stored.TotalQuantity)
}
