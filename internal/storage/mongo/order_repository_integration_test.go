package mongo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ordenio/pedidos/internal/domain"
)

const defaultLocalMongoURI = "mongodb://localhost:27017"

func openMongoStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("PEDIDOS_MONGO_TEST_URI"))
	if uri == "" {
		uri = defaultLocalMongoURI
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := Open(ctx, uri, "pedidos_test")
	if err != nil {
		t.Skipf("mongo is not available for integration tests: %v", err)
	}
	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		_ = store.Database().Collection(ordersCollection).Drop(dropCtx)
		_ = store.Close(dropCtx)
	})

	return store
}

func TestOrderRepository_MongoLifecycle(t *testing.T) {
	store := openMongoStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	order := sampleOrder()
	require.NoError(t, repo.Create(ctx, order))
	require.ErrorIs(t, repo.Create(ctx, order), domain.ErrOrderAlreadyExists)

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ClientID, got.ClientID)
	require.True(t, got.TotalPrice.Equal(order.TotalPrice))

	got.Paid = false
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.False(t, again.Paid)

	exists, err := repo.ExistsByClient(ctx, order.ClientID)
	require.NoError(t, err)
	require.True(t, exists)

	orders, err := repo.ListByClient(ctx, order.ClientID, domain.PageRequest{})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	require.NoError(t, repo.Delete(ctx, order.ID))
	require.ErrorIs(t, repo.Delete(ctx, order.ID), domain.ErrOrderNotFound)
	_, err = repo.Get(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
