package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ordenio/pedidos/internal/domain"
)

type stockLedger struct {
	db *sql.DB
}

// NewStockLedger создаёт PostgreSQL-реализацию StockLedger.
// Дельта применяется одним атомарным UPDATE, без read-then-write на клиенте:
// конкурентные дельты по одному продукту сериализуются блокировкой строки.
func NewStockLedger(store *Store) domain.StockLedger {
	return &stockLedger{db: store.DB()}
}

func (l *stockLedger) AdjustStock(ctx context.Context, productID int64, amount int, add bool) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	delta := amount
	if !add {
		delta = -amount
	}

	res, err := l.db.ExecContext(queryCtx, `
		UPDATE products
		SET stock = stock + $2
		WHERE id = $1
	`, productID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock for product %d: %w", productID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stock adjustment rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

var _ domain.StockLedger = (*stockLedger)(nil)
