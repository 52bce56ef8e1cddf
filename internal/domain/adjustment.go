package domain

// StockAdjustment — одна знаковая дельта остатка продукта. Используется и как
// параметр Stock Ledger, и как элемент компенсационного списка orchestrator'а.
type StockAdjustment struct {
	ProductID int64
	Quantity  int
	// Release == true означает возврат остатка (увеличение), false — резерв (уменьшение).
	Release bool
}

// Validate проверяет корректность дельты.
func (a StockAdjustment) Validate() error {
	if a.ProductID <= 0 {
		return ErrAdjustmentProductRequired
	}
	if a.Quantity <= 0 {
		return ErrAdjustmentQuantityInvalid
	}
	return nil
}

// Invert возвращает компенсирующую дельту: резерв превращается в возврат и наоборот.
func (a StockAdjustment) Invert() StockAdjustment {
	return StockAdjustment{
		ProductID: a.ProductID,
		Quantity:  a.Quantity,
		Release:   !a.Release,
	}
}
