package domain

// OrderPatch описывает частичное обновление заказа. Указатели различают
// "поле не передано" (nil, оставить исходное значение) и "поле передано"
// (заменить), чтобы семантика merge оставалась явной и тестируемой.
type OrderPatch struct {
	ClientID     *int64
	WorkerID     *int64
	RestaurantID *int64
	Paid         *bool
	// Lines == nil означает "позиции не менялись"; пустой срез — "заказ без позиций".
	Lines []LineRequest
}

// HasLines сообщает, были ли переданы новые позиции.
func (p OrderPatch) HasLines() bool {
	return p.Lines != nil
}

// MergedRefs возвращает ссылки заказа после наложения патча, не трогая сам заказ.
func (p OrderPatch) MergedRefs(o Order) (clientID, workerID, restaurantID int64) {
	clientID, workerID, restaurantID = o.ClientID, o.WorkerID, o.RestaurantID
	if p.ClientID != nil {
		clientID = *p.ClientID
	}
	if p.WorkerID != nil {
		workerID = *p.WorkerID
	}
	if p.RestaurantID != nil {
		restaurantID = *p.RestaurantID
	}
	return clientID, workerID, restaurantID
}

// Apply накладывает непустые поля патча на копию заказа. Позиции и итоги
// не трогаются: их пересчитывает orchestrator после валидации.
func (p OrderPatch) Apply(o Order) Order {
	o.ClientID, o.WorkerID, o.RestaurantID = p.MergedRefs(o)
	if p.Paid != nil {
		o.Paid = *p.Paid
	}
	return o
}
