package domain

import "time"

// TimelineEvent — одно событие из истории жизненного цикла заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
