package memory

import (
	"sort"
	"sync"

	"github.com/ordenio/pedidos/internal/domain"
)

// timelineLog хранит историю заказов в памяти, сгруппированную по order id.
type timelineLog struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineLog{byOrder: make(map[string][]domain.TimelineEvent)}
}

var _ domain.TimelineRepository = (*timelineLog)(nil)

func (l *timelineLog) Append(event domain.TimelineEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := append(l.byOrder[event.OrderID], event)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Occurred.Before(history[j].Occurred)
	})
	l.byOrder[event.OrderID] = history
	return nil
}

func (l *timelineLog) List(orderID string) ([]domain.TimelineEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.byOrder[orderID]
	out := make([]domain.TimelineEvent, len(history))
	copy(out, history)
	return out, nil
}
