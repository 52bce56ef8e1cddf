package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics содержит метрики операций над заказами.
type WorkflowMetrics struct {
	// Счётчики операций
	ordersCreated  prometheus.Counter
	ordersUpdated  prometheus.Counter
	ordersDeleted  prometheus.Counter
	ordersRejected *prometheus.CounterVec

	// Гистограмма времени выполнения по операциям
	operationDuration *prometheus.HistogramVec

	// Счётчики дельт остатка и компенсаций
	stockAdjustments *prometheus.CounterVec
	compensations    prometheus.Counter

	// Счётчики событий timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewWorkflowMetrics создаёт новый экземпляр метрик workflow.
func NewWorkflowMetrics() *WorkflowMetrics {
	return newWorkflowMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newWorkflowMetricsWithRegisterer(registerer prometheus.Registerer) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkflowMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pedidos_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersUpdated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pedidos_orders_updated_total",
			Help: "Total number of orders updated",
		}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pedidos_orders_deleted_total",
			Help: "Total number of orders deleted",
		}),
		ordersRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pedidos_orders_rejected_total",
			Help: "Total number of rejected order operations grouped by reason",
		}, []string{"reason"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pedidos_order_operation_duration_seconds",
			Help:    "Duration of order workflow operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		stockAdjustments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pedidos_stock_adjustments_total",
			Help: "Total number of stock adjustments grouped by direction",
		}, []string{"direction"}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pedidos_stock_compensations_total",
			Help: "Total number of compensating stock adjustments after a failed step",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pedidos_timeline_events_total",
			Help: "Timeline entries appended to order histories",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pedidos_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("metric %q is already registered with another type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("cannot register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("metric %q is already registered with another type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("metric %q is already registered with another type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("cannot register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *WorkflowMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderUpdated увеличивает счётчик обновлённых заказов.
func (m *WorkflowMetrics) RecordOrderUpdated() {
	m.ordersUpdated.Inc()
}

// RecordOrderDeleted увеличивает счётчик удалённых заказов.
func (m *WorkflowMetrics) RecordOrderDeleted() {
	m.ordersDeleted.Inc()
}

// RecordOrderRejected увеличивает счётчик отклонённых операций.
func (m *WorkflowMetrics) RecordOrderRejected(reason string) {
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// RecordOperationDuration записывает время выполнения операции workflow.
func (m *WorkflowMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStockAdjustment увеличивает счётчик дельт остатка.
func (m *WorkflowMetrics) RecordStockAdjustment(release bool) {
	direction := "reserve"
	if release {
		direction = "release"
	}
	m.stockAdjustments.WithLabelValues(direction).Inc()
}

// RecordCompensation увеличивает счётчик компенсирующих дельт.
func (m *WorkflowMetrics) RecordCompensation() {
	m.compensations.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *WorkflowMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *WorkflowMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
