package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ordenio/pedidos/internal/domain"
	"github.com/ordenio/pedidos/internal/metrics"
)

const idempotencyTTL = 24 * time.Hour

// Service — точка входа workflow заказов: создание, обновление и удаление
// проходят через последовательность проверка ссылок → валидация позиций →
// дельты остатка → запись документа → уведомление.
type Service struct {
	orders   domain.OrderRepository
	catalog  domain.CatalogLookup
	ledger   domain.StockLedger
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	idem     domain.IdempotencyRepository
	logger   *log.Entry
	metrics  *metrics.WorkflowMetrics
}

// CreateOrderInput описывает запрос на создание заказа.
type CreateOrderInput struct {
	ClientID     int64
	WorkerID     int64
	RestaurantID int64
	Paid         bool
	// Lines == nil допускается: заказ создаётся без позиций и с нулевыми итогами.
	Lines []domain.LineRequest
	// IdempotencyKey не обязателен; повтор с тем же ключом возвращает уже
	// созданный заказ, не прогоняя workflow заново.
	IdempotencyKey string
}

// NewService создаёт рабочий экземпляр workflow-сервиса.
// Репозиторий idem может быть nil — тогда ключи идемпотентности игнорируются.
func NewService(
	orders domain.OrderRepository,
	catalog domain.CatalogLookup,
	ledger domain.StockLedger,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	idem domain.IdempotencyRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "workflow")
	}
	return &Service{
		orders:   orders,
		catalog:  catalog,
		ledger:   ledger,
		outbox:   outbox,
		timeline: timeline,
		idem:     idem,
		logger:   logger,
		metrics:  metrics.NewWorkflowMetrics(),
	}
}

// NewServiceWithoutMetrics создаёт сервис без метрик (для тестов).
func NewServiceWithoutMetrics(
	orders domain.OrderRepository,
	catalog domain.CatalogLookup,
	ledger domain.StockLedger,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	idem domain.IdempotencyRepository,
	logger *log.Entry,
) *Service {
	svc := NewService(orders, catalog, ledger, outbox, timeline, idem, logger)
	svc.metrics = nil
	return svc
}

// hashCreateInput считает стабильный хэш запроса для сверки idempotency-ключа.
func hashCreateInput(in CreateOrderInput) string {
	shadow := in
	shadow.IdempotencyKey = ""
	raw, err := json.Marshal(shadow)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
