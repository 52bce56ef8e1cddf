package app

import (
	"github.com/ordenio/pedidos/internal/service/workflow"
)

// createWorkflow собирает workflow-сервис заказов поверх зависимостей
// приложения.
func createWorkflow(deps *Dependencies) *workflow.Service {
	return workflow.NewService(
		deps.Orders,
		deps.Catalog,
		deps.Ledger,
		deps.OutboxRepo,
		deps.TimelineRepo,
		deps.IdempotencyRepo,
		deps.Logger.WithField("layer", "workflow"),
	)
}
