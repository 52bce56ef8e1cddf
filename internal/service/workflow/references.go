package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ordenio/pedidos/internal/domain"
)

// checkReferences проверяет существование клиента, работника и ресторана.
// Все три ссылки проверяются независимо, чтобы ошибка содержала полный
// список проблем, а не первую попавшуюся.
func (s *Service) checkReferences(ctx context.Context, clientID, workerID, restaurantID int64) error {
	var causes []error

	if _, err := s.catalog.FindClient(ctx, clientID); err != nil {
		causes = append(causes, fmt.Errorf("client %d: %v", clientID, err))
	}
	if _, err := s.catalog.FindWorker(ctx, workerID); err != nil {
		causes = append(causes, fmt.Errorf("worker %d: %v", workerID, err))
	}
	if _, err := s.catalog.FindRestaurant(ctx, restaurantID); err != nil {
		causes = append(causes, fmt.Errorf("restaurant %d: %v", restaurantID, err))
	}

	if len(causes) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidReference, errors.Join(causes...))
	}
	return nil
}
