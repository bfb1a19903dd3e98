package interfaces

//go:generate mockgen -source=notifier_interface.go -destination=mocks/notifier_mock.go -package=mock_interfaces

import (
	"context"

	"github.com/saccohub/settlement/internal/domain"
)

// INotifier delivers customer and operator notifications. Delivery is best
// effort; callers log a returned error and carry on.
type INotifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
