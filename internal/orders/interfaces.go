package orders

import (
	"context"
	"time"

	"github.com/farmfresh/marketplace-backend/pkg/auth"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/payloads"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, current, next enums.OrderStatus, at time.Time) (bool, error)
	ListOrders(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error)
}

// Notifier hears about committed order changes. Delivery is best effort: the
// service logs and counts failures but never fails the request over them.
type Notifier interface {
	OrderCreated(ctx context.Context, actor auth.Actor, event payloads.OrderCreatedEvent) error
	OrderStatusChanged(ctx context.Context, actor auth.Actor, event payloads.OrderStatusChangedEvent) error
}

type nopNotifier struct{}

func (nopNotifier) OrderCreated(context.Context, auth.Actor, payloads.OrderCreatedEvent) error {
	return nil
}

func (nopNotifier) OrderStatusChanged(context.Context, auth.Actor, payloads.OrderStatusChangedEvent) error {
	return nil
}
