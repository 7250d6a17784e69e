package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farmfresh/marketplace-backend/internal/cart"
	"github.com/farmfresh/marketplace-backend/internal/catalog"
	"github.com/farmfresh/marketplace-backend/pkg/auth"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/locks"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/metrics"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/payloads"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxShippingAddressLength = 1000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the order ledger: checkout from the cart and the status
// lifecycle that follows it.
type Service interface {
	CreateFromCart(ctx context.Context, actor auth.Actor, shippingAddress string) (*OrderDTO, error)
	SetStatus(ctx context.Context, actor auth.Actor, orderID uuid.UUID, newStatus string) (*OrderDTO, error)
	ListOrders(ctx context.Context, actor auth.Actor, filters OrderFilters, params pagination.Params) (*OrderList, error)
	GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*OrderDTO, error)
}

// ServiceParams groups dependencies for the orders service.
type ServiceParams struct {
	Repo     Repository
	Cart     cart.CartRepository
	Catalog  *catalog.Repository
	Tx       txRunner
	Locker   locks.Locker
	Notifier Notifier
	Metrics  *metrics.CommerceMetrics
	Logger   *logger.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

type service struct {
	repo     Repository
	cart     cart.CartRepository
	catalog  *catalog.Repository
	tx       txRunner
	locker   locks.Locker
	notifier Notifier
	metrics  *metrics.CommerceMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order ledger with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		cart:     params.Cart,
		catalog:  params.Catalog,
		tx:       params.Tx,
		locker:   params.Locker,
		notifier: notifier,
		metrics:  params.Metrics,
		logg:     logg,
		now:      now,
	}, nil
}

// CreateFromCart snapshots the cart at live catalog prices into a pending
// order and empties the cart, all in one transaction.
func (s *service) CreateFromCart(ctx context.Context, actor auth.Actor, shippingAddress string) (*OrderDTO, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	shippingAddress = strings.TrimSpace(shippingAddress)
	if shippingAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if len(shippingAddress) > maxShippingAddressLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is too long")
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(actor.UserID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cart.WithTx(tx)
		lines, err := cartRepo.ListByUser(ctx, actor.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "load cart")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}

		ids := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ProductID)
		}
		products, err := s.catalog.WithTx(tx).FindByIDs(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "load cart products")
		}

		order, err = buildOrder(actor, shippingAddress, lines, products, s.now().UTC())
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "create order")
		}
		if _, err := cartRepo.DeleteAll(ctx, actor.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Classify(err, pkgerrors.CodeDependencyUnavailable, "checkout failed")
	}

	s.metrics.OrderCreated()
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":      actor.UserID.String(),
		"total_amount": order.TotalAmount.StringFixed(2),
		"items":        len(order.Items),
	})
	s.logg.Info(ctx, "order created")

	if err := s.notifier.OrderCreated(ctx, actor, orderCreatedEvent(*order)); err != nil {
		s.metrics.NotificationFailed(string(enums.EventOrderCreated))
		s.logg.Error(ctx, "order created notification failed", err)
	}

	dto := toOrderDTO(*order)
	return &dto, nil
}

func buildOrder(actor auth.Actor, shippingAddress string, lines []models.CartItem, products map[uuid.UUID]models.Product, now time.Time) (*models.Order, error) {
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          actor.UserID,
		CustomerEmail:   actor.Email,
		CustomerName:    actor.Name,
		Status:          enums.OrderStatusPending,
		ShippingAddress: shippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           make([]models.OrderItem, 0, len(lines)),
	}
	total := decimal.Zero
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidProduct, "a product in the cart is no longer available").
				WithDetails(map[string]string{"productId": line.ProductID.String()})
		}
		item := models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    line.Quantity,
		}
		total = total.Add(item.LineTotal())
		order.Items = append(order.Items, item)
	}
	order.TotalAmount = total
	return order, nil
}

// SetStatus applies an admin transition along the order status graph.
func (s *service) SetStatus(ctx context.Context, actor auth.Actor, orderID uuid.UUID, newStatus string) (*OrderDTO, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can change order status")
	}
	next, err := enums.ParseOrderStatus(newStatus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidStatus, err, "invalid order status").
			WithDetails(map[string]any{"allowed": enums.OrderStatuses()})
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.OrderKey(orderID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		order    *models.Order
		previous enums.OrderStatus
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindOrder(ctx, orderID)
		if errors.Is(err, ErrOrderNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "load order")
		}
		previous = found.Status
		if !previous.CanTransitionTo(next) {
			return illegalTransition(previous, next)
		}

		at := s.now().UTC()
		applied, err := repo.UpdateStatusIfCurrent(ctx, orderID, previous, next, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "update order status")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeIllegalTransition, "order status changed concurrently")
		}
		found.Status = next
		found.UpdatedAt = at
		order = found
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Classify(err, pkgerrors.CodeDependencyUnavailable, "status update failed")
	}

	s.metrics.OrderTransition(previous.String(), next.String())
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"from":       previous.String(),
		"to":         next.String(),
		"changed_by": actor.UserID.String(),
	})
	s.logg.Info(ctx, "order status changed")

	event := payloads.OrderStatusChangedEvent{
		OrderID:        order.ID,
		UserID:         order.UserID,
		CustomerEmail:  order.CustomerEmail,
		PreviousStatus: previous,
		Status:         next,
		TotalAmount:    order.TotalAmount,
		ChangedBy:      actor.UserID,
		ChangedAt:      order.UpdatedAt,
	}
	if err := s.notifier.OrderStatusChanged(ctx, actor, event); err != nil {
		s.metrics.NotificationFailed(string(enums.EventOrderStatusChanged))
		s.logg.Error(ctx, "order status notification failed", err)
	}

	dto := toOrderDTO(*order)
	return &dto, nil
}

func illegalTransition(from, to enums.OrderStatus) error {
	return pkgerrors.Newf(pkgerrors.CodeIllegalTransition, "cannot move order from %s to %s", from, to).
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": from.AllowedTransitions(),
		})
}

// ListOrders pages through orders. Admins see every order; customers only
// their own.
func (s *service) ListOrders(ctx context.Context, actor auth.Actor, filters OrderFilters, params pagination.Params) (*OrderList, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.IsAdmin() {
		userID := actor.UserID
		filters.UserID = &userID
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidStatus, "invalid order status")
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateFrom.After(*filters.DateTo) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRange, "date_from must not be after date_to")
	}

	list, err := s.repo.ListOrders(ctx, filters, params)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "list orders")
	}
	return list, nil
}

// GetOrder returns one order with its items. Orders of other customers are
// reported as missing.
func (s *service) GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*OrderDTO, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "load order")
	}
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := toOrderDTO(*order)
	return &dto, nil
}

func orderCreatedEvent(order models.Order) payloads.OrderCreatedEvent {
	items := make([]payloads.OrderItemSnapshot, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderItemSnapshot{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}
	return payloads.OrderCreatedEvent{
		OrderID:         order.ID,
		UserID:          order.UserID,
		CustomerEmail:   order.CustomerEmail,
		CustomerName:    order.CustomerName,
		Status:          order.Status,
		TotalAmount:     order.TotalAmount,
		ShippingAddress: order.ShippingAddress,
		Items:           items,
		CreatedAt:       order.CreatedAt,
	}
}
