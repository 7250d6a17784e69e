package orders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmfresh/marketplace-backend/internal/cart"
	"github.com/farmfresh/marketplace-backend/internal/catalog"
	"github.com/farmfresh/marketplace-backend/pkg/auth"
	"github.com/farmfresh/marketplace-backend/pkg/db"
	"github.com/farmfresh/marketplace-backend/pkg/db/dbtest"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/locks"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/metrics"
	"github.com/farmfresh/marketplace-backend/pkg/outbox"
	"github.com/farmfresh/marketplace-backend/pkg/outbox/payloads"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	conn *gorm.DB
	svc  Service
	reg  *prometheus.Registry
}

func newLedger(t *testing.T, opts ...func(*ServiceParams)) ledgerFixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.FromGorm(conn)
	reg := prometheus.NewRegistry()

	notifier, err := NewOutboxNotifier(client, outbox.NewService(outbox.NewRepository(conn), logger.Nop()))
	require.NoError(t, err)

	params := ServiceParams{
		Repo:     NewRepository(conn),
		Cart:     cart.NewRepository(conn),
		Catalog:  catalog.NewRepository(conn),
		Tx:       client,
		Locker:   locks.NewLocalLocker(nil),
		Notifier: notifier,
		Metrics:  metrics.NewCommerceMetrics(reg),
		Now:      func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return ledgerFixture{conn: conn, svc: svc, reg: reg}
}

func customer() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Email: "ada@example.com", Name: "Ada Lovelace", Role: enums.RoleCustomer}
}

func admin() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Email: "ops@farmfresh.test", Name: "Ops", Role: enums.RoleAdmin}
}

func putInCart(t *testing.T, conn *gorm.DB, userID, productID uuid.UUID, quantity int) {
	t.Helper()
	require.NoError(t, conn.Create(&models.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}).Error)
}

func count(t *testing.T, conn *gorm.DB, model any, where ...any) int64 {
	t.Helper()
	var n int64
	query := conn.Model(model)
	if len(where) > 0 {
		query = query.Where(where[0], where[1:]...)
	}
	require.NoError(t, query.Count(&n).Error)
	return n
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, metric := range family.GetMetric() {
			got := map[string]string{}
			for _, pair := range metric.GetLabel() {
				got[pair.GetName()] = pair.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCreateFromCartSnapshotsPricesAndEmptiesCart(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	buyer := customer()

	apples := dbtest.SeedProduct(t, f.conn, "Apples", "12.99", 50)
	honey := dbtest.SeedProduct(t, f.conn, "Honey", "30.98", 5)
	putInCart(t, f.conn, buyer.UserID, apples.ID, 3)
	putInCart(t, f.conn, buyer.UserID, honey.ID, 1)

	order, err := f.svc.CreateFromCart(ctx, buyer, "  12 Orchard Lane  ")
	require.NoError(t, err)

	assert.Equal(t, "69.95", order.TotalAmount.StringFixed(2))
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, "12 Orchard Lane", order.ShippingAddress)
	assert.Equal(t, "ada@example.com", order.CustomerEmail)
	assert.Equal(t, "Ada Lovelace", order.CustomerName)
	assert.Equal(t, 2, order.ItemCount)
	assert.Equal(t, fixedNow, order.CreatedAt)

	sum := order.Items[0].LineTotal.Add(order.Items[1].LineTotal)
	assert.True(t, sum.Equal(order.TotalAmount))

	assert.Zero(t, count(t, f.conn, &models.CartItem{}, "user_id = ?", buyer.UserID))
	assert.EqualValues(t, 2, count(t, f.conn, &models.OrderItem{}, "order_id = ?", order.ID))

	var event models.OutboxEvent
	require.NoError(t, f.conn.Where("aggregate_id = ?", order.ID).Take(&event).Error)
	assert.Equal(t, enums.EventOrderCreated, event.EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(event.Payload, &envelope))
	var payload payloads.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, order.ID, payload.OrderID)
	assert.Len(t, payload.Items, 2)

	assert.Equal(t, 1.0, counterValue(t, f.reg, "ff_orders_created_total", nil))
}

func TestCreateFromCartSnapshotSurvivesPriceChanges(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	buyer := customer()
	eggs := dbtest.SeedProduct(t, f.conn, "Eggs", "6.00", 10)
	putInCart(t, f.conn, buyer.UserID, eggs.ID, 2)

	order, err := f.svc.CreateFromCart(ctx, buyer, "1 Hen Way")
	require.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", eggs.ID).Update("price", "9.00").Error)

	reloaded, err := f.svc.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, "6.00", reloaded.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "12.00", reloaded.TotalAmount.StringFixed(2))
}

func TestCreateFromCartEmptyCart(t *testing.T) {
	f := newLedger(t)

	_, err := f.svc.CreateFromCart(context.Background(), customer(), "1 Farm Road")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))
	assert.Zero(t, count(t, f.conn, &models.Order{}))
	assert.Zero(t, count(t, f.conn, &models.OutboxEvent{}))
}

func TestCreateFromCartValidation(t *testing.T) {
	f := newLedger(t)

	_, err := f.svc.CreateFromCart(context.Background(), auth.Actor{}, "1 Farm Road")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = f.svc.CreateFromCart(context.Background(), customer(), "   ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateFromCartVanishedProductLeavesCartUntouched(t *testing.T) {
	f := newLedger(t)
	buyer := customer()
	kale := dbtest.SeedProduct(t, f.conn, "Kale", "4.00", 10)
	putInCart(t, f.conn, buyer.UserID, kale.ID, 1)
	putInCart(t, f.conn, buyer.UserID, uuid.New(), 2)

	_, err := f.svc.CreateFromCart(context.Background(), buyer, "1 Farm Road")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidProduct))

	assert.EqualValues(t, 2, count(t, f.conn, &models.CartItem{}, "user_id = ?", buyer.UserID))
	assert.Zero(t, count(t, f.conn, &models.Order{}))
	assert.Zero(t, count(t, f.conn, &models.OrderItem{}))
}

func TestCreateFromCartRollsBackWhenCartDeleteFails(t *testing.T) {
	f := newLedger(t, func(p *ServiceParams) {
		p.Cart = failingDeleteCart{CartRepository: p.Cart}
	})
	buyer := customer()
	leeks := dbtest.SeedProduct(t, f.conn, "Leeks", "2.00", 10)
	putInCart(t, f.conn, buyer.UserID, leeks.ID, 4)

	_, err := f.svc.CreateFromCart(context.Background(), buyer, "1 Farm Road")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependencyUnavailable))

	assert.EqualValues(t, 1, count(t, f.conn, &models.CartItem{}, "user_id = ?", buyer.UserID))
	assert.Zero(t, count(t, f.conn, &models.Order{}))
	assert.Zero(t, count(t, f.conn, &models.OrderItem{}))
}

func TestCreateFromCartNotifierFailureDoesNotFailCheckout(t *testing.T) {
	f := newLedger(t, func(p *ServiceParams) { p.Notifier = failingNotifier{} })
	buyer := customer()
	jam := dbtest.SeedProduct(t, f.conn, "Jam", "3.50", 10)
	putInCart(t, f.conn, buyer.UserID, jam.ID, 1)

	order, err := f.svc.CreateFromCart(context.Background(), buyer, "1 Farm Road")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, order.ID)
	assert.Equal(t, 1.0, counterValue(t, f.reg, "ff_order_notifications_failed_total", map[string]string{"event": "order_created"}))
}

func TestSetStatusFollowsGraph(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	ops := admin()
	order := dbtest.SeedOrder(t, f.conn, uuid.New(), "ada@example.com", enums.OrderStatusPending, fixedNow.Add(-time.Hour),
		dbtest.OrderLine{Name: "Figs", Price: "8.00", Quantity: 1})

	shipped, err := f.svc.SetStatus(ctx, ops, order.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, shipped.Status)
	assert.Equal(t, fixedNow, shipped.UpdatedAt)

	_, err = f.svc.SetStatus(ctx, ops, order.ID, "pending")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition))

	_, err = f.svc.SetStatus(ctx, ops, order.ID, "shipped")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition))

	delivered, err := f.svc.SetStatus(ctx, ops, order.ID, "Delivered")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)

	var stored models.Order
	require.NoError(t, f.conn.Where("id = ?", order.ID).Take(&stored).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
	assert.True(t, stored.TotalAmount.Equal(order.TotalAmount))

	assert.Equal(t, 1.0, counterValue(t, f.reg, "ff_order_transitions_total", map[string]string{"from": "pending", "to": "shipped"}))
	assert.EqualValues(t, 2, count(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderStatusChanged))
}

func TestSetStatusCancelledIsTerminal(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	ops := admin()
	order := dbtest.SeedOrder(t, f.conn, uuid.New(), "ada@example.com", enums.OrderStatusProcessing, fixedNow,
		dbtest.OrderLine{Name: "Figs", Price: "8.00", Quantity: 1})

	_, err := f.svc.SetStatus(ctx, ops, order.ID, "cancelled")
	require.NoError(t, err)

	for _, next := range []string{"pending", "processing", "shipped", "delivered", "cancelled"} {
		_, err := f.svc.SetStatus(ctx, ops, order.ID, next)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition), next)
	}
}

func TestSetStatusCheckOrder(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()

	_, err := f.svc.SetStatus(ctx, customer(), uuid.New(), "shipped")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.SetStatus(ctx, admin(), uuid.New(), "returned")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidStatus))

	_, err = f.svc.SetStatus(ctx, admin(), uuid.New(), "shipped")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSetStatusNotifierFailureIsSwallowed(t *testing.T) {
	f := newLedger(t, func(p *ServiceParams) { p.Notifier = failingNotifier{} })
	order := dbtest.SeedOrder(t, f.conn, uuid.New(), "ada@example.com", enums.OrderStatusPending, fixedNow,
		dbtest.OrderLine{Name: "Figs", Price: "8.00", Quantity: 1})

	updated, err := f.svc.SetStatus(context.Background(), admin(), order.ID, "processing")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, updated.Status)
	assert.Equal(t, 1.0, counterValue(t, f.reg, "ff_order_notifications_failed_total", map[string]string{"event": "order_status_changed"}))
}

func TestGetOrderVisibility(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	owner := customer()
	order := dbtest.SeedOrder(t, f.conn, owner.UserID, owner.Email, enums.OrderStatusPending, fixedNow,
		dbtest.OrderLine{Name: "Basil", Price: "2.00", Quantity: 2},
		dbtest.OrderLine{Name: "Apples", Price: "1.00", Quantity: 1})

	got, err := f.svc.GetOrder(ctx, owner, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Apples", got.Items[0].ProductName)

	_, err = f.svc.GetOrder(ctx, admin(), order.ID)
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, customer(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.GetOrder(ctx, owner, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListOrdersScopesCustomers(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	owner := customer()
	dbtest.SeedOrder(t, f.conn, owner.UserID, owner.Email, enums.OrderStatusPending, fixedNow,
		dbtest.OrderLine{Name: "Basil", Price: "2.00", Quantity: 1})
	dbtest.SeedOrder(t, f.conn, uuid.New(), "bob@example.com", enums.OrderStatusPending, fixedNow,
		dbtest.OrderLine{Name: "Basil", Price: "2.00", Quantity: 1})

	mine, err := f.svc.ListOrders(ctx, owner, OrderFilters{}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, mine.Orders, 1)
	assert.Equal(t, owner.UserID, mine.Orders[0].UserID)

	all, err := f.svc.ListOrders(ctx, admin(), OrderFilters{}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 2)

	from := fixedNow
	to := fixedNow.Add(-time.Hour)
	_, err = f.svc.ListOrders(ctx, admin(), OrderFilters{DateFrom: &from, DateTo: &to}, pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidRange))

	_, err = f.svc.ListOrders(ctx, admin(), OrderFilters{}, pagination.Params{Cursor: "***"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type failingNotifier struct{}

func (failingNotifier) OrderCreated(context.Context, auth.Actor, payloads.OrderCreatedEvent) error {
	return errors.New("outbox unavailable")
}

func (failingNotifier) OrderStatusChanged(context.Context, auth.Actor, payloads.OrderStatusChangedEvent) error {
	return errors.New("outbox unavailable")
}

type failingDeleteCart struct {
	cart.CartRepository
}

func (f failingDeleteCart) WithTx(tx *gorm.DB) cart.CartRepository {
	return failingDeleteCart{CartRepository: f.CartRepository.WithTx(tx)}
}

func (failingDeleteCart) DeleteAll(context.Context, uuid.UUID) (int64, error) {
	return 0, errors.New("lock timeout")
}
