package cart

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmfresh/marketplace-backend/internal/catalog"
	"github.com/farmfresh/marketplace-backend/pkg/db"
	"github.com/farmfresh/marketplace-backend/pkg/db/dbtest"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/locks"
	"github.com/farmfresh/marketplace-backend/pkg/metrics"
)

type fixture struct {
	conn *gorm.DB
	svc  Service
	reg  *prometheus.Registry
}

func newFixture(t *testing.T, opts ...func(*ServiceParams)) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	params := ServiceParams{
		Repo:    NewRepository(conn),
		Catalog: catalog.NewRepository(conn),
		Tx:      db.FromGorm(conn),
		Locker:  locks.NewLocalLocker(nil),
		Metrics: metrics.NewCommerceMetrics(reg),
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, reg: reg}
}

func countLines(t *testing.T, conn *gorm.DB, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.CartItem{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func cartOpCount(t *testing.T, reg *prometheus.Registry, op, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "ff_cart_operations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["op"] == op && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	conn := dbtest.Open(t)
	_, err = NewService(ServiceParams{Repo: NewRepository(conn), Catalog: catalog.NewRepository(conn), Tx: db.FromGorm(conn)})
	require.EqualError(t, err, "locker required")
}

func TestAddToCartMergesRepeatedAdds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	eggs := dbtest.SeedProduct(t, f.conn, "Eggs", "6.00", 20)

	first, err := f.svc.AddToCart(ctx, user, eggs.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, AddStatusCreated, first.Status)
	assert.Equal(t, 2, first.Item.Quantity)

	second, err := f.svc.AddToCart(ctx, user, eggs.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, AddStatusMerged, second.Status)
	assert.Equal(t, 5, second.Item.Quantity)
	assert.Equal(t, first.Item.ID, second.Item.ID)

	assert.EqualValues(t, 1, countLines(t, f.conn, user))
	assert.Equal(t, 2.0, cartOpCount(t, f.reg, metrics.CartOpAdd, metrics.ResultOK))
}

func TestAddToCartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	soldOut := dbtest.SeedProduct(t, f.conn, "Morels", "15.00", 0)
	kale := dbtest.SeedProduct(t, f.conn, "Kale", "4.00", 8)

	_, err := f.svc.AddToCart(ctx, user, kale.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity))

	_, err = f.svc.AddToCart(ctx, user, kale.ID, -2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity))

	_, err = f.svc.AddToCart(ctx, user, uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidProduct))

	_, err = f.svc.AddToCart(ctx, user, soldOut.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidProduct))

	_, err = f.svc.AddToCart(ctx, uuid.Nil, kale.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Zero(t, countLines(t, f.conn, user))
}

func TestAddToCartRejectsOversizedQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	flour := dbtest.SeedProduct(t, f.conn, "Flour", "3.50", 40)

	_, err := f.svc.AddToCart(ctx, user, flour.ID, math.MaxInt64)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity))
	assert.Zero(t, countLines(t, f.conn, user))

	_, err = f.svc.UpdateQuantity(ctx, user, flour.ID, MaxLineQuantity+1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity))
}

func TestAddToCartRejectsMergePastLineLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	oats := dbtest.SeedProduct(t, f.conn, "Oats", "2.25", 40)

	_, err := f.svc.AddToCart(ctx, user, oats.ID, MaxLineQuantity-5)
	require.NoError(t, err)

	_, err = f.svc.AddToCart(ctx, user, oats.ID, 10)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity))
	assert.False(t, pkgerrors.IsCode(err, pkgerrors.CodeDependencyUnavailable))

	view, err := f.svc.ListCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, MaxLineQuantity-5, view.Items[0].Quantity)

	merged, err := f.svc.AddToCart(ctx, user, oats.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, MaxLineQuantity, merged.Item.Quantity)
}

func TestAddToCartConcurrentMergesAreNotLost(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	honey := dbtest.SeedProduct(t, f.conn, "Honey", "9.00", 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AddToCart(context.Background(), user, honey.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := f.svc.ListCart(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 10, view.Items[0].Quantity)
}

func TestUpdateQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	milk := dbtest.SeedProduct(t, f.conn, "Milk", "2.00", 10)

	_, err := f.svc.UpdateQuantity(ctx, user, milk.ID, 4)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.AddToCart(ctx, user, milk.ID, 1)
	require.NoError(t, err)

	item, err := f.svc.UpdateQuantity(ctx, user, milk.ID, 4)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 4, item.Quantity)

	_, err = f.svc.UpdateQuantity(ctx, user, milk.ID, -1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidQuantity))

	item, err = f.svc.UpdateQuantity(ctx, user, milk.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Zero(t, countLines(t, f.conn, user))

	item, err = f.svc.UpdateQuantity(ctx, user, milk.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestRemoveFromCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	beets := dbtest.SeedProduct(t, f.conn, "Beets", "3.00", 10)

	require.NoError(t, f.svc.RemoveFromCart(ctx, user, beets.ID, false))
	err := f.svc.RemoveFromCart(ctx, user, beets.ID, true)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.AddToCart(ctx, user, beets.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveFromCart(ctx, user, beets.ID, true))
	assert.Zero(t, countLines(t, f.conn, user))
}

func TestClearCartReturnsRemovedCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	other := uuid.New()
	a := dbtest.SeedProduct(t, f.conn, "Apples", "1.00", 10)
	b := dbtest.SeedProduct(t, f.conn, "Pears", "1.50", 10)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		_, err := f.svc.AddToCart(ctx, user, id, 1)
		require.NoError(t, err)
	}
	_, err := f.svc.AddToCart(ctx, other, a.ID, 1)
	require.NoError(t, err)

	removed, err := f.svc.ClearCart(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	removed, err = f.svc.ClearCart(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.EqualValues(t, 1, countLines(t, f.conn, other))
}

func TestListCartPricesAtCatalogPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	cheese := dbtest.SeedProduct(t, f.conn, "Cheese", "12.50", 5)
	jam := dbtest.SeedProduct(t, f.conn, "Jam", "3.99", 5)

	_, err := f.svc.AddToCart(ctx, user, cheese.ID, 2)
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, user, jam.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", jam.ID).Update("price", "4.49").Error)

	view, err := f.svc.ListCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "Cheese", view.Items[0].ProductName)
	assert.Equal(t, "25", view.Items[0].LineTotal.String())
	assert.Equal(t, "4.49", view.Items[1].UnitPrice.String())
	assert.Equal(t, "29.49", view.TotalAmount.StringFixed(2))
	assert.Equal(t, 3, view.ItemCount)
	assert.False(t, view.IsEmpty)

	var stored []models.CartItem
	require.NoError(t, f.conn.Where("user_id = ?", user).Find(&stored).Error)
	require.Len(t, stored, 2)
	for _, line := range stored {
		assert.Nil(t, line.UnitPriceSnapshot)
	}

	empty, err := f.svc.ListCart(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty)
	assert.Empty(t, empty.Items)
	assert.True(t, empty.TotalAmount.IsZero())
}

func TestCartMutationsFailWhenLockUnavailable(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.Locker = failingLocker{} })
	ctx := context.Background()
	product := dbtest.SeedProduct(t, f.conn, "Garlic", "1.25", 10)

	_, err := f.svc.AddToCart(ctx, uuid.New(), product.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependencyUnavailable))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Retryable)

	_, err = f.svc.ClearCart(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependencyUnavailable))
	assert.Equal(t, 1.0, cartOpCount(t, f.reg, metrics.CartOpClear, metrics.ResultError))
}

func TestAddToCartStorageFailureMapsToDependency(t *testing.T) {
	var repo *failingCreateRepo
	f := newFixture(t, func(p *ServiceParams) {
		repo = &failingCreateRepo{CartRepository: p.Repo}
		p.Repo = repo
	})
	user := uuid.New()
	product := dbtest.SeedProduct(t, f.conn, "Onions", "0.80", 10)

	_, err := f.svc.AddToCart(context.Background(), user, product.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependencyUnavailable))
	assert.Zero(t, countLines(t, f.conn, user))
}

type failingLocker struct{}

func (failingLocker) Lock(ctx context.Context, key string) (locks.Unlock, error) {
	return nil, locks.ErrNotAcquired
}

type failingCreateRepo struct {
	CartRepository
}

func (r *failingCreateRepo) WithTx(tx *gorm.DB) CartRepository {
	return &failingCreateRepo{CartRepository: r.CartRepository.WithTx(tx)}
}

func (r *failingCreateRepo) Create(ctx context.Context, item *models.CartItem) error {
	return errors.New("disk full")
}
