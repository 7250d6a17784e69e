package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmfresh/marketplace-backend/pkg/db/dbtest"
)

func TestRepositoryFindByID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	carrots := dbtest.SeedProduct(t, conn, "Carrots", "2.50", 40)

	got, err := repo.FindByID(ctx, carrots.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carrots", got.Name)
	assert.Equal(t, "2.5", got.Price.String())

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestRepositoryFindByIDs(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	a := dbtest.SeedProduct(t, conn, "Apples", "1.00", 5)
	b := dbtest.SeedProduct(t, conn, "Beets", "3.00", 5)

	got, err := repo.FindByIDs(context.Background(), []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Beets", got[b.ID].Name)

	empty, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRepositoryStockQueries(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	dbtest.SeedProduct(t, conn, "Kale", "4.00", 0)
	dbtest.SeedProduct(t, conn, "Eggs", "6.00", 3)
	dbtest.SeedProduct(t, conn, "Honey", "9.00", 9)
	dbtest.SeedProduct(t, conn, "Milk", "2.00", 10)
	dbtest.SeedProduct(t, conn, "Cheese", "7.00", 0)

	total, err := repo.CountAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)

	low, err := repo.CountBelowStock(ctx, DefaultLowStockThreshold)
	require.NoError(t, err)
	assert.EqualValues(t, 4, low)

	out, err := repo.CountOutOfStock(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, out)

	lowRows, err := repo.ListLowStock(ctx, DefaultLowStockThreshold, 3)
	require.NoError(t, err)
	require.Len(t, lowRows, 3)
	assert.Equal(t, []string{"Cheese", "Kale", "Eggs"}, []string{lowRows[0].Name, lowRows[1].Name, lowRows[2].Name})

	outRows, err := repo.ListOutOfStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, outRows, 2)
	assert.Equal(t, "Cheese", outRows[0].Name)
}

func TestRepositoryWithTxNil(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	assert.Same(t, repo, repo.WithTx(nil))
}
