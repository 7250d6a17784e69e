// Package catalog is the read-only view of the product catalog used by carts,
// checkout and stock analytics. Catalog CRUD lives elsewhere.
package catalog

import (
	"context"
	"errors"

	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultLowStockThreshold is the stock level below which a product counts as low.
const DefaultLowStockThreshold = 10

// ErrProductNotFound is returned when no catalog row matches the id.
var ErrProductNotFound = errors.New("product not found")

// Repository reads product rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to a DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads one product. A missing row yields ErrProductNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads the requested products keyed by id. Unknown ids are absent
// from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// CountAll returns the catalog size.
func (r *Repository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Product{}).Count(&count).Error
	return count, err
}

// CountBelowStock counts products whose stock is under threshold, sold-out
// products included.
func (r *Repository) CountBelowStock(ctx context.Context, threshold int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("stock_qty < ?", threshold).
		Count(&count).Error
	return count, err
}

// CountOutOfStock counts products with no stock left.
func (r *Repository) CountOutOfStock(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("stock_qty <= 0").
		Count(&count).Error
	return count, err
}

// ListLowStock returns products under threshold, lowest stock first.
func (r *Repository) ListLowStock(ctx context.Context, threshold, limit int) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("stock_qty < ?", threshold).
		Order("stock_qty ASC").
		Order("name ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListOutOfStock returns sold-out products by name.
func (r *Repository) ListOutOfStock(ctx context.Context, limit int) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("stock_qty <= 0").
		Order("name ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
