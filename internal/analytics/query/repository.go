// Package query reads order and order item rows for the analytics rollups.
// Aggregation happens in Go so the same queries run on Postgres and SQLite.
package query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
)

const (
	ordersInRangeSQL = `
SELECT
  o.id,
  o.customer_email,
  o.total_amount,
  o.status,
  o.created_at,
  (SELECT COUNT(*) FROM order_items oi WHERE oi.order_id = o.id) AS items_count
FROM orders o
WHERE o.created_at >= ? AND o.created_at < ?
ORDER BY o.created_at ASC, o.id ASC
`

	saleLinesInRangeSQL = `
SELECT
  oi.product_id,
  oi.product_name,
  oi.unit_price,
  oi.quantity,
  o.created_at
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
WHERE o.created_at >= ? AND o.created_at < ?
`
)

// Repository runs plain, lock-free SELECTs against the primary database.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to a DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type orderRecord struct {
	ID            uuid.UUID       `gorm:"column:id"`
	CustomerEmail string          `gorm:"column:customer_email"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount"`
	Status        string          `gorm:"column:status"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	ItemsCount    int64           `gorm:"column:items_count"`
}

type saleLineRecord struct {
	ProductID   uuid.UUID       `gorm:"column:product_id"`
	ProductName string          `gorm:"column:product_name"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price"`
	Quantity    int64           `gorm:"column:quantity"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
}

// OrdersBetween returns orders created in [from, until), oldest first, each
// with its item row count.
func (r *Repository) OrdersBetween(ctx context.Context, from, until time.Time) ([]types.OrderRow, error) {
	var records []orderRecord
	if err := r.db.WithContext(ctx).Raw(ordersInRangeSQL, from.UTC(), until.UTC()).Scan(&records).Error; err != nil {
		return nil, err
	}
	rows := make([]types.OrderRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, types.OrderRow{
			ID:            rec.ID,
			CustomerEmail: rec.CustomerEmail,
			TotalAmount:   rec.TotalAmount,
			Status:        rec.Status,
			CreatedAt:     rec.CreatedAt.UTC(),
			ItemsCount:    rec.ItemsCount,
		})
	}
	return rows, nil
}

// SaleLinesBetween returns every order item whose order was created in
// [from, until).
func (r *Repository) SaleLinesBetween(ctx context.Context, from, until time.Time) ([]types.SaleLine, error) {
	var records []saleLineRecord
	if err := r.db.WithContext(ctx).Raw(saleLinesInRangeSQL, from.UTC(), until.UTC()).Scan(&records).Error; err != nil {
		return nil, err
	}
	lines := make([]types.SaleLine, 0, len(records))
	for _, rec := range records {
		lines = append(lines, types.SaleLine{
			ProductID:   rec.ProductID,
			ProductName: rec.ProductName,
			UnitPrice:   rec.UnitPrice,
			Quantity:    rec.Quantity,
			CreatedAt:   rec.CreatedAt.UTC(),
		})
	}
	return lines, nil
}

// CountByStatus counts all orders currently in status, regardless of age.
func (r *Repository) CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("orders").
		Where("status = ?", string(status)).
		Count(&count).Error
	return count, err
}

