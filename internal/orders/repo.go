package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrOrderNotFound is returned when no order matches the id.
var ErrOrderNotFound = errors.New("order not found")

const itemCountSubquery = "(SELECT COUNT(*) FROM order_items oi WHERE oi.order_id = o.id) AS item_count"

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order and its items.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// FindOrder loads the order with its items sorted by product name.
func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("product_name ASC").Order("id ASC")
		}).
		Where("id = ?", id).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatusIfCurrent moves the order to next only while it is still in
// current. It reports false when another writer got there first.
func (r *repository) UpdateStatusIfCurrent(ctx context.Context, id uuid.UUID, current, next enums.OrderStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, current).
		Updates(map[string]any{
			"status":     next,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListOrders returns a page of orders newest first.
func (r *repository) ListOrders(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error) {
	keyset, err := pagination.Keyset(params, "o.created_at", "o.id")
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Table("orders o").
		Select(strings.Join([]string{
			"o.id",
			"o.user_id",
			"o.customer_email",
			"o.customer_name",
			"o.status",
			"o.total_amount",
			"o.shipping_address",
			"o.created_at",
			"o.updated_at",
			itemCountSubquery,
		}, ", "))
	query = applyFilters(query, filters)

	var records []orderRecord
	err = query.Scopes(keyset).Scan(&records).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]OrderDTO, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, record.toDTO())
	}
	page := pagination.BuildPage(summaries, params.Limit, func(order OrderDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: order.CreatedAt, ID: order.ID}
	})
	return &OrderList{Orders: page.Items, NextCursor: page.NextCursor}, nil
}

func applyFilters(query *gorm.DB, filters OrderFilters) *gorm.DB {
	if filters.UserID != nil {
		query = query.Where("o.user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		query = query.Where("o.status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("o.created_at >= ?", filters.DateFrom.UTC())
	}
	if filters.DateTo != nil {
		query = query.Where("o.created_at <= ?", filters.DateTo.UTC())
	}
	if q := strings.TrimSpace(filters.Query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		query = query.Where(
			`(LOWER(CAST(o.id AS TEXT)) LIKE ? ESCAPE '\' OR LOWER(o.customer_name) LIKE ? ESCAPE '\' OR LOWER(o.customer_email) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern,
		)
	}
	return query
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

type orderRecord struct {
	ID              uuid.UUID         `gorm:"column:id"`
	UserID          uuid.UUID         `gorm:"column:user_id"`
	CustomerEmail   string            `gorm:"column:customer_email"`
	CustomerName    string            `gorm:"column:customer_name"`
	Status          enums.OrderStatus `gorm:"column:status"`
	TotalAmount     decimal.Decimal   `gorm:"column:total_amount"`
	ShippingAddress string            `gorm:"column:shipping_address"`
	CreatedAt       time.Time         `gorm:"column:created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at"`
	ItemCount       int               `gorm:"column:item_count"`
}

func (r orderRecord) toDTO() OrderDTO {
	return OrderDTO{
		ID:              r.ID,
		UserID:          r.UserID,
		CustomerEmail:   r.CustomerEmail,
		CustomerName:    r.CustomerName,
		Status:          r.Status,
		TotalAmount:     r.TotalAmount,
		ShippingAddress: r.ShippingAddress,
		ItemCount:       r.ItemCount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
