package wishlist

import (
	"context"
	"errors"
	"time"

	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrItemNotFound is returned when the product is not on the user's wishlist.
var ErrItemNotFound = errors.New("wishlist item not found")

// Repository encapsulates wishlist persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
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

// Create inserts the entry. Duplicates surface as the driver's unique violation.
func (r *Repository) Create(ctx context.Context, item *models.WishlistItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

// Delete removes the user-product entry and reports how many rows went away.
func (r *Repository) Delete(ctx context.Context, userID, productID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{})
	return res.RowsAffected, res.Error
}

// DeleteAll empties the user's wishlist.
func (r *Repository) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.WishlistItem{})
	return res.RowsAffected, res.Error
}

// ListItems returns a page of the user's wishlist joined with the catalog,
// newest first.
func (r *Repository) ListItems(ctx context.Context, userID uuid.UUID, params pagination.Params) (ItemsPage, error) {
	keyset, err := pagination.Keyset(params, "wi.created_at", "wi.id")
	if err != nil {
		return ItemsPage{}, err
	}

	query := r.db.WithContext(ctx).
		Table("wishlist_items wi").
		Select(`wi.id AS wishlist_id,
  wi.product_id AS product_id,
  wi.created_at AS added_at,
  p.name AS product_name,
  p.price AS price,
  p.stock_qty AS stock_qty`).
		Joins("LEFT JOIN products p ON p.id = wi.product_id").
		Where("wi.user_id = ?", userID)

	var records []wishlistRecord
	err = query.Scopes(keyset).Scan(&records).Error
	if err != nil {
		return ItemsPage{}, err
	}

	items := make([]ItemDTO, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDTO())
	}
	return pagination.BuildPage(items, params.Limit, func(item ItemDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: item.AddedAt, ID: item.ID}
	}), nil
}

type wishlistRecord struct {
	WishlistID  uuid.UUID           `gorm:"column:wishlist_id"`
	ProductID   uuid.UUID           `gorm:"column:product_id"`
	AddedAt     time.Time           `gorm:"column:added_at"`
	ProductName *string             `gorm:"column:product_name"`
	Price       decimal.NullDecimal `gorm:"column:price"`
	StockQty    *int                `gorm:"column:stock_qty"`
}

func (r wishlistRecord) toDTO() ItemDTO {
	dto := ItemDTO{
		ID:        r.WishlistID,
		ProductID: r.ProductID,
		Price:     decimal.Zero,
		AddedAt:   r.AddedAt,
	}
	if r.ProductName != nil {
		dto.ProductName = *r.ProductName
	}
	if r.Price.Valid {
		dto.Price = r.Price.Decimal
	}
	if r.StockQty != nil {
		dto.InStock = *r.StockQty > 0
	}
	return dto
}
