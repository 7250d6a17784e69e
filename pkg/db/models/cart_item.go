package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one product line in a user's cart; (user_id, product_id) is unique.
// UnitPriceSnapshot stays null: the cart is priced live and checkout copies
// prices into order_items before the lines are deleted.
type CartItem struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_cart_items_user_product"`
	ProductID         uuid.UUID        `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_items_user_product"`
	Quantity          int              `gorm:"column:quantity;not null"`
	UnitPriceSnapshot *decimal.Decimal `gorm:"column:unit_price_snapshot;type:numeric(12,2)"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
