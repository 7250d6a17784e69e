package wishlist

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmfresh/marketplace-backend/pkg/pagination"
)

// ItemDTO is one saved product with its current catalog name and price.
type ItemDTO struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	InStock     bool            `json:"inStock"`
	AddedAt     time.Time       `json:"addedAt"`
}

// ItemsPage is a cursor page of wishlist items, newest first.
type ItemsPage = pagination.Page[ItemDTO]
