package cart

import (
	"context"

	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	Find(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error)
	Create(ctx context.Context, item *models.CartItem) error
	IncrementQuantity(ctx context.Context, id uuid.UUID, delta int) (*models.CartItem, error)
	SetQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*models.CartItem, error)
	Delete(ctx context.Context, userID, productID uuid.UUID) (int64, error)
	DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
}
