package wishlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmfresh/marketplace-backend/internal/cart"
	"github.com/farmfresh/marketplace-backend/internal/catalog"
	"github.com/farmfresh/marketplace-backend/pkg/db"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/locks"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/metrics"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const uniqueWishlistEntry = "ux_wishlist_items_user_product"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartMerger interface {
	MergeOrCreateTx(ctx context.Context, tx *gorm.DB, userID, productID uuid.UUID, quantity int) (cart.AddResult, error)
}

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	WishlistRepo *Repository
	Catalog      *catalog.Repository
	Cart         cartMerger
	Tx           txRunner
	Locker       locks.Locker
	Metrics      *metrics.CommerceMetrics
	Logger       *logger.Logger
}

// Service exposes business rules for wishlist management.
type Service interface {
	AddToWishlist(ctx context.Context, userID, productID uuid.UUID) (*ItemDTO, error)
	MoveToCart(ctx context.Context, userID, productID uuid.UUID, quantity int) (cart.AddResult, error)
	ListWishlist(ctx context.Context, userID uuid.UUID, params pagination.Params) (ItemsPage, error)
	RemoveFromWishlist(ctx context.Context, userID, productID uuid.UUID, strict bool) error
	ClearWishlist(ctx context.Context, userID uuid.UUID) (int64, error)
}

type service struct {
	wishlistRepo *Repository
	catalog      *catalog.Repository
	cart         cartMerger
	tx           txRunner
	locker       locks.Locker
	metrics      *metrics.CommerceMetrics
	logg         *logger.Logger
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.WishlistRepo == nil {
		return nil, fmt.Errorf("wishlist repo required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		wishlistRepo: params.WishlistRepo,
		catalog:      params.Catalog,
		cart:         params.Cart,
		tx:           params.Tx,
		locker:       params.Locker,
		metrics:      params.Metrics,
		logg:         logg,
	}, nil
}

// AddToWishlist saves a catalog product. Saving it twice is a DuplicateEntry.
func (s *service) AddToWishlist(ctx context.Context, userID, productID uuid.UUID) (dto *ItemDTO, err error) {
	defer func() { s.metrics.CartOperation(metrics.CartOpWishlistAdd, err) }()

	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	product, err := s.catalog.FindByID(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidProduct, "product does not exist")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "load product")
	}

	item := &models.WishlistItem{UserID: userID, ProductID: productID}
	if err := s.wishlistRepo.Create(ctx, item); err != nil {
		if db.IsUniqueViolation(err, uniqueWishlistEntry) {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateEntry, "product is already in the wishlist")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "add wishlist item")
	}

	return &ItemDTO{
		ID:          item.ID,
		ProductID:   productID,
		ProductName: product.Name,
		Price:       product.Price,
		InStock:     product.InStock(),
		AddedAt:     item.CreatedAt,
	}, nil
}

// MoveToCart removes the wishlist entry and merges it into the cart in one
// transaction; a failure on either side leaves both untouched.
func (s *service) MoveToCart(ctx context.Context, userID, productID uuid.UUID, quantity int) (result cart.AddResult, err error) {
	defer func() { s.metrics.CartOperation(metrics.CartOpMoveToCart, err) }()

	if err := validateIDs(userID, productID); err != nil {
		return cart.AddResult{}, err
	}
	if err := cart.ValidateAddQuantity(quantity); err != nil {
		return cart.AddResult{}, err
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(userID))
	if err != nil {
		return cart.AddResult{}, err
	}
	defer unlock()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		removed, err := s.wishlistRepo.WithTx(tx).Delete(ctx, userID, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "remove wishlist item")
		}
		if removed == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the wishlist")
		}
		result, err = s.cart.MergeOrCreateTx(ctx, tx, userID, productID, quantity)
		return err
	})
	if err != nil {
		return cart.AddResult{}, pkgerrors.Classify(err, pkgerrors.CodeDependencyUnavailable, "move to cart failed")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":    userID.String(),
		"product_id": productID.String(),
		"status":     string(result.Status),
	})
	s.logg.Info(ctx, "wishlist item moved to cart")
	return result, nil
}

// ListWishlist returns the user's saved products, newest first.
func (s *service) ListWishlist(ctx context.Context, userID uuid.UUID, params pagination.Params) (ItemsPage, error) {
	if userID == uuid.Nil {
		return ItemsPage{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	page, err := s.wishlistRepo.ListItems(ctx, userID, params)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return ItemsPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return ItemsPage{}, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "list wishlist")
	}
	return page, nil
}

// RemoveFromWishlist drops the entry. Only strict callers learn it was absent.
func (s *service) RemoveFromWishlist(ctx context.Context, userID, productID uuid.UUID, strict bool) (err error) {
	defer func() { s.metrics.CartOperation(metrics.CartOpWishlistRemove, err) }()

	if err := validateIDs(userID, productID); err != nil {
		return err
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	removed, err := s.wishlistRepo.Delete(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "remove wishlist item")
	}
	if removed == 0 && strict {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the wishlist")
	}
	return nil
}

// ClearWishlist removes every entry and returns how many went away.
func (s *service) ClearWishlist(ctx context.Context, userID uuid.UUID) (removed int64, err error) {
	defer func() { s.metrics.CartOperation(metrics.CartOpWishlistClear, err) }()

	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(userID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	removed, err = s.wishlistRepo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "clear wishlist")
	}
	return removed, nil
}

func validateIDs(userID, productID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidProduct, "product id is required")
	}
	return nil
}
