package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/farmfresh/marketplace-backend/internal/catalog"
	"github.com/farmfresh/marketplace-backend/pkg/db"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/locks"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const uniqueCartLine = "ux_cart_items_user_product"

// MaxLineQuantity is the largest quantity one cart line may hold; the column
// is a 32-bit integer.
const MaxLineQuantity = math.MaxInt32

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart operations. Every mutation holds locks.CartKey for the
// user, so merges and checkout never interleave.
type Service interface {
	AddToCart(ctx context.Context, userID, productID uuid.UUID, quantity int) (AddResult, error)
	UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*ItemDTO, error)
	RemoveFromCart(ctx context.Context, userID, productID uuid.UUID, strict bool) error
	ClearCart(ctx context.Context, userID uuid.UUID) (int64, error)
	ListCart(ctx context.Context, userID uuid.UUID) (*CartView, error)

	// MergeOrCreateTx applies AddToCart's merge-or-create inside tx. The
	// caller must already hold locks.CartKey(userID).
	MergeOrCreateTx(ctx context.Context, tx *gorm.DB, userID, productID uuid.UUID, quantity int) (AddResult, error)
}

// ServiceParams groups dependencies for the cart service.
type ServiceParams struct {
	Repo    CartRepository
	Catalog *catalog.Repository
	Tx      txRunner
	Locker  locks.Locker
	Metrics *metrics.CommerceMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    CartRepository
	catalog *catalog.Repository
	tx      txRunner
	locker  locks.Locker
	metrics *metrics.CommerceMetrics
	logg    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
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
		repo:    params.Repo,
		catalog: params.Catalog,
		tx:      params.Tx,
		locker:  params.Locker,
		metrics: params.Metrics,
		logg:    logg,
	}, nil
}

// AddToCart merges quantity into the existing line or creates one for an
// in-stock product.
func (s *service) AddToCart(ctx context.Context, userID, productID uuid.UUID, quantity int) (result AddResult, err error) {
	defer func() { s.metrics.CartOperation(metrics.CartOpAdd, err) }()

	if err := validateIDs(userID, productID); err != nil {
		return AddResult{}, err
	}
	if err := ValidateAddQuantity(quantity); err != nil {
		return AddResult{}, err
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(userID))
	if err != nil {
		return AddResult{}, err
	}
	defer unlock()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.MergeOrCreateTx(ctx, tx, userID, productID, quantity)
		return txErr
	})
	if err != nil {
		return AddResult{}, pkgerrors.Classify(err, pkgerrors.CodeDependencyUnavailable, "add to cart failed")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":    userID.String(),
		"product_id": productID.String(),
		"status":     string(result.Status),
		"quantity":   result.Item.Quantity,
	})
	s.logg.Debug(ctx, "cart item added")
	return result, nil
}

func (s *service) MergeOrCreateTx(ctx context.Context, tx *gorm.DB, userID, productID uuid.UUID, quantity int) (AddResult, error) {
	if err := ValidateAddQuantity(quantity); err != nil {
		return AddResult{}, err
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.Find(ctx, userID, productID)
	switch {
	case err == nil:
		if quantity > MaxLineQuantity-existing.Quantity {
			return AddResult{}, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "merged quantity exceeds the per-line limit").
				WithDetails(map[string]string{
					"current": strconv.Itoa(existing.Quantity),
					"max":     strconv.Itoa(MaxLineQuantity),
				})
		}
		merged, err := repo.IncrementQuantity(ctx, existing.ID, quantity)
		if err != nil {
			return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "merge cart item")
		}
		return AddResult{Item: toItemDTO(*merged), Status: AddStatusMerged}, nil
	case !errors.Is(err, ErrItemNotFound):
		return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "load cart item")
	}

	product, err := s.catalog.WithTx(tx).FindByID(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return AddResult{}, pkgerrors.New(pkgerrors.CodeInvalidProduct, "product does not exist")
	}
	if err != nil {
		return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "load product")
	}
	if !product.InStock() {
		return AddResult{}, pkgerrors.New(pkgerrors.CodeInvalidProduct, "product is out of stock")
	}

	item := &models.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}
	if err := repo.Create(ctx, item); err != nil {
		if db.IsUniqueViolation(err, uniqueCartLine) {
			return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "cart changed concurrently, retry")
		}
		return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "create cart item")
	}
	return AddResult{Item: toItemDTO(*item), Status: AddStatusCreated}, nil
}

// UpdateQuantity sets the line quantity. Zero removes the line and returns nil.
func (s *service) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (item *ItemDTO, err error) {
	op := metrics.CartOpUpdate
	if quantity == 0 {
		op = metrics.CartOpRemove
	}
	defer func() { s.metrics.CartOperation(op, err) }()

	if err := validateIDs(userID, productID); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity cannot be negative")
	}
	if quantity > MaxLineQuantity {
		return nil, quantityTooLarge()
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if quantity == 0 {
		if _, err := s.repo.Delete(ctx, userID, productID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "remove cart item")
		}
		return nil, nil
	}

	updated, err := s.repo.SetQuantity(ctx, userID, productID, quantity)
	if errors.Is(err, ErrItemNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "update cart item")
	}
	dto := toItemDTO(*updated)
	return &dto, nil
}

// RemoveFromCart deletes the line. Only strict callers learn it was absent.
func (s *service) RemoveFromCart(ctx context.Context, userID, productID uuid.UUID, strict bool) (err error) {
	defer func() { s.metrics.CartOperation(metrics.CartOpRemove, err) }()

	if err := validateIDs(userID, productID); err != nil {
		return err
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	removed, err := s.repo.Delete(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "remove cart item")
	}
	if removed == 0 && strict {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
	}
	return nil
}

// ClearCart removes every line and returns how many went away.
func (s *service) ClearCart(ctx context.Context, userID uuid.UUID) (removed int64, err error) {
	defer func() { s.metrics.CartOperation(metrics.CartOpClear, err) }()

	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	unlock, err := locks.Acquire(ctx, s.locker, locks.CartKey(userID))
	if err != nil {
		return 0, err
	}
	defer unlock()

	removed, err = s.repo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "clear cart")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"user_id": userID.String(), "removed": removed})
	s.logg.Info(ctx, "cart cleared")
	return removed, nil
}

// ListCart prices the cart at current catalog prices.
func (s *service) ListCart(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "list cart")
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, "load cart products")
	}
	return buildView(items, products), nil
}

// ValidateAddQuantity checks a quantity being added to a line.
func ValidateAddQuantity(quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be greater than zero")
	}
	if quantity > MaxLineQuantity {
		return quantityTooLarge()
	}
	return nil
}

func quantityTooLarge() error {
	return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity exceeds the per-line limit").
		WithDetails(map[string]string{"max": strconv.Itoa(MaxLineQuantity)})
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
