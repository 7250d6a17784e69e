package cart

import (
	"time"

	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddStatus tells callers whether an add merged into an existing line.
type AddStatus string

const (
	AddStatusMerged  AddStatus = "merged"
	AddStatusCreated AddStatus = "created"
)

// ItemDTO is a persisted cart line.
type ItemDTO struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AddResult is returned by AddToCart and wishlist promotion.
type AddResult struct {
	Item   ItemDTO   `json:"item"`
	Status AddStatus `json:"status"`
}

// LineDTO is a cart line priced at the current catalog price.
type LineDTO struct {
	ItemDTO
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	InStock     bool            `json:"inStock"`
}

// CartView is the priced content of a user's cart.
type CartView struct {
	Items       []LineDTO       `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	ItemCount   int             `json:"itemCount"`
	IsEmpty     bool            `json:"isEmpty"`
}

func toItemDTO(item models.CartItem) ItemDTO {
	return ItemDTO{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

// buildView prices lines against the catalog snapshot. Lines whose product
// vanished from the catalog stay visible at zero so the user can remove them.
func buildView(items []models.CartItem, products map[uuid.UUID]models.Product) *CartView {
	view := &CartView{Items: make([]LineDTO, 0, len(items)), TotalAmount: decimal.Zero}
	for _, item := range items {
		line := LineDTO{ItemDTO: toItemDTO(item), UnitPrice: decimal.Zero, LineTotal: decimal.Zero}
		if product, ok := products[item.ProductID]; ok {
			line.ProductName = product.Name
			line.UnitPrice = product.Price
			line.LineTotal = product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			line.InStock = product.InStock()
		}
		view.TotalAmount = view.TotalAmount.Add(line.LineTotal)
		view.ItemCount += item.Quantity
		view.Items = append(view.Items, line)
	}
	view.IsEmpty = len(view.Items) == 0
	return view
}
