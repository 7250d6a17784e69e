package cart

// AddItemRequest is the body of POST /cart/items. Quantity bounds are left to
// the service so callers receive INVALID_QUANTITY rather than a generic
// validation error.
type AddItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  *int   `json:"quantity" validate:"required"`
}

// UpdateItemRequest is the body of PATCH /cart/items/{productId}.
type UpdateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}
