package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmfresh/marketplace-backend/pkg/enums"
)

// OrderItemSnapshot is one order line as it was priced at checkout.
type OrderItemSnapshot struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// OrderCreatedEvent is emitted once a cart has been converted into an order.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID           `json:"orderId"`
	UserID          uuid.UUID           `json:"userId"`
	CustomerEmail   string              `json:"customerEmail"`
	CustomerName    string              `json:"customerName,omitempty"`
	Status          enums.OrderStatus   `json:"status"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	ShippingAddress string              `json:"shippingAddress"`
	Items           []OrderItemSnapshot `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// OrderStatusChangedEvent is emitted after an admin moves an order along its lifecycle.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"orderId"`
	UserID         uuid.UUID         `json:"userId"`
	CustomerEmail  string            `json:"customerEmail"`
	PreviousStatus enums.OrderStatus `json:"previousStatus"`
	Status         enums.OrderStatus `json:"status"`
	TotalAmount    decimal.Decimal   `json:"totalAmount"`
	ChangedBy      uuid.UUID         `json:"changedBy"`
	ChangedAt      time.Time         `json:"changedAt"`
}
