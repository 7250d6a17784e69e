package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DailyPoint is one calendar day of the overview series.
type DailyPoint struct {
	Date       string          `json:"date"`
	OrderCount int64           `json:"orderCount"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// Overview summarises marketplace activity for the admin dashboard.
type Overview struct {
	WindowDays         int             `json:"windowDays"`
	TotalOrders        int64           `json:"totalOrders"`
	TotalRevenue       decimal.Decimal `json:"totalRevenue"`
	TotalProducts      int64           `json:"totalProducts"`
	LowStockProducts   int64           `json:"lowStockProducts"`
	OutOfStockProducts int64           `json:"outOfStockProducts"`
	PendingOrders      int64           `json:"pendingOrders"`
	TodayOrders        int64           `json:"todayOrders"`
	DailySeries        []DailyPoint    `json:"dailySeries"`
}

// ProductSales aggregates sold quantity and revenue per product name, or per
// product id when ProductID is set.
type ProductSales struct {
	ProductID   *uuid.UUID      `json:"productId,omitempty"`
	ProductName string          `json:"productName"`
	Quantity    int64           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// StockProduct is a catalog row surfaced by the stock reports.
type StockProduct struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	StockQty int             `json:"stockQty"`
}
