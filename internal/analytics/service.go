package analytics

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
	"github.com/farmfresh/marketplace-backend/internal/catalog"
	"github.com/farmfresh/marketplace-backend/pkg/auth"
	"github.com/farmfresh/marketplace-backend/pkg/db/models"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/farmfresh/marketplace-backend/pkg/errors"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/pagination"
)

const (
	DefaultWindowDays      = 30
	MaxWindowDays          = 365
	DefaultTopProductLimit = 10
	MaxTopProductLimit     = 100
)

type salesReader interface {
	OrdersBetween(ctx context.Context, from, until time.Time) ([]types.OrderRow, error)
	SaleLinesBetween(ctx context.Context, from, until time.Time) ([]types.SaleLine, error)
	CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error)
}

type stockReader interface {
	CountAll(ctx context.Context) (int64, error)
	CountBelowStock(ctx context.Context, threshold int) (int64, error)
	CountOutOfStock(ctx context.Context) (int64, error)
	ListLowStock(ctx context.Context, threshold, limit int) ([]models.Product, error)
	ListOutOfStock(ctx context.Context, limit int) ([]models.Product, error)
}

// Service computes the admin sales reports from the primary database.
type Service interface {
	Overview(ctx context.Context, actor auth.Actor, windowDays int) (*types.Overview, error)
	TopProducts(ctx context.Context, actor auth.Actor, windowDays, limit int) ([]types.ProductSales, error)
	ProductPerformance(ctx context.Context, actor auth.Actor, start, end time.Time) ([]types.ProductSales, error)
	ExportSalesCSV(ctx context.Context, actor auth.Actor, start, end *time.Time, w io.Writer) (string, error)
	LowStockProducts(ctx context.Context, actor auth.Actor, limit int) ([]types.StockProduct, error)
	OutOfStockProducts(ctx context.Context, actor auth.Actor, limit int) ([]types.StockProduct, error)
}

// ServiceParams groups dependencies for the analytics service.
type ServiceParams struct {
	Sales   salesReader
	Catalog stockReader

	// Location buckets daily rollups; defaults to UTC.
	Location          *time.Location
	LowStockThreshold int
	MaxWindowDays     int
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	sales     salesReader
	catalog   stockReader
	loc       *time.Location
	lowStock  int
	maxWindow int
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the analytics service.
func NewService(params ServiceParams) (Service, error) {
	if params.Sales == nil {
		return nil, fmt.Errorf("sales reader required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	lowStock := params.LowStockThreshold
	if lowStock <= 0 {
		lowStock = catalog.DefaultLowStockThreshold
	}
	maxWindow := params.MaxWindowDays
	if maxWindow <= 0 {
		maxWindow = MaxWindowDays
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		sales:     params.Sales,
		catalog:   params.Catalog,
		loc:       loc,
		lowStock:  lowStock,
		maxWindow: maxWindow,
		logg:      logg,
		now:       now,
	}, nil
}

func (s *service) Overview(ctx context.Context, actor auth.Actor, windowDays int) (*types.Overview, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validateWindow(windowDays); err != nil {
		return nil, err
	}

	now := s.now()
	from, until := DayRange(WindowStart(now, windowDays, s.loc), now, s.loc)
	orders, err := s.sales.OrdersBetween(ctx, from, until)
	if err != nil {
		return nil, unavailable(err, "load orders")
	}
	pending, err := s.sales.CountByStatus(ctx, enums.OrderStatusPending)
	if err != nil {
		return nil, unavailable(err, "count pending orders")
	}
	totalProducts, err := s.catalog.CountAll(ctx)
	if err != nil {
		return nil, unavailable(err, "count products")
	}
	lowStock, err := s.catalog.CountBelowStock(ctx, s.lowStock)
	if err != nil {
		return nil, unavailable(err, "count low stock products")
	}
	outOfStock, err := s.catalog.CountOutOfStock(ctx)
	if err != nil {
		return nil, unavailable(err, "count out of stock products")
	}

	series := BuildDailySeries(from, windowDays, orders, s.loc)
	return &types.Overview{
		WindowDays:         windowDays,
		TotalOrders:        int64(len(orders)),
		TotalRevenue:       SumRevenue(orders),
		TotalProducts:      totalProducts,
		LowStockProducts:   lowStock,
		OutOfStockProducts: outOfStock,
		PendingOrders:      pending,
		TodayOrders:        series[len(series)-1].OrderCount,
		DailySeries:        series,
	}, nil
}

func (s *service) TopProducts(ctx context.Context, actor auth.Actor, windowDays, limit int) ([]types.ProductSales, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validateWindow(windowDays); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTopProductLimit
	}
	if limit > MaxTopProductLimit {
		limit = MaxTopProductLimit
	}

	now := s.now()
	from, until := DayRange(WindowStart(now, windowDays, s.loc), now, s.loc)
	lines, err := s.sales.SaleLinesBetween(ctx, from, until)
	if err != nil {
		return nil, unavailable(err, "load order items")
	}
	ranked := RankProductSales(lines)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (s *service) ProductPerformance(ctx context.Context, actor auth.Actor, start, end time.Time) ([]types.ProductSales, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	from, until, err := s.dateRange(start, end)
	if err != nil {
		return nil, err
	}
	lines, err := s.sales.SaleLinesBetween(ctx, from, until)
	if err != nil {
		return nil, unavailable(err, "load order items")
	}
	return RankProductPerformance(lines), nil
}

func (s *service) ExportSalesCSV(ctx context.Context, actor auth.Actor, start, end *time.Time, w io.Writer) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	if start == nil || end == nil {
		return "", pkgerrors.New(pkgerrors.CodeMissingRange, "start and end dates are required")
	}
	from, until, err := s.dateRange(*start, *end)
	if err != nil {
		return "", err
	}

	rows, err := s.sales.OrdersBetween(ctx, from, until)
	if err != nil {
		return "", unavailable(err, "load orders")
	}
	if err := WriteSalesCSV(w, rows); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write sales report")
	}

	filename := SalesReportFilename(from, until.AddDate(0, 0, -1))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"report": filename,
		"rows":   len(rows),
	})
	s.logg.Info(logCtx, "sales report exported")
	return filename, nil
}

func (s *service) LowStockProducts(ctx context.Context, actor auth.Actor, limit int) ([]types.StockProduct, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	products, err := s.catalog.ListLowStock(ctx, s.lowStock, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, unavailable(err, "list low stock products")
	}
	return toStockProducts(products), nil
}

func (s *service) OutOfStockProducts(ctx context.Context, actor auth.Actor, limit int) ([]types.StockProduct, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	products, err := s.catalog.ListOutOfStock(ctx, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, unavailable(err, "list out of stock products")
	}
	return toStockProducts(products), nil
}

func (s *service) validateWindow(days int) error {
	if days <= 0 || days > s.maxWindow {
		return pkgerrors.New(pkgerrors.CodeInvalidRange, "window must be between 1 and the maximum number of days").
			WithDetails(map[string]any{"windowDays": days, "max": s.maxWindow})
	}
	return nil
}

func (s *service) dateRange(start, end time.Time) (time.Time, time.Time, error) {
	from, until := DayRange(start, end, s.loc)
	if from.After(StartOfDay(end, s.loc)) {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeInvalidRange, "start date must not be after end date").
			WithDetails(map[string]any{
				"start": from.Format(DateLayout),
				"end":   StartOfDay(end, s.loc).Format(DateLayout),
			})
	}
	return from, until, nil
}

func requireAdmin(actor auth.Actor) error {
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	return nil
}

func unavailable(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependencyUnavailable, err, msg)
}

func toStockProducts(products []models.Product) []types.StockProduct {
	out := make([]types.StockProduct, 0, len(products))
	for _, p := range products {
		out = append(out, types.StockProduct{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			StockQty: p.StockQty,
		})
	}
	return out
}
