package analytics

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
)

// BuildDailySeries buckets orders by local calendar day into exactly days
// contiguous points starting at from. Days without orders are zero-filled and
// orders outside the window are ignored.
func BuildDailySeries(from time.Time, days int, orders []types.OrderRow, loc *time.Location) []types.DailyPoint {
	if days <= 0 {
		return []types.DailyPoint{}
	}
	start := StartOfDay(from, loc)
	series := make([]types.DailyPoint, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(DateLayout)
		series[i] = types.DailyPoint{Date: date, Revenue: decimal.Zero}
		index[date] = i
	}

	for _, order := range orders {
		i, ok := index[order.CreatedAt.In(loc).Format(DateLayout)]
		if !ok {
			continue
		}
		series[i].OrderCount++
		series[i].Revenue = series[i].Revenue.Add(order.TotalAmount)
	}
	return series
}

// SumRevenue adds up order totals.
func SumRevenue(orders []types.OrderRow) decimal.Decimal {
	total := decimal.Zero
	for _, order := range orders {
		total = total.Add(order.TotalAmount)
	}
	return total
}

// RankProductSales groups lines by product name and sorts by quantity DESC,
// revenue DESC, then name ASC. Products with no units sold are dropped.
func RankProductSales(lines []types.SaleLine) []types.ProductSales {
	return rankSales(lines, false, func(line types.SaleLine) string { return line.ProductName })
}

// RankProductPerformance ranks like RankProductSales but groups by product id,
// so catalog products sharing a name stay apart. Each entry is labelled with
// the name from its latest sale.
func RankProductPerformance(lines []types.SaleLine) []types.ProductSales {
	return rankSales(lines, true, func(line types.SaleLine) uuid.UUID { return line.ProductID })
}

type salesGroup struct {
	sales  types.ProductSales
	latest time.Time
}

func rankSales[K comparable](lines []types.SaleLine, withID bool, key func(types.SaleLine) K) []types.ProductSales {
	groups := make(map[K]*salesGroup)
	for _, line := range lines {
		k := key(line)
		group, ok := groups[k]
		if !ok {
			group = &salesGroup{
				sales:  types.ProductSales{ProductName: line.ProductName, Revenue: decimal.Zero},
				latest: line.CreatedAt,
			}
			if withID {
				id := line.ProductID
				group.sales.ProductID = &id
			}
			groups[k] = group
		} else if line.CreatedAt.After(group.latest) {
			group.sales.ProductName = line.ProductName
			group.latest = line.CreatedAt
		}
		group.sales.Quantity += line.Quantity
		group.sales.Revenue = group.sales.Revenue.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}

	out := make([]types.ProductSales, 0, len(groups))
	for _, group := range groups {
		if group.sales.Quantity <= 0 {
			continue
		}
		out = append(out, group.sales)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		if cmp := out[i].Revenue.Cmp(out[j].Revenue); cmp != 0 {
			return cmp > 0
		}
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		return productKey(out[i]) < productKey(out[j])
	})
	return out
}

func productKey(sales types.ProductSales) string {
	if sales.ProductID == nil {
		return ""
	}
	return sales.ProductID.String()
}
