package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/farmfresh/marketplace-backend/internal/analytics/types"
)

var salesCSVHeader = []string{"Order ID", "Customer Email", "Total Amount", "Status", "Created At", "Items Count"}

// WriteSalesCSV writes the header followed by one row per order. The header
// is written even when rows is empty.
func WriteSalesCSV(w io.Writer, rows []types.OrderRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(salesCSVHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.ID.String(),
			row.CustomerEmail,
			row.TotalAmount.StringFixed(2),
			row.Status,
			row.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.ItemsCount, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SalesReportFilename names the export after its inclusive date range.
func SalesReportFilename(start, end time.Time) string {
	return fmt.Sprintf("sales_report_%s_to_%s.csv", start.Format(DateLayout), end.Format(DateLayout))
}
