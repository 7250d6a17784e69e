package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRow is an order header read for rollups and exports.
type OrderRow struct {
	ID            uuid.UUID
	CustomerEmail string
	TotalAmount   decimal.Decimal
	Status        string
	CreatedAt     time.Time
	ItemsCount    int64
}

// SaleLine is one order item joined to its order's creation time.
type SaleLine struct {
	ProductID   uuid.UUID
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int64
	CreatedAt   time.Time
}

// SalesFactRow mirrors the sales_facts BigQuery schema. One row is written
// per order event; Items carries the line snapshot for order_created only.
type SalesFactRow struct {
	EventID        string             `bigquery:"event_id"`
	EventType      string             `bigquery:"event_type"`
	OccurredAt     time.Time          `bigquery:"occurred_at"`
	OrderID        string             `bigquery:"order_id"`
	UserID         string             `bigquery:"user_id"`
	CustomerEmail  *string            `bigquery:"customer_email"`
	Status         string             `bigquery:"status"`
	PreviousStatus *string            `bigquery:"previous_status"`
	TotalAmount    string             `bigquery:"total_amount"`
	ItemCount      *int64             `bigquery:"item_count"`
	UnitsSold      *int64             `bigquery:"units_sold"`
	ChangedBy      *string            `bigquery:"changed_by"`
	Items          cbigquery.NullJSON `bigquery:"items"`
	Payload        cbigquery.NullJSON `bigquery:"payload"`
}

// SalesFactsPartitionField is the column sales_facts is day-partitioned on.
const SalesFactsPartitionField = "occurred_at"

// SalesFactSchema is the table layout SalesFactRow is written against.
func SalesFactSchema() cbigquery.Schema {
	nullable := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t}
	}
	required := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t, Required: true}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required(SalesFactsPartitionField, cbigquery.TimestampFieldType),
		required("order_id", cbigquery.StringFieldType),
		required("user_id", cbigquery.StringFieldType),
		nullable("customer_email", cbigquery.StringFieldType),
		required("status", cbigquery.StringFieldType),
		nullable("previous_status", cbigquery.StringFieldType),
		required("total_amount", cbigquery.StringFieldType),
		nullable("item_count", cbigquery.IntegerFieldType),
		nullable("units_sold", cbigquery.IntegerFieldType),
		nullable("changed_by", cbigquery.StringFieldType),
		nullable("items", cbigquery.JSONFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}
