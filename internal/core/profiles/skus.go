package profiles

import (
	"time"

	"github.com/JonMunkholm/stockbook/internal/core"
)

// SKUs imports the product catalog. The batch total of Shipping Cost is
// booked as one shipping expense.
var SKUs = &core.Profile{
	Key:      "skus",
	Group:    "Inventory",
	Label:    "SKUs",
	Table:    "skus",
	KeyField: "sku_code",
	Fields: []core.FieldSpec{
		{Name: "sku_code", Source: "SKU ID", Aliases: []string{"SKU", "Item Code"}, Required: true, Normalizer: NormalizeCode},
		{Name: "title", Source: "Title", Aliases: []string{"Name", "Product Name"}, Required: true},
		{Name: "price", Source: "Price", Type: core.FieldNumeric, Scale: 4},
		{Name: "cost", Source: "Cost", Aliases: []string{"Unit Cost"}, Type: core.FieldNumeric, Scale: 4},
		{Name: "category", Source: "Category"},
		{Name: "barcode", Source: "Barcode", Aliases: []string{"UPC", "EAN"}},
		{Name: "weight", Source: "Weight", Type: core.FieldNumeric, Scale: 4},
		{Name: "shipping_cost", Source: "Shipping Cost", Type: core.FieldNumeric, Scale: 2},
		{Name: "active", Source: "Active", Type: core.FieldBool},
	},
	// Weight and shipping vary per shipment and do not make a SKU differ.
	EqualityFields: []core.FieldName{"title", "price", "cost", "category", "barcode"},
	Aggregate: &core.AggregateSpec{
		Field:  "shipping_cost",
		Target: Expenses,
		Build:  shippingExpense,
	},
}

// shippingExpense books the batch's shipping total. The reference carries
// the first eight characters of the batch id.
func shippingExpense(total string, at time.Time, batchID string) core.Fields {
	if len(batchID) > 8 {
		batchID = batchID[:8]
	}
	return core.Fields{
		"reference":    "shipping-" + at.UTC().Format("20060102-150405") + "-" + batchID,
		"description":  "Inbound shipping for SKU import",
		"category":     "shipping",
		"amount":       total,
		"expense_date": at.UTC().Format("2006-01-02"),
	}
}
