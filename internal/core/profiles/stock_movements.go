package profiles

import "github.com/JonMunkholm/stockbook/internal/core"

// MovementTypes are the canonical stock movement types.
var MovementTypes = []string{"receipt", "shipment", "adjustment", "transfer"}

// StockMovements imports warehouse stock movements.
var StockMovements = &core.Profile{
	Key:      "stock_movements",
	Group:    "Inventory",
	Label:    "Stock Movements",
	Table:    "stock_movements",
	KeyField: "movement_id",
	Fields: []core.FieldSpec{
		{Name: "movement_id", Source: "Movement ID", Aliases: []string{"ID"}, Required: true},
		{Name: "sku_code", Source: "SKU ID", Aliases: []string{"SKU"}, Required: true, Normalizer: NormalizeCode},
		{Name: "movement_type", Source: "Type", Aliases: []string{"Movement Type"}, Type: core.FieldEnum, Required: true,
			EnumValues: MovementTypes, Normalizer: NormalizeMovementType},
		{Name: "quantity", Source: "Quantity", Aliases: []string{"Qty"}, Type: core.FieldNumeric, Scale: 4, Required: true},
		{Name: "moved_on", Source: "Date", Type: core.FieldDate, Required: true},
		{Name: "warehouse", Source: "Warehouse"},
		{Name: "warehouse_state", Source: "Warehouse State", Normalizer: NormalizeUsState},
		{Name: "note", Source: "Note", Aliases: []string{"Notes"}},
	},
}
