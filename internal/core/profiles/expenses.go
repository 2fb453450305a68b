package profiles

import "github.com/JonMunkholm/stockbook/internal/core"

// ExpenseCategories are the accepted expense categories.
var ExpenseCategories = []string{"shipping", "packaging", "storage", "marketplace_fees", "other"}

// Expenses imports operating expenses. It also receives the shipping
// summary written after a SKU import.
var Expenses = &core.Profile{
	Key:      "expenses",
	Group:    "Finance",
	Label:    "Expenses",
	Table:    "expenses",
	KeyField: "reference",
	Fields: []core.FieldSpec{
		{Name: "reference", Source: "Reference", Aliases: []string{"Expense ID", "Ref"}, Required: true},
		{Name: "description", Source: "Description", Aliases: []string{"Memo"}},
		{Name: "category", Source: "Category", Type: core.FieldEnum, EnumValues: ExpenseCategories, Normalizer: lower},
		{Name: "amount", Source: "Amount", Type: core.FieldNumeric, Scale: 2, Required: true},
		{Name: "expense_date", Source: "Date", Aliases: []string{"Expense Date"}, Type: core.FieldDate, Required: true},
		{Name: "vendor", Source: "Vendor"},
		{Name: "vendor_state", Source: "Vendor State", Normalizer: NormalizeUsState},
	},
	EqualityFields: []core.FieldName{"description", "category", "amount", "expense_date", "vendor"},
}
