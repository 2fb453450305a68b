package profiles

import (
	"testing"
	"time"

	"github.com/JonMunkholm/stockbook/internal/core"
)

func TestRegistered(t *testing.T) {
	for _, key := range []string{"skus", "expenses", "stock_movements"} {
		if _, ok := core.Get(key); !ok {
			t.Errorf("profile %q not registered", key)
		}
	}
}

func TestShippingExpenseIsValidExpense(t *testing.T) {
	at := time.Date(2025, 3, 9, 14, 5, 0, 0, time.UTC)
	fields := SKUs.Aggregate.Build("125.40", at, "3f2a9c1e-0000-4000-8000-000000000000")

	rec := core.ImportRecord{SourceRow: 1, Key: fields["reference"], Fields: fields}
	if errs := Expenses.Validator().Validate([]core.ImportRecord{rec}); len(errs) != 0 {
		t.Errorf("shipping expense fails expense validation: %v", errs)
	}
	if fields["reference"] != "shipping-20250309-140500-3f2a9c1e" || fields["expense_date"] != "2025-03-09" {
		t.Errorf("fields = %v", fields)
	}
}

func TestSKUNormalization(t *testing.T) {
	rows := []core.RawRow{
		{Line: 2, Cells: map[string]string{"SKU": " ab  12 ", "Product Name": "Mug", "Unit Cost": "$3.10", "UPC": `="0042"`}},
	}
	got := SKUs.Normalizer().Normalize(rows)
	if len(got) != 1 {
		t.Fatalf("got %d records", len(got))
	}
	r := got[0]
	if r.Key != "AB 12" || r.Fields["title"] != "Mug" || r.Fields["cost"] != "$3.10" || r.Fields["barcode"] != "0042" {
		t.Errorf("record = %+v", r)
	}
}

func TestStockMovementTypes(t *testing.T) {
	rows := []core.RawRow{
		{Line: 2, Cells: map[string]string{"Movement ID": "M1", "SKU ID": "A", "Type": "Received", "Qty": "5", "Date": "2025-01-02"}},
		{Line: 3, Cells: map[string]string{"Movement ID": "M2", "SKU ID": "A", "Type": "lost", "Qty": "1", "Date": "2025-01-02"}},
	}
	records := StockMovements.Normalizer().Normalize(rows)
	if records[0].Fields["movement_type"] != "receipt" {
		t.Errorf("movement_type = %q, want receipt", records[0].Fields["movement_type"])
	}

	errs := StockMovements.Validator().Validate(records)
	if len(errs) != 1 || errs[0].Row != 3 || errs[0].Kind != core.InvalidValue {
		t.Errorf("errors = %+v, want one invalid type on row 3", errs)
	}
}

func TestNormalizeUsState(t *testing.T) {
	tests := []struct{ in, want string }{
		{"California", "CA"},
		{"new york", "NY"},
		{"tx", "TX"},
		{"Ontario", "Ontario"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeUsState(tt.in); got != tt.want {
			t.Errorf("NormalizeUsState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShippingExpenseReferenceIsPerBatch(t *testing.T) {
	at := time.Date(2025, 3, 9, 14, 5, 0, 0, time.UTC)
	a := SKUs.Aggregate.Build("1", at, "aaaaaaaa-1111")
	b := SKUs.Aggregate.Build("1", at, "bbbbbbbb-2222")
	if a["reference"] == b["reference"] {
		t.Errorf("commits in the same second share reference %q", a["reference"])
	}
}

func TestExpenseDateLayoutsAreIdentical(t *testing.T) {
	rows := []core.RawRow{{Line: 2, Cells: map[string]string{
		"Reference": "INV-1", "Amount": "$12.50", "Date": "3/9/2025", "Category": "shipping",
	}}}
	records := Expenses.Normalizer().Normalize(rows)
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}

	stored := core.Fields{"reference": "INV-1", "amount": "12.50", "expense_date": "2025-03-09", "category": "shipping"}
	policy := Expenses.EqualityPolicy()
	if changed := policy.Changed(records[0].Fields, stored); len(changed) != 0 {
		t.Errorf("Changed() = %v, want none for the same day in another layout", changed)
	}
}

func TestSKUValidation_TypedFields(t *testing.T) {
	tests := []struct {
		name     string
		cells    map[string]string
		wantKind core.ErrorKind
	}{
		{"active not a bool", map[string]string{"Active": "maybe"}, core.InvalidBool},
		{"price beyond column scale", map[string]string{"Price": "1.23456"}, core.InvalidNumber},
		{"shipping beyond cents", map[string]string{"Shipping Cost": "0.125"}, core.InvalidNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := map[string]string{"SKU ID": "A1", "Title": "Mug"}
			for k, v := range tt.cells {
				cells[k] = v
			}
			records := SKUs.Normalizer().Normalize([]core.RawRow{{Line: 2, Cells: cells}})
			errs := SKUs.Validator().Validate(records)
			if len(errs) != 1 || errs[0].Kind != tt.wantKind {
				t.Errorf("errors = %+v, want one %s", errs, tt.wantKind)
			}
		})
	}

	ok := map[string]string{"SKU ID": "A1", "Title": "Mug", "Active": "Yes", "Price": "1.2500", "Shipping Cost": "$3.10"}
	records := SKUs.Normalizer().Normalize([]core.RawRow{{Line: 2, Cells: ok}})
	if errs := SKUs.Validator().Validate(records); len(errs) != 0 {
		t.Errorf("valid row errors = %+v", errs)
	}
}
