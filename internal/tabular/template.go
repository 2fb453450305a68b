package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/stockbook/internal/core"
)

// WriteTemplate writes an empty workbook for p: one sheet named after the
// profile whose first row holds the source columns. Required columns are
// bold.
func WriteTemplate(w io.Writer, p *core.Profile) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := p.Key
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("template sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("template style: %w", err)
	}

	for i, field := range p.Fields {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, field.Source); err != nil {
			return fmt.Errorf("template header %q: %w", field.Source, err)
		}
		if field.Required {
			if err := f.SetCellStyle(sheet, cell, cell, bold); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
