// Package tabular reads uploaded CSV and XLSX files into header-keyed rows.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/stockbook/internal/core"
)

// MaxHeaderSearchRows bounds how far down a sheet the header row is
// looked for. Exports often carry a title block above the table.
const MaxHeaderSearchRows = 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("empty file")
	ErrNoHeader        = errors.New("header row not found")
)

// Options tunes Parse.
type Options struct {
	// MaxSize limits the bytes read from a CSV; zero means no limit.
	MaxSize int64

	// Headers are the columns the caller can map. The header row is the
	// first row within MaxHeaderSearchRows containing one of them. Without
	// Headers the first non-blank row is the header.
	Headers []string
}

// Parse reads a table from r, choosing the format by the extension of
// name. Blank rows are skipped. Row lines are 1-based sheet lines.
func Parse(name string, r io.Reader, opts Options) ([]core.RawRow, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return ParseCSV(r, opts)
	case ".xlsx", ".xlsm":
		return ParseXLSX(r, opts)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedType, filepath.Ext(name))
	}
}

// ParseCSV reads comma separated values.
func ParseCSV(r io.Reader, opts Options) ([]core.RawRow, error) {
	cr := csv.NewReader(wrapCSV(r, opts.MaxSize))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var lines []sheetLine
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrFileTooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		lines = append(lines, sheetLine{number: line, cells: rec})
	}
	return buildRows(lines, opts.Headers)
}

// ParseXLSX reads the first worksheet of a workbook.
func ParseXLSX(r io.Reader, opts Options) ([]core.RawRow, error) {
	if opts.MaxSize > 0 {
		r = &limitReader{r: r, max: opts.MaxSize}
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("invalid xlsx: sheet %q: %w", sheet, err)
	}

	lines := make([]sheetLine, 0, len(rows))
	for i, cells := range rows {
		lines = append(lines, sheetLine{number: i + 1, cells: cells})
	}
	return buildRows(lines, opts.Headers)
}

type sheetLine struct {
	number int
	cells  []string
}

func buildRows(lines []sheetLine, expected []string) ([]core.RawRow, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyFile
	}

	hi := findHeader(lines, expected)
	if hi < 0 {
		return nil, fmt.Errorf("%w in the first %d rows", ErrNoHeader, MaxHeaderSearchRows)
	}

	// A repeated header keeps its first column.
	header := lines[hi].cells
	columns := make([]int, 0, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := core.CleanCell(h)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		columns = append(columns, i)
	}

	rows := make([]core.RawRow, 0, len(lines)-hi-1)
	for _, l := range lines[hi+1:] {
		if isBlank(l.cells) {
			continue
		}
		cells := make(map[string]string, len(columns))
		for _, i := range columns {
			if i < len(l.cells) {
				cells[core.CleanCell(header[i])] = l.cells[i]
			}
		}
		rows = append(rows, core.RawRow{Line: l.number, Cells: cells})
	}
	return rows, nil
}

func findHeader(lines []sheetLine, expected []string) int {
	want := make(map[string]bool, len(expected))
	for _, h := range expected {
		want[strings.ToLower(core.CleanCell(h))] = true
	}

	limit := min(len(lines), MaxHeaderSearchRows)
	for i := 0; i < limit; i++ {
		if isBlank(lines[i].cells) {
			continue
		}
		if len(want) == 0 {
			return i
		}
		for _, c := range lines[i].cells {
			if want[strings.ToLower(core.CleanCell(c))] {
				return i
			}
		}
	}
	return -1
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
