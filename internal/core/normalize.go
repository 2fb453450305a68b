package core

import (
	"sort"
	"strings"
)

// FieldMapping maps a source column header to a canonical field. An empty
// target ignores the column, as does a header missing from the mapping.
// Headers match case-insensitively.
type FieldMapping map[string]FieldName

// Normalizer turns raw rows into import records.
type Normalizer struct {
	Mapping  FieldMapping
	KeyField FieldName

	// Transforms rewrite a non-empty value of a field after cleanup.
	Transforms map[FieldName]func(string) string
}

// Normalize maps rows through the field mapping. Rows whose key is empty
// or missing are not data rows and are dropped without error. Cell values
// are cleaned of spreadsheet artifacts and empty cells are left out of
// Fields. When two columns feed one field, the non-empty value under the
// lexically smallest header wins, so the result never depends on map order.
func (n Normalizer) Normalize(rows []RawRow) []ImportRecord {
	lookup := make(map[string]FieldName, len(n.Mapping))
	for src, target := range n.Mapping {
		lookup[headerKey(src)] = target
	}

	records := make([]ImportRecord, 0, len(rows))
	for _, row := range rows {
		headers := make([]string, 0, len(row.Cells))
		for h := range row.Cells {
			headers = append(headers, h)
		}
		sort.Strings(headers)

		fields := make(Fields)
		for _, header := range headers {
			target := lookup[headerKey(header)]
			if target == "" {
				continue
			}
			if _, set := fields[target]; set {
				continue
			}
			v := CleanCell(row.Cells[header])
			if v == "" {
				continue
			}
			if fn := n.Transforms[target]; fn != nil {
				v = fn(v)
			}
			fields[target] = v
		}

		key := strings.TrimSpace(fields[n.KeyField])
		if key == "" {
			continue
		}
		fields[n.KeyField] = key

		records = append(records, ImportRecord{
			SourceRow: row.Line,
			Key:       key,
			Fields:    fields,
		})
	}
	return records
}
