package postgres

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/stockbook/internal/core"
)

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// recordColumns selects id and every profile column as text.
func recordColumns(p *core.Profile) string {
	cols := make([]string, 0, len(p.Fields)+1)
	cols = append(cols, "id::text")
	for _, f := range p.Fields {
		cols = append(cols, quoteIdentifier(string(f.Name))+"::text")
	}
	return strings.Join(cols, ", ")
}

func selectExistingSQL(p *core.Profile) string {
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ANY($1)",
		recordColumns(p),
		quoteIdentifier(p.Table),
		quoteIdentifier(string(p.KeyField)),
	)
}

// insertSQL writes every profile column; missing fields are NULL.
func insertSQL(p *core.Profile, fields core.Fields) (string, []interface{}) {
	cols := make([]string, len(p.Fields))
	placeholders := make([]string, len(p.Fields))
	args := make([]interface{}, len(p.Fields))
	for i, f := range p.Fields {
		cols[i] = quoteIdentifier(string(f.Name))
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = pgValue(f.Type, fields[f.Name])
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id::text",
		quoteIdentifier(p.Table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args
}

// updateSQL sets the fields present in fields, in profile order, plus
// updated_at. The id is the last argument.
func updateSQL(p *core.Profile, id string, fields core.Fields) (string, []interface{}) {
	var sets []string
	var args []interface{}
	for _, f := range p.Fields {
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		args = append(args, pgValue(f.Type, v))
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdentifier(string(f.Name)), len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, core.ToPgUUID(id))

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		quoteIdentifier(p.Table),
		strings.Join(sets, ", "),
		len(args),
		recordColumns(p),
	)
	return query, args
}

// pgValue converts a raw cell to the pgtype matching the column.
func pgValue(t core.FieldType, raw string) interface{} {
	switch t {
	case core.FieldNumeric:
		return core.ToPgNumeric(raw)
	case core.FieldDate:
		return core.ToPgDate(raw)
	case core.FieldBool:
		return core.ToPgBool(raw)
	default:
		return core.ToPgText(raw)
	}
}
