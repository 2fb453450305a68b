package core

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// FieldType is the expected data type of an import field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	default:
		return "value"
	}
}

// FieldSpec describes one canonical field and the spreadsheet columns
// that feed it.
type FieldSpec struct {
	Name FieldName // canonical name, also the database column

	// Source is the expected column header. Aliases are accepted too.
	Source  string
	Aliases []string

	Type       FieldType
	Required   bool
	EnumValues []string

	// Scale caps the decimal places of a numeric field; zero is unlimited.
	Scale int

	// Normalizer rewrites a non-empty cleaned value before validation.
	Normalizer func(string) string
}

// AggregateSpec configures the side-effect record written after a commit:
// the batch total of Field, when nonzero, is stored through Build.
type AggregateSpec struct {
	Field FieldName

	// Target is the profile whose table receives the summary record.
	Target *Profile

	// Build makes the summary record. batchID identifies the commit and
	// keeps references unique when commits finish in the same second.
	Build func(total string, at time.Time, batchID string) Fields
}

// Profile is everything needed to import one kind of spreadsheet.
type Profile struct {
	Key   string // "skus"
	Group string // "Inventory", "Finance"
	Label string
	Table string

	KeyField FieldName
	Fields   []FieldSpec

	// EqualityFields decide whether a duplicate is identical. Empty means
	// every field except the key.
	EqualityFields []FieldName

	Aggregate *AggregateSpec
}

// Spec returns the field spec for name.
func (p *Profile) Spec(name FieldName) (FieldSpec, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Mapping builds the source column to field mapping for Normalize.
func (p *Profile) Mapping() FieldMapping {
	m := make(FieldMapping, len(p.Fields))
	for _, f := range p.Fields {
		m[f.Source] = f.Name
		for _, a := range f.Aliases {
			m[a] = f.Name
		}
	}
	return m
}

// SourceColumns lists every header the profile maps, aliases included.
func (p *Profile) SourceColumns() []string {
	var cols []string
	for _, f := range p.Fields {
		cols = append(cols, f.Source)
		cols = append(cols, f.Aliases...)
	}
	return cols
}

// Normalizer returns the row normalizer for this profile.
func (p *Profile) Normalizer() Normalizer {
	transforms := make(map[FieldName]func(string) string)
	for _, f := range p.Fields {
		if f.Normalizer != nil {
			transforms[f.Name] = f.Normalizer
		}
	}
	return Normalizer{Mapping: p.Mapping(), KeyField: p.KeyField, Transforms: transforms}
}

// Validator returns the batch validator for this profile.
func (p *Profile) Validator() Validator {
	v := Validator{KeyField: p.KeyField, Scales: make(map[FieldName]int)}
	for _, f := range p.Fields {
		if f.Required {
			v.RequiredFields = append(v.RequiredFields, f.Name)
		}
		switch f.Type {
		case FieldNumeric:
			v.NumericFields = append(v.NumericFields, f.Name)
			if f.Scale > 0 {
				v.Scales[f.Name] = f.Scale
			}
		case FieldDate:
			v.DateFields = append(v.DateFields, f.Name)
		case FieldBool:
			v.BoolFields = append(v.BoolFields, f.Name)
		case FieldEnum:
			v.EnumFields = append(v.EnumFields, EnumRule{Field: f.Name, Values: f.EnumValues})
		}
	}
	return v
}

// EqualityPolicy returns the duplicate comparison policy for this profile.
func (p *Profile) EqualityPolicy() EqualityPolicy {
	fields := p.EqualityFields
	if len(fields) == 0 {
		for _, f := range p.Fields {
			if f.Name != p.KeyField {
				fields = append(fields, f.Name)
			}
		}
	}
	policy := EqualityPolicy{
		Fields:  fields,
		Numeric: make(map[FieldName]bool),
		Dates:   make(map[FieldName]bool),
		Bools:   make(map[FieldName]bool),
	}
	for _, f := range p.Fields {
		switch f.Type {
		case FieldNumeric:
			policy.Numeric[f.Name] = true
		case FieldDate:
			policy.Dates[f.Name] = true
		case FieldBool:
			policy.Bools[f.Name] = true
		}
	}
	return policy
}

// Columns returns the database columns in field order.
func (p *Profile) Columns() []string {
	cols := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		cols[i] = string(f.Name)
	}
	return cols
}

// AggregateTotal sums the aggregate field over records. Unparseable and
// missing values count as zero.
func (p *Profile) AggregateTotal(records []ImportRecord) *big.Rat {
	total := new(big.Rat)
	if p.Aggregate == nil {
		return total
	}
	for _, r := range records {
		if v, ok := ParseDecimal(r.Fields[p.Aggregate.Field]); ok {
			total.Add(total, v)
		}
	}
	return total
}

func (p *Profile) validate() error {
	var errs []string
	if p.Key == "" {
		errs = append(errs, "empty key")
	}
	if p.Table == "" {
		errs = append(errs, "empty table")
	}
	if _, ok := p.Spec(p.KeyField); !ok {
		errs = append(errs, fmt.Sprintf("key field %q has no spec", p.KeyField))
	}
	for _, f := range p.EqualityFields {
		if _, ok := p.Spec(f); !ok {
			errs = append(errs, fmt.Sprintf("equality field %q has no spec", f))
		}
	}
	if a := p.Aggregate; a != nil {
		if _, ok := p.Spec(a.Field); !ok {
			errs = append(errs, fmt.Sprintf("aggregate field %q has no spec", a.Field))
		}
		if a.Target == nil || a.Build == nil {
			errs = append(errs, "aggregate needs a target and a builder")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("profile %q: %s", p.Key, strings.Join(errs, "; "))
	}
	return nil
}
