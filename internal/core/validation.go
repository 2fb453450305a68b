package core

// validation.go checks a normalized batch before anything is written.
//
// Validation is exhaustive: every problem in the batch is reported so the
// operator can fix the sheet in one pass. Errors come out in row order and,
// within a row, required fields first, then format checks (number, date,
// bool, enum), then the duplicate key check.

import (
	"fmt"
	"strings"
)

// ValidationError is one problem with one row.
type ValidationError struct {
	Row     int       `json:"row"`
	Field   FieldName `json:"field"`
	Kind    ErrorKind `json:"kind"`
	Value   string    `json:"value,omitempty"`
	Message string    `json:"message"`

	// FirstRow is the earlier row holding the same key, for DuplicateInBatch.
	FirstRow int `json:"firstRow,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// EnumRule restricts a field to a fixed set of values, compared
// case-insensitively.
type EnumRule struct {
	Field  FieldName
	Values []string
}

// Validator checks a batch of import records.
type Validator struct {
	KeyField       FieldName
	RequiredFields []FieldName
	NumericFields  []FieldName
	DateFields     []FieldName
	BoolFields     []FieldName
	EnumFields     []EnumRule

	// Scales caps the decimal places of numeric fields, matching the
	// column scale so a stored value reads back unchanged.
	Scales map[FieldName]int
}

// Validate returns every validation error in the batch, or nil.
func (v Validator) Validate(records []ImportRecord) []ValidationError {
	var errs []ValidationError
	firstSeen := make(map[string]int, len(records))

	for _, r := range records {
		for _, f := range v.RequiredFields {
			if strings.TrimSpace(r.Fields[f]) == "" {
				errs = append(errs, ValidationError{
					Row:     r.SourceRow,
					Field:   f,
					Kind:    MissingRequired,
					Message: "required field is empty",
				})
			}
		}

		for _, f := range v.NumericFields {
			val, ok := r.Fields[f]
			if !ok || val == "" {
				continue
			}
			places, isNumber := DecimalPlaces(val)
			switch {
			case !isNumber:
				errs = append(errs, ValidationError{
					Row:     r.SourceRow,
					Field:   f,
					Kind:    InvalidNumber,
					Value:   val,
					Message: "invalid number format",
				})
			case v.Scales[f] > 0 && places > v.Scales[f]:
				errs = append(errs, ValidationError{
					Row:     r.SourceRow,
					Field:   f,
					Kind:    InvalidNumber,
					Value:   val,
					Message: fmt.Sprintf("at most %d decimal places allowed", v.Scales[f]),
				})
			}
		}

		for _, f := range v.DateFields {
			val, ok := r.Fields[f]
			if !ok || val == "" || ToPgDate(val).Valid {
				continue
			}
			errs = append(errs, ValidationError{
				Row:     r.SourceRow,
				Field:   f,
				Kind:    InvalidDate,
				Value:   val,
				Message: "invalid date format (use YYYY-MM-DD or similar)",
			})
		}

		for _, f := range v.BoolFields {
			val, ok := r.Fields[f]
			if !ok || val == "" || ToPgBool(val).Valid {
				continue
			}
			errs = append(errs, ValidationError{
				Row:     r.SourceRow,
				Field:   f,
				Kind:    InvalidBool,
				Value:   val,
				Message: "must be yes/no, true/false or 1/0",
			})
		}

		for _, rule := range v.EnumFields {
			val, ok := r.Fields[rule.Field]
			if !ok || val == "" || rule.allows(val) {
				continue
			}
			errs = append(errs, ValidationError{
				Row:     r.SourceRow,
				Field:   rule.Field,
				Kind:    InvalidValue,
				Value:   val,
				Message: "value must be one of: " + strings.Join(rule.Values, ", "),
			})
		}

		if first, dup := firstSeen[r.Key]; dup {
			errs = append(errs, ValidationError{
				Row:      r.SourceRow,
				Field:    v.KeyField,
				Kind:     DuplicateInBatch,
				Value:    r.Key,
				Message:  fmt.Sprintf("duplicate key %q, first seen on row %d", r.Key, first),
				FirstRow: first,
			})
		} else {
			firstSeen[r.Key] = r.SourceRow
		}
	}

	return errs
}

func (r EnumRule) allows(val string) bool {
	for _, ev := range r.Values {
		if strings.EqualFold(ev, val) {
			return true
		}
	}
	return false
}

// ErrorRows returns the distinct rows with errors, in order.
func ErrorRows(errs []ValidationError) []int {
	seen := make(map[int]bool, len(errs))
	var rows []int
	for _, e := range errs {
		if !seen[e.Row] {
			seen[e.Row] = true
			rows = append(rows, e.Row)
		}
	}
	return rows
}
