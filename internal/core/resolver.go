package core

import (
	"context"
	"math/big"
)

// EqualityPolicy decides when an incoming record matches an existing one.
type EqualityPolicy struct {
	Fields []FieldName

	// Numeric fields compare as parsed numbers with missing values as zero.
	Numeric map[FieldName]bool

	// Dates compare as calendar days, whatever layout either side uses.
	// The store reads dates back as YYYY-MM-DD.
	Dates map[FieldName]bool

	// Bools compare by truth value, so "Yes" matches a stored "true".
	Bools map[FieldName]bool
}

// Equal reports whether two values of field are equal under the policy.
// Typed values that do not parse fall back to text comparison.
func (p EqualityPolicy) Equal(field FieldName, a, b string) bool {
	switch {
	case p.Numeric[field]:
		x, okA := numberOrZero(a)
		y, okB := numberOrZero(b)
		if okA && okB {
			return x.Cmp(y) == 0
		}
	case p.Dates[field]:
		x, y := ToPgDate(a), ToPgDate(b)
		if x.Valid && y.Valid {
			return x.Time.Equal(y.Time)
		}
	case p.Bools[field]:
		x, y := ToPgBool(a), ToPgBool(b)
		if x.Valid && y.Valid {
			return x.Bool == y.Bool
		}
	}
	return a == b
}

// Identical reports whether every policy field matches.
func (p EqualityPolicy) Identical(incoming, existing Fields) bool {
	for _, f := range p.Fields {
		if !p.Equal(f, incoming[f], existing[f]) {
			return false
		}
	}
	return true
}

// Changed lists the policy fields that differ, in policy order.
func (p EqualityPolicy) Changed(incoming, existing Fields) []FieldName {
	var changed []FieldName
	for _, f := range p.Fields {
		if !p.Equal(f, incoming[f], existing[f]) {
			changed = append(changed, f)
		}
	}
	return changed
}

func numberOrZero(s string) (*big.Rat, bool) {
	if s == "" {
		return new(big.Rat), true
	}
	return ParseDecimal(s)
}

// Classify looks up every distinct key of records in one call and returns
// a candidate, in row order, for each record that already exists. Every
// candidate starts pending, identical or not.
//
// When a key occurs more than once in records the first record is
// compared; such a batch cannot commit anyway.
//
// A lookup failure returns a *LookupError and no candidates; the batch
// must not be treated as duplicate free.
func Classify(ctx context.Context, records []ImportRecord, lookup Lookup, policy EqualityPolicy) ([]DuplicateCandidate, error) {
	keys := make([]string, 0, len(records))
	first := make(map[string]ImportRecord, len(records))
	for _, r := range records {
		if _, seen := first[r.Key]; seen {
			continue
		}
		first[r.Key] = r
		keys = append(keys, r.Key)
	}

	if len(keys) == 0 {
		return nil, nil
	}

	existing, err := lookup.FindExisting(ctx, keys)
	if err != nil {
		return nil, &LookupError{Keys: len(keys), Err: err}
	}

	byKey := make(map[string]ExternalRecord, len(existing))
	for _, e := range existing {
		if _, ok := first[e.Key]; !ok {
			continue
		}
		if _, dup := byKey[e.Key]; dup {
			continue
		}
		byKey[e.Key] = e
	}

	candidates := make([]DuplicateCandidate, 0, len(byKey))
	for _, key := range keys {
		e, ok := byKey[key]
		if !ok {
			continue
		}
		rec := first[key]
		candidates = append(candidates, DuplicateCandidate{
			Key:       key,
			Existing:  e,
			Importing: rec,
			Identical: policy.Identical(rec.Fields, e.Fields),
			Action:    ActionPending,
		})
	}
	return candidates, nil
}
