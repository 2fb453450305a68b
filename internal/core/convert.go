package core

// convert.go turns spreadsheet cell text into typed values.
//
// Spreadsheet exports are messy: currency symbols and thousands separators
// in amounts, accounting negatives, Excel text prefixes (="..."), and a
// dozen date layouts. The ToPg* helpers return Valid=false for anything
// empty or unparseable so the store writes NULL.

import (
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot is how many years into the future a two digit year may
// land before it is moved to the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006",
		"20060102",
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
)

// ToPgText converts a string to pgtype.Text; blank input is NULL.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts a string to pgtype.Date, trying unambiguous four digit
// year layouts before two digit ones.
func ToPgDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{}
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return pgtype.Date{Time: t, Valid: true}
		}
	}

	return pgtype.Date{}
}

// cleanNumeric strips currency symbols, thousands separators and the
// accounting negative form "(12.50)". It reports false when what remains
// is not a plain decimal.
func cleanNumeric(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}
	if !numericRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// ToPgNumeric converts a string to pgtype.Numeric.
func ToPgNumeric(s string) pgtype.Numeric {
	clean, ok := cleanNumeric(s)
	if !ok {
		return pgtype.Numeric{}
	}

	var n pgtype.Numeric
	if err := n.Scan(clean); err != nil {
		return pgtype.Numeric{}
	}
	return n
}

// IsDecimal reports whether s parses as a decimal number.
func IsDecimal(s string) bool {
	_, ok := ParseDecimal(s)
	return ok
}

// ParseDecimal parses s exactly. It accepts everything ToPgNumeric accepts.
func ParseDecimal(s string) (*big.Rat, bool) {
	clean, ok := cleanNumeric(s)
	if !ok {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, false
	}
	return r, true
}

// DecimalPlaces returns the significant decimal places of s, ignoring
// trailing zeros. ok is false when s is not a decimal.
func DecimalPlaces(s string) (places int, ok bool) {
	clean, ok := cleanNumeric(s)
	if !ok {
		return 0, false
	}
	_, frac, found := strings.Cut(clean, ".")
	if !found {
		return 0, true
	}
	return len(strings.TrimRight(frac, "0")), true
}

// FormatDecimal renders r with the fewest decimals that represent it
// exactly, up to 10 places.
func FormatDecimal(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	for prec := 1; prec < 10; prec++ {
		s := r.FloatString(prec)
		if back, ok := new(big.Rat).SetString(s); ok && back.Cmp(r) == 0 {
			return s
		}
	}
	return r.FloatString(10)
}

// ToPgBool converts yes/no, true/false, t/f, y/n and 1/0 to pgtype.Bool.
func ToPgBool(s string) pgtype.Bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return pgtype.Bool{Bool: true, Valid: true}
	case "false", "f", "no", "n", "0":
		return pgtype.Bool{Bool: false, Valid: true}
	}
	return pgtype.Bool{}
}

// ToPgUUID converts a string to pgtype.UUID; invalid input is NULL.
func ToPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// PgUUIDToString is the inverse of ToPgUUID.
func PgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// CleanCell removes common spreadsheet artifacts from a cell: surrounding
// whitespace, the Excel text formula wrapper (="...") or a bare leading
// "=", and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// headerKey is the case-insensitive form used to match column names.
func headerKey(s string) string {
	return strings.ToLower(CleanCell(s))
}
