package profiles

import "strings"

// UsStates maps US state full names to their abbreviations.
var UsStates = map[string]string{
	"alabama":        "AL",
	"alaska":         "AK",
	"arizona":        "AZ",
	"arkansas":       "AR",
	"california":     "CA",
	"colorado":       "CO",
	"connecticut":    "CT",
	"delaware":       "DE",
	"florida":        "FL",
	"georgia":        "GA",
	"hawaii":         "HI",
	"idaho":          "ID",
	"illinois":       "IL",
	"indiana":        "IN",
	"iowa":           "IA",
	"kansas":         "KS",
	"kentucky":       "KY",
	"louisiana":      "LA",
	"maine":          "ME",
	"maryland":       "MD",
	"massachusetts":  "MA",
	"michigan":       "MI",
	"minnesota":      "MN",
	"mississippi":    "MS",
	"missouri":       "MO",
	"montana":        "MT",
	"nebraska":       "NE",
	"nevada":         "NV",
	"new hampshire":  "NH",
	"new jersey":     "NJ",
	"new mexico":     "NM",
	"new york":       "NY",
	"north carolina": "NC",
	"north dakota":   "ND",
	"ohio":           "OH",
	"oklahoma":       "OK",
	"oregon":         "OR",
	"pennsylvania":   "PA",
	"rhode island":   "RI",
	"south carolina": "SC",
	"south dakota":   "SD",
	"tennessee":      "TN",
	"texas":          "TX",
	"utah":           "UT",
	"vermont":        "VT",
	"virginia":       "VA",
	"washington":     "WA",
	"west virginia":  "WV",
	"wisconsin":      "WI",
	"wyoming":        "WY",
}

// NormalizeUsState converts a US state name to its 2-letter code. Codes
// are upper-cased; anything unrecognized is returned as-is.
func NormalizeUsState(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := UsStates[strings.ToLower(s)]; ok {
		return code
	}

	upper := strings.ToUpper(s)
	for _, code := range UsStates {
		if upper == code {
			return code
		}
	}
	return s
}

// NormalizeCode upper-cases an identifier and collapses inner whitespace,
// so "ab 12" and "AB  12" name the same SKU.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

var movementTypes = map[string]string{
	"receipt":    "receipt",
	"received":   "receipt",
	"in":         "receipt",
	"shipment":   "shipment",
	"shipped":    "shipment",
	"out":        "shipment",
	"adjustment": "adjustment",
	"adjust":     "adjustment",
	"adj":        "adjustment",
	"transfer":   "transfer",
	"xfer":       "transfer",
}

// NormalizeMovementType maps the spellings warehouse exports use onto the
// canonical movement types. Unknown values pass through for validation to
// reject.
func NormalizeMovementType(s string) string {
	if t, ok := movementTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return s
}

func lower(s string) string { return strings.ToLower(s) }
