package web

import (
	"net/http"
	"strings"
)

// OperatorHeader identifies the person driving an import when the form
// does not.
const OperatorHeader = "X-Operator"

// requestOperator returns the operator of an upload: the "operator" form
// field, else the X-Operator header. Empty means anonymous, which opts out
// of the one-import-per-operator rule.
func requestOperator(r *http.Request) string {
	if op := strings.TrimSpace(r.FormValue("operator")); op != "" {
		return op
	}
	return strings.TrimSpace(r.Header.Get(OperatorHeader))
}
