package model

import "strings"

// Question is a single natural-language analytics question.
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"question"`
	FormatHint string `json:"format_hint"`
}

// Well-known format hints. Structured hints (object and list shapes such as
// "{sku:str, month:str}" or "list[{category:str, revenue:float}]") are kept
// as opaque strings and interpreted by the answer coercer.
const (
	HintInt    = "int"
	HintFloat  = "float"
	HintString = "str"
)

// IsListHint reports whether the hint describes a JSON array shape.
func IsListHint(hint string) bool {
	return strings.HasPrefix(strings.TrimSpace(hint), "list[")
}

// IsObjectHint reports whether the hint describes a JSON object shape.
func IsObjectHint(hint string) bool {
	return strings.Contains(hint, "{") && !IsListHint(hint)
}

// NormalizeHint trims the hint and defaults empty hints to str.
func NormalizeHint(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return HintString
	}
	return hint
}

// Route is the router's classification of a question.
type Route string

const (
	// RouteRetrieval answers from documents alone.
	RouteRetrieval Route = "retrieval"
	// RouteSQL answers from the warehouse alone.
	RouteSQL Route = "sql"
	// RouteHybrid needs both documents and a query.
	RouteHybrid Route = "hybrid"
)

// NeedsSQL reports whether the route requires query generation.
func (r Route) NeedsSQL() bool {
	return r == RouteSQL || r == RouteHybrid
}
