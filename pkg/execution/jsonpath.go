package execution

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

// Lookup evaluates a dotted JSON path with optional [i] subscripts (e.g.
// "user.addresses[0].city") against a decoded JSON document. A leading "$."
// or "$" prefix is tolerated. Returns (value, true) only when the node is
// present and not JSON null; any missing intermediate node, type mismatch, or
// unparseable path yields (nil, false).
func Lookup(doc any, path string) (any, bool) {
	query, err := gojq.Parse(normalizePath(path))
	if err != nil {
		return nil, false
	}
	iter := query.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if _, isErr := v.(error); isErr {
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

// normalizePath converts the dotted-path form into a jq query.
func normalizePath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.TrimPrefix(p, "$")
	if p == "" {
		return "."
	}
	if !strings.HasPrefix(p, ".") && !strings.HasPrefix(p, "[") {
		p = "." + p
	}
	return p
}

// Stringify renders a JSON value the way matchers and extractions compare it:
// strings as-is, numbers without a trailing ".0", booleans as true/false, and
// composites as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// asNumber extracts a numeric value for GREATER_THAN / LESS_THAN matchers.
// Numeric JSON strings count as numbers.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
