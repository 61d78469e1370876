package models

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// MatcherType discriminates the FieldMatcher variants on the wire.
type MatcherType string

// FieldMatcher variants.
const (
	MatcherExact       MatcherType = "EXACT"
	MatcherAnyPresent  MatcherType = "ANY_PRESENT"
	MatcherRegex       MatcherType = "REGEX"
	MatcherGreaterThan MatcherType = "GREATER_THAN"
	MatcherLessThan    MatcherType = "LESS_THAN"
	MatcherOneOf       MatcherType = "ONE_OF"
	MatcherNotNull     MatcherType = "NOT_NULL"
	MatcherIsNull      MatcherType = "IS_NULL"
)

// FieldMatcher is a tagged union describing one expectation against a JSON
// body field. The wire form carries a "type" discriminator with optional
// value/pattern/values siblings.
type FieldMatcher struct {
	Type    MatcherType
	Value   any    // EXACT, GREATER_THAN, LESS_THAN
	Pattern string // REGEX
	Values  []any  // ONE_OF
}

// Constructors for the matcher variants.

func Exact(v any) FieldMatcher         { return FieldMatcher{Type: MatcherExact, Value: v} }
func AnyPresent() FieldMatcher         { return FieldMatcher{Type: MatcherAnyPresent} }
func Regex(pattern string) FieldMatcher {
	return FieldMatcher{Type: MatcherRegex, Pattern: pattern}
}
func GreaterThan(n float64) FieldMatcher {
	return FieldMatcher{Type: MatcherGreaterThan, Value: n}
}
func LessThan(n float64) FieldMatcher { return FieldMatcher{Type: MatcherLessThan, Value: n} }
func OneOf(values ...any) FieldMatcher {
	return FieldMatcher{Type: MatcherOneOf, Values: values}
}
func NotNull() FieldMatcher { return FieldMatcher{Type: MatcherNotNull} }
func IsNull() FieldMatcher  { return FieldMatcher{Type: MatcherIsNull} }

// Validate checks that the matcher is well-formed before any evaluation.
func (m FieldMatcher) Validate() error {
	switch m.Type {
	case MatcherExact:
		if m.Value == nil {
			return NewValidationError("value", "EXACT matcher requires a value")
		}
	case MatcherRegex:
		if _, err := regexp.Compile(m.Pattern); err != nil {
			return NewValidationError("pattern", fmt.Sprintf("invalid regex: %v", err))
		}
	case MatcherGreaterThan, MatcherLessThan:
		if _, ok := toNumber(m.Value); !ok {
			return NewValidationError("value", fmt.Sprintf("%s matcher requires a numeric value", m.Type))
		}
	case MatcherOneOf:
		if len(m.Values) == 0 {
			return NewValidationError("values", "ONE_OF matcher requires at least one value")
		}
	case MatcherAnyPresent, MatcherNotNull, MatcherIsNull:
		// No payload.
	default:
		return NewValidationError("type", fmt.Sprintf("unknown matcher type %q", m.Type))
	}
	return nil
}

// matcherWire is the JSON representation of a FieldMatcher.
type matcherWire struct {
	Type    MatcherType `json:"type"`
	Value   any         `json:"value,omitempty"`
	Pattern string      `json:"pattern,omitempty"`
	Values  []any       `json:"values,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m FieldMatcher) MarshalJSON() ([]byte, error) {
	return json.Marshal(matcherWire{Type: m.Type, Value: m.Value, Pattern: m.Pattern, Values: m.Values})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *FieldMatcher) UnmarshalJSON(data []byte) error {
	var w matcherWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Type = w.Type
	m.Value = w.Value
	m.Pattern = w.Pattern
	m.Values = w.Values
	return nil
}

// toNumber converts JSON-decoded values to float64 where possible.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
