package execution

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/qaforge/qaforge/pkg/models"
)

// Assertion type labels recorded in AssertionResult.Type.
const (
	AssertionStatus       = "STATUS"
	AssertionStatusRange  = "STATUS_RANGE"
	AssertionBodyContains = "BODY_CONTAINS"
	AssertionHeader       = "HEADER"
)

// EvaluateAssertions compares an ExpectedResult against an HTTP response.
// Pure: no I/O, no mutation. Returns one AssertionResult per constraint, in
// a deterministic order (status, range, body substrings, body fields sorted
// by path, headers sorted by name).
func EvaluateAssertions(expected models.ExpectedResult, status int, headers http.Header, body string) []models.AssertionResult {
	var results []models.AssertionResult

	if expected.Status != nil {
		results = append(results, models.AssertionResult{
			Type:     AssertionStatus,
			Expected: strconv.Itoa(*expected.Status),
			Actual:   strconv.Itoa(status),
			Passed:   status == *expected.Status,
		})
	}

	if r := expected.StatusRange; r != nil {
		results = append(results, models.AssertionResult{
			Type:     AssertionStatusRange,
			Expected: fmt.Sprintf("%d..%d", r.Min, r.Max),
			Actual:   strconv.Itoa(status),
			Passed:   status >= r.Min && status <= r.Max,
		})
	}

	for _, substr := range expected.BodyContains {
		results = append(results, models.AssertionResult{
			Type:     AssertionBodyContains,
			Expected: substr,
			Passed:   strings.Contains(body, substr),
		})
	}

	if len(expected.BodyFields) > 0 {
		var doc any
		// An unparseable body leaves doc nil; every field lookup then
		// sees an absent value.
		_ = json.Unmarshal([]byte(body), &doc)

		paths := make([]string, 0, len(expected.BodyFields))
		for p := range expected.BodyFields {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, path := range paths {
			results = append(results, evaluateFieldMatcher(doc, path, expected.BodyFields[path]))
		}
	}

	if len(expected.Headers) > 0 {
		names := make([]string, 0, len(expected.Headers))
		for n := range expected.Headers {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, name := range names {
			want := expected.Headers[name]
			got := headers.Get(name)
			results = append(results, models.AssertionResult{
				Type:     AssertionHeader,
				Field:    name,
				Expected: want,
				Actual:   got,
				Passed:   got == want,
			})
		}
	}

	return results
}

// evaluateFieldMatcher applies one FieldMatcher to the JSON value at path.
func evaluateFieldMatcher(doc any, path string, matcher models.FieldMatcher) models.AssertionResult {
	value, found := Lookup(doc, path)
	result := models.AssertionResult{
		Type:  fieldAssertionType(matcher.Type),
		Field: path,
	}
	if found {
		result.Actual = Stringify(value)
	}

	switch matcher.Type {
	case models.MatcherExact:
		result.Expected = Stringify(matcher.Value)
		result.Passed = found && Stringify(value) == result.Expected

	case models.MatcherAnyPresent, models.MatcherNotNull:
		result.Passed = found
		if !found {
			result.Message = "value absent or null"
		}

	case models.MatcherIsNull:
		result.Passed = !found

	case models.MatcherRegex:
		result.Expected = matcher.Pattern
		re, err := regexp.Compile(matcher.Pattern)
		if err != nil {
			result.Message = fmt.Sprintf("invalid pattern: %v", err)
			break
		}
		result.Passed = found && re.MatchString(Stringify(value))

	case models.MatcherGreaterThan, models.MatcherLessThan:
		threshold, ok := asNumber(matcher.Value)
		if !ok {
			result.Message = "matcher threshold is not numeric"
			break
		}
		result.Expected = Stringify(matcher.Value)
		actual, numeric := asNumber(value)
		if !found || !numeric {
			result.Message = "value absent or not numeric"
			break
		}
		if matcher.Type == models.MatcherGreaterThan {
			result.Passed = actual > threshold
		} else {
			result.Passed = actual < threshold
		}

	case models.MatcherOneOf:
		options := make([]string, len(matcher.Values))
		for i, v := range matcher.Values {
			options[i] = Stringify(v)
		}
		result.Expected = strings.Join(options, "|")
		if found {
			actual := Stringify(value)
			for _, opt := range options {
				if actual == opt {
					result.Passed = true
					break
				}
			}
		}

	default:
		result.Message = fmt.Sprintf("unknown matcher type %q", matcher.Type)
	}

	return result
}

// fieldAssertionType maps matcher variants to assertion labels.
func fieldAssertionType(t models.MatcherType) string {
	switch t {
	case models.MatcherExact:
		return "BODY_FIELD_EXACT"
	case models.MatcherAnyPresent:
		return "BODY_FIELD_EXISTS"
	case models.MatcherRegex:
		return "BODY_FIELD_REGEX"
	case models.MatcherGreaterThan:
		return "BODY_FIELD_GREATER_THAN"
	case models.MatcherLessThan:
		return "BODY_FIELD_LESS_THAN"
	case models.MatcherOneOf:
		return "BODY_FIELD_ONE_OF"
	case models.MatcherNotNull:
		return "BODY_FIELD_NOT_NULL"
	case models.MatcherIsNull:
		return "BODY_FIELD_NULL"
	default:
		return "BODY_FIELD_" + string(t)
	}
}
