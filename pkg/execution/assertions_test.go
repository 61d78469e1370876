package execution

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/qaforge/pkg/models"
)

func intPtr(n int) *int { return &n }

func singleResult(t *testing.T, expected models.ExpectedResult, status int, headers http.Header, body string) models.AssertionResult {
	t.Helper()
	results := EvaluateAssertions(expected, status, headers, body)
	require.Len(t, results, 1)
	return results[0]
}

func TestStatusAssertion(t *testing.T) {
	r := singleResult(t, models.ExpectedResult{Status: intPtr(200)}, 200, nil, "")
	assert.True(t, r.Passed)
	assert.Equal(t, AssertionStatus, r.Type)

	r = singleResult(t, models.ExpectedResult{Status: intPtr(200)}, 404, nil, "")
	assert.False(t, r.Passed)
}

func TestStatusRangeInclusiveBothEnds(t *testing.T) {
	expected := models.ExpectedResult{StatusRange: &models.StatusRange{Min: 200, Max: 299}}
	assert.True(t, singleResult(t, expected, 200, nil, "").Passed)
	assert.True(t, singleResult(t, expected, 299, nil, "").Passed)
	assert.False(t, singleResult(t, expected, 300, nil, "").Passed)
	assert.False(t, singleResult(t, expected, 199, nil, "").Passed)
}

func TestBodyContains(t *testing.T) {
	expected := models.ExpectedResult{BodyContains: []string{`"name":"rex"`}}
	assert.True(t, singleResult(t, expected, 200, nil, `{"name":"rex"}`).Passed)
	assert.False(t, singleResult(t, expected, 200, nil, `{"name":"fido"}`).Passed)
}

func TestHeaderAssertionCaseInsensitiveName(t *testing.T) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	expected := models.ExpectedResult{Headers: map[string]string{"content-type": "application/json"}}
	assert.True(t, singleResult(t, expected, 200, headers, "").Passed)

	// Value comparison is exact.
	expected = models.ExpectedResult{Headers: map[string]string{"content-type": "application/JSON"}}
	assert.False(t, singleResult(t, expected, 200, headers, "").Passed)
}

func TestBodyFieldExactStringifiesBothSides(t *testing.T) {
	expected := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{
		"id": models.Exact(float64(42)),
	}}
	// JSON number 42 matches expected number 42 through stringification.
	r := singleResult(t, expected, 200, nil, `{"id":42}`)
	assert.True(t, r.Passed)
	assert.Equal(t, "BODY_FIELD_EXACT", r.Type)

	// A string "42" also stringifies to "42".
	assert.True(t, singleResult(t, expected, 200, nil, `{"id":"42"}`).Passed)
	assert.False(t, singleResult(t, expected, 200, nil, `{"id":43}`).Passed)
}

func TestBodyFieldExistsAndNullness(t *testing.T) {
	exists := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{"a": models.AnyPresent()}}
	assert.True(t, singleResult(t, exists, 200, nil, `{"a":1}`).Passed)
	assert.False(t, singleResult(t, exists, 200, nil, `{"a":null}`).Passed)
	assert.False(t, singleResult(t, exists, 200, nil, `{}`).Passed)

	notNull := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{"a": models.NotNull()}}
	assert.True(t, singleResult(t, notNull, 200, nil, `{"a":false}`).Passed)
	assert.False(t, singleResult(t, notNull, 200, nil, `{"a":null}`).Passed)

	isNull := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{"a": models.IsNull()}}
	assert.True(t, singleResult(t, isNull, 200, nil, `{"a":null}`).Passed)
	assert.True(t, singleResult(t, isNull, 200, nil, `{}`).Passed)
	assert.False(t, singleResult(t, isNull, 200, nil, `{"a":0}`).Passed)
}

func TestBodyFieldRegexIsUnanchored(t *testing.T) {
	partial := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{
		"sku": models.Regex("pet-[0-9]+"),
	}}
	// Without explicit anchors a substring match passes.
	assert.True(t, singleResult(t, partial, 200, nil, `{"sku":"xx-pet-42-yy"}`).Passed)

	anchored := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{
		"sku": models.Regex("^pet-[0-9]+$"),
	}}
	assert.False(t, singleResult(t, anchored, 200, nil, `{"sku":"xx-pet-42-yy"}`).Passed)
	assert.True(t, singleResult(t, anchored, 200, nil, `{"sku":"pet-42"}`).Passed)
}

func TestBodyFieldNumericComparisons(t *testing.T) {
	gt := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{"n": models.GreaterThan(10)}}
	assert.True(t, singleResult(t, gt, 200, nil, `{"n":11}`).Passed)
	assert.False(t, singleResult(t, gt, 200, nil, `{"n":10}`).Passed)
	// Numeric strings parse as numbers.
	assert.True(t, singleResult(t, gt, 200, nil, `{"n":"10.5"}`).Passed)
	// Non-numeric values fail with a message.
	r := singleResult(t, gt, 200, nil, `{"n":"abc"}`)
	assert.False(t, r.Passed)
	assert.NotEmpty(t, r.Message)

	lt := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{"n": models.LessThan(5)}}
	assert.True(t, singleResult(t, lt, 200, nil, `{"n":4.9}`).Passed)
	assert.False(t, singleResult(t, lt, 200, nil, `{"n":5}`).Passed)
}

func TestBodyFieldOneOf(t *testing.T) {
	expected := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{
		"state": models.OneOf("available", "pending"),
	}}
	assert.True(t, singleResult(t, expected, 200, nil, `{"state":"pending"}`).Passed)
	assert.False(t, singleResult(t, expected, 200, nil, `{"state":"sold"}`).Passed)
	assert.False(t, singleResult(t, expected, 200, nil, `{}`).Passed)
}

func TestUnparseableBodyTreatsFieldsAsAbsent(t *testing.T) {
	expected := models.ExpectedResult{BodyFields: map[string]models.FieldMatcher{
		"a": models.AnyPresent(),
		"b": models.IsNull(),
	}}
	results := EvaluateAssertions(expected, 200, nil, "<html>not json</html>")
	require.Len(t, results, 2)
	// Sorted by path: "a" then "b".
	assert.False(t, results[0].Passed)
	assert.True(t, results[1].Passed)
}

func TestNoConstraintsYieldsNoResults(t *testing.T) {
	assert.Empty(t, EvaluateAssertions(models.ExpectedResult{}, 200, nil, "{}"))
}
