package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ScenarioSource indicates where a scenario came from.
type ScenarioSource string

// Scenario sources.
const (
	SourceAIGenerated ScenarioSource = "AI_GENERATED"
	SourceManual      ScenarioSource = "MANUAL"
	SourceImported    ScenarioSource = "IMPORTED"
)

// ScenarioStatus is the lifecycle state of a scenario definition.
type ScenarioStatus string

// Scenario statuses.
const (
	ScenarioStatusActive   ScenarioStatus = "ACTIVE"
	ScenarioStatusArchived ScenarioStatus = "ARCHIVED"
)

// maxEndpointLength bounds generated endpoint templates.
const maxEndpointLength = 2000

// allowedMethods is the set of HTTP methods a step may use.
var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// Scenario is a named, ordered sequence of HTTP test steps.
type Scenario struct {
	ID          string         `json:"id"`
	PackageID   string         `json:"package_id,omitempty"`
	SuiteID     string         `json:"suite_id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Steps       []Step         `json:"steps"`
	Tags        []string       `json:"tags,omitempty"`
	Source      ScenarioSource `json:"source"`
	Status      ScenarioStatus `json:"status"`
}

// Validate checks scenario invariants: non-blank name, step count within the
// configured bound, and step indices forming a strictly increasing sequence
// starting at 0.
func (s *Scenario) Validate(maxSteps int) error {
	if s.Name == "" {
		return NewValidationError("name", "must not be blank")
	}
	if len(s.Steps) == 0 {
		return NewValidationError("steps", "must not be empty")
	}
	if maxSteps > 0 && len(s.Steps) > maxSteps {
		return NewValidationError("steps", fmt.Sprintf("step count %d exceeds limit %d", len(s.Steps), maxSteps))
	}
	for i, step := range s.Steps {
		if step.Index != i {
			return NewValidationError("steps",
				fmt.Sprintf("step indices must be 0..n-1 without gaps; got %d at position %d", step.Index, i))
		}
		if err := step.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Header is a single HTTP header name/value pair. Steps carry headers as an
// ordered list so dispatch is reproducible.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers preserves insertion order. JSON input may be either an array of
// {name, value} objects or a plain object; object keys are sorted for
// determinism since JSON objects carry no order.
type Headers []Header

// UnmarshalJSON implements json.Unmarshaler.
func (h *Headers) UnmarshalJSON(data []byte) error {
	var list []Header
	if err := json.Unmarshal(data, &list); err == nil {
		*h = list
		return nil
	}
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("headers must be an array of {name,value} or an object: %w", err)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list = make([]Header, 0, len(keys))
	for _, k := range keys {
		list = append(list, Header{Name: k, Value: obj[k]})
	}
	*h = list
	return nil
}

// Step is one HTTP action plus its expected result and value extractions.
type Step struct {
	Index       int               `json:"index"`
	Name        string            `json:"name"`
	Method      string            `json:"method"`
	Endpoint    string            `json:"endpoint"` // path template, may contain ${var} placeholders
	Headers     Headers           `json:"headers,omitempty"`
	Body        string            `json:"body,omitempty"`
	Expected    ExpectedResult    `json:"expected"`
	Extractions map[string]string `json:"extractions,omitempty"` // name → JSON path
	TimeoutMs   int64             `json:"timeout_ms"`
}

// Step timeout bounds in milliseconds.
const (
	MinStepTimeoutMs = 100
	MaxStepTimeoutMs = 300_000
)

// Validate checks step invariants.
func (s *Step) Validate() error {
	if !allowedMethods[s.Method] {
		return NewValidationError("method", fmt.Sprintf("unknown HTTP method %q", s.Method))
	}
	if s.Endpoint == "" {
		return NewValidationError("endpoint", "must not be blank")
	}
	if len(s.Endpoint) > maxEndpointLength {
		return NewValidationError("endpoint", fmt.Sprintf("exceeds %d characters", maxEndpointLength))
	}
	if s.TimeoutMs < MinStepTimeoutMs || s.TimeoutMs > MaxStepTimeoutMs {
		return NewValidationError("timeout_ms",
			fmt.Sprintf("must be between %d and %d", MinStepTimeoutMs, MaxStepTimeoutMs))
	}
	for path, matcher := range s.Expected.BodyFields {
		if err := matcher.Validate(); err != nil {
			return fmt.Errorf("matcher for %q: %w", path, err)
		}
	}
	if s.Expected.StatusRange != nil && s.Expected.StatusRange.Min > s.Expected.StatusRange.Max {
		return NewValidationError("status_range", "min must not exceed max")
	}
	return nil
}

// StatusRange is an inclusive HTTP status range.
type StatusRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ExpectedResult is a conjunction of response constraints. All present
// constraints must hold for the step to pass.
type ExpectedResult struct {
	Status       *int                    `json:"status,omitempty"`
	StatusRange  *StatusRange            `json:"status_range,omitempty"`
	BodyContains []string                `json:"body_contains,omitempty"`
	BodyFields   map[string]FieldMatcher `json:"body_fields,omitempty"` // JSON path → matcher
	Headers      map[string]string       `json:"headers,omitempty"`    // required response header values
}
