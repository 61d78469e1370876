package models

import "time"

// Run is one execution of one scenario against one base URL.
type Run struct {
	ID          string            `json:"id"`
	ScenarioID  string            `json:"scenario_id"`
	PackageID   string            `json:"package_id,omitempty"`
	TriggeredBy string            `json:"triggered_by,omitempty"`
	BaseURL     string            `json:"base_url"`
	Status      RunStatus         `json:"status"`
	Environment map[string]string `json:"environment,omitempty"`
	StepResults []StepResult      `json:"step_results"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// DurationMs returns the run duration in milliseconds, or 0 while non-terminal.
func (r *Run) DurationMs() int64 {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt).Milliseconds()
}

// PassedSteps counts step results with passed=true.
func (r *Run) PassedSteps() int {
	n := 0
	for _, sr := range r.StepResults {
		if sr.Passed {
			n++
		}
	}
	return n
}

// FailedSteps counts step results with passed=false.
func (r *Run) FailedSteps() int {
	return len(r.StepResults) - r.PassedSteps()
}

// StepResult records one step's outcome. All failure modes are absorbed into
// fields; executing a step never raises.
type StepResult struct {
	RunID           string            `json:"run_id"`
	StepIndex       int               `json:"step_index"`
	StepName        string            `json:"step_name"`
	ActualStatus    *int              `json:"actual_status,omitempty"`
	ActualHeaders   map[string]string `json:"actual_headers,omitempty"`
	ActualBody      string            `json:"actual_body,omitempty"`
	Passed          bool              `json:"passed"`
	Assertions      []AssertionResult `json:"assertions,omitempty"`
	ExtractedValues map[string]string `json:"extracted_values,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	TimedOut        bool              `json:"timed_out,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
	ExecutedAt      time.Time         `json:"executed_at"`
}

// AssertionResult is the outcome of a single assertion.
type AssertionResult struct {
	Type     string `json:"type"`
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}
