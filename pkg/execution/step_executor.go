package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qaforge/qaforge/pkg/models"
	"github.com/qaforge/qaforge/pkg/storage"
	"github.com/qaforge/qaforge/pkg/version"
)

// DefaultBodyLimit is the response body ceiling in bytes.
const DefaultBodyLimit = 16 << 20 // 16 MiB

// Error messages recorded on StepResult. Tests and the run roll-up pin these.
const (
	errBodyLimit = "response body exceeds limit"
	errCancelled = "cancelled"
)

// StepExecutor issues one HTTP request per step and evaluates assertions.
// It never returns an error: every failure mode is absorbed into the
// StepResult. It does not retry.
type StepExecutor struct {
	client    *http.Client
	bodyLimit int64
	clock     storage.Clock
}

// NewStepExecutor creates a step executor. client may be nil (a default
// client without its own timeout is used; per-step timeouts come from the
// request context). bodyLimit <= 0 uses DefaultBodyLimit.
func NewStepExecutor(client *http.Client, bodyLimit int64, clock storage.Clock) *StepExecutor {
	if client == nil {
		client = &http.Client{}
	}
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}
	if clock == nil {
		clock = storage.SystemClock{}
	}
	return &StepExecutor{client: client, bodyLimit: bodyLimit, clock: clock}
}

// Execute resolves the step against the context, dispatches the HTTP request
// bounded by step.TimeoutMs, evaluates assertions, and computes extractions.
func (e *StepExecutor) Execute(ctx context.Context, runID string, step models.Step, baseURL string, execCtx *Context) models.StepResult {
	start := e.clock.Now()
	result := models.StepResult{
		RunID:      runID,
		StepIndex:  step.Index,
		StepName:   step.Name,
		ExecutedAt: start,
	}
	finish := func() models.StepResult {
		result.DurationMs = e.clock.Now().Sub(start).Milliseconds()
		return result
	}
	fail := func(message string) models.StepResult {
		result.ErrorMessage = message
		result.Passed = false
		return finish()
	}

	// 1. Resolve URL, body, and header values against the context.
	url := strings.TrimSuffix(baseURL, "/") + execCtx.Resolve(step.Endpoint)
	body := execCtx.Resolve(step.Body)

	stepCtx, cancel := context.WithTimeout(ctx, time.Duration(step.TimeoutMs)*time.Millisecond)
	defer cancel()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(stepCtx, step.Method, url, reqBody)
	if err != nil {
		return fail(fmt.Sprintf("invalid request: %v", err))
	}
	req.Header.Set("User-Agent", version.Full())
	for _, h := range step.Headers {
		req.Header.Set(h.Name, execCtx.Resolve(h.Value))
	}

	// 2. Dispatch and read the full body.
	resp, err := e.client.Do(req)
	if err != nil {
		msg, timedOut := classifyTransportError(ctx, stepCtx, step, err)
		result.TimedOut = timedOut
		return fail(msg)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.bodyLimit+1))
	if err != nil {
		msg, timedOut := classifyTransportError(ctx, stepCtx, step, err)
		result.TimedOut = timedOut
		return fail(msg)
	}
	if int64(len(raw)) > e.bodyLimit {
		return fail(errBodyLimit)
	}

	status := resp.StatusCode
	result.ActualStatus = &status
	result.ActualBody = string(raw)
	result.ActualHeaders = flattenHeaders(resp.Header)

	// 3. Evaluate assertions.
	result.Assertions = EvaluateAssertions(step.Expected, status, resp.Header, result.ActualBody)

	// 4. Compute extractions. Null or missing values are omitted, not errors.
	if len(step.Extractions) > 0 {
		var doc any
		if jsonErr := json.Unmarshal(raw, &doc); jsonErr == nil {
			extracted := make(map[string]string)
			for name, path := range step.Extractions {
				if value, found := Lookup(doc, path); found {
					extracted[name] = Stringify(value)
				}
			}
			if len(extracted) > 0 {
				result.ExtractedValues = extracted
			}
		}
	}

	result.Passed = allPassed(result.Assertions)
	return finish()
}

// classifyTransportError maps dispatch errors to the StepResult error fields.
// Timeout detection must distinguish the step deadline from cancellation or
// deadline of the surrounding run.
func classifyTransportError(parent, stepCtx context.Context, step models.Step, err error) (message string, timedOut bool) {
	if parent.Err() == context.Canceled {
		return errCancelled, false
	}
	if errors.Is(err, context.DeadlineExceeded) || stepCtx.Err() == context.DeadlineExceeded {
		// Only flag as step timeout when the parent deadline has not fired;
		// a run-level deadline is reported by the run executor instead.
		if parent.Err() == nil {
			return fmt.Sprintf("Request timed out after %dms", step.TimeoutMs), true
		}
		return errCancelled, false
	}
	return err.Error(), false
}

// flattenHeaders keeps the first value per header name.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

// allPassed reports whether every assertion passed.
func allPassed(assertions []models.AssertionResult) bool {
	for _, a := range assertions {
		if !a.Passed {
			return false
		}
	}
	return true
}
