package execution

import (
	"context"
	"log/slog"

	"github.com/qaforge/qaforge/pkg/events"
	"github.com/qaforge/qaforge/pkg/models"
	"github.com/qaforge/qaforge/pkg/storage"
)

// errRunTimeout is recorded on the synthesized step result when the whole-run
// budget is exceeded. A run timeout reports the run as ERROR.
const errRunTimeout = "run timeout"

// StepRunner dispatches a single step. Satisfied by StepExecutor.
type StepRunner interface {
	Execute(ctx context.Context, runID string, step models.Step, baseURL string, execCtx *Context) models.StepResult
}

// Sanitizer redacts credentials from a step result before it is recorded.
// Satisfied by masking.Service.
type Sanitizer interface {
	MaskStepResult(result *models.StepResult)
}

// RunExecutor drives one scenario run: it sequences steps in index order,
// threads extracted values between steps, records results, and rolls the
// outcomes up into a terminal run status. Step failures never propagate as
// errors; the roll-up rules are:
//
//	ERROR  — any step had a non-timeout error (or the run budget expired)
//	FAILED — otherwise, any step had passed=false
//	PASSED — otherwise
type RunExecutor struct {
	steps     StepRunner
	runs      storage.RunRepository
	results   storage.StepResultRepository
	bus       *events.Bus // may be nil (events disabled)
	sanitizer Sanitizer   // may be nil (masking disabled)
	clock     storage.Clock
	logger    *slog.Logger
}

// NewRunExecutor creates a run executor. bus may be nil.
func NewRunExecutor(steps StepRunner, runs storage.RunRepository, results storage.StepResultRepository, bus *events.Bus, clock storage.Clock) *RunExecutor {
	if clock == nil {
		clock = storage.SystemClock{}
	}
	return &RunExecutor{
		steps:   steps,
		runs:    runs,
		results: results,
		bus:     bus,
		clock:   clock,
		logger:  slog.Default().With("component", "run-executor"),
	}
}

// SetSanitizer installs the result masker applied before results are recorded.
func (e *RunExecutor) SetSanitizer(s Sanitizer) {
	e.sanitizer = s
}

// ExecuteRun runs the scenario to a terminal state. The run must be QUEUED.
// Cancellation of ctx marks the run CANCELLED; expiry of the per-run budget
// (config.TimeoutMs) marks it ERROR with a synthesized final step result.
func (e *RunExecutor) ExecuteRun(ctx context.Context, run *models.Run, scenario *models.Scenario, cfg models.PackageConfig) *models.Run {
	log := e.logger.With("run_id", run.ID, "scenario", scenario.Name)

	if cfg.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout())
		defer cancel()
	}

	run.Status = models.RunStatusRunning
	run.StartedAt = e.clock.Now()
	e.persistRun(run, log)

	execCtx := NewContext(run.Environment)

	var status models.RunStatus
	sawFailure := false

steps:
	for _, step := range scenario.Steps {
		// Between-steps boundary is a cancellation checkpoint.
		switch ctx.Err() {
		case context.Canceled:
			status = models.RunStatusCancelled
			break steps
		case context.DeadlineExceeded:
			e.recordResult(run, e.synthesizedResult(run, errRunTimeout), log)
			status = models.RunStatusError
			break steps
		}

		result := e.steps.Execute(ctx, run.ID, step, run.BaseURL, execCtx)
		e.recordResult(run, result, log)

		switch ctx.Err() {
		case context.Canceled:
			status = models.RunStatusCancelled
			break steps
		case context.DeadlineExceeded:
			e.recordResult(run, e.synthesizedResult(run, errRunTimeout), log)
			status = models.RunStatusError
			break steps
		}

		// A non-timeout error aborts the scenario.
		if result.ErrorMessage != "" && !result.TimedOut {
			status = models.RunStatusError
			break steps
		}

		if !result.Passed {
			sawFailure = true
			if cfg.StopOnFirstFailure {
				status = models.RunStatusFailed
				break steps
			}
		}

		execCtx.AddExtracted(result.ExtractedValues)
	}

	if status == "" {
		if sawFailure {
			status = models.RunStatusFailed
		} else {
			status = models.RunStatusPassed
		}
	}

	run.Status = status
	completed := e.clock.Now()
	run.CompletedAt = &completed
	e.persistRun(run, log)

	e.publishRunCompleted(run, scenario)

	log.Info("Run complete", "status", run.Status,
		"passed_steps", run.PassedSteps(), "failed_steps", run.FailedSteps())
	return run
}

// synthesizedResult builds the artificial final step result appended when the
// run budget expires. Its index extends the recorded prefix so step indices
// stay contiguous.
func (e *RunExecutor) synthesizedResult(run *models.Run, message string) models.StepResult {
	return models.StepResult{
		RunID:        run.ID,
		StepIndex:    len(run.StepResults),
		StepName:     message,
		Passed:       false,
		ErrorMessage: message,
		ExecutedAt:   e.clock.Now(),
	}
}

// recordResult appends the result to the run and persists it. Persistence
// errors are logged, never raised. Masking applies only to the recorded copy;
// the caller's result keeps the raw extracted values for step chaining.
func (e *RunExecutor) recordResult(run *models.Run, result models.StepResult, log *slog.Logger) {
	if e.sanitizer != nil {
		e.sanitizer.MaskStepResult(&result)
	}
	run.StepResults = append(run.StepResults, result)
	if e.results == nil {
		return
	}
	if err := e.results.Append(context.Background(), &result); err != nil {
		log.Error("Failed to persist step result", "step_index", result.StepIndex, "error", err)
	}
}

// persistRun writes the run row. Uses a background context: the run context
// may already be cancelled when the terminal status is written.
func (e *RunExecutor) persistRun(run *models.Run, log *slog.Logger) {
	if e.runs == nil {
		return
	}
	if err := e.runs.Update(context.Background(), run); err != nil {
		log.Error("Failed to persist run", "error", err)
	}
}

// publishRunCompleted emits the terminal run event. Non-blocking; nil-safe.
func (e *RunExecutor) publishRunCompleted(run *models.Run, scenario *models.Scenario) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{
		Type:      events.EventTypeRunCompleted,
		PackageID: run.PackageID,
		Timestamp: e.clock.Now(),
		Payload: events.RunCompletedPayload{
			RunID:        run.ID,
			PackageID:    run.PackageID,
			ScenarioName: scenario.Name,
			Status:       run.Status,
			PassedSteps:  run.PassedSteps(),
			FailedSteps:  run.FailedSteps(),
			DurationMs:   run.DurationMs(),
		},
	})
}
