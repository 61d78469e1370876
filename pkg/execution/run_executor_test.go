package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/qaforge/pkg/events"
	"github.com/qaforge/qaforge/pkg/models"
	"github.com/qaforge/qaforge/pkg/storage"
)

// scriptedStep defines the outcome of one step for the stub runner.
type scriptedStep struct {
	result models.StepResult
	delay  time.Duration
}

// stubStepRunner returns scripted results and records resolved endpoints.
type stubStepRunner struct {
	script    map[int]scriptedStep
	endpoints []string
}

func (s *stubStepRunner) Execute(ctx context.Context, runID string, step models.Step, baseURL string, execCtx *Context) models.StepResult {
	s.endpoints = append(s.endpoints, execCtx.Resolve(step.Endpoint))
	scripted, ok := s.script[step.Index]
	if !ok {
		return models.StepResult{RunID: runID, StepIndex: step.Index, StepName: step.Name, Passed: true}
	}
	if scripted.delay > 0 {
		select {
		case <-time.After(scripted.delay):
		case <-ctx.Done():
		}
	}
	r := scripted.result
	r.RunID = runID
	r.StepIndex = step.Index
	r.StepName = step.Name
	return r
}

func scenarioWithSteps(n int) *models.Scenario {
	sc := &models.Scenario{ID: "s1", Name: "scenario", Source: models.SourceAIGenerated}
	for i := 0; i < n; i++ {
		sc.Steps = append(sc.Steps, models.Step{Index: i, Name: "step", Method: "GET", Endpoint: "/x", TimeoutMs: 1000})
	}
	return sc
}

func newTestRun() *models.Run {
	return &models.Run{ID: "r1", ScenarioID: "s1", PackageID: "p1", Status: models.RunStatusQueued, BaseURL: "http://api"}
}

func executeWith(t *testing.T, runner StepRunner, scenario *models.Scenario, cfg models.PackageConfig) *models.Run {
	t.Helper()
	store := storage.NewMemoryStore()
	run := newTestRun()
	require.NoError(t, store.CreateRun(context.Background(), run))
	executor := NewRunExecutor(runner, store.Runs(), store.StepResults(), nil, nil)
	return executor.ExecuteRun(context.Background(), run, scenario, cfg)
}

func TestRunExecutor_AllStepsPass(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{}}
	run := executeWith(t, runner, scenarioWithSteps(3), models.DefaultPackageConfig())

	assert.Equal(t, models.RunStatusPassed, run.Status)
	require.NotNil(t, run.CompletedAt)
	assert.Len(t, run.StepResults, 3)
	// Step indices form a contiguous increasing prefix from 0.
	for i, sr := range run.StepResults {
		assert.Equal(t, i, sr.StepIndex)
	}
}

func TestRunExecutor_AssertionFailureContinues(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{
		0: {result: models.StepResult{Passed: false}},
	}}
	run := executeWith(t, runner, scenarioWithSteps(3), models.DefaultPackageConfig())

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Len(t, run.StepResults, 3, "later steps still execute")
}

func TestRunExecutor_StopOnFirstFailure(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{
		0: {result: models.StepResult{Passed: false}},
	}}
	cfg := models.DefaultPackageConfig()
	cfg.StopOnFirstFailure = true
	run := executeWith(t, runner, scenarioWithSteps(3), cfg)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Len(t, run.StepResults, 1)
}

func TestRunExecutor_NonTimeoutErrorAborts(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{
		1: {result: models.StepResult{Passed: false, ErrorMessage: "connection refused"}},
	}}
	run := executeWith(t, runner, scenarioWithSteps(4), models.DefaultPackageConfig())

	assert.Equal(t, models.RunStatusError, run.Status)
	assert.Len(t, run.StepResults, 2, "scenario aborts after the erroring step")
}

func TestRunExecutor_TimeoutIsAFailureNotAnError(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{
		0: {result: models.StepResult{Passed: false, TimedOut: true, ErrorMessage: "Request timed out after 100ms"}},
	}}
	run := executeWith(t, runner, scenarioWithSteps(2), models.DefaultPackageConfig())

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Len(t, run.StepResults, 2, "a timeout does not abort the scenario")
}

func TestRunExecutor_ExtractionsThreadIntoLaterSteps(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{
		0: {result: models.StepResult{Passed: true, ExtractedValues: map[string]string{"id": "42"}}},
	}}
	scenario := scenarioWithSteps(2)
	scenario.Steps[1].Endpoint = "/pets/${id}"
	run := executeWith(t, runner, scenario, models.DefaultPackageConfig())

	assert.Equal(t, models.RunStatusPassed, run.Status)
	require.Len(t, runner.endpoints, 2)
	assert.Equal(t, "/pets/42", runner.endpoints[1])
}

func TestRunExecutor_RunBudgetExpiryIsError(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{
		0: {delay: 200 * time.Millisecond, result: models.StepResult{Passed: true}},
	}}
	cfg := models.DefaultPackageConfig()
	cfg.TimeoutMs = 50

	run := executeWith(t, runner, scenarioWithSteps(3), cfg)

	assert.Equal(t, models.RunStatusError, run.Status)
	last := run.StepResults[len(run.StepResults)-1]
	assert.Equal(t, "run timeout", last.ErrorMessage)
	// The synthesized result keeps indices contiguous.
	for i, sr := range run.StepResults {
		assert.Equal(t, i, sr.StepIndex)
	}
}

func TestRunExecutor_CancellationSkipsRemainingSteps(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{
		0: {delay: time.Second, result: models.StepResult{Passed: false, ErrorMessage: "cancelled"}},
	}}
	store := storage.NewMemoryStore()
	run := newTestRun()
	require.NoError(t, store.CreateRun(context.Background(), run))
	executor := NewRunExecutor(runner, store.Runs(), store.StepResults(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	result := executor.ExecuteRun(ctx, run, scenarioWithSteps(3), models.DefaultPackageConfig())

	assert.Equal(t, models.RunStatusCancelled, result.Status)
	require.NotNil(t, result.CompletedAt)
	assert.Len(t, result.StepResults, 1, "subsequent steps are skipped")
}

func TestRunExecutor_PublishesRunCompleted(t *testing.T) {
	bus := events.NewBus(4)
	defer bus.Close()
	ch, unsub := bus.Subscribe()
	defer unsub()

	store := storage.NewMemoryStore()
	run := newTestRun()
	require.NoError(t, store.CreateRun(context.Background(), run))
	executor := NewRunExecutor(&stubStepRunner{}, store.Runs(), store.StepResults(), bus, nil)
	executor.ExecuteRun(context.Background(), run, scenarioWithSteps(2), models.DefaultPackageConfig())

	select {
	case evt := <-ch:
		assert.Equal(t, events.EventTypeRunCompleted, evt.Type)
		payload, ok := evt.Payload.(events.RunCompletedPayload)
		require.True(t, ok)
		assert.Equal(t, models.RunStatusPassed, payload.Status)
		assert.Equal(t, 2, payload.PassedSteps)
	case <-time.After(time.Second):
		t.Fatal("expected run.completed event")
	}
}

func TestRunExecutor_PersistsTerminalRunAndResults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	run := newTestRun()
	require.NoError(t, store.CreateRun(ctx, run))

	executor := NewRunExecutor(&stubStepRunner{}, store.Runs(), store.StepResults(), nil, nil)
	executor.ExecuteRun(ctx, run, scenarioWithSteps(2), models.DefaultPackageConfig())

	stored, err := store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPassed, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	results, err := store.ListByRun(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

// redactingSanitizer blanks bodies so recorded copies can be told apart from
// what the step runner produced.
type redactingSanitizer struct{ calls int }

func (r *redactingSanitizer) MaskStepResult(result *models.StepResult) {
	r.calls++
	result.ActualBody = "__REDACTED__"
}

func TestRunExecutor_SanitizerAppliesToRecordedCopyOnly(t *testing.T) {
	runner := &stubStepRunner{script: map[int]scriptedStep{
		0: {result: models.StepResult{
			Passed:          true,
			ActualBody:      `{"token": "secret"}`,
			ExtractedValues: map[string]string{"id": "42"},
		}},
	}}
	scenario := scenarioWithSteps(2)
	scenario.Steps[1].Endpoint = "/pets/${id}"

	store := storage.NewMemoryStore()
	run := newTestRun()
	require.NoError(t, store.CreateRun(context.Background(), run))
	executor := NewRunExecutor(runner, store.Runs(), store.StepResults(), nil, nil)
	sanitizer := &redactingSanitizer{}
	executor.SetSanitizer(sanitizer)
	executor.ExecuteRun(context.Background(), run, scenario, models.DefaultPackageConfig())

	assert.Equal(t, 2, sanitizer.calls)
	assert.Equal(t, "__REDACTED__", run.StepResults[0].ActualBody)

	persisted, err := store.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "__REDACTED__", persisted[0].ActualBody)

	// Extraction chaining still sees the raw values.
	assert.Equal(t, []string{"/x", "/pets/42"}, runner.endpoints)
}
