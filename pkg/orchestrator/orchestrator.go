// Package orchestrator drives the package lifecycle state machine: spec
// resolution, scenario generation, run execution, QA evaluation, and
// coverage. State advancement is serialized per package; domain failures are
// absorbed into FAILED_* states and never bubble to callers.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"dario.cat/mergo"
	"golang.org/x/sync/errgroup"

	"github.com/qaforge/qaforge/pkg/coverage"
	"github.com/qaforge/qaforge/pkg/events"
	"github.com/qaforge/qaforge/pkg/generator"
	"github.com/qaforge/qaforge/pkg/models"
	"github.com/qaforge/qaforge/pkg/specsource"
	"github.com/qaforge/qaforge/pkg/storage"
)

// ScenarioGenerator produces validated scenarios for a package.
type ScenarioGenerator interface {
	Generate(ctx context.Context, packageID string, in generator.Input) ([]*models.Scenario, error)
}

// RunExecutor drives one scenario run to a terminal state.
type RunExecutor interface {
	ExecuteRun(ctx context.Context, run *models.Run, scenario *models.Scenario, cfg models.PackageConfig) *models.Run
}

// SummaryEvaluator produces the package-level QA summary. Never fails.
type SummaryEvaluator interface {
	Evaluate(ctx context.Context, cfg models.PackageConfig, scenarios []*models.Scenario, runs []*models.Run) *models.QaSummary
}

// Options tunes the orchestrator. Zero values take the defaults.
type Options struct {
	// MaxWorkers bounds concurrent runs within a package.
	MaxWorkers int
	// CoverageThreshold is the percentage below which a breach event is
	// emitted.
	CoverageThreshold float64
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 4
	}
	if o.CoverageThreshold <= 0 {
		o.CoverageThreshold = 80
	}
	return o
}

// Deps are the collaborators the orchestrator is wired with.
type Deps struct {
	Packages  storage.PackageRepository
	Scenarios storage.ScenarioRepository
	Runs      storage.RunRepository
	Fetcher   specsource.Fetcher
	Generator ScenarioGenerator
	Executor  RunExecutor
	Evaluator SummaryEvaluator
	Bus       *events.Bus // may be nil
	Clock     storage.Clock
	IDs       storage.IDGenerator
}

// Orchestrator coordinates the package lifecycle.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	cancels map[string]context.CancelFunc
	active  atomic.Int64
}

// New creates an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = storage.SystemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = storage.UUIDGenerator{}
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts.withDefaults(),
		logger:  slog.Default().With("component", "orchestrator"),
		locks:   make(map[string]*sync.Mutex),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Health is a point-in-time snapshot of orchestrator activity.
type Health struct {
	ActivePackages int64 `json:"active_packages"`
	EventsDropped  int64 `json:"events_dropped"`
}

// Health reports current activity.
func (o *Orchestrator) Health() Health {
	h := Health{ActivePackages: o.active.Load()}
	if o.deps.Bus != nil {
		h.EventsDropped = o.deps.Bus.Dropped()
	}
	return h
}

// CreatePackage validates and persists a new package in REQUESTED state.
// Zero-valued config fields are filled from the defaults.
func (o *Orchestrator) CreatePackage(ctx context.Context, pkg *models.Package) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	if err := mergo.Merge(&pkg.Config, models.DefaultPackageConfig()); err != nil {
		return err
	}
	if pkg.ID == "" {
		pkg.ID = o.deps.IDs.NewID()
	}
	now := o.deps.Clock.Now()
	pkg.Status = models.PackageStatusRequested
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	return o.deps.Packages.Create(ctx, pkg)
}

// Execute drives the package from REQUESTED to a terminal state. Domain
// failures land in FAILED_* states and return nil; only lookup failures and
// state-machine violations return errors.
func (o *Orchestrator) Execute(ctx context.Context, packageID string) error {
	pkg, err := o.deps.Packages.Get(ctx, packageID)
	if err != nil {
		return err
	}
	if pkg.Status != models.PackageStatusRequested {
		return &models.InvalidStatusTransitionError{
			PackageID: pkg.ID, From: pkg.Status, To: models.PackageStatusSpecFetched,
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.registerCancel(pkg.ID, cancel)
	defer o.unregisterCancel(pkg.ID)
	o.active.Add(1)
	defer o.active.Add(-1)

	started := o.deps.Clock.Now()
	pkg.StartedAt = &started

	// Stage 1: resolve the spec and the operations it declares.
	content, format, err := o.resolveSpec(ctx, pkg)
	if err != nil {
		if ctx.Err() != nil {
			return o.markCancelled(pkg)
		}
		return o.failStage(pkg, models.PackageStatusFailedSpecFetch, "spec resolution failed", err)
	}
	operations, err := specsource.ListOperations(content)
	if err != nil {
		return o.failStage(pkg, models.PackageStatusFailedSpecFetch, "spec has no usable operations", err)
	}
	pkg.SpecHash = specsource.Hash(content)
	if err := o.Transition(ctx, pkg, models.PackageStatusSpecFetched); err != nil {
		return err
	}

	// Stage 2: generate scenarios.
	scenarios, err := o.deps.Generator.Generate(ctx, pkg.ID, generator.Input{
		SpecContent:  content,
		SpecFormat:   format,
		Requirements: pkg.Requirements,
		Config:       pkg.Config,
	})
	if err != nil {
		if ctx.Err() != nil {
			return o.markCancelled(pkg)
		}
		return o.failStage(pkg, models.PackageStatusFailedGeneration, "scenario generation failed", err)
	}
	for _, scenario := range scenarios {
		if err := o.deps.Scenarios.Create(ctx, scenario); err != nil {
			return o.failStage(pkg, models.PackageStatusFailedGeneration, "failed to persist scenarios", err)
		}
	}
	if err := o.Transition(ctx, pkg, models.PackageStatusAISuccess); err != nil {
		return err
	}

	// Stage 3: execute runs.
	if err := o.Transition(ctx, pkg, models.PackageStatusExecutionInProgress); err != nil {
		return err
	}
	runs, execErr := o.executeRuns(ctx, pkg, scenarios)
	if ctx.Err() != nil {
		return o.markCancelled(pkg)
	}
	if execErr != nil {
		return o.failStage(pkg, models.PackageStatusFailedExecution, "run execution failed", execErr)
	}
	if err := o.Transition(ctx, pkg, models.PackageStatusExecutionComplete); err != nil {
		return err
	}

	// Stage 4: QA evaluation and coverage.
	if err := o.Transition(ctx, pkg, models.PackageStatusQaEvalInProgress); err != nil {
		return err
	}
	pkg.QaSummary = o.deps.Evaluator.Evaluate(ctx, pkg.Config, scenarios, runs)
	pkg.Coverage = coverage.Calculate(operations, scenarios, runs)
	if ctx.Err() != nil {
		return o.markCancelled(pkg)
	}
	if err := o.Transition(ctx, pkg, models.PackageStatusQaEvalDone); err != nil {
		return err
	}
	o.checkCoverageThreshold(pkg)

	// Stage 5: done.
	completed := o.deps.Clock.Now()
	pkg.CompletedAt = &completed
	if err := o.Transition(ctx, pkg, models.PackageStatusComplete); err != nil {
		return err
	}
	o.logger.Info("Package complete",
		"package_id", pkg.ID,
		"coverage", pkg.Coverage.CoveragePercentage,
		"verdict", pkg.QaSummary.Verdict)
	return nil
}

// CancelPackage requests cancellation. An executing package is cancelled
// cooperatively; an idle non-terminal package transitions directly. Already
// terminal packages are left untouched.
func (o *Orchestrator) CancelPackage(ctx context.Context, packageID string) error {
	o.mu.Lock()
	cancel, executing := o.cancels[packageID]
	o.mu.Unlock()
	if executing {
		cancel()
		return nil
	}

	pkg, err := o.deps.Packages.Get(ctx, packageID)
	if err != nil {
		return err
	}
	if pkg.Status.IsTerminal() {
		return nil
	}
	return o.Transition(ctx, pkg, models.PackageStatusCancelled)
}

// Transition advances the package state, atomically persisting the package
// row with the transition event and publishing it on the bus. Disallowed
// transitions return *InvalidStatusTransitionError with nothing persisted.
func (o *Orchestrator) Transition(ctx context.Context, pkg *models.Package, to models.PackageStatus) error {
	lock := o.lockFor(pkg.ID)
	lock.Lock()
	defer lock.Unlock()

	if !pkg.Status.CanTransitionTo(to) {
		return &models.InvalidStatusTransitionError{PackageID: pkg.ID, From: pkg.Status, To: to}
	}
	from := pkg.Status
	now := o.deps.Clock.Now()
	pkg.Status = to
	pkg.UpdatedAt = now

	event := &models.PackageEvent{
		ID:        o.deps.IDs.NewID(),
		PackageID: pkg.ID,
		From:      from,
		To:        to,
		Timestamp: now,
	}
	// Terminal transitions may happen with a cancelled request context.
	if err := o.deps.Packages.UpdateWithEvent(context.Background(), pkg, event); err != nil {
		pkg.Status = from
		return err
	}

	if o.deps.Bus != nil {
		o.deps.Bus.Publish(events.Event{
			Type:      events.EventTypePackageStatusChanged,
			PackageID: pkg.ID,
			Timestamp: now,
			Payload: events.PackageStatusChangedPayload{
				PackageID: pkg.ID, From: from, To: to, At: now,
			},
		})
	}
	o.logger.Info("Package transition", "package_id", pkg.ID, "from", from, "to", to)
	return nil
}

// resolveSpec returns the spec content and format hint, fetching by URL when
// no inline content is present.
func (o *Orchestrator) resolveSpec(ctx context.Context, pkg *models.Package) (string, string, error) {
	if pkg.SpecContent != "" {
		return pkg.SpecContent, specsource.DetectFormat(pkg.SpecContent), nil
	}
	return o.deps.Fetcher.Fetch(ctx, pkg.SpecURL)
}

// errStopOnFailure cancels the remaining run workers.
var errStopOnFailure = errors.New("stop on first failure")

// executeRuns creates one QUEUED run per scenario and drives them through a
// bounded worker pool. Returns the terminal runs; an error only for
// persistence failures.
func (o *Orchestrator) executeRuns(ctx context.Context, pkg *models.Package, scenarios []*models.Scenario) ([]*models.Run, error) {
	runs := make([]*models.Run, len(scenarios))
	for i, scenario := range scenarios {
		run := &models.Run{
			ID:          o.deps.IDs.NewID(),
			ScenarioID:  scenario.ID,
			PackageID:   pkg.ID,
			TriggeredBy: pkg.TriggeredBy,
			BaseURL:     pkg.BaseURL,
			Status:      models.RunStatusQueued,
		}
		if err := o.deps.Runs.Create(ctx, run); err != nil {
			return nil, err
		}
		runs[i] = run
	}

	limit := o.opts.MaxWorkers
	if !pkg.Config.ParallelExecution {
		limit = 1
	}
	if limit > len(runs) {
		limit = len(runs)
	}

	g, runCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range runs {
		run, scenario := runs[i], scenarios[i]
		g.Go(func() error {
			result := o.deps.Executor.ExecuteRun(runCtx, run, scenario, pkg.Config)
			// Terminal state is persisted here as well so the stored row is
			// correct regardless of the executor's own persistence.
			if err := o.deps.Runs.Update(context.Background(), result); err != nil {
				o.logger.Error("Failed to persist run", "run_id", result.ID, "error", err)
			}
			if pkg.Config.StopOnFirstFailure && result.Status != models.RunStatusPassed {
				return errStopOnFailure
			}
			return nil
		})
	}
	// The only worker error is the stop-on-first-failure signal; it cancels
	// the group so the remaining runs terminate CANCELLED.
	_ = g.Wait()
	return runs, nil
}

// checkCoverageThreshold publishes a breach event when coverage is below the
// configured threshold.
func (o *Orchestrator) checkCoverageThreshold(pkg *models.Package) {
	if o.deps.Bus == nil || pkg.Coverage == nil {
		return
	}
	if pkg.Coverage.CoveragePercentage >= o.opts.CoverageThreshold {
		return
	}
	o.deps.Bus.Publish(events.Event{
		Type:      events.EventTypeCoverageBreach,
		PackageID: pkg.ID,
		Timestamp: o.deps.Clock.Now(),
		Payload: events.CoverageBreachPayload{
			PackageID:          pkg.ID,
			CoveragePercentage: pkg.Coverage.CoveragePercentage,
			Threshold:          o.opts.CoverageThreshold,
		},
	})
}

// failStage absorbs a stage failure into the package state.
func (o *Orchestrator) failStage(pkg *models.Package, to models.PackageStatus, msg string, cause error) error {
	o.logger.Error(msg, "package_id", pkg.ID, "error", cause)
	completed := o.deps.Clock.Now()
	pkg.CompletedAt = &completed
	return o.Transition(context.Background(), pkg, to)
}

// markCancelled transitions a non-terminal package to CANCELLED.
func (o *Orchestrator) markCancelled(pkg *models.Package) error {
	if pkg.Status.IsTerminal() {
		return nil
	}
	completed := o.deps.Clock.Now()
	pkg.CompletedAt = &completed
	return o.Transition(context.Background(), pkg, models.PackageStatusCancelled)
}

func (o *Orchestrator) lockFor(packageID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[packageID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[packageID] = lock
	}
	return lock
}

func (o *Orchestrator) registerCancel(packageID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[packageID] = cancel
}

func (o *Orchestrator) unregisterCancel(packageID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, packageID)
}
