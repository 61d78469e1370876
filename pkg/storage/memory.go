package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qaforge/qaforge/pkg/models"
)

// MemoryStore is a concurrent-safe in-memory implementation of every
// repository port. A single mutex guards all maps so the package-update +
// event-append write is atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	packages    map[string]models.Package
	events      map[string][]models.PackageEvent // package_id → ordered events
	scenarios   map[string]models.Scenario
	runs        map[string]models.Run
	stepResults map[string][]models.StepResult // run_id → ordered results
	webhooks    map[string]models.WebhookConfig
	deliveries  map[string]models.WebhookDelivery
	deliverySeq []string // creation order of delivery IDs
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		packages:    make(map[string]models.Package),
		events:      make(map[string][]models.PackageEvent),
		scenarios:   make(map[string]models.Scenario),
		runs:        make(map[string]models.Run),
		stepResults: make(map[string][]models.StepResult),
		webhooks:    make(map[string]models.WebhookConfig),
		deliveries:  make(map[string]models.WebhookDelivery),
	}
}

// ─── PackageRepository ───

func (s *MemoryStore) Create(ctx context.Context, pkg *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[pkg.ID]; ok {
		return fmt.Errorf("package %s: %w", pkg.ID, ErrAlreadyExists)
	}
	s.packages[pkg.ID] = *pkg
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pkg, ok := s.packages[id]
	if !ok {
		return nil, fmt.Errorf("package %s: %w", id, ErrNotFound)
	}
	cp := pkg
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, pkg *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[pkg.ID]; !ok {
		return fmt.Errorf("package %s: %w", pkg.ID, ErrNotFound)
	}
	s.packages[pkg.ID] = *pkg
	return nil
}

func (s *MemoryStore) UpdateWithEvent(ctx context.Context, pkg *models.Package, event *models.PackageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[pkg.ID]; !ok {
		return fmt.Errorf("package %s: %w", pkg.ID, ErrNotFound)
	}
	s.packages[pkg.ID] = *pkg
	s.events[pkg.ID] = append(s.events[pkg.ID], *event)
	return nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status models.PackageStatus) ([]*models.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Package
	for _, pkg := range s.packages {
		if pkg.Status == status {
			cp := pkg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, packageID string) ([]*models.PackageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[packageID]
	out := make([]*models.PackageEvent, len(events))
	for i := range events {
		cp := events[i]
		out[i] = &cp
	}
	return out, nil
}

// Delete removes a package and cascades to its scenarios and runs.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[id]; !ok {
		return fmt.Errorf("package %s: %w", id, ErrNotFound)
	}
	delete(s.packages, id)
	delete(s.events, id)
	for sid, sc := range s.scenarios {
		if sc.PackageID == id {
			delete(s.scenarios, sid)
		}
	}
	for rid, run := range s.runs {
		if run.PackageID == id {
			delete(s.runs, rid)
			delete(s.stepResults, rid)
		}
	}
	return nil
}

// ─── ScenarioRepository ───

func (s *MemoryStore) CreateScenario(ctx context.Context, scenario *models.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scenarios[scenario.ID]; ok {
		return fmt.Errorf("scenario %s: %w", scenario.ID, ErrAlreadyExists)
	}
	s.scenarios[scenario.ID] = *scenario
	return nil
}

func (s *MemoryStore) GetScenario(ctx context.Context, id string) (*models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("scenario %s: %w", id, ErrNotFound)
	}
	cp := sc
	return &cp, nil
}

func (s *MemoryStore) ListScenariosByPackage(ctx context.Context, packageID string) ([]*models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Scenario
	for _, sc := range s.scenarios {
		if sc.PackageID == packageID {
			cp := sc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DeleteScenariosByPackageID(ctx context.Context, packageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sc := range s.scenarios {
		if sc.PackageID == packageID {
			delete(s.scenarios, id)
		}
	}
	return nil
}

// ─── RunRepository ───

func (s *MemoryStore) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	cp := run
	return &cp, nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) ListRunsByPackage(ctx context.Context, packageID string) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Run
	for _, run := range s.runs {
		if run.PackageID == packageID {
			cp := run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteRunsByPackageID(ctx context.Context, packageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, run := range s.runs {
		if run.PackageID == packageID {
			delete(s.runs, id)
			delete(s.stepResults, id)
		}
	}
	return nil
}

// ─── StepResultRepository ───

func (s *MemoryStore) Append(ctx context.Context, result *models.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.stepResults[result.RunID] {
		if existing.StepIndex == result.StepIndex {
			return fmt.Errorf("step result (%s, %d): %w", result.RunID, result.StepIndex, ErrAlreadyExists)
		}
	}
	s.stepResults[result.RunID] = append(s.stepResults[result.RunID], *result)
	return nil
}

func (s *MemoryStore) ListByRun(ctx context.Context, runID string) ([]models.StepResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := s.stepResults[runID]
	out := make([]models.StepResult, len(results))
	copy(out, results)
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

// ─── WebhookRepository ───

func (s *MemoryStore) CreateWebhook(ctx context.Context, cfg *models.WebhookConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.webhooks[cfg.ID]; ok {
		return fmt.Errorf("webhook %s: %w", cfg.ID, ErrAlreadyExists)
	}
	s.webhooks[cfg.ID] = *cfg
	return nil
}

func (s *MemoryStore) GetWebhook(ctx context.Context, id string) (*models.WebhookConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.webhooks[id]
	if !ok {
		return nil, fmt.Errorf("webhook %s: %w", id, ErrNotFound)
	}
	cp := cfg
	return &cp, nil
}

func (s *MemoryStore) ListActiveWebhooks(ctx context.Context) ([]*models.WebhookConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WebhookConfig
	for _, cfg := range s.webhooks {
		if cfg.Active {
			cp := cfg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ─── WebhookDeliveryRepository ───

func (s *MemoryStore) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[delivery.ID]; ok {
		return fmt.Errorf("delivery %s: %w", delivery.ID, ErrAlreadyExists)
	}
	s.deliveries[delivery.ID] = *delivery
	s.deliverySeq = append(s.deliverySeq, delivery.ID)
	return nil
}

func (s *MemoryStore) UpdateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[delivery.ID]; !ok {
		return fmt.Errorf("delivery %s: %w", delivery.ID, ErrNotFound)
	}
	s.deliveries[delivery.ID] = *delivery
	return nil
}

func (s *MemoryStore) GetDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	cp := d
	return &cp, nil
}

func (s *MemoryStore) ListDeliveriesByStatus(ctx context.Context, status models.DeliveryStatus) ([]*models.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WebhookDelivery
	for _, id := range s.deliverySeq {
		if d, ok := s.deliveries[id]; ok && d.Status == status {
			cp := d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListDueDeliveries(ctx context.Context, now time.Time) ([]*models.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WebhookDelivery
	for _, id := range s.deliverySeq {
		d, ok := s.deliveries[id]
		if !ok || d.Status != models.DeliveryRetrying || d.NextRetryAt == nil {
			continue
		}
		if !d.NextRetryAt.After(now) {
			cp := d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ─── Adapters over MemoryStore ───
//
// The repository ports use entity-neutral method names (Create/Get/Update).
// These thin views expose the store under each port without name clashes.

// Packages returns the store as a PackageRepository.
func (s *MemoryStore) Packages() PackageRepository { return s }

// Scenarios returns the store as a ScenarioRepository.
func (s *MemoryStore) Scenarios() ScenarioRepository { return scenarioView{s} }

// Runs returns the store as a RunRepository.
func (s *MemoryStore) Runs() RunRepository { return runView{s} }

// StepResults returns the store as a StepResultRepository.
func (s *MemoryStore) StepResults() StepResultRepository { return s }

// Webhooks returns the store as a WebhookRepository.
func (s *MemoryStore) Webhooks() WebhookRepository { return webhookView{s} }

// Deliveries returns the store as a WebhookDeliveryRepository.
func (s *MemoryStore) Deliveries() WebhookDeliveryRepository { return deliveryView{s} }

type scenarioView struct{ s *MemoryStore }

func (v scenarioView) Create(ctx context.Context, sc *models.Scenario) error {
	return v.s.CreateScenario(ctx, sc)
}
func (v scenarioView) Get(ctx context.Context, id string) (*models.Scenario, error) {
	return v.s.GetScenario(ctx, id)
}
func (v scenarioView) ListByPackage(ctx context.Context, packageID string) ([]*models.Scenario, error) {
	return v.s.ListScenariosByPackage(ctx, packageID)
}
func (v scenarioView) DeleteByPackageID(ctx context.Context, packageID string) error {
	return v.s.DeleteScenariosByPackageID(ctx, packageID)
}

type runView struct{ s *MemoryStore }

func (v runView) Create(ctx context.Context, run *models.Run) error { return v.s.CreateRun(ctx, run) }
func (v runView) Get(ctx context.Context, id string) (*models.Run, error) {
	return v.s.GetRun(ctx, id)
}
func (v runView) Update(ctx context.Context, run *models.Run) error { return v.s.UpdateRun(ctx, run) }
func (v runView) ListByPackage(ctx context.Context, packageID string) ([]*models.Run, error) {
	return v.s.ListRunsByPackage(ctx, packageID)
}
func (v runView) DeleteByPackageID(ctx context.Context, packageID string) error {
	return v.s.DeleteRunsByPackageID(ctx, packageID)
}

type webhookView struct{ s *MemoryStore }

func (v webhookView) Create(ctx context.Context, cfg *models.WebhookConfig) error {
	return v.s.CreateWebhook(ctx, cfg)
}
func (v webhookView) Get(ctx context.Context, id string) (*models.WebhookConfig, error) {
	return v.s.GetWebhook(ctx, id)
}
func (v webhookView) ListActive(ctx context.Context) ([]*models.WebhookConfig, error) {
	return v.s.ListActiveWebhooks(ctx)
}

type deliveryView struct{ s *MemoryStore }

func (v deliveryView) Create(ctx context.Context, d *models.WebhookDelivery) error {
	return v.s.CreateDelivery(ctx, d)
}
func (v deliveryView) Update(ctx context.Context, d *models.WebhookDelivery) error {
	return v.s.UpdateDelivery(ctx, d)
}
func (v deliveryView) Get(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	return v.s.GetDelivery(ctx, id)
}
func (v deliveryView) ListByStatus(ctx context.Context, status models.DeliveryStatus) ([]*models.WebhookDelivery, error) {
	return v.s.ListDeliveriesByStatus(ctx, status)
}
func (v deliveryView) ListDue(ctx context.Context, now time.Time) ([]*models.WebhookDelivery, error) {
	return v.s.ListDueDeliveries(ctx, now)
}

// ─── Clock and ID generation ───

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// UUIDGenerator produces random UUIDs in canonical text form.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string { return uuid.NewString() }
