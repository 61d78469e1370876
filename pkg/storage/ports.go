// Package storage defines the persistence ports consumed by the orchestration
// core, plus a concurrent-safe in-memory implementation. Implementations must
// support the atomic package-update + event-append write used by the
// orchestrator's state machine.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/qaforge/qaforge/pkg/models"
)

// Sentinel errors for repository operations.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity.
	ErrAlreadyExists = errors.New("entity already exists")
)

// PackageRepository persists packages and their transition events.
type PackageRepository interface {
	Create(ctx context.Context, pkg *models.Package) error
	Get(ctx context.Context, id string) (*models.Package, error)
	Update(ctx context.Context, pkg *models.Package) error

	// UpdateWithEvent atomically writes the package row and appends the
	// transition event. Either both are persisted or neither.
	UpdateWithEvent(ctx context.Context, pkg *models.Package, event *models.PackageEvent) error

	ListByStatus(ctx context.Context, status models.PackageStatus) ([]*models.Package, error)
	ListEvents(ctx context.Context, packageID string) ([]*models.PackageEvent, error)
	Delete(ctx context.Context, id string) error
}

// ScenarioRepository persists scenarios owned by packages.
type ScenarioRepository interface {
	Create(ctx context.Context, scenario *models.Scenario) error
	Get(ctx context.Context, id string) (*models.Scenario, error)
	ListByPackage(ctx context.Context, packageID string) ([]*models.Scenario, error)
	DeleteByPackageID(ctx context.Context, packageID string) error
}

// RunRepository persists runs owned by packages.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id string) (*models.Run, error)
	Update(ctx context.Context, run *models.Run) error
	ListByPackage(ctx context.Context, packageID string) ([]*models.Run, error)
	DeleteByPackageID(ctx context.Context, packageID string) error
}

// StepResultRepository persists step results keyed by (run_id, step_index).
type StepResultRepository interface {
	// Append stores one step result. Uniqueness on (run_id, step_index)
	// is enforced; duplicates return ErrAlreadyExists.
	Append(ctx context.Context, result *models.StepResult) error
	ListByRun(ctx context.Context, runID string) ([]models.StepResult, error)
}

// WebhookRepository persists webhook configurations.
type WebhookRepository interface {
	Create(ctx context.Context, cfg *models.WebhookConfig) error
	Get(ctx context.Context, id string) (*models.WebhookConfig, error)
	ListActive(ctx context.Context) ([]*models.WebhookConfig, error)
}

// WebhookDeliveryRepository persists webhook delivery attempts.
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *models.WebhookDelivery) error
	Update(ctx context.Context, delivery *models.WebhookDelivery) error
	Get(ctx context.Context, id string) (*models.WebhookDelivery, error)
	ListByStatus(ctx context.Context, status models.DeliveryStatus) ([]*models.WebhookDelivery, error)

	// ListDue returns RETRYING deliveries with next_retry_at <= now, in
	// creation order.
	ListDue(ctx context.Context, now time.Time) ([]*models.WebhookDelivery, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque identifiers in canonical text form.
type IDGenerator interface {
	NewID() string
}
