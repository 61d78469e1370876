// Package events provides the process-wide event bus that decouples the
// package orchestrator from notification consumers. Publishing is buffered
// and never blocks; overflow drops events and counts them.
package events

import (
	"time"

	"github.com/qaforge/qaforge/pkg/models"
)

// Event types published on the bus.
const (
	EventTypePackageStatusChanged = "package.status_changed"
	EventTypeRunCompleted         = "run.completed"
	EventTypeCoverageBreach       = "coverage.threshold_breach"
)

// Event is one bus message. Payload is one of the typed payload structs.
type Event struct {
	Type      string
	PackageID string
	Timestamp time.Time
	Payload   any
}

// PackageStatusChangedPayload is the payload for package.status_changed events.
type PackageStatusChangedPayload struct {
	PackageID string               `json:"package_id"`
	From      models.PackageStatus `json:"from,omitempty"`
	To        models.PackageStatus `json:"to"`
	At        time.Time            `json:"at"`
}

// RunCompletedPayload is the payload for run.completed events. Published for
// every terminal run regardless of outcome; consumers discriminate on Status.
type RunCompletedPayload struct {
	RunID       string           `json:"run_id"`
	PackageID   string           `json:"package_id,omitempty"`
	ScenarioName string          `json:"scenario_name,omitempty"`
	Status      models.RunStatus `json:"status"`
	PassedSteps int              `json:"passed_steps"`
	FailedSteps int              `json:"failed_steps"`
	DurationMs  int64            `json:"duration_ms"`
}

// CoverageBreachPayload is the payload for coverage.threshold_breach events.
type CoverageBreachPayload struct {
	PackageID          string  `json:"package_id"`
	CoveragePercentage float64 `json:"coverage_percentage"`
	Threshold          float64 `json:"threshold"`
}
