package models

import (
	"time"
)

// Package is the orchestration aggregate root: one end-to-end QA run over
// (spec, baseUrl, requirements) producing scenarios, runs, coverage, and an
// AI verdict.
type Package struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	SpecURL      string          `json:"spec_url,omitempty"`
	SpecContent  string          `json:"spec_content,omitempty"`
	SpecHash     string          `json:"spec_hash,omitempty"` // SHA-256 hex of resolved spec content
	BaseURL      string          `json:"base_url"`
	Requirements string          `json:"requirements,omitempty"`
	Status       PackageStatus   `json:"status"`
	Config       PackageConfig   `json:"config"`
	Coverage     *CoverageReport `json:"coverage,omitempty"`
	QaSummary    *QaSummary      `json:"qa_summary,omitempty"`
	TriggeredBy  string          `json:"triggered_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Validate checks the package creation invariants. It never mutates state.
func (p *Package) Validate() error {
	if p.Name == "" {
		return NewValidationError("name", "must not be blank")
	}
	if p.BaseURL == "" {
		return NewValidationError("base_url", "must not be blank")
	}
	if p.SpecURL == "" && p.SpecContent == "" {
		return NewValidationError("spec", "either spec_url or spec_content is required")
	}
	return nil
}

// PackageConfig holds per-package execution options.
type PackageConfig struct {
	MaxScenarios         int    `json:"max_scenarios" yaml:"max_scenarios"`
	MaxStepsPerScenario  int    `json:"max_steps_per_scenario" yaml:"max_steps_per_scenario"`
	TimeoutMs            int64  `json:"timeout_ms" yaml:"timeout_ms"` // total per-run budget
	ParallelExecution    bool   `json:"parallel_execution" yaml:"parallel_execution"`
	StopOnFirstFailure   bool   `json:"stop_on_first_failure" yaml:"stop_on_first_failure"`
	IncludeSecurityTests bool   `json:"include_security_tests" yaml:"include_security_tests"`
	AIProvider           string `json:"ai_provider,omitempty" yaml:"ai_provider"`
	AIModel              string `json:"ai_model,omitempty" yaml:"ai_model"`
}

// DefaultPackageConfig returns the built-in package option defaults.
func DefaultPackageConfig() PackageConfig {
	return PackageConfig{
		MaxScenarios:        10,
		MaxStepsPerScenario: 10,
		TimeoutMs:           300_000,
		ParallelExecution:   true,
		StopOnFirstFailure:  false,
	}
}

// RunTimeout returns the total run budget as a duration.
func (c PackageConfig) RunTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
