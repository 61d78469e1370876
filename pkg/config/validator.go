package config

import (
	"fmt"
	"net/url"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("LLM validation failed: %w", err)
	}

	if err := v.validateOrchestrator(); err != nil {
		return fmt.Errorf("orchestrator validation failed: %w", err)
	}

	if err := v.validateEvents(); err != nil {
		return fmt.Errorf("events validation failed: %w", err)
	}

	if err := v.validateWebhooks(); err != nil {
		return fmt.Errorf("webhook validation failed: %w", err)
	}

	if err := v.validatePackageDefaults(); err != nil {
		return fmt.Errorf("package defaults validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateLLM() error {
	llm := v.cfg.LLM

	if llm.BaseURL == "" {
		return NewValidationError("llm", "base_url", fmt.Errorf("must not be blank"))
	}
	if u, err := url.Parse(llm.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return NewValidationError("llm", "base_url", fmt.Errorf("must be an absolute URL"))
	}
	if llm.Model == "" {
		return NewValidationError("llm", "model", fmt.Errorf("must not be blank"))
	}
	if llm.RequestTimeout <= 0 {
		return NewValidationError("llm", "request_timeout", fmt.Errorf("must be positive"))
	}

	res := llm.Resilience
	if res.MaxConcurrent < 1 {
		return NewValidationError("llm", "resilience.max_concurrent", fmt.Errorf("must be at least 1"))
	}
	if res.RequestsPerSecond <= 0 {
		return NewValidationError("llm", "resilience.requests_per_second", fmt.Errorf("must be positive"))
	}
	if res.Burst < 1 {
		return NewValidationError("llm", "resilience.burst", fmt.Errorf("must be at least 1"))
	}
	if res.BreakerFailureThreshold < 1 {
		return NewValidationError("llm", "resilience.breaker_failure_threshold", fmt.Errorf("must be at least 1"))
	}
	if res.BreakerCooldown <= 0 {
		return NewValidationError("llm", "resilience.breaker_cooldown", fmt.Errorf("must be positive"))
	}
	if res.MaxAttempts < 1 {
		return NewValidationError("llm", "resilience.max_attempts", fmt.Errorf("must be at least 1"))
	}
	if res.RetryBaseDelay <= 0 {
		return NewValidationError("llm", "resilience.retry_base_delay", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateOrchestrator() error {
	orch := v.cfg.Orchestrator

	if orch.MaxWorkers < 1 {
		return NewValidationError("orchestrator", "max_workers", fmt.Errorf("must be at least 1"))
	}
	if orch.CoverageThreshold < 0 || orch.CoverageThreshold > 100 {
		return NewValidationError("orchestrator", "coverage_threshold", fmt.Errorf("must be between 0 and 100"))
	}

	return nil
}

func (v *ConfigValidator) validateEvents() error {
	if v.cfg.Events.BufferSize < 1 {
		return NewValidationError("events", "buffer_size", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateWebhooks() error {
	seen := make(map[string]bool, len(v.cfg.Webhooks))
	for i := range v.cfg.Webhooks {
		hook := &v.cfg.Webhooks[i]
		if err := hook.Validate(); err != nil {
			return NewValidationError("webhook", hook.Name, err)
		}
		if seen[hook.Name] {
			return NewValidationError("webhook", hook.Name, fmt.Errorf("duplicate webhook name"))
		}
		seen[hook.Name] = true
	}
	return nil
}

func (v *ConfigValidator) validatePackageDefaults() error {
	pd := v.cfg.PackageDefaults

	if pd.MaxScenarios < 1 {
		return NewValidationError("package_defaults", "max_scenarios", fmt.Errorf("must be at least 1"))
	}
	if pd.MaxStepsPerScenario < 1 {
		return NewValidationError("package_defaults", "max_steps_per_scenario", fmt.Errorf("must be at least 1"))
	}
	if pd.TimeoutMs < 1000 {
		return NewValidationError("package_defaults", "timeout_ms", fmt.Errorf("must be at least 1000"))
	}

	return nil
}
