package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read qaforge.yaml from configPath
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user values onto built-in defaults
//  5. Validate the resolved configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configPath string) (*Config, error) {
	log := slog.With("config_path", configPath)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"model", cfg.LLM.Model,
		"max_workers", cfg.Orchestrator.MaxWorkers,
		"coverage_threshold", cfg.Orchestrator.CoverageThreshold,
		"webhooks", stats.Webhooks)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(configPath, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath))
		}
		return nil, NewLoadError(configPath, err)
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing the YAML parser to handle the content (or fail with a clearer
	// error message).
	data = ExpandEnv(data)

	var raw qaforgeYAMLConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewLoadError(configPath, fmt.Errorf("%w: %w", ErrInvalidYAML, err))
	}

	user, err := resolve(&raw)
	if err != nil {
		return nil, NewLoadError(configPath, err)
	}

	// Merge user values onto built-in defaults (non-zero values override).
	cfg := DefaultConfig()
	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge configuration: %w", err)
	}

	return cfg, nil
}

// resolve converts the raw YAML shape into a Config, parsing duration strings.
// Unset fields stay at their zero value so the merge keeps defaults.
func resolve(raw *qaforgeYAMLConfig) (*Config, error) {
	cfg := &Config{}

	if raw.LLM != nil {
		cfg.LLM.BaseURL = raw.LLM.BaseURL
		cfg.LLM.APIKey = raw.LLM.APIKey
		cfg.LLM.Model = raw.LLM.Model
		d, err := parseDuration("llm.request_timeout", raw.LLM.RequestTimeout)
		if err != nil {
			return nil, err
		}
		cfg.LLM.RequestTimeout = d

		if res := raw.LLM.Resilience; res != nil {
			cfg.LLM.Resilience.MaxConcurrent = res.MaxConcurrent
			cfg.LLM.Resilience.RequestsPerSecond = res.RequestsPerSecond
			cfg.LLM.Resilience.Burst = res.Burst
			cfg.LLM.Resilience.BreakerFailureThreshold = res.BreakerFailureThreshold
			cfg.LLM.Resilience.MaxAttempts = res.MaxAttempts
			if cfg.LLM.Resilience.BreakerCooldown, err = parseDuration("llm.resilience.breaker_cooldown", res.BreakerCooldown); err != nil {
				return nil, err
			}
			if cfg.LLM.Resilience.RetryBaseDelay, err = parseDuration("llm.resilience.retry_base_delay", res.RetryBaseDelay); err != nil {
				return nil, err
			}
		}
	}

	if raw.Orchestrator != nil {
		cfg.Orchestrator.MaxWorkers = raw.Orchestrator.MaxWorkers
		cfg.Orchestrator.CoverageThreshold = raw.Orchestrator.CoverageThreshold
	}

	if raw.Events != nil {
		cfg.Events.BufferSize = raw.Events.BufferSize
	}

	if raw.PackageDefaults != nil {
		cfg.PackageDefaults = *raw.PackageDefaults
	}

	cfg.Webhooks = raw.Webhooks
	return cfg, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("field '%s': invalid duration %q: %w", field, value, err)
	}
	return d, nil
}
