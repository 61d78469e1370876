package config

import (
	"time"

	"github.com/qaforge/qaforge/pkg/models"
)

// Built-in defaults used when qaforge.yaml omits a value.
const (
	DefaultModel          = "gpt-4o-mini"
	DefaultRequestTimeout = 60 * time.Second

	DefaultMaxConcurrent           = 8
	DefaultRequestsPerSecond       = 5
	DefaultBurst                   = 5
	DefaultBreakerFailureThreshold = 5
	DefaultBreakerCooldown         = 30 * time.Second
	DefaultMaxAttempts             = 3
	DefaultRetryBaseDelay          = 500 * time.Millisecond

	DefaultMaxWorkers        = 4
	DefaultCoverageThreshold = 80.0

	DefaultEventBufferSize = 256
)

// DefaultConfig returns the fully resolved built-in configuration. It is used
// directly when no configuration file is given, and as the merge base when one
// is.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:          DefaultModel,
			RequestTimeout: DefaultRequestTimeout,
			Resilience: ResilienceConfig{
				MaxConcurrent:           DefaultMaxConcurrent,
				RequestsPerSecond:       DefaultRequestsPerSecond,
				Burst:                   DefaultBurst,
				BreakerFailureThreshold: DefaultBreakerFailureThreshold,
				BreakerCooldown:         DefaultBreakerCooldown,
				MaxAttempts:             DefaultMaxAttempts,
				RetryBaseDelay:          DefaultRetryBaseDelay,
			},
		},
		Orchestrator: OrchestratorConfig{
			MaxWorkers:        DefaultMaxWorkers,
			CoverageThreshold: DefaultCoverageThreshold,
		},
		Events: EventsConfig{
			BufferSize: DefaultEventBufferSize,
		},
		PackageDefaults: models.DefaultPackageConfig(),
	}
}
