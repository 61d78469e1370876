package config

import (
	"time"

	"github.com/qaforge/qaforge/pkg/models"
)

// Config is the fully resolved runtime configuration: YAML merged onto
// built-in defaults, environment variables expanded, durations parsed, and
// everything validated.
type Config struct {
	LLM             LLMConfig
	Orchestrator    OrchestratorConfig
	Events          EventsConfig
	Webhooks        []models.WebhookConfig
	PackageDefaults models.PackageConfig
}

// LLMConfig holds provider connection settings and the resilience knobs for
// the provider client.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	Resilience     ResilienceConfig
}

// ResilienceConfig parameterizes the bulkhead, rate limiter, circuit breaker,
// and retry layers wrapped around the provider client.
type ResilienceConfig struct {
	MaxConcurrent           int
	RequestsPerSecond       float64
	Burst                   int
	BreakerFailureThreshold uint32
	BreakerCooldown         time.Duration
	MaxAttempts             int
	RetryBaseDelay          time.Duration
}

// OrchestratorConfig holds package execution settings.
type OrchestratorConfig struct {
	MaxWorkers        int
	CoverageThreshold float64
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int
}

// qaforgeYAMLConfig represents the complete qaforge.yaml file structure.
// Duration fields are strings ("30s", "500ms") parsed during resolution.
type qaforgeYAMLConfig struct {
	LLM             *llmYAMLConfig          `yaml:"llm"`
	Orchestrator    *orchestratorYAMLConfig `yaml:"orchestrator"`
	Events          *eventsYAMLConfig       `yaml:"events"`
	Webhooks        []models.WebhookConfig  `yaml:"webhooks"`
	PackageDefaults *models.PackageConfig   `yaml:"package_defaults"`
}

type llmYAMLConfig struct {
	BaseURL        string                `yaml:"base_url"`
	APIKey         string                `yaml:"api_key"`
	Model          string                `yaml:"model"`
	RequestTimeout string                `yaml:"request_timeout"` // Parsed to time.Duration
	Resilience     *resilienceYAMLConfig `yaml:"resilience"`
}

type resilienceYAMLConfig struct {
	MaxConcurrent           int     `yaml:"max_concurrent"`
	RequestsPerSecond       float64 `yaml:"requests_per_second"`
	Burst                   int     `yaml:"burst"`
	BreakerFailureThreshold uint32  `yaml:"breaker_failure_threshold"`
	BreakerCooldown         string  `yaml:"breaker_cooldown"` // Parsed to time.Duration
	MaxAttempts             int     `yaml:"max_attempts"`
	RetryBaseDelay          string  `yaml:"retry_base_delay"` // Parsed to time.Duration
}

type orchestratorYAMLConfig struct {
	MaxWorkers        int     `yaml:"max_workers"`
	CoverageThreshold float64 `yaml:"coverage_threshold"`
}

type eventsYAMLConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// Stats summarizes what was loaded, for startup logging.
type Stats struct {
	Webhooks int
}

// Stats returns configuration statistics.
func (c *Config) Stats() Stats {
	return Stats{Webhooks: len(c.Webhooks)}
}
