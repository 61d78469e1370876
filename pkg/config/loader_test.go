package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/qaforge/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qaforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInitialize(t *testing.T) {
	t.Setenv("TEST_LLM_API_KEY", "sk-test")

	path := writeConfig(t, `
llm:
  base_url: https://api.openai.com/v1
  api_key: "{{.TEST_LLM_API_KEY}}"
  model: gpt-4o
  resilience:
    max_concurrent: 2
    breaker_cooldown: 10s
orchestrator:
  max_workers: 6
webhooks:
  - name: team-slack
    type: SLACK
    url: https://hooks.slack.com/services/T000/B000/XXX
    events: [RUN_FAILED, COVERAGE_THRESHOLD_BREACH]
    active: true
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Explicit values
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.LLM.Resilience.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.LLM.Resilience.BreakerCooldown)
	assert.Equal(t, 6, cfg.Orchestrator.MaxWorkers)

	// Unset values fall back to built-in defaults
	assert.Equal(t, DefaultRequestTimeout, cfg.LLM.RequestTimeout)
	assert.Equal(t, float64(DefaultRequestsPerSecond), cfg.LLM.Resilience.RequestsPerSecond)
	assert.Equal(t, DefaultMaxAttempts, cfg.LLM.Resilience.MaxAttempts)
	assert.Equal(t, DefaultCoverageThreshold, cfg.Orchestrator.CoverageThreshold)
	assert.Equal(t, DefaultEventBufferSize, cfg.Events.BufferSize)
	assert.Equal(t, models.DefaultPackageConfig().MaxScenarios, cfg.PackageDefaults.MaxScenarios)

	require.Len(t, cfg.Webhooks, 1)
	hook := cfg.Webhooks[0]
	assert.Equal(t, "team-slack", hook.Name)
	assert.Equal(t, models.WebhookTypeSlack, hook.Type)
	assert.True(t, hook.SubscribesTo(models.WebhookEventRunFailed))
	assert.Equal(t, Stats{Webhooks: 1}, cfg.Stats())
}

func TestInitializeConfigNotFound(t *testing.T) {
	_, err := Initialize(context.Background(), "/nonexistent/qaforge.yaml")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeInvalidYAML(t *testing.T) {
	path := writeConfig(t, "llm: [unclosed")

	_, err := Initialize(context.Background(), path)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitializeInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
llm:
  base_url: https://api.openai.com/v1
  resilience:
    breaker_cooldown: "soon"
`)

	_, err := Initialize(context.Background(), path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "breaker_cooldown")
}

func TestInitializeValidationFailure(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing base URL",
			yaml:    "llm:\n  model: gpt-4o\n",
			wantErr: "base_url",
		},
		{
			name:    "relative base URL",
			yaml:    "llm:\n  base_url: api.openai.com\n",
			wantErr: "base_url",
		},
		{
			name:    "coverage threshold out of range",
			yaml:    "llm:\n  base_url: https://api.openai.com/v1\norchestrator:\n  coverage_threshold: 120\n",
			wantErr: "coverage_threshold",
		},
		{
			name: "webhook with unknown type",
			yaml: `
llm:
  base_url: https://api.openai.com/v1
webhooks:
  - name: bad
    url: https://example.com/hook
    type: PAGER
    active: true
`,
			wantErr: "must be SLACK, GENERIC, or EMAIL",
		},
		{
			name: "duplicate webhook names",
			yaml: `
llm:
  base_url: https://api.openai.com/v1
webhooks:
  - name: dup
    url: https://example.com/a
    type: GENERIC
    active: true
  - name: dup
    url: https://example.com/b
    type: GENERIC
    active: true
`,
			wantErr: "duplicate webhook name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Initialize(context.Background(), path)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.BaseURL = "https://api.openai.com/v1"

	require.NoError(t, NewValidator(cfg).ValidateAll())
}
