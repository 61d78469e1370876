// Package generator turns (spec, requirements, limits) into validated test
// scenarios via the LLM client. Invalid scenarios are dropped, not repaired;
// producing zero valid scenarios is a generation failure.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qaforge/qaforge/pkg/llm"
	"github.com/qaforge/qaforge/pkg/models"
	"github.com/qaforge/qaforge/pkg/storage"
)

// DefaultStepTimeoutMs is applied to generated steps that omit timeout_ms.
const DefaultStepTimeoutMs = 30_000

// defaultModel is used when the package config does not pin one.
const defaultModel = "gpt-4o-mini"

// GenerationFailedError reports that no usable scenarios could be produced.
// Callers move the package to FAILED_GENERATION.
type GenerationFailedError struct {
	Reason string
	Err    error
}

func (e *GenerationFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scenario generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("scenario generation failed: %s", e.Reason)
}

func (e *GenerationFailedError) Unwrap() error { return e.Err }

// Input carries everything the generator needs for one package.
type Input struct {
	SpecContent  string
	SpecFormat   string // format hint: "yaml", "json", or ""
	Requirements string
	Config       models.PackageConfig
}

// Generator produces AI-generated scenarios for a package.
type Generator struct {
	client llm.Client
	ids    storage.IDGenerator
	logger *slog.Logger
}

// New creates a scenario generator.
func New(client llm.Client, ids storage.IDGenerator) *Generator {
	return &Generator{
		client: client,
		ids:    ids,
		logger: slog.Default().With("component", "scenario-generator"),
	}
}

// generationPayload is the wire shape the model is asked to emit.
type generationPayload struct {
	Scenarios []models.Scenario `json:"scenarios"`
}

// Generate asks the model for scenarios and returns the validated subset,
// truncated to config.MaxScenarios. Returns *GenerationFailedError when the
// provider is unavailable, the response is unparseable, or no scenario
// survives validation. Context errors propagate unchanged.
func (g *Generator) Generate(ctx context.Context, packageID string, in Input) ([]*models.Scenario, error) {
	model := in.Config.AIModel
	if model == "" {
		model = defaultModel
	}
	req := (&llm.AiRequest{
		Model: model,
		Messages: []llm.AiMessage{
			{Role: llm.RoleSystem, Content: buildSystemPrompt(in.Config.IncludeSecurityTests)},
			{Role: llm.RoleUser, Content: buildUserPrompt(in)},
		},
		Temperature: 0.2,
	}).WithJSONResponse()

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &GenerationFailedError{Reason: "provider call failed", Err: err}
	}
	if resp.IsFallback() {
		return nil, &GenerationFailedError{Reason: "provider unavailable"}
	}

	var payload generationPayload
	if err := json.Unmarshal([]byte(stripFences(resp.Content())), &payload); err != nil {
		return nil, &GenerationFailedError{Reason: "response is not valid JSON", Err: err}
	}

	scenarios := make([]*models.Scenario, 0, len(payload.Scenarios))
	for i := range payload.Scenarios {
		scenario := payload.Scenarios[i]
		scenario.ID = g.ids.NewID()
		scenario.PackageID = packageID
		scenario.Source = models.SourceAIGenerated
		scenario.Status = models.ScenarioStatusActive
		normalizeSteps(scenario.Steps)

		if err := scenario.Validate(in.Config.MaxStepsPerScenario); err != nil {
			g.logger.Warn("Dropping invalid generated scenario",
				"package_id", packageID, "scenario", scenario.Name, "error", err)
			continue
		}
		scenarios = append(scenarios, &scenario)
		if len(scenarios) == in.Config.MaxScenarios {
			break
		}
	}
	if len(scenarios) == 0 {
		return nil, &GenerationFailedError{Reason: "no valid scenarios in response"}
	}

	g.logger.Info("Generated scenarios",
		"package_id", packageID, "accepted", len(scenarios), "returned", len(payload.Scenarios))
	return scenarios, nil
}

// normalizeSteps fills defaults the model commonly omits.
func normalizeSteps(steps []models.Step) {
	for i := range steps {
		if steps[i].TimeoutMs == 0 {
			steps[i].TimeoutMs = DefaultStepTimeoutMs
		}
		steps[i].Method = strings.ToUpper(steps[i].Method)
	}
}

// stripFences tolerates models that wrap the JSON in a markdown code fence
// despite being told not to.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
