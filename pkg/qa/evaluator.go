// Package qa runs the second LLM pass over completed runs: it serializes a
// compact report, asks the model for a verdict, and validates the answer.
// Evaluation never fails the package; when the model is unusable the result
// is a deterministic INCONCLUSIVE summary.
package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qaforge/qaforge/pkg/llm"
	"github.com/qaforge/qaforge/pkg/models"
)

// failureExcerptLimit caps how much of a failing step's detail goes into the
// report sent to the model.
const failureExcerptLimit = 300

const evalSystemPrompt = `You are a QA lead reviewing automated API test results. Given a JSON report of scenario runs, produce an overall assessment.

Respond with a single JSON object:
{
  "verdict": "PASS|PASS_WITH_WARNINGS|FAIL|ERROR|INCONCLUSIVE",
  "summary": "2-4 sentence assessment",
  "findings": ["notable observation"],
  "recommendations": ["actionable suggestion"],
  "risk_scores": {"quality_score": 0-100, "stability_score": 0-100, "security_score": 0-100}
}

Verdict rules: PASS if everything passed; PASS_WITH_WARNINGS for minor failures; FAIL for significant assertion failures; ERROR when runs could not execute. Emit only the JSON object.`

// Evaluator produces the package-level QA summary.
type Evaluator struct {
	client llm.Client
	logger *slog.Logger
}

// NewEvaluator creates a QA evaluator.
func NewEvaluator(client llm.Client) *Evaluator {
	return &Evaluator{
		client: client,
		logger: slog.Default().With("component", "qa-evaluator"),
	}
}

// runReport is the compact run digest sent to the model.
type runReport struct {
	Scenario    string   `json:"scenario"`
	Status      string   `json:"status"`
	PassedSteps int      `json:"passed_steps"`
	FailedSteps int      `json:"failed_steps"`
	DurationMs  int64    `json:"duration_ms"`
	Failures    []string `json:"failures,omitempty"`
}

// verdictWire is the shape the model is asked to emit.
type verdictWire struct {
	Verdict         models.Verdict `json:"verdict"`
	Summary         string         `json:"summary"`
	Findings        []string       `json:"findings"`
	Recommendations []string       `json:"recommendations"`
	RiskScores      *struct {
		QualityScore   int  `json:"quality_score"`
		StabilityScore int  `json:"stability_score"`
		SecurityScore  *int `json:"security_score"`
	} `json:"risk_scores"`
}

// Evaluate summarizes the runs. scenarios maps scenario ID to definition for
// naming. The returned summary always carries valid counts and a valid
// verdict; model failures yield INCONCLUSIVE with the reason in Summary.
func (e *Evaluator) Evaluate(ctx context.Context, cfg models.PackageConfig, scenarios []*models.Scenario, runs []*models.Run) *models.QaSummary {
	summary := &models.QaSummary{TotalScenarios: len(runs)}
	for _, run := range runs {
		if run.Status == models.RunStatusPassed {
			summary.PassedScenarios++
		} else {
			summary.FailedScenarios++
		}
	}

	report, err := json.Marshal(buildReport(scenarios, runs))
	if err != nil {
		return e.inconclusive(summary, fmt.Sprintf("could not serialize run report: %v", err))
	}

	model := cfg.AIModel
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := (&llm.AiRequest{
		Model: model,
		Messages: []llm.AiMessage{
			{Role: llm.RoleSystem, Content: evalSystemPrompt},
			{Role: llm.RoleUser, Content: string(report)},
		},
		Temperature: 0.1,
	}).WithJSONResponse()

	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return e.inconclusive(summary, fmt.Sprintf("QA evaluation call failed: %v", err))
	}
	if resp.IsFallback() {
		return e.inconclusive(summary, "QA evaluation unavailable: LLM service did not respond")
	}

	var wire verdictWire
	if err := json.Unmarshal([]byte(stripFences(resp.Content())), &wire); err != nil {
		return e.inconclusive(summary, fmt.Sprintf("QA evaluation returned invalid JSON: %v", err))
	}
	if !wire.Verdict.IsValid() {
		return e.inconclusive(summary, fmt.Sprintf("QA evaluation returned unknown verdict %q", wire.Verdict))
	}

	summary.Verdict = wire.Verdict
	summary.Summary = wire.Summary
	summary.Findings = wire.Findings
	summary.Recommendations = wire.Recommendations
	if wire.RiskScores != nil {
		scores := &models.RiskScores{
			QualityScore:   clamp(wire.RiskScores.QualityScore),
			StabilityScore: clamp(wire.RiskScores.StabilityScore),
		}
		if wire.RiskScores.SecurityScore != nil {
			v := clamp(*wire.RiskScores.SecurityScore)
			scores.SecurityScore = &v
		}
		summary.RiskScores = scores
	}
	return summary
}

func (e *Evaluator) inconclusive(summary *models.QaSummary, reason string) *models.QaSummary {
	e.logger.Warn("QA evaluation inconclusive", "reason", reason)
	summary.Verdict = models.VerdictInconclusive
	summary.Summary = reason
	return summary
}

// buildReport digests the runs into the compact report the model sees.
func buildReport(scenarios []*models.Scenario, runs []*models.Run) []runReport {
	names := make(map[string]string, len(scenarios))
	for _, s := range scenarios {
		names[s.ID] = s.Name
	}

	reports := make([]runReport, 0, len(runs))
	for _, run := range runs {
		r := runReport{
			Scenario:    names[run.ScenarioID],
			Status:      string(run.Status),
			PassedSteps: run.PassedSteps(),
			FailedSteps: run.FailedSteps(),
			DurationMs:  run.DurationMs(),
		}
		for _, sr := range run.StepResults {
			if sr.Passed {
				continue
			}
			r.Failures = append(r.Failures, failureExcerpt(sr))
		}
		reports = append(reports, r)
	}
	return reports
}

func failureExcerpt(sr models.StepResult) string {
	detail := sr.ErrorMessage
	if detail == "" {
		for _, a := range sr.Assertions {
			if !a.Passed {
				detail = fmt.Sprintf("%s: expected %s, got %s", a.Type, a.Expected, a.Actual)
				break
			}
		}
	}
	excerpt := fmt.Sprintf("step %d %q: %s", sr.StepIndex, sr.StepName, detail)
	if len(excerpt) > failureExcerptLimit {
		excerpt = excerpt[:failureExcerptLimit]
	}
	return excerpt
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// stripFences tolerates a markdown code fence around the JSON.
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
