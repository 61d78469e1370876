package models

// Verdict is the overall QA outcome of a package.
type Verdict string

// QA verdicts.
const (
	VerdictPass             Verdict = "PASS"
	VerdictPassWithWarnings Verdict = "PASS_WITH_WARNINGS"
	VerdictFail             Verdict = "FAIL"
	VerdictError            Verdict = "ERROR"
	VerdictInconclusive     Verdict = "INCONCLUSIVE"
)

// IsValid checks if the verdict is a known value.
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictPass, VerdictPassWithWarnings, VerdictFail, VerdictError, VerdictInconclusive:
		return true
	default:
		return false
	}
}

// QaSummary is the second-pass LLM evaluation over completed runs.
type QaSummary struct {
	Verdict         Verdict    `json:"verdict"`
	Summary         string     `json:"summary"`
	TotalScenarios  int        `json:"total_scenarios"`
	PassedScenarios int        `json:"passed_scenarios"`
	FailedScenarios int        `json:"failed_scenarios"`
	Findings        []string   `json:"findings,omitempty"`
	Recommendations []string   `json:"recommendations,omitempty"`
	RiskScores      *RiskScores `json:"risk_scores,omitempty"`
}

// RiskScores are 0..100 quality indicators produced by the QA evaluation.
type RiskScores struct {
	QualityScore   int  `json:"quality_score"`
	StabilityScore int  `json:"stability_score"`
	SecurityScore  *int `json:"security_score,omitempty"`
}
