package models

// OperationStatus classifies how well one spec operation is exercised.
type OperationStatus string

// Operation coverage states.
const (
	OperationCovered  OperationStatus = "COVERED"
	OperationFailing  OperationStatus = "FAILING"
	OperationUntested OperationStatus = "UNTESTED"
)

// Operation identifies one method+path pair declared by the API spec.
type Operation struct {
	OperationID string `json:"operation_id,omitempty"`
	Method      string `json:"method"`
	Path        string `json:"path"`
}

// OperationCoverage is the coverage entry for a single operation.
type OperationCoverage struct {
	OperationID string          `json:"operation_id,omitempty"`
	Method      string          `json:"method"`
	Path        string          `json:"path"`
	Status      OperationStatus `json:"status"`
	ScenarioIDs []string        `json:"scenario_ids,omitempty"`
}

// CoverageReport aggregates operation-level coverage for a package.
type CoverageReport struct {
	TotalOperations    int                 `json:"total_operations"`
	CoveredOperations  int                 `json:"covered_operations"`
	CoveragePercentage float64             `json:"coverage_percentage"`
	Operations         []OperationCoverage `json:"operations"`
	Gaps               []string            `json:"gaps,omitempty"`
}
