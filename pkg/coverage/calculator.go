// Package coverage computes operation-level coverage: which of the spec's
// declared operations were exercised by scenario steps, and whether any run
// ever passed them.
package coverage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/qaforge/qaforge/pkg/models"
)

// Calculate classifies every declared operation as COVERED (some step for it
// passed in some run), FAILING (touched by a scenario but never passed), or
// UNTESTED. Matching normalizes ${var} placeholders and {param} template
// segments to a common wildcard and ignores query strings.
func Calculate(operations []models.Operation, scenarios []*models.Scenario, runs []*models.Run) *models.CoverageReport {
	// Which operation key each scenario step maps to.
	touched := map[string][]string{}          // key → scenario IDs
	stepKeys := map[string]map[int]string{}   // scenario ID → step index → key
	for _, scenario := range scenarios {
		keys := map[int]string{}
		for _, step := range scenario.Steps {
			key := operationKey(step.Method, step.Endpoint)
			keys[step.Index] = key
			touched[key] = appendUnique(touched[key], scenario.ID)
		}
		stepKeys[scenario.ID] = keys
	}

	// Which keys have at least one passing step result.
	passed := map[string]bool{}
	for _, run := range runs {
		keys := stepKeys[run.ScenarioID]
		for _, sr := range run.StepResults {
			if sr.Passed {
				passed[keys[sr.StepIndex]] = true
			}
		}
	}

	report := &models.CoverageReport{TotalOperations: len(operations)}
	for _, op := range operations {
		key := operationKey(op.Method, op.Path)
		entry := models.OperationCoverage{
			OperationID: op.OperationID,
			Method:      strings.ToUpper(op.Method),
			Path:        op.Path,
			ScenarioIDs: touched[key],
		}
		switch {
		case passed[key]:
			entry.Status = models.OperationCovered
			report.CoveredOperations++
		case len(touched[key]) > 0:
			entry.Status = models.OperationFailing
		default:
			entry.Status = models.OperationUntested
			report.Gaps = append(report.Gaps, fmt.Sprintf("%s %s", entry.Method, op.Path))
		}
		report.Operations = append(report.Operations, entry)
	}

	if report.TotalOperations > 0 {
		report.CoveragePercentage = 100 * float64(report.CoveredOperations) / float64(report.TotalOperations)
	}
	sort.Strings(report.Gaps)
	return report
}

// operationKey normalizes (method, path) for matching. Path parameters in
// either template form (${id} from steps, {id} from specs) become a wildcard
// segment; query strings are ignored.
func operationKey(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if strings.Contains(seg, "${") || (strings.Contains(seg, "{") && strings.Contains(seg, "}")) {
			segments[i] = "*"
		}
	}
	return strings.ToUpper(method) + " /" + strings.Join(segments, "/")
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
