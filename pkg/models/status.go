package models

import "fmt"

// PackageStatus represents the lifecycle state of a QA package.
type PackageStatus string

// Package lifecycle states.
const (
	PackageStatusRequested           PackageStatus = "REQUESTED"
	PackageStatusSpecFetched         PackageStatus = "SPEC_FETCHED"
	PackageStatusAISuccess           PackageStatus = "AI_SUCCESS"
	PackageStatusExecutionInProgress PackageStatus = "EXECUTION_IN_PROGRESS"
	PackageStatusExecutionComplete   PackageStatus = "EXECUTION_COMPLETE"
	PackageStatusQaEvalInProgress    PackageStatus = "QA_EVAL_IN_PROGRESS"
	PackageStatusQaEvalDone          PackageStatus = "QA_EVAL_DONE"
	PackageStatusComplete            PackageStatus = "COMPLETE"
	PackageStatusFailedSpecFetch     PackageStatus = "FAILED_SPEC_FETCH"
	PackageStatusFailedGeneration    PackageStatus = "FAILED_GENERATION"
	PackageStatusFailedExecution     PackageStatus = "FAILED_EXECUTION"
	PackageStatusCancelled           PackageStatus = "CANCELLED"
)

// packageTransitions is the allowed state graph. Terminal states have no entry.
var packageTransitions = map[PackageStatus][]PackageStatus{
	PackageStatusRequested:           {PackageStatusSpecFetched, PackageStatusFailedSpecFetch, PackageStatusCancelled},
	PackageStatusSpecFetched:         {PackageStatusAISuccess, PackageStatusFailedGeneration, PackageStatusCancelled},
	PackageStatusAISuccess:           {PackageStatusExecutionInProgress, PackageStatusFailedExecution, PackageStatusCancelled},
	PackageStatusExecutionInProgress: {PackageStatusExecutionComplete, PackageStatusFailedExecution, PackageStatusCancelled},
	PackageStatusExecutionComplete:   {PackageStatusQaEvalInProgress, PackageStatusComplete, PackageStatusCancelled},
	PackageStatusQaEvalInProgress:    {PackageStatusQaEvalDone, PackageStatusComplete, PackageStatusCancelled},
	PackageStatusQaEvalDone:          {PackageStatusComplete},
}

// IsValid checks if the status is a known package status.
func (s PackageStatus) IsValid() bool {
	switch s {
	case PackageStatusRequested, PackageStatusSpecFetched, PackageStatusAISuccess,
		PackageStatusExecutionInProgress, PackageStatusExecutionComplete,
		PackageStatusQaEvalInProgress, PackageStatusQaEvalDone, PackageStatusComplete,
		PackageStatusFailedSpecFetch, PackageStatusFailedGeneration,
		PackageStatusFailedExecution, PackageStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status forbids outgoing transitions.
func (s PackageStatus) IsTerminal() bool {
	switch s {
	case PackageStatusComplete, PackageStatusFailedSpecFetch,
		PackageStatusFailedGeneration, PackageStatusFailedExecution,
		PackageStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the transition s → next is allowed.
func (s PackageStatus) CanTransitionTo(next PackageStatus) bool {
	for _, allowed := range packageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvalidStatusTransitionError is raised on a disallowed package transition.
// Callers treat this as a programmer error, not a runtime condition.
type InvalidStatusTransitionError struct {
	PackageID string
	From      PackageStatus
	To        PackageStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for package %s: %s -> %s", e.PackageID, e.From, e.To)
}

// RunStatus represents the lifecycle state of a run.
type RunStatus string

// Run lifecycle states.
const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusPassed    RunStatus = "PASSED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusError     RunStatus = "ERROR"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal reports whether the run status is terminal.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusPassed, RunStatusFailed, RunStatusError, RunStatusCancelled:
		return true
	default:
		return false
	}
}
