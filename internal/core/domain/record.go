package domain

import "time"

// Outcome is the terminal state a node reached during a build.
type Outcome string

const (
	// OutcomeUpToDate means the recorded output fingerprints still matched
	// the on-disk state and the action was not invoked.
	OutcomeUpToDate Outcome = "SKIPPED_UP_TO_DATE"
	// OutcomeFromCache means the outputs were materialized from a cache
	// entry instead of executing the action.
	OutcomeFromCache Outcome = "FETCHED_FROM_CACHE"
	// OutcomeExecuted means the action ran to completion.
	OutcomeExecuted Outcome = "SUCCEEDED"
	// OutcomeFailed means the action threw.
	OutcomeFailed Outcome = "FAILED"
	// OutcomeSkippedOnlyIf means the gating predicate evaluated to false.
	OutcomeSkippedOnlyIf Outcome = "SKIPPED_ONLY_IF"
	// OutcomeSkippedDependencyFailed means a transitive hard dependency
	// failed and the node never became eligible.
	OutcomeSkippedDependencyFailed Outcome = "SKIPPED_DUE_TO_FAILED_DEPENDENCY"
)

// Successful reports whether the outcome counts as a terminal success for
// scheduling purposes.
func (o Outcome) Successful() bool {
	switch o {
	case OutcomeUpToDate, OutcomeFromCache, OutcomeExecuted, OutcomeSkippedOnlyIf:
		return true
	default:
		return false
	}
}

// ExecutionRecord is the last-recorded execution state of a node, keyed by
// the composite cache key. Written only by the execution engine after a node
// completes; read before execution to decide up-to-date status.
type ExecutionRecord struct {
	NodeName string `json:"node_name"`
	CacheKey string `json:"cache_key"`
	// InputFingerprints maps declared input property names to fingerprints,
	// in declaration order when iterated through InputOrder.
	InputFingerprints map[string]string `json:"input_fingerprints,omitzero"`
	// OutputFingerprints maps declared output paths to fingerprints.
	OutputFingerprints map[string]string `json:"output_fingerprints,omitzero"`
	Outcome            Outcome           `json:"outcome"`
	Timestamp          time.Time         `json:"timestamp,omitzero"`
}
