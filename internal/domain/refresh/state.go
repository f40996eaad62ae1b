package refresh

import "github.com/okian/upready/internal/domain/model"

// State is the orchestrator's position in a cycle.
type State int32

// Cycle states.
const (
	StateIdle State = iota
	StateCheckingStaleness
	StateFetchingParallel
	StateUsingCache
	StateScoring
	StateSummarizing
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingStaleness:
		return "checking_staleness"
	case StateFetchingParallel:
		return "fetching_parallel"
	case StateUsingCache:
		return "using_cache"
	case StateScoring:
		return "scoring"
	case StateSummarizing:
		return "summarizing"
	case StatePersisting:
		return "persisting"
	}
	return "unknown"
}

// Outcome classifies how a cycle ended.
type Outcome string

// Cycle outcomes.
const (
	OutcomeCached           Outcome = "cached"
	OutcomePersisted        Outcome = "persisted"
	OutcomeIncomplete       Outcome = "incomplete"
	OutcomeSummarizeFailed  Outcome = "summarize_failed"
	OutcomeExtractionFailed Outcome = "extraction_failed"
	OutcomePersistFailed    Outcome = "persist_failed"
	OutcomeCancelled        Outcome = "cancelled"
)

// Request parameterizes a cycle.
type Request struct {
	// Force skips the staleness check.
	Force bool
}

// Result describes a finished cycle. Snapshot is the snapshot published
// after the cycle, which is the prior one unless the cycle persisted.
type Result struct {
	CycleID  string                 `json:"cycle_id"`
	Outcome  Outcome                `json:"outcome"`
	Missing  []string               `json:"missing,omitempty"`
	Score    *int                   `json:"score,omitempty"`
	Summary  string                 `json:"summary,omitempty"`
	Metrics  model.Metrics          `json:"metrics"`
	Snapshot *model.RefreshSnapshot `json:"snapshot,omitempty"`
}
