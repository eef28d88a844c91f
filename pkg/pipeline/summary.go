package pipeline

import "time"

// State is a run's position in the state machine.
type State string

// Run states.
const (
	StateIdle          State = "idle"
	StateFetchingIndex State = "fetching_index"
	StatePaginating    State = "paginating"
	StateProcessing    State = "processing"
	StateCommitting    State = "committing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Status is the outcome reported in a RunSummary.
type Status string

// Run statuses.
const (
	// StatusSuccess: the run finished and no item failed. Skips are allowed.
	StatusSuccess Status = "success"

	// StatusPartial: the run finished but at least one item failed.
	StatusPartial Status = "partial"

	// StatusFailure: the run ended in StateFailed.
	StatusFailure Status = "failure"
)

// RunSummary reports one run.
type RunSummary struct {
	RunID  string `json:"run_id"`
	Status Status `json:"status"`

	// ProcessedCount is the number of items upserted.
	ProcessedCount int `json:"processed_count"`

	// AttemptedCount is the number of items taken from the listing,
	// whatever their outcome. The item cap applies to this count.
	AttemptedCount int `json:"attempted_count"`

	CreatedCount    int `json:"created_count"`
	UpdatedCount    int `json:"updated_count"`
	SkippedCount    int `json:"skipped_count"`
	FailedCount     int `json:"failed_count"`
	DiscoveredCount int `json:"discovered_count"`

	Pages       int `json:"pages"`
	FailedPages int `json:"failed_pages"`

	Snapshot string `json:"snapshot,omitempty"`

	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}
