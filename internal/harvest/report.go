package harvest

import "time"

// SourceState is the orchestrator's per-source state.
type SourceState string

// Orchestrator states. Sources end in SOURCE_DONE or SOURCE_FAILED.
const (
	StateInit          SourceState = "INIT"
	StateListing       SourceState = "LISTING"
	StateFetching      SourceState = "FETCHING"
	StateSourceDone    SourceState = "SOURCE_DONE"
	StateSourceFailed  SourceState = "SOURCE_FAILED"
	StateAggregating   SourceState = "AGGREGATING"
	StateCheckpointing SourceState = "CHECKPOINTING"
	StateReporting     SourceState = "REPORTING"
	StateDone          SourceState = "DONE"
)

// SourceOutcome summarizes what happened to one source during a run.
type SourceOutcome struct {
	SourceID           string      `json:"source_id"`
	Name               string      `json:"name"`
	State              SourceState `json:"state"`
	Candidates         int         `json:"candidates"`
	Documents          int         `json:"documents"`
	Skipped            int         `json:"skipped"`
	Errors             int         `json:"errors"`
	CheckpointAdvanced bool        `json:"checkpoint_advanced"`
	Reason             string      `json:"reason,omitempty"`

	// PreviousCheckpoint is the checkpoint read at LISTING; nil when unset.
	PreviousCheckpoint *time.Time `json:"previous_checkpoint,omitempty"`
}

// RunReport is the full account of one harvesting pass.
type RunReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Result     RunResult       `json:"result"`
	Sources    []SourceOutcome `json:"sources"`
	DatasetURI string          `json:"dataset_uri,omitempty"`
}

// Failed reports whether any source ended in SOURCE_FAILED.
func (r RunReport) Failed() bool {
	for _, s := range r.Sources {
		if s.State == StateSourceFailed {
			return true
		}
	}
	return false
}
