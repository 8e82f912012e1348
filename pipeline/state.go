package pipeline

import (
	"time"

	"github.com/BaSui01/ticketflow/types"
)

// State is the workflow state for one run. It is owned exclusively by the
// orchestrator: stages receive it read-only and report changes through their
// outcome, never by mutating it.
type State struct {
	RunID   string
	Request types.WorkflowRequest

	// Artifact is the ticket under construction, enriched stage by stage.
	Artifact types.TicketArtifact

	// StageResults holds every attempt in execution order, including
	// low-scoring attempts that were retried.
	StageResults []types.StageResult

	// Feedback carries the failing rubric dimensions of the previous attempt
	// of the current stage. Reset when a stage completes.
	Feedback []string

	// Research holds stage lookups (documentation snippets, similar tickets)
	// shared with downstream stages.
	Research map[string]any
}

// newState initializes the state for a run.
func newState(runID string, req types.WorkflowRequest) *State {
	return &State{
		RunID:    runID,
		Request:  req,
		Artifact: types.TicketArtifact{IssueType: string(req.IssueType), Priority: string(req.Priority)},
		Research: make(map[string]any),
	}
}

// totalDuration sums the duration of every attempt across all stages.
func (s *State) totalDuration() (total time.Duration) {
	for _, r := range s.StageResults {
		total += r.Duration
	}
	return total
}
