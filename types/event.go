package types

import "time"

// EventType identifies a progress event in a workflow run's lifecycle.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventStageStarted      EventType = "stage_started"
	EventStageProgress     EventType = "stage_progress"
	EventStageCompleted    EventType = "stage_completed"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventValidationWarning EventType = "validation_warning"
	EventError             EventType = "error"
)

// ProgressEvent is a single entry in the ordered event stream describing one
// workflow run. Events are JSON-serializable and carry only the fields
// relevant to their type.
type ProgressEvent struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	// Stage lifecycle fields
	Stage        string  `json:"stage,omitempty"`
	ActivityText string  `json:"activity_text,omitempty"`
	Score        float64 `json:"score,omitempty"`
	DurationSecs float64 `json:"duration_seconds,omitempty"`

	// Terminal fields
	TicketKey     string             `json:"ticket_key,omitempty"`
	TicketURL     string             `json:"ticket_url,omitempty"`
	QualityScores map[string]float64 `json:"quality_scores,omitempty"`
	TotalDuration float64            `json:"total_duration,omitempty"`

	// Warning / error fields
	Message     string   `json:"message,omitempty"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// NewWorkflowStarted builds the initial event of a run.
func NewWorkflowStarted(runID string) ProgressEvent {
	return ProgressEvent{Type: EventWorkflowStarted, RunID: runID, Timestamp: time.Now()}
}

// NewStageStarted marks a stage entering its active state.
func NewStageStarted(runID, stage, activity string) ProgressEvent {
	return ProgressEvent{
		Type: EventStageStarted, RunID: runID, Timestamp: time.Now(),
		Stage: stage, ActivityText: activity,
	}
}

// NewStageProgress reports a scored attempt within a stage.
func NewStageProgress(runID, stage string, score float64, activity string) ProgressEvent {
	return ProgressEvent{
		Type: EventStageProgress, RunID: runID, Timestamp: time.Now(),
		Stage: stage, Score: score, ActivityText: activity,
	}
}

// NewStageCompleted marks a stage leaving its active state successfully.
func NewStageCompleted(runID, stage string, score float64, duration time.Duration) ProgressEvent {
	return ProgressEvent{
		Type: EventStageCompleted, RunID: runID, Timestamp: time.Now(),
		Stage: stage, Score: score, DurationSecs: duration.Seconds(),
	}
}

// NewWorkflowCompleted is the terminal event of a successful run.
func NewWorkflowCompleted(runID string, result FinalResult) ProgressEvent {
	return ProgressEvent{
		Type: EventWorkflowCompleted, RunID: runID, Timestamp: time.Now(),
		TicketKey:     result.TicketKey,
		TicketURL:     result.TicketURL,
		QualityScores: result.QualityMetrics,
		TotalDuration: result.TotalDuration.Seconds(),
	}
}

// NewValidationWarning reports a non-fatal policy deviation, such as a
// quality gate bypassed after the iteration budget ran out.
func NewValidationWarning(runID, stage, message string) ProgressEvent {
	return ProgressEvent{Type: EventValidationWarning, RunID: runID, Timestamp: time.Now(), Stage: stage, Message: message}
}

// NewErrorEvent is the terminal event of a failed or cancelled run.
func NewErrorEvent(runID string, err *Error) ProgressEvent {
	ev := ProgressEvent{Type: EventError, RunID: runID, Timestamp: time.Now()}
	if err != nil {
		ev.Message = err.Message
		ev.Details = err.Details
		ev.Suggestions = err.Suggestions
	}
	return ev
}
