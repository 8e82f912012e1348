package types

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// IssueType is the tracker issue type a workflow run produces.
type IssueType string

const (
	IssueTypeTask  IssueType = "Task"
	IssueTypeStory IssueType = "Story"
	IssueTypeBug   IssueType = "Bug"
	IssueTypeEpic  IssueType = "Epic"
)

// Priority is the tracker priority assigned to the produced ticket.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// MaxUserRequestLen bounds the free-form request text accepted per run.
const MaxUserRequestLen = 8192

// MaxContextEntries bounds the caller-supplied context mapping.
const MaxContextEntries = 32

// WorkflowRequest is the immutable input to one pipeline run.
type WorkflowRequest struct {
	UserRequest string         `json:"user_request" validate:"required,max=8192"`
	IssueType   IssueType      `json:"issue_type" validate:"required,oneof=Task Story Bug Epic"`
	Priority    Priority       `json:"priority" validate:"required,oneof=Low Medium High Critical"`
	Context     map[string]any `json:"context,omitempty" validate:"omitempty,max=32"`
}

var validate = validator.New()

// Validate checks the request against its declared constraints and returns a
// structured validation error suitable for returning to the caller.
func (r *WorkflowRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return NewError(ErrValidation, "invalid workflow request").
			WithCause(err).
			WithHTTPStatus(400).
			WithSuggestions("provide a non-empty user_request under 8192 characters",
				"issue_type must be one of Task, Story, Bug, Epic",
				"priority must be one of Low, Medium, High, Critical")
	}
	return nil
}

// StageResult is the outcome of a single stage attempt.
type StageResult struct {
	StageName    string         `json:"stage_name"`
	Success      bool           `json:"success"`
	QualityScore float64        `json:"quality_score"`
	Payload      map[string]any `json:"payload,omitempty"`
	Duration     time.Duration  `json:"duration"`
	Error        *Error         `json:"error,omitempty"`
}

// TicketArtifact is the ticket under construction, enriched stage by stage
// and finalized before the creator stage runs.
type TicketArtifact struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	IssueType   string   `json:"issue_type"`
	Labels      []string `json:"labels,omitempty"`
}

// Complete reports whether every required field is present, the invariant
// that must hold before ticket creation.
func (a *TicketArtifact) Complete() bool {
	return a.Summary != "" && a.Description != "" && a.Priority != "" && a.IssueType != ""
}

// AddLabel appends a label if it is not already present.
func (a *TicketArtifact) AddLabel(label string) {
	for _, l := range a.Labels {
		if l == label {
			return
		}
	}
	a.Labels = append(a.Labels, label)
}

// FinalResult is the terminal outcome of a workflow run.
type FinalResult struct {
	RunID          string             `json:"run_id"`
	Success        bool               `json:"success"`
	TicketKey      string             `json:"ticket_key,omitempty"`
	TicketURL      string             `json:"ticket_url,omitempty"`
	QualityMetrics map[string]float64 `json:"quality_metrics,omitempty"`
	TotalDuration  time.Duration      `json:"total_duration"`
	Error          *Error             `json:"error,omitempty"`
}
