package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/integrations/jira"
	"github.com/BaSui01/ticketflow/types"
)

// TicketWriter is the slice of the tracker client the creator needs.
type TicketWriter interface {
	CreateTicket(ctx context.Context, summary, description, issueType, priority string, labels []string) *jira.Result
}

// Creator files the finished artifact in the issue tracker. It makes no model
// call and is exempt from the quality gate: its outcome is a side effect, so
// it either succeeds or fails the run.
type Creator struct {
	name     string
	activity string
	tracker  TicketWriter
	logger   *zap.Logger
}

// NewCreator creates the ticket creation stage. The stage config is accepted
// for uniform construction but the creator makes no model call.
func NewCreator(_ config.StageConfig, tracker TicketWriter, logger *zap.Logger) *Creator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Creator{
		name:     "Creator",
		activity: "Creating the ticket in the issue tracker",
		tracker:  tracker,
		logger:   logger.With(zap.String("stage", "Creator")),
	}
}

func (c *Creator) Name() string       { return c.name }
func (c *Creator) Activity() string   { return c.activity }
func (c *Creator) GateEligible() bool { return false }

func (c *Creator) Run(ctx context.Context, state *State) Outcome {
	started := time.Now()

	if !state.Artifact.Complete() {
		return Outcome{Result: types.StageResult{
			StageName: c.name,
			Success:   false,
			Duration:  time.Since(started),
			Error: types.NewError(types.ErrValidation, "artifact incomplete").
				WithDetails("summary, description, priority and issue type are all required before creation"),
		}}
	}

	res := c.tracker.CreateTicket(ctx,
		state.Artifact.Summary,
		state.Artifact.Description,
		state.Artifact.IssueType,
		state.Artifact.Priority,
		state.Artifact.Labels,
	)
	if !res.Success {
		return Outcome{Result: types.StageResult{
			StageName: c.name,
			Success:   false,
			Duration:  time.Since(started),
			Error: types.NewError(types.ErrExternalAPI, res.Error).
				WithDetails("ticket creation failed"),
		}}
	}

	key, _ := res.Result["ticket_key"].(string)
	url, _ := res.Result["ticket_url"].(string)

	c.logger.Info("ticket created",
		zap.String("run_id", state.RunID),
		zap.String("ticket_key", key),
	)

	return Outcome{Result: types.StageResult{
		StageName:    c.name,
		Success:      true,
		QualityScore: 1.0,
		Payload: map[string]any{
			"ticket_key": key,
			"ticket_url": url,
		},
		Duration: time.Since(started),
	}}
}
