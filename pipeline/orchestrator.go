package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/types"
)

// Publisher receives progress events. Publish must deliver synchronously so
// the per-run event order is preserved.
type Publisher interface {
	Publish(event types.ProgressEvent)
}

// Orchestrator drives one workflow run through the fixed stage order,
// applying the quality gate with bounded retry between stages.
type Orchestrator struct {
	stages    []Stage
	cfg       config.PipelineConfig
	publisher Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewOrchestrator assembles the pipeline in its fixed order.
func NewOrchestrator(cfg config.PipelineConfig, stages []Stage, publisher Publisher, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		stages:    stages,
		cfg:       cfg,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "orchestrator")),
		tracer:    otel.Tracer("ticketflow/pipeline"),
	}
}

// Run executes one workflow run to completion. It always returns a terminal
// FinalResult plus the full attempt log; failures are reported in the result,
// not as a Go error, and the run's final event (workflow_completed or error)
// is published before Run returns.
func (o *Orchestrator) Run(ctx context.Context, runID string, req types.WorkflowRequest) (*types.FinalResult, []types.StageResult) {
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, span := o.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("issue.type", string(req.IssueType)),
		))
	defer span.End()

	state := newState(runID, req)
	started := time.Now()

	o.logger.Info("workflow started",
		zap.String("run_id", runID),
		zap.String("issue_type", string(req.IssueType)),
	)
	o.publish(types.NewWorkflowStarted(runID))

	metrics := make(map[string]float64, len(o.stages))

	for _, stage := range o.stages {
		// cancellation is honored only at stage boundaries
		if err := ctx.Err(); err != nil {
			return o.fail(span, state, started, cancelError(err)), state.StageResults
		}

		outcome, serr := o.runStage(ctx, stage, state)
		if serr != nil {
			return o.fail(span, state, started, serr), state.StageResults
		}

		o.applyOutcome(state, outcome)
		metrics[stage.Name()] = outcome.Result.QualityScore
		o.publish(types.NewStageCompleted(runID, stage.Name(), outcome.Result.QualityScore, outcome.Result.Duration))
	}

	final := &types.FinalResult{
		RunID:          runID,
		Success:        true,
		QualityMetrics: metrics,
		TotalDuration:  state.totalDuration(),
	}
	if last := state.StageResults[len(state.StageResults)-1]; last.Payload != nil {
		final.TicketKey, _ = last.Payload["ticket_key"].(string)
		final.TicketURL, _ = last.Payload["ticket_url"].(string)
	}

	span.SetAttributes(attribute.String("ticket.key", final.TicketKey))
	o.logger.Info("workflow completed",
		zap.String("run_id", runID),
		zap.String("ticket_key", final.TicketKey),
		zap.Duration("total_duration", final.TotalDuration),
	)
	o.publish(types.NewWorkflowCompleted(runID, *final))
	return final, state.StageResults
}

// runStage runs one stage under the quality gate, retrying with feedback up
// to the iteration budget. It returns the outcome to apply, or a terminal
// error when the stage hard-fails or the exhausted gate may not be bypassed.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, state *State) (Outcome, *types.Error) {
	ctx, span := o.tracer.Start(ctx, "stage."+strings.ToLower(stage.Name()),
		trace.WithAttributes(attribute.String("run.id", state.RunID)))
	defer span.End()

	o.publish(types.NewStageStarted(state.RunID, stage.Name(), stage.Activity()))
	state.Feedback = nil

	var best *Outcome
	iterations := o.cfg.MaxIterations
	if iterations < 1 || !stage.GateEligible() {
		iterations = 1
	}

	for attempt := 1; attempt <= iterations; attempt++ {
		outcome := stage.Run(ctx, state)
		state.StageResults = append(state.StageResults, outcome.Result)

		if !outcome.Result.Success {
			// hard failure aborts the run regardless of remaining budget
			span.SetStatus(codes.Error, outcome.Result.Error.Message)
			return Outcome{}, outcome.Result.Error
		}

		span.SetAttributes(attribute.Float64(fmt.Sprintf("attempt.%d.score", attempt), outcome.Result.QualityScore))
		// a first-attempt pass goes straight to stage_completed; only retries
		// surface their intermediate scores as progress
		if attempt > 1 {
			o.publish(types.NewStageProgress(state.RunID, stage.Name(), outcome.Result.QualityScore, stage.Activity()))
		}

		if best == nil || outcome.Result.QualityScore > best.Result.QualityScore {
			best = &outcome
		}

		if !stage.GateEligible() || outcome.Result.QualityScore >= o.cfg.QualityThreshold {
			state.Feedback = nil
			return outcome, nil
		}

		o.logger.Warn("quality gate not met",
			zap.String("run_id", state.RunID),
			zap.String("stage", stage.Name()),
			zap.Int("attempt", attempt),
			zap.Float64("score", outcome.Result.QualityScore),
			zap.Float64("threshold", o.cfg.QualityThreshold),
		)
		state.Feedback = outcome.Feedback
	}

	if !o.cfg.ProceedOnExhaustion {
		span.SetStatus(codes.Error, "quality gate exhausted")
		return Outcome{}, types.NewError(types.ErrGateExhausted,
			fmt.Sprintf("stage %s did not reach %.2f within %d attempts", stage.Name(), o.cfg.QualityThreshold, iterations))
	}

	// proceed with the best attempt, flagging the bypass
	o.publish(types.NewValidationWarning(state.RunID, stage.Name(), fmt.Sprintf(
		"stage %s proceeded with score %.2f below threshold %.2f after %d attempts",
		stage.Name(), best.Result.QualityScore, o.cfg.QualityThreshold, iterations)))
	state.Feedback = nil
	return *best, nil
}

// applyOutcome folds a stage's reported changes into the run state.
func (o *Orchestrator) applyOutcome(state *State, outcome Outcome) {
	if outcome.Artifact != nil {
		state.Artifact = *outcome.Artifact
	}
	for k, v := range outcome.Research {
		state.Research[k] = v
	}
}

// fail publishes the terminal error event and builds the failed result.
func (o *Orchestrator) fail(span trace.Span, state *State, started time.Time, err *types.Error) *types.FinalResult {
	span.SetStatus(codes.Error, err.Message)
	o.logger.Error("workflow failed",
		zap.String("run_id", state.RunID),
		zap.String("error_code", string(err.Code)),
		zap.String("message", err.Message),
	)
	o.publish(types.NewErrorEvent(state.RunID, err))
	return &types.FinalResult{
		RunID:         state.RunID,
		Success:       false,
		TotalDuration: time.Since(started),
		Error:         err,
	}
}

func (o *Orchestrator) publish(event types.ProgressEvent) {
	if o.publisher != nil {
		o.publisher.Publish(event)
	}
}

func cancelError(err error) *types.Error {
	if err == context.DeadlineExceeded {
		return types.NewError(types.ErrTimeout, "workflow run timed out").WithCause(err)
	}
	return types.NewError(types.ErrCancelled, "workflow run cancelled").WithCause(err)
}
