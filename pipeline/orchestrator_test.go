package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/testutil/mocks"
	"github.com/BaSui01/ticketflow/types"
)

// Model replies used to script full runs.
const (
	goodDraftReply = `{
		"summary": "Remember me login option",
		"description": "As a returning user, I want to stay signed in so that I do not re-enter credentials on every visit. This integrates with the existing session service.",
		"acceptance_criteria": ["Given a returning user When they check remember me Then the session persists", "Given an expired token When the user returns Then they are asked to log in"],
		"labels": ["auth"]
	}`
	weakDraftReply = `{
		"summary": "Remember me",
		"description": "Allow users to stay signed in across sessions so that they return without logging in again.",
		"acceptance_criteria": ["sessions persist"]
	}`
	goodFeasibilityReply = `{
		"feasible": true,
		"effort_estimate": "M",
		"risks": ["stolen persistent tokens extend account exposure"],
		"dependencies": [],
		"notes": "session service already issues refresh tokens"
	}`
	goodTestabilityReply = `{
		"testable": true,
		"test_scenarios": [
			"Given a user with remember me When the browser restarts Then the session is still valid",
			"Given a revoked token When the user returns Then login is required",
			"Given thirty days of inactivity When the user returns Then login is required"
		],
		"coverage_notes": "token expiry needs a clock fake"
	}`
	goodComplianceReply = `{
		"compliant": true,
		"violations": [],
		"required_labels": ["security-review"]
	}`
)

// eventSink collects published events in order.
type eventSink struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (s *eventSink) Publish(event types.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *eventSink) all() []types.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ProgressEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *eventSink) typeSequence() []types.EventType {
	var seq []types.EventType
	for _, ev := range s.all() {
		seq = append(seq, ev.Type)
	}
	return seq
}

func testPipelineConfig() config.PipelineConfig {
	cfg := config.Default().Pipeline
	cfg.QualityThreshold = 0.8
	cfg.MaxIterations = 3
	cfg.ProceedOnExhaustion = true
	return cfg
}

func buildPipeline(cfg config.PipelineConfig, provider *mocks.MockProvider, docs *mocks.MockDocSearcher, tracker *mocks.MockTracker) []Stage {
	logger := zap.NewNop()
	return []Stage{
		NewDrafter(cfg.Drafter, provider, docs, logger),
		NewFeasibility(cfg.Feasibility, provider, tracker, logger),
		NewTestability(cfg.Testability, provider, logger),
		NewCompliance(cfg.Compliance, provider, logger),
		NewCreator(cfg.Creator, tracker, logger),
	}
}

func storyRequest() types.WorkflowRequest {
	return types.WorkflowRequest{
		UserRequest: "We need a remember me option on the login page",
		IssueType:   types.IssueTypeStory,
		Priority:    types.PriorityMedium,
	}
}

func TestOrchestrator_SuccessfulRun(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider().
		Queue(goodDraftReply).
		Queue(goodFeasibilityReply).
		Queue(goodTestabilityReply).
		Queue(goodComplianceReply)
	docs := mocks.NewMockDocSearcher().WithDocs("Session service overview")
	tracker := mocks.NewMockTracker()
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, attempts := orch.Run(context.Background(), "run-ok", storyRequest())

	require.True(t, result.Success)
	assert.Equal(t, "PROJ-42", result.TicketKey)
	assert.Equal(t, "https://tracker.example.com/browse/PROJ-42", result.TicketURL)
	assert.Equal(t, 1, tracker.Created())
	assert.Len(t, attempts, 5)

	// quality metrics carry the retained score of every stage
	require.Len(t, result.QualityMetrics, 5)
	for _, stage := range []string{"Drafter", "Feasibility", "Testability", "Compliance", "Creator"} {
		score, ok := result.QualityMetrics[stage]
		require.True(t, ok, stage)
		assert.GreaterOrEqual(t, score, cfg.QualityThreshold, stage)
		assert.LessOrEqual(t, score, 1.0, stage)
	}
	assert.Equal(t, 1.0, result.QualityMetrics["Creator"])

	// a single-attempt run emits one started/completed pair per stage and no
	// progress events, bracketed by the workflow lifecycle events
	want := []types.EventType{types.EventWorkflowStarted}
	for i := 0; i < 5; i++ {
		want = append(want, types.EventStageStarted, types.EventStageCompleted)
	}
	want = append(want, types.EventWorkflowCompleted)
	assert.Equal(t, want, sink.typeSequence())

	events := sink.all()
	last := events[len(events)-1]
	assert.Equal(t, "PROJ-42", last.TicketKey)
	for _, ev := range events {
		assert.Equal(t, "run-ok", ev.RunID)
	}
}

func TestOrchestrator_RetryWithFeedback(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider().
		Queue(weakDraftReply).
		Queue(goodDraftReply).
		Queue(goodFeasibilityReply).
		Queue(goodTestabilityReply).
		Queue(goodComplianceReply)
	docs := mocks.NewMockDocSearcher().WithDocs("Session service overview")
	tracker := mocks.NewMockTracker()
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, attempts := orch.Run(context.Background(), "run-retry", storyRequest())

	require.True(t, result.Success)

	// the drafter ran twice; the retained metric is the passing attempt's
	assert.Len(t, attempts, 6)
	assert.Equal(t, "Drafter", attempts[0].StageName)
	assert.Equal(t, "Drafter", attempts[1].StageName)
	assert.Less(t, attempts[0].QualityScore, cfg.QualityThreshold)
	assert.GreaterOrEqual(t, attempts[1].QualityScore, cfg.QualityThreshold)
	assert.Equal(t, attempts[1].QualityScore, result.QualityMetrics["Drafter"])

	// the retry prompt carries the failing dimensions as feedback
	calls := provider.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.NotContains(t, calls[0].Prompt, "previous attempt")
	assert.Contains(t, calls[1].Prompt, "previous attempt")
	assert.Contains(t, calls[1].Prompt, "Drafter:")

	// only the retried drafter attempt surfaces as progress; every other
	// stage passed first try and emits none
	var progress []string
	for _, ev := range sink.all() {
		if ev.Type == types.EventStageProgress {
			progress = append(progress, ev.Stage)
		}
	}
	assert.Equal(t, []string{"Drafter"}, progress)
}

func TestOrchestrator_GateExhausted_ProceedsWithBest(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.MaxIterations = 2
	provider := mocks.NewMockProvider().
		Queue(weakDraftReply).
		Queue(weakDraftReply).
		Queue(goodFeasibilityReply).
		Queue(goodTestabilityReply).
		Queue(goodComplianceReply)
	docs := mocks.NewMockDocSearcher()
	tracker := mocks.NewMockTracker()
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, _ := orch.Run(context.Background(), "run-exhausted", storyRequest())

	require.True(t, result.Success, "run proceeds with the best attempt")
	assert.Less(t, result.QualityMetrics["Drafter"], cfg.QualityThreshold)

	var warned bool
	for _, ev := range sink.all() {
		if ev.Type == types.EventValidationWarning {
			warned = true
			assert.Contains(t, ev.Message, "Drafter")
		}
	}
	assert.True(t, warned, "gate bypass must emit a validation warning")
}

func TestOrchestrator_GateExhausted_Aborts(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.MaxIterations = 2
	cfg.ProceedOnExhaustion = false
	provider := mocks.NewMockProvider().
		Queue(weakDraftReply).
		Queue(weakDraftReply)
	docs := mocks.NewMockDocSearcher()
	tracker := mocks.NewMockTracker()
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, _ := orch.Run(context.Background(), "run-abort", storyRequest())

	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrGateExhausted, result.Error.Code)
	assert.Equal(t, 0, tracker.Created())

	seq := sink.typeSequence()
	assert.Equal(t, types.EventError, seq[len(seq)-1])
	assert.NotContains(t, seq, types.EventWorkflowCompleted)
}

func TestOrchestrator_CreatorAuthFailure(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider().
		Queue(goodDraftReply).
		Queue(goodFeasibilityReply).
		Queue(goodTestabilityReply).
		Queue(goodComplianceReply)
	docs := mocks.NewMockDocSearcher()
	tracker := mocks.NewMockTracker().WithCreateFailure("AUTH_FAILED")
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, _ := orch.Run(context.Background(), "run-auth", storyRequest())

	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.ErrExternalAPI, result.Error.Code)
	assert.Equal(t, "AUTH_FAILED", result.Error.Message)
	assert.Empty(t, result.TicketKey)

	seq := sink.typeSequence()
	assert.Equal(t, types.EventError, seq[len(seq)-1])
	assert.NotContains(t, seq, types.EventWorkflowCompleted)
}

func TestOrchestrator_StageHardFailureAborts(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider().
		Queue(goodDraftReply).
		QueueError(types.NewError(types.ErrTimeout, "timeout"))
	docs := mocks.NewMockDocSearcher()
	tracker := mocks.NewMockTracker()
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, attempts := orch.Run(context.Background(), "run-timeout", storyRequest())

	require.False(t, result.Success)
	assert.Equal(t, types.ErrTimeout, result.Error.Code)

	// no retry after a hard failure, even with budget left
	assert.Equal(t, "Feasibility", attempts[len(attempts)-1].StageName)
	assert.Len(t, attempts, 2)
	assert.Equal(t, 0, tracker.Created())
}

func TestOrchestrator_CancelledBeforeStart(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider()
	docs := mocks.NewMockDocSearcher()
	tracker := mocks.NewMockTracker()
	sink := &eventSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, _ := orch.Run(ctx, "run-cancelled", storyRequest())

	require.False(t, result.Success)
	assert.Equal(t, types.ErrCancelled, result.Error.Code)
	assert.Equal(t, 0, provider.CallCount())

	seq := sink.typeSequence()
	require.Len(t, seq, 2)
	assert.Equal(t, types.EventWorkflowStarted, seq[0])
	assert.Equal(t, types.EventError, seq[1])
}

func TestOrchestrator_ResearchFailureAborts(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider()
	docs := mocks.NewMockDocSearcher().WithFailure("CONNECTION_ERROR")
	tracker := mocks.NewMockTracker()
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, _ := orch.Run(context.Background(), "run-research", storyRequest())

	require.False(t, result.Success)
	assert.Equal(t, types.ErrExternalAPI, result.Error.Code)
	assert.Equal(t, "CONNECTION_ERROR", result.Error.Message)
}

func TestOrchestrator_MalformedModelReplyAborts(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider().Queue("not json at all")
	docs := mocks.NewMockDocSearcher()
	tracker := mocks.NewMockTracker()
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, docs, tracker), sink, zap.NewNop())
	result, _ := orch.Run(context.Background(), "run-parse", storyRequest())

	require.False(t, result.Success)
	assert.Equal(t, types.ErrParse, result.Error.Code)
}

func TestOrchestrator_GeneratesRunID(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider().
		Queue(goodDraftReply).
		Queue(goodFeasibilityReply).
		Queue(goodTestabilityReply).
		Queue(goodComplianceReply)
	sink := &eventSink{}

	orch := NewOrchestrator(cfg, buildPipeline(cfg, provider, mocks.NewMockDocSearcher(), mocks.NewMockTracker()), sink, zap.NewNop())
	result, _ := orch.Run(context.Background(), "", storyRequest())

	assert.NotEmpty(t, result.RunID)
	assert.False(t, strings.ContainsAny(result.RunID, " \t"))
}
