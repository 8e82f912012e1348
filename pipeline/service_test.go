package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/testutil/mocks"
	"github.com/BaSui01/ticketflow/types"
)

// recordingHistory captures RecordRun calls.
type recordingHistory struct {
	mu      sync.Mutex
	results []*types.FinalResult
}

func (h *recordingHistory) RecordRun(ctx context.Context, result *types.FinalResult, attempts []types.StageResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
	return nil
}

func (h *recordingHistory) recorded() []*types.FinalResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*types.FinalResult, len(h.results))
	copy(out, h.results)
	return out
}

// blockingStage holds the run until released, so tests can observe an
// in-flight run.
type blockingStage struct {
	release chan struct{}
}

func (b *blockingStage) Name() string       { return "Blocking" }
func (b *blockingStage) Activity() string   { return "waiting" }
func (b *blockingStage) GateEligible() bool { return false }

func (b *blockingStage) Run(ctx context.Context, state *State) Outcome {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return Outcome{Result: types.StageResult{
		StageName: "Blocking", Success: true, QualityScore: 1,
	}}
}

func newTestService(t *testing.T, cfg config.PipelineConfig, stages []Stage, history HistoryStore) *Service {
	t.Helper()
	orch := NewOrchestrator(cfg, stages, nil, zap.NewNop())
	return NewService(cfg, orch, history, nil, zap.NewNop())
}

func TestService_SubmitRunsToCompletion(t *testing.T) {
	cfg := testPipelineConfig()
	provider := mocks.NewMockProvider().
		Queue(goodDraftReply).
		Queue(goodFeasibilityReply).
		Queue(goodTestabilityReply).
		Queue(goodComplianceReply)
	stages := buildPipeline(cfg, provider, mocks.NewMockDocSearcher(), mocks.NewMockTracker())
	history := &recordingHistory{}
	svc := newTestService(t, cfg, stages, history)

	runID, err := svc.Submit(storyRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		return len(history.recorded()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	result := history.recorded()[0]
	assert.Equal(t, runID, result.RunID)
	assert.True(t, result.Success)
	assert.Equal(t, 0, svc.ActiveRuns())
}

func TestService_RejectsInvalidRequest(t *testing.T) {
	svc := newTestService(t, testPipelineConfig(), nil, nil)

	_, err := svc.Submit(types.WorkflowRequest{IssueType: "Wish", Priority: types.PriorityLow})
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.CodeOf(err))
	assert.Equal(t, 0, svc.ActiveRuns())
}

func TestService_ConcurrentRunCap(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.MaxConcurrentRuns = 1
	stage := &blockingStage{release: make(chan struct{})}
	svc := newTestService(t, cfg, []Stage{stage}, nil)

	_, err := svc.Submit(storyRequest())
	require.NoError(t, err)

	_, err = svc.Submit(storyRequest())
	require.Error(t, err)
	assert.Equal(t, types.ErrTooManyWorkflows, types.CodeOf(err))

	close(stage.release)
	require.Eventually(t, func() bool { return svc.ActiveRuns() == 0 }, 5*time.Second, 10*time.Millisecond)

	// capacity is released once the run finishes
	stage2 := &blockingStage{release: make(chan struct{})}
	close(stage2.release)
	_, err = svc.Submit(storyRequest())
	assert.NoError(t, err)
}

func TestService_Cancel(t *testing.T) {
	cfg := testPipelineConfig()
	stage := &blockingStage{release: make(chan struct{})}
	history := &recordingHistory{}
	svc := newTestService(t, cfg, []Stage{stage, &blockingStage{release: make(chan struct{})}}, history)

	runID, err := svc.Submit(storyRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.ActiveRuns() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.True(t, svc.Cancel(runID))

	require.Eventually(t, func() bool {
		return len(history.recorded()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	result := history.recorded()[0]
	assert.False(t, result.Success)
	assert.Equal(t, types.ErrCancelled, result.Error.Code)
	assert.False(t, svc.Cancel(runID), "finished runs are no longer cancellable")
}

func TestService_Shutdown(t *testing.T) {
	cfg := testPipelineConfig()
	stage := &blockingStage{release: make(chan struct{})}
	svc := newTestService(t, cfg, []Stage{stage}, nil)

	_, err := svc.Submit(storyRequest())
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(stage.release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, svc.Shutdown(ctx))
}
