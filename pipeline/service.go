package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/internal/metrics"
	"github.com/BaSui01/ticketflow/types"
)

// HistoryStore persists finished runs. Recording is best-effort: a storage
// failure is logged but never fails the run.
type HistoryStore interface {
	RecordRun(ctx context.Context, result *types.FinalResult, attempts []types.StageResult) error
}

// Service accepts workflow submissions, caps how many run concurrently, and
// runs each submission through the orchestrator in the background.
type Service struct {
	orch      *Orchestrator
	sem       *semaphore.Weighted
	maxRuns   int64
	history   HistoryStore
	collector *metrics.Collector
	logger    *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService creates the submission service.
func NewService(cfg config.PipelineConfig, orch *Orchestrator, history HistoryStore, collector *metrics.Collector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRuns := int64(cfg.MaxConcurrentRuns)
	if maxRuns < 1 {
		maxRuns = 1
	}
	return &Service{
		orch:      orch,
		sem:       semaphore.NewWeighted(maxRuns),
		maxRuns:   maxRuns,
		history:   history,
		collector: collector,
		logger:    logger.With(zap.String("component", "workflow_service")),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit validates a request and starts a run in the background, returning
// its run ID. When the concurrent-run cap is reached it rejects the request
// instead of queueing it.
func (s *Service) Submit(req types.WorkflowRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if !s.sem.TryAcquire(1) {
		return "", types.NewError(types.ErrTooManyWorkflows, "concurrent workflow limit reached").
			WithHTTPStatus(429).
			WithRetryable(true).
			WithSuggestions("retry after an active run finishes")
	}

	runID := uuid.NewString()

	// the run outlives the submitting HTTP request
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[runID] = cancel
	s.mu.Unlock()

	go s.execute(ctx, runID, req)
	return runID, nil
}

// Cancel requests cancellation of an active run. The run stops at its next
// stage boundary. Returns false when the run is not active.
func (s *Service) Cancel(runID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[runID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ActiveRuns reports how many runs are currently executing.
func (s *Service) ActiveRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

// Shutdown waits for active runs to finish, up to the context deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, s.maxRuns); err != nil {
		return err
	}
	s.sem.Release(s.maxRuns)
	return nil
}

func (s *Service) execute(ctx context.Context, runID string, req types.WorkflowRequest) {
	started := time.Now()
	if s.collector != nil {
		s.collector.WorkflowRunStarted()
	}
	defer func() {
		s.mu.Lock()
		delete(s.cancels, runID)
		s.mu.Unlock()
		s.sem.Release(1)
		if s.collector != nil {
			s.collector.WorkflowRunFinished()
		}
	}()

	result, attempts := s.orch.Run(ctx, runID, req)

	if s.collector != nil {
		s.collector.RecordWorkflowRun(runStatus(result), time.Since(started))
	}
	if s.history != nil {
		// recording uses its own deadline: the run context may already be
		// cancelled
		hctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.history.RecordRun(hctx, result, attempts); err != nil {
			s.logger.Warn("run history not recorded",
				zap.String("run_id", runID),
				zap.Error(err),
			)
		}
	}
}

func runStatus(result *types.FinalResult) string {
	switch {
	case result.Success:
		return "completed"
	case result.Error != nil && result.Error.Code == types.ErrCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}
