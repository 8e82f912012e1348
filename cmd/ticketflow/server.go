package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/api/handlers"
	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/history"
	"github.com/BaSui01/ticketflow/integrations/confluence"
	"github.com/BaSui01/ticketflow/integrations/jira"
	"github.com/BaSui01/ticketflow/internal/metrics"
	"github.com/BaSui01/ticketflow/internal/server"
	"github.com/BaSui01/ticketflow/internal/telemetry"
	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/notify"
	"github.com/BaSui01/ticketflow/pipeline"
	"github.com/BaSui01/ticketflow/types"
)

// Server wires the pipeline, transports, and HTTP surface together.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	collector     *metrics.Collector
	otelProviders *telemetry.Providers

	broadcaster *notify.Broadcaster
	wsHub       *notify.Hub
	redisPub    *notify.RedisPublisher

	historyStore *history.Store
	service      *pipeline.Service
	provider     llm.Provider

	healthHandler   *handlers.HealthHandler
	workflowHandler *handlers.WorkflowHandler

	rateLimiterCancel context.CancelFunc
}

// NewServer builds every component from config. Optional pieces (Redis,
// history store) are skipped when disabled.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) (*Server, error) {
	s := &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}

	s.collector = metrics.NewCollector("ticketflow", logger)

	// event fan-out: dashboard websocket always, Redis when enabled
	s.broadcaster = notify.NewBroadcaster(logger)
	s.wsHub = notify.NewHub(logger)
	s.broadcaster.Subscribe(s.wsHub)
	s.broadcaster.Subscribe(stageMetricsListener(s.collector))
	if cfg.Redis.Enabled {
		s.redisPub = notify.NewRedisPublisher(cfg.Redis, logger)
		s.broadcaster.Subscribe(s.redisPub)
	}

	if cfg.Database.Enabled {
		store, err := history.Open(cfg.Database, s.collector, logger)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		s.historyStore = store
	}

	s.provider = &meteredProvider{
		Provider:  llm.NewOpenAIProvider(cfg.LLM, logger),
		collector: s.collector,
	}

	jiraClient := jira.NewClient(cfg.Jira, logger)
	confluenceClient := confluence.NewClient(cfg.Confluence, logger)

	stages := []pipeline.Stage{
		pipeline.NewDrafter(cfg.Pipeline.Drafter, s.provider, confluenceClient, logger),
		pipeline.NewFeasibility(cfg.Pipeline.Feasibility, s.provider, jiraClient, logger),
		pipeline.NewTestability(cfg.Pipeline.Testability, s.provider, logger),
		pipeline.NewCompliance(cfg.Pipeline.Compliance, s.provider, logger),
		pipeline.NewCreator(cfg.Pipeline.Creator, jiraClient, logger),
	}

	orch := pipeline.NewOrchestrator(cfg.Pipeline, stages, s.broadcaster, logger)

	var historyStore pipeline.HistoryStore
	if s.historyStore != nil {
		historyStore = s.historyStore
	}
	s.service = pipeline.NewService(cfg.Pipeline, orch, historyStore, s.collector, logger)

	s.healthHandler = handlers.NewHealthHandler(logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("llm", func(ctx context.Context) error {
		status, err := s.provider.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !status.Healthy {
			return fmt.Errorf("provider unhealthy")
		}
		return nil
	}))
	if s.redisPub != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.redisPub.Ping))
	}
	if s.historyStore != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.historyStore.Ping))
	}

	var runHistory handlers.RunHistory
	if s.historyStore != nil {
		runHistory = s.historyStore
	}
	s.workflowHandler = handlers.NewWorkflowHandler(s.service, runHistory, logger)

	return s, nil
}

// meteredProvider wraps the model client with request metrics.
type meteredProvider struct {
	llm.Provider
	collector *metrics.Collector
}

func (p *meteredProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	started := time.Now()
	resp, err := p.Provider.Complete(ctx, req)
	status := "success"
	if err != nil {
		status = string(types.CodeOf(err))
	}
	var promptTokens, completionTokens int
	if resp != nil {
		promptTokens = resp.PromptTokens
		completionTokens = resp.CompletionTokens
	}
	p.collector.RecordLLMRequest(p.Provider.Name(), req.Model, status, time.Since(started), promptTokens, completionTokens)
	return resp, err
}

// stageMetricsListener records per-stage metrics from the event stream.
func stageMetricsListener(collector *metrics.Collector) notify.ListenerFunc {
	return func(event types.ProgressEvent) {
		switch event.Type {
		case types.EventStageCompleted:
			collector.RecordStageAttempt(event.Stage, event.Score, time.Duration(event.DurationSecs*float64(time.Second)))
		case types.EventValidationWarning:
			collector.RecordGateRetry(event.Stage)
		}
	}
}

// Start brings up the HTTP and metrics servers.
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("redis_enabled", s.cfg.Redis.Enabled),
		zap.Bool("history_enabled", s.cfg.Database.Enabled),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/workflows", s.workflowHandler.HandleSubmit)
	mux.HandleFunc("GET /api/workflows", s.workflowHandler.HandleList)
	mux.HandleFunc("GET /api/workflows/{run_id}", s.workflowHandler.HandleGet)
	mux.HandleFunc("DELETE /api/workflows/{run_id}", s.workflowHandler.HandleCancel)

	// dashboard event stream
	mux.Handle("GET /ws", s.wsHub)

	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Auth.Enabled {
		skipAuthPaths := []string{"/health", "/ready", "/version", "/ws"}
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger))
	}
	handler := Chain(mux, middlewares...)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.metricsManager.Start()
}

// WaitForShutdown blocks until a shutdown signal, then tears everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the servers and waits for active runs to finish.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	// let in-flight runs finish before dropping their transports
	if s.service != nil {
		if err := s.service.Shutdown(ctx); err != nil {
			s.logger.Warn("active runs did not finish before deadline", zap.Error(err))
		}
	}

	if s.wsHub != nil {
		s.wsHub.Close()
	}
	if s.redisPub != nil {
		if err := s.redisPub.Close(); err != nil {
			s.logger.Error("redis publisher close error", zap.Error(err))
		}
	}
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
