package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/types"
)

// OpenAIProvider calls any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	cfg     config.LLMConfig
	client  *http.Client
	limiter *rate.Limiter
	counter *tokenCounter
	logger  *zap.Logger
}

// NewOpenAIProvider creates a provider from the shared LLM configuration.
// Per-stage timeouts are applied per request, so the http.Client itself
// carries no timeout.
func NewOpenAIProvider(cfg config.LLMConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	return &OpenAIProvider{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		counter: newTokenCounter("gpt-4o-mini"),
		logger:  logger.With(zap.String("component", "llm_provider")),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete issues a chat completion call with the request's own timeout,
// retrying retryable failures with exponential backoff up to the configured
// attempt budget.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if req.Prompt == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty prompt")
	}

	if p.cfg.MaxPromptTokens > 0 {
		if n := p.counter.count(req.System + req.Prompt); n > p.cfg.MaxPromptTokens {
			return nil, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("prompt of %d tokens exceeds budget of %d", n, p.cfg.MaxPromptTokens)).
				WithSuggestions("simplify your request")
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal completion request").WithCause(err)
	}

	backoff := p.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	var lastErr *types.Error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Debug("retrying model call",
				zap.Int("attempt", attempt),
				zap.String("model", req.Model),
				zap.String("error_code", string(lastErr.Code)),
			)
			select {
			case <-ctx.Done():
				return nil, mapTransportError(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, terr := p.dispatch(ctx, req.Model, body)
		if terr == nil {
			return resp, nil
		}
		lastErr = terr
		if !terr.Retryable {
			return nil, terr
		}
	}
	return nil, lastErr
}

// dispatch makes one rate-limited call to the completions endpoint.
func (p *OpenAIProvider) dispatch(ctx context.Context, model string, body []byte) (*CompletionResponse, *types.Error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, mapTransportError(err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build completion request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrorMessage(resp.Body)
		p.logger.Warn("model call failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", model),
			zap.String("message", msg),
		)
		return nil, mapHTTPError(resp.StatusCode, msg)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, types.NewError(types.ErrParse, "decode completion response").WithCause(err)
	}
	if len(decoded.Choices) == 0 {
		return nil, types.NewError(types.ErrParse, "completion response has no choices")
	}

	p.logger.Debug("model call completed",
		zap.String("model", model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("completion_tokens", decoded.Usage.CompletionTokens),
	)

	return &CompletionResponse{
		Text:             decoded.Choices[0].Message.Content,
		Model:            decoded.Model,
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
	}, nil
}

// HealthCheck probes the models listing endpoint.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("health check failed: status=%d", resp.StatusCode)
	}
	return &HealthStatus{Healthy: true, Latency: latency}, nil
}

// mapTransportError normalizes network-level failures. Deadline expiry maps
// to TIMEOUT so the orchestrator can surface it as a stage failure.
func mapTransportError(err error) *types.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "timeout").WithCause(err).WithRetryable(true)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrCancelled, "cancelled").WithCause(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewError(types.ErrTimeout, "timeout").WithCause(err).WithRetryable(true)
	}
	return types.NewError(types.ErrConnection, "connection error").WithCause(err).WithRetryable(true)
}
