package llm

import (
	"context"
	"time"
)

// CompletionRequest is a single text-completion call with stage-specific
// model parameters.
type CompletionRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Prompt      string        `json:"prompt"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// CompletionResponse carries the model's text plus usage accounting.
type CompletionResponse struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
}

// HealthStatus reports the outcome of a provider health probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the hosted model client used by every stage processor.
// Implementations must be safe for unsynchronized concurrent use.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
