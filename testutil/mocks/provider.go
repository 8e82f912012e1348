// Package mocks holds test doubles shared across packages.
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/ticketflow/llm"
)

// reply is one scripted model answer.
type reply struct {
	text string
	err  error
}

// MockProvider is a scripted llm.Provider. Queued replies are consumed in
// order; once the script runs out, Complete returns the fallback text.
type MockProvider struct {
	mu       sync.Mutex
	script   []reply
	fallback string
	calls    []llm.CompletionRequest
	healthy  bool
}

// NewMockProvider creates a provider whose unscripted replies are "{}".
func NewMockProvider() *MockProvider {
	return &MockProvider{fallback: "{}", healthy: true}
}

// Queue appends a successful reply to the script.
func (m *MockProvider) Queue(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, reply{text: text})
	return m
}

// QueueError appends a failing reply to the script.
func (m *MockProvider) QueueError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, reply{err: err})
	return m
}

// WithFallback sets the reply used once the script is exhausted.
func (m *MockProvider) WithFallback(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = text
	return m
}

// WithHealthy controls the health check result.
func (m *MockProvider) WithHealthy(healthy bool) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	return m
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	text := m.fallback
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		if next.err != nil {
			return nil, next.err
		}
		text = next.text
	}
	return &llm.CompletionResponse{
		Text:             text,
		Model:            req.Model,
		PromptTokens:     10,
		CompletionTokens: 20,
	}, nil
}

func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &llm.HealthStatus{Healthy: m.healthy}, nil
}

// Calls returns a copy of every request seen so far.
func (m *MockProvider) Calls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many Complete calls were made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
