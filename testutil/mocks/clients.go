package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/ticketflow/integrations/confluence"
	"github.com/BaSui01/ticketflow/integrations/jira"
)

// MockDocSearcher is a scripted doc-search client.
type MockDocSearcher struct {
	mu      sync.Mutex
	result  *confluence.Result
	queries []string
}

// NewMockDocSearcher returns a searcher that finds nothing.
func NewMockDocSearcher() *MockDocSearcher {
	return &MockDocSearcher{
		result: &confluence.Result{Success: true, Result: map[string]any{"results": []map[string]any{}}},
	}
}

// WithDocs scripts successful results with the given page titles.
func (m *MockDocSearcher) WithDocs(titles ...string) *MockDocSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]map[string]any, 0, len(titles))
	for _, t := range titles {
		results = append(results, map[string]any{"title": t})
	}
	m.result = &confluence.Result{Success: true, Result: map[string]any{"results": results}}
	return m
}

// WithFailure scripts a categorized failure.
func (m *MockDocSearcher) WithFailure(code string) *MockDocSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = &confluence.Result{Success: false, Error: code}
	return m
}

func (m *MockDocSearcher) Search(ctx context.Context, query string, limit int) *confluence.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	return m.result
}

// Queries returns every query seen so far.
func (m *MockDocSearcher) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.queries))
	copy(out, m.queries)
	return out
}

// MockTracker is a scripted issue tracker client covering both search and
// creation.
type MockTracker struct {
	mu           sync.Mutex
	searchResult *jira.Result
	createResult *jira.Result
	created      int
}

// NewMockTracker returns a tracker with no existing tickets that creates
// PROJ-42 on demand.
func NewMockTracker() *MockTracker {
	return &MockTracker{
		searchResult: &jira.Result{Success: true, Result: map[string]any{"tickets": []map[string]any{}}},
		createResult: &jira.Result{Success: true, Result: map[string]any{
			"ticket_key": "PROJ-42",
			"ticket_url": "https://tracker.example.com/browse/PROJ-42",
		}},
	}
}

// WithTickets scripts existing tickets returned from search.
func (m *MockTracker) WithTickets(keys ...string) *MockTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	tickets := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		tickets = append(tickets, map[string]any{"key": k, "summary": "existing work"})
	}
	m.searchResult = &jira.Result{Success: true, Result: map[string]any{"tickets": tickets}}
	return m
}

// WithSearchFailure scripts a categorized search failure.
func (m *MockTracker) WithSearchFailure(code string) *MockTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchResult = &jira.Result{Success: false, Error: code}
	return m
}

// WithCreateFailure scripts a categorized creation failure.
func (m *MockTracker) WithCreateFailure(code string) *MockTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createResult = &jira.Result{Success: false, Error: code}
	return m
}

func (m *MockTracker) GetTickets(ctx context.Context, jql string, maxResults int) *jira.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchResult
}

func (m *MockTracker) CreateTicket(ctx context.Context, summary, description, issueType, priority string, labels []string) *jira.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	return m.createResult
}

// Created returns how many tickets were created.
func (m *MockTracker) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}
