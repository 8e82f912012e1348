// Package jira is a thin client for the issue tracker REST API. Each call is
// a single stateless request; transport failures are categorized into result
// values and never escape as panics or raw errors.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/types"
)

// Result is the uniform outcome of one API call.
type Result struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Client calls the issue tracker. It holds no per-call state and is safe for
// unsynchronized concurrent use.
type Client struct {
	cfg    config.JiraConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a tracker client.
func NewClient(cfg config.JiraConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "jira_client")),
	}
}

// Call dispatches an action by name. Unknown actions produce a failed Result
// rather than an error, matching the uniform call contract.
func (c *Client) Call(ctx context.Context, action string, params map[string]any) *Result {
	switch action {
	case "get_tickets":
		jql, _ := params["jql"].(string)
		maxResults, _ := params["max_results"].(int)
		return c.GetTickets(ctx, jql, maxResults)
	case "create_ticket":
		summary, _ := params["summary"].(string)
		description, _ := params["description"].(string)
		issueType, _ := params["issue_type"].(string)
		priority, _ := params["priority"].(string)
		labels, _ := params["labels"].([]string)
		return c.CreateTicket(ctx, summary, description, issueType, priority, labels)
	default:
		return &Result{Success: false, Error: fmt.Sprintf("unknown action: %s", action)}
	}
}

// GetTickets searches for existing tickets matching a JQL query.
func (c *Client) GetTickets(ctx context.Context, jql string, maxResults int) *Result {
	if maxResults <= 0 {
		maxResults = 10
	}
	body := map[string]any{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     []string{"summary", "status", "issuetype"},
	}
	resp := c.do(ctx, http.MethodPost, "/rest/api/2/search", body)
	if !resp.Success {
		return resp
	}

	issues, _ := resp.Result["issues"].([]any)
	tickets := make([]map[string]any, 0, len(issues))
	for _, raw := range issues {
		issue, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		entry := map[string]any{"key": issue["key"]}
		if fields, ok := issue["fields"].(map[string]any); ok {
			entry["summary"] = fields["summary"]
		}
		tickets = append(tickets, entry)
	}
	return &Result{Success: true, Result: map[string]any{"tickets": tickets}}
}

// CreateTicket creates a new issue and returns its key and browse URL.
func (c *Client) CreateTicket(ctx context.Context, summary, description, issueType, priority string, labels []string) *Result {
	if summary == "" {
		return &Result{Success: false, Error: "MISSING_SUMMARY"}
	}

	fields := map[string]any{
		"project":     map[string]any{"key": c.cfg.ProjectKey},
		"summary":     summary,
		"description": description,
		"issuetype":   map[string]any{"name": issueType},
		"priority":    map[string]any{"name": priority},
	}
	if len(labels) > 0 {
		fields["labels"] = labels
	}

	resp := c.do(ctx, http.MethodPost, "/rest/api/2/issue", map[string]any{"fields": fields})
	if !resp.Success {
		return resp
	}

	key, _ := resp.Result["key"].(string)
	if key == "" {
		return &Result{Success: false, Error: "PARSE_ERROR"}
	}
	return &Result{Success: true, Result: map[string]any{
		"ticket_key": key,
		"ticket_url": strings.TrimRight(c.cfg.BaseURL, "/") + "/browse/" + key,
	}}
}

// do issues one HTTP request and folds every failure mode into a Result.
func (c *Client) do(ctx context.Context, method, path string, body map[string]any) *Result {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Result{Success: false, Error: string(types.ErrInternalError)}
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return &Result{Success: false, Error: string(types.ErrInternalError)}
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		code := categorizeTransportError(err)
		c.logger.Warn("tracker call failed",
			zap.String("path", path),
			zap.String("error_code", code),
			zap.Error(err),
		)
		return &Result{Success: false, Error: code}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := categorizeStatus(resp.StatusCode)
		c.logger.Warn("tracker returned non-2xx",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error_code", code),
		)
		return &Result{Success: false, Error: code}
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return &Result{Success: false, Error: string(types.ErrParse)}
	}
	return &Result{Success: true, Result: decoded}
}

func categorizeTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return string(types.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return string(types.ErrCancelled)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return string(types.ErrTimeout)
	}
	return string(types.ErrConnection)
}

func categorizeStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "AUTH_FAILED"
	case status == http.StatusNotFound:
		return string(types.ErrNotFound)
	case status == http.StatusTooManyRequests:
		return string(types.ErrRateLimited)
	case status >= 400 && status < 500:
		return string(types.ErrInvalidRequest)
	default:
		return string(types.ErrUpstreamError)
	}
}
