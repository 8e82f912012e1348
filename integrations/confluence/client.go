// Package confluence is a thin client for the documentation search REST API,
// following the same uniform call contract as the tracker client: one
// stateless request per call, failures categorized into result values.
package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
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

// Client calls the documentation search service. Stateless, share-safe.
type Client struct {
	cfg    config.ConfluenceConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a doc-search client.
func NewClient(cfg config.ConfluenceConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "confluence_client")),
	}
}

// Call dispatches an action by name.
func (c *Client) Call(ctx context.Context, action string, params map[string]any) *Result {
	switch action {
	case "search":
		query, _ := params["query"].(string)
		limit, _ := params["limit"].(int)
		return c.Search(ctx, query, limit)
	case "get_content":
		id, _ := params["id"].(string)
		return c.GetContent(ctx, id)
	default:
		return &Result{Success: false, Error: fmt.Sprintf("unknown action: %s", action)}
	}
}

// Search queries the documentation index.
func (c *Client) Search(ctx context.Context, query string, limit int) *Result {
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{}
	q.Set("cql", fmt.Sprintf("text ~ %q", query))
	q.Set("limit", strconv.Itoa(limit))

	resp := c.do(ctx, "/rest/api/content/search?"+q.Encode())
	if !resp.Success {
		return resp
	}

	raw, _ := resp.Result["results"].([]any)
	results := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		page, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		results = append(results, map[string]any{
			"id":    page["id"],
			"title": page["title"],
		})
	}
	return &Result{Success: true, Result: map[string]any{"results": results}}
}

// GetContent fetches one page body by ID.
func (c *Client) GetContent(ctx context.Context, id string) *Result {
	if id == "" {
		return &Result{Success: false, Error: "MISSING_ID"}
	}

	resp := c.do(ctx, "/rest/api/content/"+url.PathEscape(id)+"?expand=body.storage")
	if !resp.Success {
		return resp
	}

	content := ""
	if body, ok := resp.Result["body"].(map[string]any); ok {
		if storage, ok := body["storage"].(map[string]any); ok {
			content, _ = storage["value"].(string)
		}
	}
	return &Result{Success: true, Result: map[string]any{"content": content}}
}

func (c *Client) do(ctx context.Context, path string) *Result {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &Result{Success: false, Error: string(types.ErrInternalError)}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		code := categorizeTransportError(err)
		c.logger.Warn("doc search call failed",
			zap.String("path", path),
			zap.String("error_code", code),
			zap.Error(err),
		)
		return &Result{Success: false, Error: code}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code := categorizeStatus(resp.StatusCode)
		c.logger.Warn("doc search returned non-2xx",
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
