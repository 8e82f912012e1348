package confluence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ConfluenceConfig{
		BaseURL:  srv.URL,
		APIToken: "token",
		Timeout:  time.Second,
	}, zap.NewNop())
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/content/search", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Query().Get("cql"), "search")

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "123", "title": "Search architecture"},
				{"id": "456", "title": "Catalog indexing"},
			},
		})
	})

	res := c.Search(context.Background(), "product search", 5)
	require.True(t, res.Success)
	results := res.Result["results"].([]map[string]any)
	require.Len(t, results, 2)
	assert.Equal(t, "Search architecture", results[0]["title"])
}

func TestClient_GetContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/content/123", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "123",
			"body": map[string]any{
				"storage": map[string]any{"value": "<p>search design notes</p>"},
			},
		})
	})

	res := c.GetContent(context.Background(), "123")
	require.True(t, res.Success)
	assert.Equal(t, "<p>search design notes</p>", res.Result["content"])
}

func TestClient_GetContent_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	res := c.GetContent(context.Background(), "")
	assert.False(t, res.Success)
	assert.Equal(t, "MISSING_ID", res.Error)
}

func TestClient_Call_Dispatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	})

	res := c.Call(context.Background(), "search", map[string]any{"query": "api docs", "limit": 3})
	assert.True(t, res.Success)

	res = c.Call(context.Background(), "reindex", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown action")
}

func TestClient_ErrorMapping(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		res := c.GetContent(context.Background(), "999")
		assert.False(t, res.Success)
		assert.Equal(t, "NOT_FOUND", res.Error)
	})

	t.Run("rate limited", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		res := c.Search(context.Background(), "query", 1)
		assert.False(t, res.Success)
		assert.Equal(t, "RATE_LIMITED", res.Error)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		t.Cleanup(srv.Close)
		c := NewClient(config.ConfluenceConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, zap.NewNop())

		res := c.Search(context.Background(), "query", 1)
		assert.False(t, res.Success)
		assert.Equal(t, "TIMEOUT", res.Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		})
		res := c.Search(context.Background(), "query", 1)
		assert.False(t, res.Success)
		assert.Equal(t, "PARSE_ERROR", res.Error)
	})
}

func TestClient_CallIdempotent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"id": "1", "title": "fixed"}},
		})
	})

	params := map[string]any{"query": "fixed", "limit": 1}
	first := c.Call(context.Background(), "search", params)
	second := c.Call(context.Background(), "search", params)
	assert.Equal(t, first, second)
}
