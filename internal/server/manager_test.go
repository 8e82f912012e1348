package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = ":0" // random port
	m := NewManager(handler, cfg, zap.NewNop())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestManager_ServesRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	m := newTestManager(t, handler)
	require.NoError(t, m.Start())

	resp, err := http.Get("http://" + m.listener.Addr().String() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_Lifecycle(t *testing.T) {
	t.Run("double start fails", func(t *testing.T) {
		m := newTestManager(t, http.NewServeMux())
		require.NoError(t, m.Start())

		err := m.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already started")
	})

	t.Run("shutdown is idempotent", func(t *testing.T) {
		m := newTestManager(t, http.NewServeMux())
		require.NoError(t, m.Start())

		require.NoError(t, m.Shutdown(context.Background()))
		require.NoError(t, m.Shutdown(context.Background()))
	})

	t.Run("no restart after shutdown", func(t *testing.T) {
		m := newTestManager(t, http.NewServeMux())
		require.NoError(t, m.Start())
		require.NoError(t, m.Shutdown(context.Background()))

		err := m.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")
	})
}

func TestManager_IsRunning(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	assert.True(t, m.IsRunning(), "new manager is not closed")

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_ErrorsChannelStaysQuiet(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())

	ch := m.Errors()
	require.NotNil(t, ch)
	select {
	case err := <-ch:
		t.Fatalf("unexpected server error: %v", err)
	default:
	}
}

func TestManager_Addr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ":9999"
	m := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	assert.Equal(t, ":9999", m.Addr())
}
