package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/types"
)

func TestHub_PushesEventsToClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	// wait for the server side to register the connection
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Notify(types.NewStageStarted("run-1", "Drafter", "drafting requirements"))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var ev types.ProgressEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, types.EventStageStarted, ev.Type)
	assert.Equal(t, "Drafter", ev.Stage)
	assert.Equal(t, "drafting requirements", ev.ActivityText)
}

func TestHub_DropsDisconnectedClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "bye")

	// pushes after disconnect must neither panic nor leave the client around
	assert.NotPanics(t, func() {
		hub.Notify(types.NewWorkflowStarted("run-1"))
		hub.Notify(types.NewWorkflowStarted("run-2"))
	})
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_NoClientsIsNoop(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.NotPanics(t, func() {
		hub.Notify(types.NewWorkflowStarted("run-1"))
	})
}
