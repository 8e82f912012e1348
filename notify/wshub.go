package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/types"
)

// writeTimeout bounds a single websocket write so one stalled dashboard
// cannot back up event delivery to the others.
const writeTimeout = 5 * time.Second

// wsConn wraps a websocket connection with a write lock, since the
// underlying connection does not support concurrent writes.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Hub pushes progress events to connected dashboard clients. It implements
// Listener so it can be subscribed to a Broadcaster directly.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*wsConn]struct{}
	logger *zap.Logger
}

// NewHub creates an empty websocket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:  make(map[*wsConn]struct{}),
		logger: logger.With(zap.String("component", "ws_hub")),
	}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away. Inbound messages are drained and discarded; the
// dashboard channel is push-only.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // dashboard may be served from another origin
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	c := &wsConn{conn: conn}
	h.register(c)
	defer h.unregister(c)

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Notify implements Listener by pushing the event to every connection.
// Failed connections are dropped.
func (h *Hub) Notify(event types.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal progress event", zap.Error(err))
		return
	}

	h.mu.RLock()
	snapshot := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if err := c.writeJSON(data); err != nil {
			h.logger.Debug("dropping dead websocket client", zap.Error(err))
			h.unregister(c)
			c.conn.Close(websocket.StatusNormalClosure, "write failed")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*wsConn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) register(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	h.logger.Debug("dashboard client connected", zap.Int("clients", len(h.conns)))
}

func (h *Hub) unregister(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}
