package notify

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/types"
)

// Listener receives progress events. Implementations must not block for long;
// a slow listener delays later listeners but never the orchestrator's view of
// its own run state.
type Listener interface {
	Notify(event types.ProgressEvent)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(types.ProgressEvent)

// Notify implements Listener.
func (f ListenerFunc) Notify(event types.ProgressEvent) { f(event) }

// subscriptionCounter generates unique subscription IDs.
var subscriptionCounter int64

// Broadcaster fans events out to all registered listeners. Events published
// from one goroutine are delivered to each listener in publish order; a
// panicking listener is isolated and logged.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[string]Listener
	order     []string
	logger    *zap.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		listeners: make(map[string]Listener),
		logger:    logger.With(zap.String("component", "notifier")),
	}
}

// Subscribe registers a listener and returns its subscription ID.
func (b *Broadcaster) Subscribe(l Listener) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", atomic.AddInt64(&subscriptionCounter, 1))
	b.listeners[id] = l
	b.order = append(b.order, id)
	return id
}

// Unsubscribe removes a listener.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers the event to every listener in subscription order.
func (b *Broadcaster) Publish(event types.ProgressEvent) {
	b.mu.RLock()
	snapshot := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		if l, ok := b.listeners[id]; ok {
			snapshot = append(snapshot, l)
		}
	}
	b.mu.RUnlock()

	for _, l := range snapshot {
		b.deliver(l, event)
	}
}

func (b *Broadcaster) deliver(l Listener, event types.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				zap.Any("recover", r),
				zap.String("event_type", string(event.Type)),
			)
		}
	}()
	l.Notify(event)
}
