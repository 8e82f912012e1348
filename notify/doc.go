// Package notify broadcasts workflow progress events to observers: the
// dashboard websocket hub, an optional Redis channel, and anything else that
// registers a Listener. Delivery is best-effort and never feeds back into
// pipeline control flow.
package notify
