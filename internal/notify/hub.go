package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrHubClosed is returned by Hub methods after Close.
var ErrHubClosed = errors.New("notify: hub closed")

const (
	defaultClientBuffer = 32
	defaultWriteTimeout = 5 * time.Second
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithClientBuffer sets how many events may queue per client before it is
// disconnected as too slow. Default: 32.
func WithClientBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOriginPatterns allows cross-origin websocket connections from hosts
// matching the patterns (see websocket.AcceptOptions).
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// Hub broadcasts notifications as JSON [Event] messages to every connected
// websocket client. Mount it on an HTTP path (e.g. /events); it never reads
// application data from clients.
//
// Broadcasting never blocks on a client: each client has a bounded queue
// and is disconnected when it overflows.
type Hub struct {
	buffer  int
	origins []string
	now     func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	events chan Event
	// kick is closed to disconnect the client.
	kick     chan struct{}
	kickOnce sync.Once
}

func (c *client) disconnect() { c.kickOnce.Do(func() { close(c.kick) }) }

var (
	_ Sink         = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// NewHub returns an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer:  defaultClientBuffer,
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client goes away, falls behind or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("notify: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{events: make(chan Event, h.buffer), kick: make(chan struct{})}
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.remove(c)
	slog.Debug("notify: client connected", "remote", r.RemoteAddr)

	// CloseRead discards client messages and cancels ctx once the peer
	// closes the connection.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case ev := <-c.events:
			wctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				slog.Debug("notify: client write failed", "remote", r.RemoteAddr, "err", err)
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-c.kick:
			h.mu.Lock()
			closed := h.closed
			h.mu.Unlock()
			if closed {
				conn.Close(websocket.StatusGoingAway, "shutting down")
			} else {
				conn.Close(websocket.StatusPolicyViolation, "too slow")
			}
			return
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.wg.Done()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Speaking broadcasts an interim event.
func (h *Hub) Speaking(_ context.Context) error {
	return h.Broadcast(Event{Name: EventInterim, Text: SpeakingPayload})
}

// Final broadcasts a final transcription.
func (h *Hub) Final(_ context.Context, text string) error {
	return h.Broadcast(Event{Name: EventFinal, Text: text})
}

// Broadcast queues ev for every client. A zero Time is set to now.
func (h *Hub) Broadcast(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = h.now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	for c := range h.clients {
		select {
		case c.events <- ev:
		default:
			slog.Warn("notify: client too slow, disconnecting", "event", ev.Name)
			delete(h.clients, c)
			c.disconnect()
		}
	}
	return nil
}

// Close disconnects all clients and waits for their handlers to return.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for c := range h.clients {
		c.disconnect()
	}
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}
