package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxMessageSize  = 4 * 1024
	sendBuffer      = 32
)

// conn is one WebSocket client. Only writePump writes data frames, so
// Report never waits on a slow socket.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue queues a frame without blocking. A full buffer drops the frame.
func (c *conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *conn) stop() {
	c.once.Do(func() { close(c.done) })
}

// writePump drains the send buffer and pings the client every pingPeriod.
// A failed write closes the socket, which ends the read loop in Serve.
func (c *conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

// Hub tracks WebSocket connections by session id and pushes events to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*conn]struct{}
	upgrader websocket.Upgrader
	pongWait time.Duration
	logger   *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPongWait sets how long a client may stay silent before it is dropped.
// The hub pings at nine tenths of this interval.
func WithPongWait(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// WithAllowedOrigins restricts which browser origins may connect.
// An empty list accepts any origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[strings.TrimSuffix(o, "/")] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		sessions: make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pongWait: defaultPongWait,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Report implements Reporter. It never blocks: a client whose buffer is
// full misses the event.
func (h *Hub) Report(_ context.Context, sessionID string, ev Event) {
	if sessionID == "" {
		return
	}
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.sessions[sessionID]))
	for c := range h.sessions[sessionID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("Progress event not encodable", "action", ev.Action, "error", err)
		return
	}
	for _, c := range conns {
		if !c.enqueue(data) {
			h.logger.Debug("Progress event dropped", "session_id", sessionID, "action", ev.Action)
		}
	}
}

// Sessions returns the number of sessions with at least one connection.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Connections returns the number of connections for a session.
func (h *Hub) Connections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Serve upgrades the request and keeps the connection registered for
// sessionID until the client goes away or stays silent past the pong wait.
// Inbound frames are liveness pings.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("WebSocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	alive := func() error { return ws.SetReadDeadline(time.Now().Add(h.pongWait)) }
	_ = alive()
	ws.SetPongHandler(func(string) error { return alive() })

	c := newConn(ws)
	h.add(sessionID, c)
	go c.writePump(h.pongWait * 9 / 10)
	h.logger.Info("Progress client connected", "session_id", sessionID)

	defer func() {
		h.remove(sessionID, c)
		c.stop()
		_ = ws.Close()
		h.logger.Info("Progress client disconnected", "session_id", sessionID)
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = alive()
		if strings.TrimSpace(string(msg)) == "ping" {
			c.enqueue([]byte("pong"))
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.sessions {
		for c := range conns {
			c.stop()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			_ = c.ws.Close()
		}
		delete(h.sessions, id)
	}
}

func (h *Hub) add(sessionID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*conn]struct{})
	}
	h.sessions[sessionID][c] = struct{}{}
}

func (h *Hub) remove(sessionID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.sessions[sessionID]
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.sessions, sessionID)
	}
}
