// Package realtime pushes session lifecycle events to connected browser
// tabs over WebSocket. Every tab of a browser session observes the same
// session context, so a logout in one tab is reflected in all of them.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/carelink/telehealth-gateway/internal/session"
	"github.com/carelink/telehealth-gateway/pkg/logging"
)

// Event is a session lifecycle notification sent to the browser.
type Event struct {
	Type          string        `json:"type"` // "session", "signed_out", "pong", "error"
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
	Timestamp     string        `json:"timestamp,omitempty"`
}

type inbound struct {
	Type string `json:"type"` // "ping"
}

// Hub manages the WebSocket connections watching session state.
type Hub struct {
	manager *session.Manager
	cookies *session.Cookies
	logger  *logging.Logger

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates a session-event hub.
func NewHub(manager *session.Manager, cookies *session.Cookies, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		manager: manager,
		cookies: cookies,
		logger:  logger,
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades to WebSocket and streams session events.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn, r *http.Request) {
	sid, ok := h.cookies.SessionID(r)
	if !ok {
		_ = websocket.JSON.Send(conn, Event{Type: "error"})
		return
	}

	sessCtx, init := h.manager.ContextFor(sid)
	init.Run(r.Context())

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
	}()

	h.logger.Debug("realtime: connection opened", "session_id", sid)

	// Subscribe delivers the current snapshot immediately, so the tab gets
	// its initial session event from the same channel as later updates.
	updates, cancel := sessCtx.Subscribe()
	defer cancel()

	// Reader goroutine: answers pings and signals when the tab goes away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg inbound
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				_ = websocket.JSON.Send(conn, Event{Type: "pong"})
			}
		}
	}()

	for {
		select {
		case snap := <-updates:
			// A pre-init snapshot is not a decision yet; the first event
			// waits for the restore to settle.
			if !snap.Initialized {
				continue
			}
			if err := websocket.JSON.Send(conn, snapshotEvent(snap)); err != nil {
				return
			}
		case <-closed:
			h.logger.Debug("realtime: connection closed", "session_id", sid)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func snapshotEvent(snap session.Snapshot) Event {
	ev := Event{
		Type:      "session",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if snap.Initialized && snap.Session.Valid(time.Now()) {
		ev.Authenticated = true
		ev.User = snap.Session.User
	} else {
		ev.Type = "signed_out"
	}
	return ev
}

// ConnectionCount reports the active tab count, for the readiness probe.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
