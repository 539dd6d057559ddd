package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/ruledit/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Enforce same-origin for browser upgrades; non-browser clients send no
	// Origin header.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}
		if rest, ok := strings.CutPrefix(origin, "http://"); ok {
			return rest == r.Host
		}
		if rest, ok := strings.CutPrefix(origin, "https://"); ok {
			return rest == r.Host
		}
		return false
	},
}

// Topics published to session watchers.
const (
	TopicRuleSet = "ruleset"
	TopicClosed  = "closed"
)

// WSMessage is a topic-based message sent to watchers.
type WSMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// wsClient is one connection watching one session.
type wsClient struct {
	conn    *websocket.Conn
	session string
	send    chan []byte
}

// WSManager fans session updates out to watching websocket clients.
type WSManager struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	logger  *logging.Logger
}

// NewWSManager creates an empty manager.
func NewWSManager(logger *logging.Logger) *WSManager {
	return &WSManager{
		clients: make(map[*wsClient]bool),
		logger:  logger,
	}
}

func (m *WSManager) register(c *wsClient) {
	m.mu.Lock()
	m.clients[c] = true
	m.mu.Unlock()
}

func (m *WSManager) unregister(c *wsClient) {
	m.mu.Lock()
	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
	}
	m.mu.Unlock()
}

// Publish sends a message to every client watching session.
func (m *WSManager) Publish(session, topic string, data any) {
	msgBytes, err := json.Marshal(WSMessage{Topic: topic, Data: data})
	if err != nil {
		m.logger.Error("failed to encode websocket message", "topic", topic, "error", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for c := range m.clients {
		if c.session != session {
			continue
		}
		select {
		case c.send <- msgBytes:
		default:
			// Slow client; it will resync from the next message.
		}
	}
}

// CloseSession tells the session's watchers it is gone and disconnects them.
func (m *WSManager) CloseSession(session string) {
	m.Publish(session, TopicClosed, map[string]string{"session_id": session})

	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.clients {
		if c.session == session {
			delete(m.clients, c)
			close(c.send)
		}
	}
}

// Watchers returns the number of clients watching session.
func (m *WSManager) Watchers(session string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for c := range m.clients {
		if c.session == session {
			n++
		}
	}
	return n
}

// readPump discards client messages and unregisters on disconnect.
func (c *wsClient) readPump(m *WSManager) {
	defer func() {
		m.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued messages and keeps the connection alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWatch upgrades to a websocket that receives the session's rendering
// now and after every change.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var snapshot sessionView
	if err := s.sessions.with(id, func(e *sessionEntry) error {
		snapshot = e.view()
		return nil
	}); err != nil {
		s.writeSessionError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "session", id, "error", err)
		return
	}

	c := &wsClient{
		conn:    conn,
		session: id,
		send:    make(chan []byte, 16),
	}
	// The current state goes out first, ahead of any published update.
	if first, err := json.Marshal(WSMessage{Topic: TopicRuleSet, Data: snapshot.update()}); err == nil {
		c.send <- first
	}
	s.ws.register(c)

	go c.writePump()
	go c.readPump(s.ws)
}
