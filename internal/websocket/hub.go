package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboard may be served from a different origin in development.
		return true
	},
}

// Client is one connected dashboard consumer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan Event
	hub  *Hub
	ip   string
}

// Hub fans verdict and status events out to connected dashboard clients.
// Slow clients are dropped rather than allowed to backpressure the pipeline.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	logger     *logger.Logger

	mu        sync.RWMutex
	startedAt time.Time
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     log.WithComponent("websocket"),
		startedAt:  time.Now(),
	}
}

// Run dispatches events until the broadcast channel is closed.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.fanOut(event)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("dashboard client connected",
		zap.String("client_id", client.id),
		zap.Int("connected", count))

	h.publish(Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now().UTC(),
		Data:      ConnectionEvent{Action: "connected", ClientID: client.id, ClientIP: client.ip},
	})
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("dashboard client disconnected",
		zap.String("client_id", client.id),
		zap.Int("connected", count))
}

func (h *Hub) fanOut(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Client cannot keep up; its writer will notice the closed
			// channel and tear the connection down.
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// publish enqueues an event without blocking the caller.
func (h *Hub) publish(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("event dropped, broadcast queue full", zap.String("type", string(event.Type)))
	}
}

// PublishVerdict broadcasts a per-prompt verdict to the dashboard.
func (h *Hub) PublishVerdict(sessionID string, result analysis.Result, dryRun bool) {
	h.publish(Event{
		Type:      EventTypeVerdict,
		Timestamp: time.Now().UTC(),
		Data: VerdictEvent{
			SessionID:   sessionID,
			Action:      result.Action,
			ThreatScore: result.ThreatScore,
			Categories:  result.Categories,
			Intent:      result.Intent,
			DryRun:      dryRun,
		},
	})
}

// PublishStatus broadcasts gateway health to the dashboard.
func (h *Hub) PublishStatus(status string, activeSessions int) {
	h.mu.RLock()
	connected := len(h.clients)
	h.mu.RUnlock()

	h.publish(Event{
		Type:      EventTypeSystemStatus,
		Timestamp: time.Now().UTC(),
		Data: SystemStatusEvent{
			Status:           status,
			UptimeSeconds:    int64(time.Since(h.startedAt).Seconds()),
			ActiveSessions:   activeSessions,
			ConnectedClients: connected,
		},
	})
}

// ConnectedClients returns the current dashboard connection count.
func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket dashboard connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan Event, 32),
		hub:  h,
		ip:   r.RemoteAddr,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump discards client messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards events to the peer and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
