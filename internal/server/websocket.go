package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/approval"
	"github.com/dagbolade/toolguard/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
)

// WSMessage is the frame pushed to connected review consoles.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client is one connected websocket consumer.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan WSMessage
	hub      *Hub
	closedMu sync.Mutex
	closed   bool
}

// Hub fans pending-confirmation updates out to connected clients.
type Hub struct {
	clients      map[*Client]bool
	broadcast    chan WSMessage
	register     chan *Client
	unregister   chan *Client
	mu           sync.RWMutex
	queue        approval.Queue
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

func NewHub(queue approval.Queue) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		queue:      queue,
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.run()
	go h.watchQueue()
	return h
}

func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		log.Info().Msg("shutting down websocket hub")
		h.cancel()

		h.mu.Lock()
		for client := range h.clients {
			client.safeClose()
		}
		h.clients = make(map[*Client]bool)
		h.mu.Unlock()
	})
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Str("client_id", client.id).Int("total", total).Msg("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.safeClose()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Str("client_id", client.id).Int("total", total).Msg("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full, drop the client.
					go func(c *Client) {
						select {
						case h.unregister <- c:
						case <-h.ctx.Done():
						}
					}(client)
				}
			}
			h.mu.RUnlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// watchQueue pushes a fresh pending snapshot whenever the queue signals a
// new hold, plus a periodic refresh for anything missed.
func (h *Hub) watchQueue() {
	notifyCh := h.queue.NotifyChannel()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-notifyCh:
			h.broadcastPending()
		case <-ticker.C:
			h.broadcastPending()
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) broadcastPending() {
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()

	pending, err := h.queue.Pending(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load pending confirmations for broadcast")
		return
	}

	msg := pendingMessage(pending)
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

func pendingMessage(pending []approval.Pending) WSMessage {
	return WSMessage{
		Type: "confirmation_update",
		Data: map[string]any{
			"total":   len(pending),
			"pending": pending,
		},
	}
}

func (c *Client) safeClose() {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	close(c.send)
	_ = c.conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.id).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler upgrades review console connections.
type WSHandler struct {
	hub         *Hub
	authManager *auth.Manager
	upgrader    websocket.Upgrader
}

func NewWSHandler(queue approval.Queue, authManager *auth.Manager) *WSHandler {
	return &WSHandler{
		hub:         NewHub(queue),
		authManager: authManager,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Auth happens via token validation below.
				return true
			},
		},
	}
}

func (h *WSHandler) Hub() *Hub {
	return h.hub
}

// HandleWebSocket authenticates, upgrades, and registers the client. The
// token comes via query parameter because browser websocket clients cannot
// set an Authorization header.
func (h *WSHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		header := c.Request().Header.Get("Authorization")
		if len(header) > 7 && header[:7] == "Bearer " {
			token = header[7:]
		}
	}

	clientID := "anonymous"
	if h.authManager.RequiresAuth() {
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication token")
		}
		user, err := h.authManager.ValidateToken(token)
		if err != nil {
			log.Warn().Err(err).Msg("websocket auth failed")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		clientID = user.ID
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return err
	}

	client := &Client{
		id:   clientID + "-" + time.Now().Format("20060102150405"),
		conn: conn,
		send: make(chan WSMessage, 256),
		hub:  h.hub,
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.ctx.Done():
		_ = conn.Close()
		return nil
	}

	// Initial snapshot so a fresh console shows current holds immediately.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if pending, err := h.hub.queue.Pending(ctx); err == nil {
		client.send <- pendingMessage(pending)
	}

	go client.writePump()
	go client.readPump()

	return nil
}
