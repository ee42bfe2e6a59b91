package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mintfolio/mintfolio-api/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins (for development)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// Token ids the client filters on; empty means everything
	tokens map[int64]bool
}

type subscription struct {
	client  *Client
	tokenID int64
	add     bool
}

// Hub maintains the set of active clients and broadcasts committed
// market events to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Committed market events from the service layer
	events chan models.MarketEvent

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Per-token filter changes from clients
	subscriptions chan subscription

	log *logrus.Logger
}

// NewHub creates a new hub
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		events:        make(chan models.MarketEvent, 64),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscriptions: make(chan subscription),
		log:           log,
	}
}

// NotifyEvent queues a committed market event for broadcast. It
// implements services.Notifier and never blocks the market path.
func (h *Hub) NotifyEvent(event models.MarketEvent) {
	select {
	case h.events <- event:
	default:
		h.log.Warn("websocket event queue full, dropping event")
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case sub := <-h.subscriptions:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			if sub.add {
				sub.client.tokens[sub.tokenID] = true
			} else {
				delete(sub.client.tokens, sub.tokenID)
			}
		case event := <-h.events:
			h.broadcastEvent(event)
		}
	}
}

// broadcastEvent delivers an event to every client whose filter matches
// it. Clients with no filter receive everything.
func (h *Hub) broadcastEvent(event models.MarketEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("error marshalling market event")
		return
	}

	message, err := json.Marshal(WebSocketMessage{
		Type:    string(event.Type),
		Payload: payload,
	})
	if err != nil {
		h.log.WithError(err).Error("error marshalling websocket message")
		return
	}

	for client := range h.clients {
		if len(client.tokens) > 0 && !client.tokens[event.TokenID] {
			continue
		}
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("websocket read error")
			}
			break
		}

		// Parse the message
		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			c.hub.log.WithError(err).Warn("error parsing websocket message")
			continue
		}

		// Handle different message types
		switch wsMessage.Type {
		case "subscribe", "unsubscribe":
			var tokenID int64
			if err := json.Unmarshal(wsMessage.Payload, &tokenID); err != nil {
				c.hub.log.WithError(err).Warn("error parsing subscription payload")
				continue
			}
			c.hub.subscriptions <- subscription{
				client:  c,
				tokenID: tokenID,
				add:     wsMessage.Type == "subscribe",
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// ServeWs handles WebSocket requests from clients
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.WithError(err).Warn("websocket upgrade failed")
			return
		}

		client := &Client{
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, 256),
			tokens: make(map[int64]bool),
		}
		client.hub.register <- client

		// Send welcome message
		welcomeMsg := WebSocketMessage{
			Type:    "welcome",
			Payload: json.RawMessage(`{"message":"Connected to Mintfolio market feed"}`),
		}
		welcomeBytes, _ := json.Marshal(welcomeMsg)
		client.send <- welcomeBytes

		// Allow collection of memory referenced by the caller by doing all work in
		// new goroutines
		go client.writePump()
		go client.readPump()
	}
}
