// Package events pushes discovery and operation updates to websocket
// subscribers. Clients land on both channels and can narrow their
// subscription afterwards.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"frameworks/api_compose/pkg/models"
)

// Broadcast channels.
const (
	ChannelProjects   = "projects"
	ChannelOperations = "operations"
)

// Message is one event pushed to clients.
type Message struct {
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// SubscriptionMessage narrows or widens what a client receives.
type SubscriptionMessage struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *logrus.Entry
	mutex      sync.RWMutex
}

// Client is one websocket connection. channels is touched by both the
// read pump and the hub's broadcast loop, so it has its own lock.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *logrus.Entry

	mu       sync.Mutex
	channels []string
}

func NewHub(logger *logrus.Entry) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run drives registration and broadcasting. Call it once, in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Websocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Websocket client disconnected")

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver fans a message out to subscribed clients. Clients that cannot
// keep up are dropped rather than blocking the hub.
func (h *Hub) deliver(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal broadcast message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if !client.subscribed(msg.Channel) {
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

// BroadcastEvent queues an event for delivery. A full queue drops the
// event instead of blocking the caller.
func (h *Hub) BroadcastEvent(eventType, channel string, data map[string]interface{}) {
	message := Message{
		Type:      eventType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- messageBytes:
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

// OperationUpdate pushes an operation status transition.
func (h *Hub) OperationUpdate(op *models.Operation) {
	data := map[string]interface{}{
		"id":           op.ID,
		"project_name": op.ProjectName,
		"action":       op.Action,
		"status":       op.Status,
	}
	if op.Error != "" {
		data["error"] = op.Error
	}
	if op.ExitCode != nil {
		data["exit_code"] = *op.ExitCode
	}
	h.BroadcastEvent("operation_update", ChannelOperations, data)
}

// DiscoveryRefreshed announces that a rescan replaced the snapshot.
func (h *Hub) DiscoveryRefreshed(snap *models.DiscoverySnapshot) {
	h.BroadcastEvent("discovery_refreshed", ChannelProjects, map[string]interface{}{
		"files":      len(snap.Files),
		"conflicts":  len(snap.Conflicts),
		"scanned_at": snap.ScannedAt,
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request and attaches the client to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade websocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		channels: []string{ChannelProjects, ChannelOperations},
		logger:   h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

func (c *Client) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.channels {
		if ch == channel || ch == "all" {
			return true
		}
	}
	return false
}

// readPump consumes subscription changes until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("Websocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}
		c.handleSubscription(&subMsg)
	}
}

// writePump writes queued messages and keeps the connection alive with
// pings. Queued messages are coalesced into one frame where possible.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	c.mu.Lock()
	var confirmType string
	switch msg.Action {
	case "subscribe":
		for _, channel := range msg.Channels {
			if !containsChannel(c.channels, channel) {
				c.channels = append(c.channels, channel)
			}
		}
		confirmType = "subscription_confirmed"

	case "unsubscribe":
		for _, channel := range msg.Channels {
			for i, existing := range c.channels {
				if existing == channel {
					c.channels = append(c.channels[:i], c.channels[i+1:]...)
					break
				}
			}
		}
		confirmType = "unsubscription_confirmed"

	default:
		c.mu.Unlock()
		return
	}
	current := append([]string(nil), c.channels...)
	c.mu.Unlock()

	c.confirm(confirmType, current)
}

func containsChannel(channels []string, channel string) bool {
	for _, ch := range channels {
		if ch == channel {
			return true
		}
	}
	return false
}

func (c *Client) confirm(msgType string, channels []string) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":     msgType,
		"channels": channels,
	})
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal confirmation")
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
