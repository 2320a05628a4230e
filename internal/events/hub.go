package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ForesightX/internal/agent"
	"ForesightX/internal/observability/alerting"
	"ForesightX/pkg/logger"
)

// Topics broadcast by the hub. Room topics are "room:<id>".
const (
	TopicActions = "actions"
	TopicAlerts  = "alerts"
	TopicTasks   = "tasks"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// RoomTopic returns the topic carrying replies for one room.
func RoomTopic(roomID string) string { return "room:" + roomID }

// Message is the envelope written to WebSocket clients.
type Message struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	At    time.Time       `json:"at"`
}

type clientCommand struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics,omitempty"`
}

// Hub keeps the connected WebSocket clients and broadcasts messages to them.
type Hub struct {
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

var (
	_ agent.Observer    = (*Hub)(nil)
	_ alerting.Notifier = (*Hub)(nil)
)

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Message, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	log := logger.Named("events.hub")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			log.Debug("client connected", "clients", h.ClientCount())
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			log.Debug("client disconnected", "clients", h.ClientCount())
		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Warn("marshal broadcast failed", "error", err)
				continue
			}
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg.Topic) {
					continue
				}
				select {
				case c.send <- data:
				default:
					// slow consumer
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues a message for every client subscribed to topic. It drops the
// message when the broadcast buffer is full rather than block the caller.
func (h *Hub) Publish(topic, kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Named("events.hub").Warn("marshal payload failed", "topic", topic, "error", err)
		return
	}
	select {
	case h.broadcast <- Message{Topic: topic, Type: kind, Data: raw, At: time.Now().UTC()}:
	default:
		logger.Named("events.hub").Warn("broadcast buffer full, dropping message", "topic", topic)
	}
}

// Observe implements agent.Observer. Replies go to the room topic, action
// outcomes additionally to the actions topic.
func (h *Hub) Observe(_ context.Context, event agent.Event) {
	kind := "reply"
	if event.Action != "" && event.Action != "NONE" {
		kind = "action"
		h.Publish(TopicActions, kind, event)
	}
	h.Publish(RoomTopic(event.RoomID), kind, event)
}

// Channel implements alerting.Notifier.
func (h *Hub) Channel() alerting.Channel { return alerting.ChannelWS }

// Notify implements alerting.Notifier by broadcasting on the alerts topic.
func (h *Hub) Notify(_ context.Context, event alerting.Event) error {
	h.Publish(TopicAlerts, "alert", event)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request. Optional "topic" query parameters preset the
// subscriptions, and "room" is shorthand for a room topic.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Named("events.hub").Debug("upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	query := r.URL.Query()
	for _, topic := range query["topic"] {
		c.subscribe(topic)
	}
	for _, room := range query["room"] {
		c.subscribe(RoomTopic(room))
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]bool // nil receives everything
}

func (c *client) wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions == nil || c.subscriptions[topic]
}

func (c *client) subscribe(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]bool)
	}
	for _, t := range topics {
		if t != "" {
			c.subscriptions[t] = true
		}
	}
}

func (c *client) unsubscribe(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subscriptions, t)
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "subscribe":
			c.subscribe(cmd.Topics...)
		case "unsubscribe":
			c.unsubscribe(cmd.Topics...)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
