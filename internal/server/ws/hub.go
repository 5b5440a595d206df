// Package ws streams raffle observations to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
)

// EventsChannel is the bus channel carrying every raffle event. Clients
// subscribe to per-kind channels derived from it, such as
// "raffle:winner_for_lottery", or to "raffle:*".
const EventsChannel = "raffle:events"

var defaultSubscriptions = []string{"raffle:*"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ChannelFor is the client-facing channel of an event kind.
func ChannelFor(kind domain.EventKind) string {
	return "raffle:" + string(kind)
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// StatusFunc returns the snapshot sent to a client when it connects.
type StatusFunc func() any

// Hub fans events out to connected clients. With a SignalBus it relays the
// bus so every replica's clients see every sale; without one, callers feed
// it through Broadcast.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	status     StatusFunc
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	clock      clockwork.Clock
	startedAt  time.Time
}

type broadcastMsg struct {
	channel string
	data    []byte
}

// Config captures metadata reported to clients on connect.
type Config struct {
	Mode   string
	Status StatusFunc
	Clock  clockwork.Clock
}

// NewHub creates a hub. bus may be nil.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		status:     cfg.Status,
		logger:     logger.With(slog.String("component", "ws")),
		mode:       mode,
		clock:      clock,
		startedAt:  clock.Now(),
	}
}

// Broadcast queues an encoded event for every client subscribed to its kind.
// The message is dropped when the hub is backed up.
func (h *Hub) Broadcast(kind domain.EventKind, data []byte) {
	select {
	case h.broadcast <- broadcastMsg{channel: ChannelFor(kind), data: data}:
	default:
		h.logger.Warn("ws: broadcast queue full, dropping event", slog.String("kind", string(kind)))
	}
}

// Run handles registration and broadcasting until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		go h.relay(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.channel) {
					select {
					case c.send <- msg.data:
					default:
						h.logger.Warn("ws: dropping message for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards bus messages into the broadcast loop.
func (h *Hub) relay(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, EventsChannel)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to events", slog.String("error", err.Error()))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: event subscription closed")
				return
			}
			var head struct {
				Kind domain.EventKind `json:"kind"`
			}
			if err := json.Unmarshal(data, &head); err != nil || head.Kind == "" {
				continue
			}
			h.Broadcast(head.Kind, data)
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	for _, ch := range defaultSubscriptions {
		c.subs[ch] = true
	}

	h.register <- c
	c.sendInitialStatus()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) readPump() {
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// sendInitialStatus lets clients mark the connection healthy before the
// next sale happens.
func (c *client) sendInitialStatus() {
	uptime := int64(c.hub.clock.Since(c.hub.startedAt).Seconds())
	payload := map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": max(uptime, 0),
	}
	if c.hub.status != nil {
		payload["raffle"] = c.hub.status()
	}
	msg, err := json.Marshal(map[string]any{"kind": "status", "payload": payload})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed matches exact channels and trailing-* wildcards.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
