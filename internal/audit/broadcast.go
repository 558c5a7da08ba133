// Package audit implements the two external-facing consumers of the
// engine's AuditTick stream: a single-producer/multi-consumer broadcast
// server (Hub) and a scheduled batched archive (see archive.go).
//
// Hub is grounded on the teacher's internal/api.Hub (register/unregister/
// broadcast channels, one goroutine per connected client, drop-and-close
// on a full send buffer) generalized from the teacher's JSON-encoded
// DashboardEvent fanout to msgpack-encoded AuditTicks, matching spec.md §5's
// "single-producer, multi-consumer broadcast; consumers lag independently;
// if a consumer cannot keep up, it is dropped with a warning."
package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"tradingcore/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	clientSendBuf  = 256
)

// Hub fans AuditTicks out to every connected consumer. A consumer that
// cannot keep up with the broadcast channel has its send buffer closed
// and is dropped, per spec.md §5 — it never blocks the producer.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan types.AuditTick
	logger     *slog.Logger
}

// NewHub builds a Hub. Call Run in a goroutine before ServeHTTP accepts
// connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan types.AuditTick, 256),
		logger:     logger.With("component", "audit-hub"),
	}
}

// Run is the hub's single-writer loop: it owns the clients map exclusively,
// so registration, deregistration, and fanout never race each other.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("audit consumer connected", "count", len(h.clients))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("audit consumer disconnected", "count", len(h.clients))

		case tick := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- tick:
				default:
					h.logger.Warn("audit consumer lagging, dropping it", "sequence", tick.Sequence)
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast enqueues tick for fanout. Non-blocking: a full broadcast
// buffer (the Hub's own loop stalled) drops the tick rather than blocking
// the engine's audit producer.
func (h *Hub) Broadcast(tick types.AuditTick) {
	select {
	case h.broadcast <- tick:
	default:
		h.logger.Warn("hub broadcast channel full, dropping tick", "sequence", tick.Sequence)
	}
}

// Pump reads every AuditTick off ticks and broadcasts it until ticks
// closes or done is closed. Run this in a goroutine against Engine.AuditTicks().
func (h *Hub) Pump(done <-chan struct{}, ticks <-chan types.AuditTick) {
	for {
		select {
		case <-done:
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			h.Broadcast(tick)
		}
	}
}

// client is one connected audit consumer.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan types.AuditTick
}

// upgrader defines the same WS upgrade parameters as the teacher's
// internal/api.Handlers.HandleWebSocket. CheckOrigin is left unset, so
// gorilla/websocket's default same-origin check applies; callers of
// ServeHTTP have no way to change it.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeHTTP upgrades the request to a WebSocket and streams AuditTicks to
// it (msgpack-encoded) until the connection drops or the Hub closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("audit websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan types.AuditTick, clientSendBuf)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case tick, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := msgpack.Marshal(tick)
			if err != nil {
				c.hub.logger.Error("failed to encode audit tick", "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
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
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("audit websocket error", "error", err)
			}
			return
		}
		// The audit stream is read-only; any inbound frame is ignored.
	}
}

// snapshotJSON is used only by HandleSnapshot below, for consumers that
// want a one-shot HTTP poll instead of a standing WebSocket connection.
type snapshotJSON struct {
	Tick types.AuditTick `json:"tick"`
}

// HandleSnapshot serves the most recently broadcast tick as JSON, for
// simple polling consumers that don't want a WebSocket.
func (h *Hub) HandleSnapshot(latest func() types.AuditTick) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshotJSON{Tick: latest()})
	}
}
