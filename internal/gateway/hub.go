// Package gateway implements the status-streaming WebSocket hub:
// cmd/statusserver subscribes to the Redis channels the status publisher
// writes to (internal/status.Publisher) and fans each message out to
// connected dashboard clients verbatim. The Hub owns the client set and
// the Redis PubSub subscription loop; a Client owns a buffered send
// channel and a write-coalescing writePump/readPump pair.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and the Redis PubSub fan-out that feeds
// them.
type Hub struct {
	rdb      *goredis.Client
	channels []string
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a Hub subscribed to the given Redis Pub/Sub channels.
func NewHub(rdb *goredis.Client, channels []string, log *slog.Logger) *Hub {
	return &Hub{
		rdb:      rdb,
		channels: channels,
		log:      log,
		clients:  make(map[*Client]bool),
	}
}

// Run subscribes to the configured Redis channels and broadcasts every
// message verbatim to all connected clients. Blocks until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, h.channels...)
	defer pubsub.Close()

	h.log.Info("gateway: subscribed to status channels", "channels", h.channels)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(channel string, payload []byte) {
	envelope := append([]byte(`{"channel":"`+channel+`","data":`), payload...)
	envelope = append(envelope, '}')

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			h.log.Warn("gateway: client send buffer full, dropping message")
		}
	}
}

// HandleWS registers an upgraded connection as a client and starts its
// pumps.
func (h *Hub) HandleWS(conn *websocket.Conn) {
	client := &Client{conn: conn, send: make(chan []byte, 64), hub: h}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.log.Info("gateway: client connected", "total", h.ClientCount())

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)
