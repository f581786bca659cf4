// Package realtime streams fraud alerts to connected reviewers over
// WebSocket so dashboards do not have to poll.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/alert"
)

// normalCloseCodes are WebSocket close codes for an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// maxClients caps concurrent reviewer connections.
const maxClients = 1000

// severityRank orders severities for subscription filtering.
var severityRank = map[alert.Severity]int{
	alert.SeverityLow:      0,
	alert.SeverityMedium:   1,
	alert.SeverityHigh:     2,
	alert.SeverityCritical: 3,
}

// Subscription filters what a reviewer connection receives.
type Subscription struct {
	MinSeverity alert.Severity `json:"min_severity,omitempty"`
	UserIDs     []string       `json:"user_ids,omitempty"`
}

// Client is one reviewer WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// Hub fans fraud alerts out to connected reviewers. Alerts arrive either
// from the shared store's pub/sub channel or, when that is unavailable,
// directly from the dispatcher callback.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *alert.RealTimeAlert
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *zap.Logger
	done       chan struct{}

	totalAlerts atomic.Int64
}

// NewHub creates the reviewer hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *alert.RealTimeAlert, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run drives the hub until the context is cancelled
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("alert hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("alert hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("reviewer connected", zap.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("reviewer disconnected", zap.Int("total", n))

		case rta := <-h.broadcast:
			h.totalAlerts.Add(1)
			payload, err := json.Marshal(rta)
			if err != nil {
				continue
			}
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				if !client.wants(rta) {
					continue
				}
				select {
				case client.send <- payload:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// Deliver queues an alert for fan-out. A full queue drops the alert;
// reviewers can still see it via the REST listing.
func (h *Hub) Deliver(rta *alert.RealTimeAlert) {
	select {
	case h.broadcast <- rta:
	default:
		h.logger.Warn("alert broadcast queue full, dropping", zap.String("alert_id", rta.AlertID.String()))
	}
}

// HandleChannelMessage decodes a shared-store pub/sub payload and queues
// it. Registered as the statestore subscription handler.
func (h *Hub) HandleChannelMessage(payload []byte) {
	var rta alert.RealTimeAlert
	if err := json.Unmarshal(payload, &rta); err != nil {
		h.logger.Warn("malformed alert payload on channel", zap.Error(err))
		return
	}
	h.Deliver(&rta)
}

// wants checks the client's subscription filter.
func (c *Client) wants(rta *alert.RealTimeAlert) bool {
	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()

	if sub.MinSeverity != "" && severityRank[rta.Severity] < severityRank[sub.MinSeverity] {
		return false
	}
	if len(sub.UserIDs) > 0 {
		matched := false
		for _, id := range sub.UserIDs {
			if id == rta.UserID {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// ServeHTTP upgrades the request to a reviewer WebSocket connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump consumes subscription updates and pongs.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

// writePump pushes queued alerts and pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
