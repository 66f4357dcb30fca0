// Package websocket provides WebSocket infrastructure for real-time change
// notifications. Uses github.com/coder/websocket - the modern, context-aware
// WebSocket library for Go.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studypact/backend/internal/logger"
	"github.com/studypact/backend/internal/metrics"
	"go.uber.org/zap"
)

// Hub maintains the set of active clients grouped by couple. All change
// notifications are couple-scoped; there is no global broadcast surface.
type Hub struct {
	// Registered clients by couple ID for room-scoped messaging
	couples map[string]map[*Client]struct{}

	// Registered clients by user ID for targeted messaging
	users map[string]map[*Client]struct{}

	// All clients
	allClients map[*Client]struct{}

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Couple-scoped fan-out
	coupleCast chan *CoupleMessage

	// Send message to specific user
	unicast chan *UnicastMessage

	// Mutex for client map access
	mu sync.RWMutex

	// Metrics
	metrics *Metrics

	// Shutdown handling
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Message handlers
	handlers map[string]MessageHandler

	// Rate limiter config
	rateLimitConfig RateLimitConfig
}

// Metrics tracks WebSocket statistics
type Metrics struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	// MaxMessagesPerSecond per client
	MaxMessagesPerSecond int
	// BurstSize allows short bursts above the rate
	BurstSize int
	// Window for rate calculation
	Window time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
		Window:               time.Second,
	}
}

// CoupleMessage is a message fanned out to every connection in a couple.
// ExcludeUserID optionally suppresses the echo back to the author.
type CoupleMessage struct {
	CoupleID      string
	ExcludeUserID string
	Message       *Message
}

// UnicastMessage is a message targeted at a specific user
type UnicastMessage struct {
	UserID  string
	Message *Message
}

// MessageHandler processes incoming messages of a specific type
type MessageHandler func(client *Client, message *Message) error

// NewHub creates a new Hub instance
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		couples:         make(map[string]map[*Client]struct{}),
		users:           make(map[string]map[*Client]struct{}),
		allClients:      make(map[*Client]struct{}),
		register:        make(chan *Client, 256),
		unregister:      make(chan *Client, 256),
		coupleCast:      make(chan *CoupleMessage, 256),
		unicast:         make(chan *UnicastMessage, 256),
		metrics:         &Metrics{},
		ctx:             ctx,
		cancel:          cancel,
		handlers:        make(map[string]MessageHandler),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// RegisterHandler registers a handler for a specific message type
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
}

// GetHandler returns the handler for a message type
func (h *Hub) GetHandler(msgType string) (MessageHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	logger.Log.Info("websocket hub starting")

	for {
		select {
		case <-h.ctx.Done():
			logger.Log.Info("websocket hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.coupleCast:
			h.sendToCouple(msg)

		case unicast := <-h.unicast:
			h.sendToUser(unicast.UserID, unicast.Message)
		}
	}
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.couples[client.CoupleID] == nil {
		h.couples[client.CoupleID] = make(map[*Client]struct{})
	}
	h.couples[client.CoupleID][client] = struct{}{}

	if h.users[client.UserID] == nil {
		h.users[client.UserID] = make(map[*Client]struct{})
	}
	h.users[client.UserID][client] = struct{}{}

	h.allClients[client] = struct{}{}

	h.metrics.TotalConnections.Add(1)
	h.metrics.ActiveConnections.Add(1)
	metrics.Get().WebSocketConnections.WithLabelValues(client.CoupleID).Inc()

	logger.Log.Info("client connected",
		logger.WithUserID(client.UserID),
		logger.WithCoupleID(client.CoupleID),
		zap.Int64("active", h.metrics.ActiveConnections.Load()))
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; ok {
		delete(h.allClients, client)

		if clients, ok := h.couples[client.CoupleID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.couples, client.CoupleID)
			}
		}

		if clients, ok := h.users[client.UserID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.users, client.UserID)
			}
		}

		// Close the client's send channel
		close(client.send)

		h.metrics.ActiveConnections.Add(-1)
		metrics.Get().WebSocketConnections.WithLabelValues(client.CoupleID).Dec()

		logger.Log.Info("client disconnected",
			logger.WithUserID(client.UserID),
			zap.Int64("active", h.metrics.ActiveConnections.Load()))
	}
}

// sendToCouple fans a message out to every connection in the couple's room
func (h *Hub) sendToCouple(msg *CoupleMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.couples[msg.CoupleID]
	if !ok || len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg.Message)
	if err != nil {
		logger.Log.Error("error marshaling couple message", zap.Error(err))
		return
	}

	for client := range clients {
		if msg.ExcludeUserID != "" && client.UserID == msg.ExcludeUserID {
			continue
		}
		select {
		case client.send <- data:
			h.metrics.MessagesSent.Add(1)
			metrics.Get().WebSocketMessagesTotal.WithLabelValues(msg.Message.Type).Inc()
		default:
			// Client's buffer is full, mark for removal
			h.metrics.ConnectionsDropped.Add(1)
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// sendToUser sends a message to all connections for a specific user
func (h *Hub) sendToUser(userID string, message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.users[userID]
	if !ok || len(clients) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Error("error marshaling unicast message", zap.Error(err))
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
			h.metrics.MessagesSent.Add(1)
			metrics.Get().WebSocketMessagesTotal.WithLabelValues(message.Type).Inc()
		default:
			h.metrics.ConnectionsDropped.Add(1)
			go func(c *Client) {
				h.unregister <- c
			}(client)
		}
	}
}

// SendToCouple queues a message for every connection in a couple's room
func (h *Hub) SendToCouple(coupleID string, message *Message) {
	select {
	case h.coupleCast <- &CoupleMessage{CoupleID: coupleID, Message: message}:
	case <-h.ctx.Done():
	}
}

// SendToCoupleExcept queues a couple message that skips the author's own
// connections
func (h *Hub) SendToCoupleExcept(coupleID, excludeUserID string, message *Message) {
	select {
	case h.coupleCast <- &CoupleMessage{CoupleID: coupleID, ExcludeUserID: excludeUserID, Message: message}:
	case <-h.ctx.Done():
	}
}

// SendToUser sends a message to a specific user (all their connections)
func (h *Hub) SendToUser(userID string, message *Message) {
	select {
	case h.unicast <- &UnicastMessage{UserID: userID, Message: message}:
	case <-h.ctx.Done():
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// IsUserOnline checks if a user has any active connections
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.users[userID]
	return ok && len(clients) > 0
}

// CoupleConnectionCount returns the number of connections in a couple's room
func (h *Hub) CoupleConnectionCount(coupleID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.couples[coupleID])
}

// GetMetrics returns current WebSocket metrics
func (h *Hub) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   h.metrics.TotalConnections.Load(),
		ActiveConnections:  h.metrics.ActiveConnections.Load(),
		MessagesReceived:   h.metrics.MessagesReceived.Load(),
		MessagesSent:       h.metrics.MessagesSent.Load(),
		Errors:             h.metrics.Errors.Load(),
		ConnectionsDropped: h.metrics.ConnectionsDropped.Load(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// String implements Stringer for MetricsSnapshot
func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		m.ActiveConnections, m.TotalConnections,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped,
	)
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// shutdown closes all client connections
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	shutdownMsg := &Message{
		Type:      MessageTypeSystem,
		Payload:   map[string]interface{}{"event": "server_shutdown"},
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
	data, _ := json.Marshal(shutdownMsg)

	for client := range h.allClients {
		select {
		case client.send <- data:
		default:
		}
		close(client.send)
	}

	h.couples = make(map[string]map[*Client]struct{})
	h.users = make(map[string]map[*Client]struct{})
	h.allClients = make(map[*Client]struct{})

	logger.Log.Info("closed connections during shutdown",
		zap.Int64("count", h.metrics.ActiveConnections.Load()))
}

// SetRateLimitConfig updates the rate limiting configuration
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
