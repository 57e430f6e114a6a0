// Package websocket pushes marketplace events to connected browsers.
// Uses github.com/coder/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/messaging"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"go.uber.org/zap"
)

// Hub tracks connections per user and per subscribed conversation
type Hub struct {
	// connections by user id
	clients map[string]map[*Client]struct{}

	allClients map[*Client]struct{}

	// conversation id -> subscribed connections
	subscriptions map[string]map[*Client]struct{}

	events     chan *outbound
	unregister chan *Client

	mu sync.RWMutex

	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

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

// RateLimitConfig bounds inbound frames per client
type RateLimitConfig struct {
	MaxMessagesPerSecond int
	BurstSize            int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

// outbound is a frame addressed to users and/or conversation subscribers
type outbound struct {
	userIDs        []string
	conversationID string
	message        *Message
}

// NewHub creates a hub; call Run to start delivering events
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		allClients:      make(map[*Client]struct{}),
		subscriptions:   make(map[string]map[*Client]struct{}),
		events:          make(chan *outbound, 256),
		unregister:      make(chan *Client, 256),
		metrics:         &Metrics{},
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// Run delivers queued events until Shutdown
func (h *Hub) Run() {
	defer close(h.done)
	logger.Log.Info("WebSocket hub starting")

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case client := <-h.unregister:
			h.Unregister(client)

		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// Register adds a connection. It is visible to Publish as soon as this returns.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}
	h.allClients[client] = struct{}{}

	h.metrics.TotalConnections.Add(1)
	active := h.metrics.ActiveConnections.Add(1)
	metrics.Get().WebSocketConnections.Set(float64(active))

	logger.Log.Debug("Client connected",
		logger.WithUserID(client.UserID),
		zap.Int64("active", active),
	)
}

// Unregister removes a connection and all its subscriptions
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; !ok {
		return
	}
	delete(h.allClients, client)

	if clients, ok := h.clients[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	for conversationID := range client.subscriptions() {
		h.removeSubscription(conversationID, client)
	}

	client.closeSend()

	active := h.metrics.ActiveConnections.Add(-1)
	metrics.Get().WebSocketConnections.Set(float64(active))
	logger.Log.Debug("Client disconnected",
		logger.WithUserID(client.UserID),
		zap.Int64("active", active),
	)
}

// Subscribe routes conversation events to client. Membership is checked by the caller.
func (h *Hub) Subscribe(client *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.allClients[client]; !ok {
		return
	}
	if h.subscriptions[conversationID] == nil {
		h.subscriptions[conversationID] = make(map[*Client]struct{})
	}
	h.subscriptions[conversationID][client] = struct{}{}
	client.addSubscription(conversationID)
}

func (h *Hub) Unsubscribe(client *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeSubscription(conversationID, client)
	client.removeSubscription(conversationID)
}

// removeSubscription expects h.mu held
func (h *Hub) removeSubscription(conversationID string, client *Client) {
	subs, ok := h.subscriptions[conversationID]
	if !ok {
		return
	}
	delete(subs, client)
	if len(subs) == 0 {
		delete(h.subscriptions, conversationID)
	}
}

// Publish implements messaging.Publisher. A connection that is both a
// recipient and a subscriber receives the event once.
func (h *Hub) Publish(ctx context.Context, event messaging.Event) {
	msg := NewMessage(string(event.Type), event.Payload)
	msg.ConversationID = event.ConversationID

	ev := &outbound{
		userIDs:        event.Recipients,
		conversationID: event.ConversationID,
		message:        msg,
	}
	metrics.Get().RealtimeEventsTotal.WithLabelValues(string(event.Type)).Inc()

	select {
	case h.events <- ev:
	case <-ctx.Done():
	case <-h.ctx.Done():
	}
}

// SendToUser sends a frame to every connection of userID
func (h *Hub) SendToUser(userID string, message *Message) {
	select {
	case h.events <- &outbound{userIDs: []string{userID}, message: message}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) deliver(ev *outbound) {
	data, err := json.Marshal(ev.message)
	if err != nil {
		logger.ErrorWithFields("Failed to marshal event", err, zap.String("type", ev.message.Type))
		return
	}

	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, userID := range ev.userIDs {
		for client := range h.clients[userID] {
			targets[client] = struct{}{}
		}
	}
	if ev.conversationID != "" {
		for client := range h.subscriptions[ev.conversationID] {
			targets[client] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for client := range targets {
		if client.enqueue(data) {
			h.metrics.MessagesSent.Add(1)
			continue
		}
		// buffer full: drop the slow connection
		h.metrics.ConnectionsDropped.Add(1)
		select {
		case h.unregister <- client:
		default:
			go h.Unregister(client)
		}
	}
}

// IsUserOnline checks if a user has any active connections
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// GetUserConnectionCount returns the number of connections for a user
func (h *Hub) GetUserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// SubscriberCount returns how many connections watch a conversation
func (h *Hub) SubscriberCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[conversationID])
}

func (h *Hub) GetOnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

// GetMetrics returns current WebSocket metrics
func (h *Hub) GetMetrics() MetricsSnapshot {
	h.mu.RLock()
	subscriptions := len(h.subscriptions)
	h.mu.RUnlock()

	return MetricsSnapshot{
		TotalConnections:    h.metrics.TotalConnections.Load(),
		ActiveConnections:   h.metrics.ActiveConnections.Load(),
		MessagesReceived:    h.metrics.MessagesReceived.Load(),
		MessagesSent:        h.metrics.MessagesSent.Load(),
		Errors:              h.metrics.Errors.Load(),
		ConnectionsDropped:  h.metrics.ConnectionsDropped.Load(),
		ActiveConversations: subscriptions,
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TotalConnections    int64 `json:"total_connections"`
	ActiveConnections   int64 `json:"active_connections"`
	MessagesReceived    int64 `json:"messages_received"`
	MessagesSent        int64 `json:"messages_sent"`
	Errors              int64 `json:"errors"`
	ConnectionsDropped  int64 `json:"connections_dropped"`
	ActiveConversations int   `json:"active_conversations"`
}

func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d conversations=%d",
		m.ActiveConnections, m.TotalConnections,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped, m.ActiveConversations,
	)
}

// Shutdown stops the hub and closes every connection
func (h *Hub) Shutdown(ctx context.Context) error {
	logger.Log.Info("Initiating WebSocket hub shutdown")
	h.cancel()

	select {
	case <-h.done:
		logger.Log.Info("WebSocket hub shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, _ := json.Marshal(NewMessage(MessageTypeSystem, SystemPayload{Event: "server_shutdown"}))
	closed := len(h.allClients)
	for client := range h.allClients {
		client.enqueue(data)
		client.closeSend()
	}

	h.clients = make(map[string]map[*Client]struct{})
	h.allClients = make(map[*Client]struct{})
	h.subscriptions = make(map[string]map[*Client]struct{})
	h.metrics.ActiveConnections.Store(0)
	metrics.Get().WebSocketConnections.Set(0)

	logger.Log.Info("Closed connections during shutdown", zap.Int("count", closed))
}

func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}

var _ messaging.Publisher = (*Hub)(nil)
