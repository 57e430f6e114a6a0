package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lemarcheluxe/backend/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Ping waits for the pong, so a dead peer fails the next ping
	pingPeriod = 30 * time.Second

	// Frames from browsers are small control messages
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// MembershipChecker tells whether a user belongs to a conversation
type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// Client represents a single WebSocket connection
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	UserID string
	Email  string

	// Buffered channel of outbound messages
	send       chan []byte
	sendClosed bool

	members MembershipChecker
	subs    map[string]struct{}

	ConnectedAt time.Time
	LastPingAt  time.Time
	RemoteAddr  string
	UserAgent   string

	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, userID, email string, members MembershipChecker) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		hub:         hub,
		conn:        conn,
		UserID:      userID,
		Email:       email,
		send:        make(chan []byte, sendBufferSize),
		members:     members,
		subs:        make(map[string]struct{}),
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(rate.Limit(config.MaxMessagesPerSecond), config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ReadPump reads client frames until the connection closes
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Debug("Client disconnected normally", logger.WithUserID(c.UserID))
			} else if c.ctx.Err() == nil {
				logger.Log.Warn("Read error for client", logger.WithUserID(c.UserID), zap.Error(err))
				c.hub.metrics.Errors.Add(1)
			}
			return
		}

		if !c.limiter.Allow() {
			c.SendError("rate_limited", "Too many messages, please slow down")
			c.hub.metrics.Errors.Add(1)
			continue
		}
		c.hub.metrics.MessagesReceived.Add(1)

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			c.SendError("invalid_json", "Failed to parse message")
			continue
		}
		c.handleMessage(&message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				// hub closed the channel; flush nothing more
				c.conn.Close(websocket.StatusGoingAway, "closing")
				return
			}

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					logger.Log.Warn("Write error for client", logger.WithUserID(c.UserID), zap.Error(err))
					c.hub.metrics.Errors.Add(1)
				}
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.LastPingAt = time.Now()
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				logger.Log.Debug("Ping failed for client", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) handleMessage(message *Message) {
	switch message.Type {
	case MessageTypePing, "heartbeat":
		c.handlePing(message)
	case MessageTypeSubscribe:
		c.handleSubscribe(message)
	case MessageTypeUnsubscribe:
		c.handleUnsubscribe(message)
	default:
		c.SendError("unknown_type", fmt.Sprintf("Unknown message type: %s", message.Type))
	}
}

func (c *Client) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	var latency int64
	if ping.ClientTime > 0 {
		latency = serverTime - ping.ClientTime
	}

	_ = c.Send(NewReply(message, MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    latency,
	}))
}

func (c *Client) handleSubscribe(message *Message) {
	conversationID, ok := c.conversationID(message)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	member, err := c.members.IsParticipant(ctx, conversationID, c.UserID)
	if err != nil {
		logger.WarnWithFields("Subscription check failed", err,
			logger.WithUserID(c.UserID),
			logger.WithConversationID(conversationID),
		)
		c.SendError("subscribe_failed", "Could not verify conversation membership")
		return
	}
	if !member {
		c.SendError("forbidden", "Not a participant of this conversation")
		return
	}

	c.hub.Subscribe(c, conversationID)
	_ = c.Send(NewReply(message, MessageTypeSubscribed, SubscribePayload{ConversationID: conversationID}))
}

func (c *Client) handleUnsubscribe(message *Message) {
	conversationID, ok := c.conversationID(message)
	if !ok {
		return
	}
	c.hub.Unsubscribe(c, conversationID)
	_ = c.Send(NewReply(message, MessageTypeUnsubscribed, SubscribePayload{ConversationID: conversationID}))
}

// conversationID reads the target from the payload, falling back to the
// top-level conversation_id field
func (c *Client) conversationID(message *Message) (string, bool) {
	var p SubscribePayload
	if message.Payload != nil {
		_ = message.ParsePayload(&p)
	}
	if p.ConversationID == "" {
		p.ConversationID = message.ConversationID
	}
	if p.ConversationID == "" {
		c.SendError("invalid_payload", "conversation_id is required")
		return "", false
	}
	return p.ConversationID, true
}

// Send queues a frame for this client
func (c *Client) Send(message *Message) error {
	if c.IsClosed() {
		return errors.New("client connection closed")
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if !c.enqueue(data) {
		return errors.New("send buffer full")
	}
	return nil
}

func (c *Client) SendError(code, message string) {
	_ = c.Send(NewErrorMessage(code, message))
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) addSubscription(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[conversationID] = struct{}{}
}

func (c *Client) removeSubscription(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, conversationID)
}

func (c *Client) subscriptions() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]struct{}, len(c.subs))
	for id := range c.subs {
		out[id] = struct{}{}
	}
	return out
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// GetInfo returns client information
func (c *Client) GetInfo() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subs := make([]string, 0, len(c.subs))
	for id := range c.subs {
		subs = append(subs, id)
	}
	return ClientInfo{
		UserID:        c.UserID,
		ConnectedAt:   c.ConnectedAt,
		LastPingAt:    c.LastPingAt,
		RemoteAddr:    c.RemoteAddr,
		UserAgent:     c.UserAgent,
		Subscriptions: subs,
	}
}

type ClientInfo struct {
	UserID        string    `json:"user_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastPingAt    time.Time `json:"last_ping_at"`
	RemoteAddr    string    `json:"remote_addr"`
	UserAgent     string    `json:"user_agent"`
	Subscriptions []string  `json:"subscriptions"`
}
