package messaging

import (
	"context"

	"github.com/lemarcheluxe/backend/internal/models"
)

// EventType names a realtime change notification
type EventType string

const (
	// EventMessageCreated mirrors an INSERT on messages
	EventMessageCreated EventType = "message.created"
	// EventMessageRead mirrors an UPDATE where read went from false to true
	EventMessageRead EventType = "message.read"
	// EventConversationCreated mirrors an INSERT on conversations
	EventConversationCreated EventType = "conversation.created"
	// EventUnreadCount carries a user's new total unread count
	EventUnreadCount EventType = "unread.count"
)

// Event is delivered to everyone subscribed to ConversationID and, in
// addition, to every user listed in Recipients
type Event struct {
	Type           EventType   `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Recipients     []string    `json:"-"`
	Payload        interface{} `json:"payload"`
}

// Publisher fans events out to connected clients
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// UnreadCountPayload is the body of an unread.count event
type UnreadCountPayload struct {
	UserID string `json:"user_id"`
	Count  int64  `json:"count"`
}

// MessageReadPayload is the body of a message.read event
type MessageReadPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
}

// UnreadCache stores per-user unread totals
type UnreadCache interface {
	GetUnread(ctx context.Context, userID string) (int64, bool)
	SetUnread(ctx context.Context, userID string, count int64)
	InvalidateUnread(ctx context.Context, userIDs ...string)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) {}

type noopUnreadCache struct{}

func (noopUnreadCache) GetUnread(context.Context, string) (int64, bool) { return 0, false }
func (noopUnreadCache) SetUnread(context.Context, string, int64)        {}
func (noopUnreadCache) InvalidateUnread(context.Context, ...string)     {}

func messageCreated(msg *models.Message, participants []string) Event {
	return Event{
		Type:           EventMessageCreated,
		ConversationID: msg.ConversationID,
		Recipients:     participants,
		Payload:        msg,
	}
}
