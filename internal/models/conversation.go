package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is a buyer/seller thread about one product
type Conversation struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	ProductID string    `gorm:"type:uuid;not null;index" json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product      *Product                  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

// ConversationParticipant is a membership row; one per (conversation, user)
type ConversationParticipant struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ConversationID string    `gorm:"type:uuid;not null;uniqueIndex:idx_participant_pair" json:"conversation_id"`
	UserID         string    `gorm:"type:uuid;not null;uniqueIndex:idx_participant_pair;index" json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (p *ConversationParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

// Message is a single chat message. Read flips false to true once.
type Message struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ConversationID string    `gorm:"type:uuid;not null;index:idx_messages_conversation_created" json:"conversation_id"`
	SenderID       string    `gorm:"type:uuid;not null;index" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Read           bool      `gorm:"not null;default:false;index" json:"read"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_created" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = generateUUID()
	}
	return nil
}

// ConversationSummary is one row of a user's inbox
type ConversationSummary struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"product_id"`
	Product          *ProductSummary `json:"product,omitempty"`
	OtherParticipant ProfileSummary  `json:"other_participant"`
	LastMessage      *Message        `json:"last_message,omitempty"`
	UnreadCount      int64           `json:"unread_count"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
