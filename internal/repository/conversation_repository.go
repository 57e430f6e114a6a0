package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/lemarcheluxe/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationRepository handles conversations, their participants and messages
type ConversationRepository interface {
	// Transaction runs fn against a repository bound to one database transaction
	Transaction(ctx context.Context, fn func(tx ConversationRepository) error) error

	CreateConversation(ctx context.Context, conversation *models.Conversation, userIDs []string) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListMemberships(ctx context.Context, userID string) ([]*models.ConversationParticipant, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	OtherParticipant(ctx context.Context, conversationID, userID string) (*models.ConversationParticipant, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	DeleteOrphanConversations(ctx context.Context, createdBefore time.Time) (int64, error)

	CreateMessage(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	LastMessage(ctx context.Context, conversationID string) (*models.Message, error)
	CountUnread(ctx context.Context, conversationID, userID string) (int64, error)
	CountUnreadForUser(ctx context.Context, userID string) (int64, error)
	MarkMessageRead(ctx context.Context, id string) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) ([]*models.Message, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Transaction(ctx context.Context, fn func(tx ConversationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&conversationRepository{db: tx})
	})
}

// CreateConversation inserts the conversation and one participant row per user
func (r *conversationRepository) CreateConversation(ctx context.Context, conversation *models.Conversation, userIDs []string) error {
	if conversation == nil || conversation.ProductID == "" || len(userIDs) == 0 {
		return ErrInvalidInput
	}
	db := r.db.WithContext(ctx)
	if err := db.Omit("Product", "Participants").Create(conversation).Error; err != nil {
		// The listing was deleted between lookup and insert
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return ErrProductNotFound
		}
		return err
	}
	participants := make([]models.ConversationParticipant, 0, len(userIDs))
	for _, id := range userIDs {
		participants = append(participants, models.ConversationParticipant{ConversationID: conversation.ID, UserID: id})
	}
	if err := db.Create(&participants).Error; err != nil {
		return translate(err)
	}
	conversation.Participants = participants
	return nil
}

func (r *conversationRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ListMemberships returns the user's participant rows, oldest first
func (r *conversationRepository) ListMemberships(ctx context.Context, userID string) ([]*models.ConversationParticipant, error) {
	var memberships []*models.ConversationParticipant
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&memberships).Error
	return memberships, err
}

func (r *conversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *conversationRepository) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// OtherParticipant returns the first member that is not userID, or nil when alone
func (r *conversationRepository) OtherParticipant(ctx context.Context, conversationID, userID string) (*models.ConversationParticipant, error) {
	var participant models.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id <> ?", conversationID, userID).
		Order("created_at ASC").
		First(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *conversationRepository) TouchConversation(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", id).Update("updated_at", at).Error
}

// DeleteOrphanConversations removes conversations created before the cutoff
// that have fewer than two participants, along with their rows
func (r *conversationRepository) DeleteOrphanConversations(ctx context.Context, createdBefore time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		members := tx.Model(&models.ConversationParticipant{}).
			Select("conversation_id").
			Group("conversation_id").
			Having("COUNT(*) >= 2")

		var ids []string
		if err := tx.Model(&models.Conversation{}).
			Where("created_at < ?", createdBefore).
			Where("id NOT IN (?)", members).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("conversation_id IN ?", ids).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id IN ?", ids).Delete(&models.ConversationParticipant{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Conversation{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

func (r *conversationRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	if message == nil || message.ConversationID == "" || message.SenderID == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *conversationRepository) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListMessages returns a conversation's messages in ascending creation order
func (r *conversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// LastMessage returns the newest message, or nil for an empty conversation
func (r *conversationRepository) LastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// CountUnread counts unread messages in a conversation not sent by userID
func (r *conversationRepository) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND read = ? AND sender_id <> ?", conversationID, false, userID).
		Count(&count).Error
	return count, err
}

// CountUnreadForUser counts unread messages not sent by userID across all their conversations
func (r *conversationRepository) CountUnreadForUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = messages.conversation_id").
		Where("cp.user_id = ? AND messages.read = ? AND messages.sender_id <> ?", userID, false, userID).
		Count(&count).Error
	return count, err
}

// MarkMessageRead flips read to true and reports whether this call did the flip
func (r *conversationRepository) MarkMessageRead(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND read = ?", id, false).
		Update("read", true)
	return res.RowsAffected > 0, res.Error
}

// MarkConversationRead marks every unread message not sent by userID and
// returns the messages this call transitioned, oldest first. A single
// UPDATE ... RETURNING keeps concurrent callers from reporting the same rows.
func (r *conversationRepository) MarkConversationRead(ctx context.Context, conversationID, userID string) ([]*models.Message, error) {
	var flipped []*models.Message
	err := r.db.WithContext(ctx).Model(&flipped).
		Clauses(clause.Returning{}).
		Where("conversation_id = ? AND read = ? AND sender_id <> ?", conversationID, false, userID).
		Update("read", true).Error
	if err != nil {
		return nil, err
	}
	sort.SliceStable(flipped, func(i, j int) bool {
		return flipped[i].CreatedAt.Before(flipped[j].CreatedAt)
	})
	return flipped, nil
}
