// Package messaging implements buyer/seller conversations: conversation
// resolution, messages, read state, inbox summaries and unread totals.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/repository"
	"github.com/lemarcheluxe/backend/internal/telemetry"
	"go.uber.org/zap"
)

// MaxMessageLength is counted in runes after trimming
const MaxMessageLength = 4000

var (
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrMessageTooLong       = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	ErrTooFewParticipants   = errors.New("a conversation needs at least two distinct participants")
	ErrMissingID            = errors.New("missing identifier")
	ErrConversationNotFound = repository.ErrConversationNotFound
	ErrMessageNotFound      = repository.ErrMessageNotFound
	ErrProductNotFound      = repository.ErrProductNotFound
	ErrUserNotFound         = repository.ErrProfileNotFound
)

// Service implements the messaging operations
type Service struct {
	conversations repository.ConversationRepository
	profiles      repository.ProfileRepository
	products      repository.ProductRepository
	publisher     Publisher
	unread        UnreadCache
}

// NewService creates a messaging service. Events are dropped and unread
// totals are not cached until SetPublisher and SetUnreadCache are called.
func NewService(conversations repository.ConversationRepository, profiles repository.ProfileRepository, products repository.ProductRepository) *Service {
	return &Service{
		conversations: conversations,
		profiles:      profiles,
		products:      products,
		publisher:     noopPublisher{},
		unread:        noopUnreadCache{},
	}
}

func (s *Service) SetPublisher(p Publisher) {
	if p != nil {
		s.publisher = p
	}
}

func (s *Service) SetUnreadCache(c UnreadCache) {
	if c != nil {
		s.unread = c
	}
}

// FindOrCreateConversation returns the conversation about productID that
// both users belong to, creating it when none exists. created reports
// whether a new conversation was made.
func (s *Service) FindOrCreateConversation(ctx context.Context, productID, userID, otherUserID string) (conv *models.Conversation, created bool, err error) {
	ctx, span := telemetry.GetBusinessEvents().TraceConversationResolve(ctx, productID, userID, otherUserID)
	defer func() { telemetry.EndSpan(span, err) }()

	if productID == "" || userID == "" || otherUserID == "" {
		return nil, false, ErrMissingID
	}
	if userID == otherUserID {
		return nil, false, ErrSelfConversation
	}
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return nil, false, err
	}
	if _, err := s.profiles.GetProfile(ctx, otherUserID); err != nil {
		return nil, false, err
	}

	err = s.conversations.Transaction(ctx, func(tx repository.ConversationRepository) error {
		existing, err := findConversation(ctx, tx, productID, userID, otherUserID)
		if err != nil {
			return err
		}
		if existing != nil {
			conv = existing
			return nil
		}

		conv = &models.Conversation{ProductID: productID}
		if err := tx.CreateConversation(ctx, conv, []string{userID, otherUserID}); err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.conversationCreated(ctx, conv, []string{userID, otherUserID})
	}
	return conv, created, nil
}

// findConversation scans userID's memberships in order, keeps those about
// productID, and returns the first one otherUserID also belongs to
func findConversation(ctx context.Context, tx repository.ConversationRepository, productID, userID, otherUserID string) (*models.Conversation, error) {
	memberships, err := tx.ListMemberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	for _, m := range memberships {
		conv, err := tx.GetConversation(ctx, m.ConversationID)
		if errors.Is(err, repository.ErrConversationNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if conv.ProductID != productID {
			continue
		}
		ok, err := tx.IsParticipant(ctx, conv.ID, otherUserID)
		if err != nil {
			return nil, err
		}
		if ok {
			return conv, nil
		}
	}
	return nil, nil
}

// CreateConversation opens a conversation about productID between the given users
func (s *Service) CreateConversation(ctx context.Context, productID string, participantIDs []string) (*models.Conversation, error) {
	if productID == "" {
		return nil, ErrMissingID
	}
	ids := dedupe(participantIDs)
	if len(ids) < 2 {
		return nil, ErrTooFewParticipants
	}

	conv := &models.Conversation{ProductID: productID}
	err := s.conversations.Transaction(ctx, func(tx repository.ConversationRepository) error {
		return tx.CreateConversation(ctx, conv, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	s.conversationCreated(ctx, conv, ids)
	return conv, nil
}

func (s *Service) conversationCreated(ctx context.Context, conv *models.Conversation, participants []string) {
	metrics.Get().ConversationsCreatedTotal.Inc()
	logger.InfoWithFields("Conversation created",
		logger.WithConversationID(conv.ID),
		logger.WithProductID(conv.ProductID),
	)
	s.publisher.Publish(ctx, Event{
		Type:           EventConversationCreated,
		ConversationID: conv.ID,
		Recipients:     participants,
		Payload:        conv,
	})
}

// participants loads the member list and checks userID belongs to it
func (s *Service) participants(ctx context.Context, conversationID, userID string) ([]string, error) {
	if conversationID == "" || userID == "" {
		return nil, ErrMissingID
	}
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(conv.Participants))
	member := false
	for _, p := range conv.Participants {
		ids = append(ids, p.UserID)
		if p.UserID == userID {
			member = true
		}
	}
	if !member {
		return nil, ErrNotParticipant
	}
	return ids, nil
}

// SendMessage stores a message from senderID. Content is trimmed and the
// message starts unread.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, content string) (msg *models.Message, err error) {
	ctx, span := telemetry.GetBusinessEvents().TraceSendMessage(ctx, conversationID, senderID)
	defer func() { telemetry.EndSpan(span, err) }()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	participants, err := s.participants(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg = &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Read:           false,
	}
	err = s.conversations.Transaction(ctx, func(tx repository.ConversationRepository) error {
		if err := tx.CreateMessage(ctx, msg); err != nil {
			return err
		}
		return tx.TouchConversation(ctx, conversationID, msg.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	metrics.Get().MessagesSentTotal.Inc()
	logger.DebugWithFields("Message sent",
		logger.WithConversationID(conversationID),
		logger.WithMessageID(msg.ID),
		logger.WithUserID(senderID),
	)

	recipients := without(participants, senderID)
	s.unread.InvalidateUnread(ctx, recipients...)
	s.publisher.Publish(ctx, messageCreated(msg, participants))
	for _, id := range recipients {
		s.publishUnreadCount(ctx, id)
	}
	return msg, nil
}

// GetConversationMessages returns the conversation's messages, oldest first
func (s *Service) GetConversationMessages(ctx context.Context, conversationID, userID string) ([]*models.Message, error) {
	if _, err := s.participants(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.conversations.ListMessages(ctx, conversationID)
}

// MarkMessageAsRead marks one message read for the reader. Marking your own
// message is a no-op. A message.read event fires only on the false to true
// transition.
func (s *Service) MarkMessageAsRead(ctx context.Context, messageID, userID string) (*models.Message, error) {
	if messageID == "" {
		return nil, ErrMissingID
	}
	msg, err := s.conversations.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.participants(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	if msg.SenderID == userID || msg.Read {
		return msg, nil
	}

	flipped, err := s.conversations.MarkMessageRead(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark message read: %w", err)
	}
	msg.Read = true
	if flipped {
		s.messagesRead(ctx, userID, []*models.Message{msg})
	}
	return msg, nil
}

// MarkAllMessagesAsRead marks every unread message userID received in the
// conversation and returns how many changed
func (s *Service) MarkAllMessagesAsRead(ctx context.Context, conversationID, userID string) (n int, err error) {
	ctx, span := telemetry.GetBusinessEvents().TraceMarkRead(ctx, conversationID, userID)
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := s.participants(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	flipped, err := s.conversations.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	if len(flipped) > 0 {
		s.messagesRead(ctx, userID, flipped)
	}
	return len(flipped), nil
}

func (s *Service) messagesRead(ctx context.Context, readerID string, msgs []*models.Message) {
	metrics.Get().MessagesReadTotal.Add(float64(len(msgs)))
	for _, m := range msgs {
		s.publisher.Publish(ctx, Event{
			Type:           EventMessageRead,
			ConversationID: m.ConversationID,
			Recipients:     []string{m.SenderID},
			Payload: MessageReadPayload{
				MessageID:      m.ID,
				ConversationID: m.ConversationID,
				ReaderID:       readerID,
			},
		})
	}
	s.unread.InvalidateUnread(ctx, readerID)
	s.publishUnreadCount(ctx, readerID)
}

func (s *Service) publishUnreadCount(ctx context.Context, userID string) {
	count, err := s.GetUnreadCount(ctx, userID)
	if err != nil {
		logger.WarnWithFields("Failed to compute unread count", err, logger.WithUserID(userID))
		return
	}
	s.publisher.Publish(ctx, Event{
		Type:       EventUnreadCount,
		Recipients: []string{userID},
		Payload:    UnreadCountPayload{UserID: userID, Count: count},
	})
}

// GetUnreadCount returns the number of unread messages userID received
// across all conversations
func (s *Service) GetUnreadCount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrMissingID
	}
	if n, ok := s.unread.GetUnread(ctx, userID); ok {
		return n, nil
	}
	n, err := s.conversations.CountUnreadForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.unread.SetUnread(ctx, userID, n)
	return n, nil
}

// GetUserConversations builds the inbox of userID. Each entry carries the
// other participant, the listing, the last message and the unread count.
// Conversations without another participant are skipped. Entries are sorted
// by last message time, newest first, and those without messages come last.
func (s *Service) GetUserConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	if userID == "" {
		return nil, ErrMissingID
	}
	memberships, err := s.conversations.ListMemberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(memberships))
	productIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		other, err := s.conversations.OtherParticipant(ctx, m.ConversationID, userID)
		if err != nil {
			return nil, err
		}
		if other == nil {
			continue
		}
		conv, err := s.conversations.GetConversation(ctx, m.ConversationID)
		if errors.Is(err, repository.ErrConversationNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		summary := models.ConversationSummary{
			ID:               conv.ID,
			ProductID:        conv.ProductID,
			OtherParticipant: models.ProfileSummary{ID: other.UserID},
			CreatedAt:        conv.CreatedAt,
			UpdatedAt:        conv.UpdatedAt,
		}

		profile, err := s.profiles.GetProfile(ctx, other.UserID)
		switch {
		case err == nil:
			summary.OtherParticipant = profile.Summary()
		case errors.Is(err, repository.ErrProfileNotFound):
			logger.Log.Warn("Conversation participant has no profile",
				logger.WithConversationID(conv.ID),
				zap.String("participant_id", other.UserID),
			)
		default:
			return nil, err
		}

		if summary.LastMessage, err = s.conversations.LastMessage(ctx, conv.ID); err != nil {
			return nil, err
		}
		if summary.UnreadCount, err = s.conversations.CountUnread(ctx, conv.ID, userID); err != nil {
			return nil, err
		}

		summaries = append(summaries, summary)
		productIDs = append(productIDs, conv.ProductID)
	}

	products, err := s.products.GetProducts(ctx, dedupe(productIDs))
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		if p, ok := products[summaries[i].ProductID]; ok {
			ps := p.Summary()
			summaries[i].Product = &ps
		}
	}

	SortSummaries(summaries)
	return summaries, nil
}

// SortSummaries orders an inbox by last message time, newest first.
// Conversations without a message keep their relative order at the end.
func SortSummaries(summaries []models.ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessage, summaries[j].LastMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// now is swapped in tests
var now = func() time.Time { return time.Now().UTC() }
