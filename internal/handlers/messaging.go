package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/util"
)

// FindOrCreateConversation opens (or reuses) the thread between the caller and
// another user about a product
// POST /api/v1/conversations
func (h *Handlers) FindOrCreateConversation(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		ProductID   string `json:"product_id" binding:"required"`
		OtherUserID string `json:"other_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	conv, created, err := h.messaging.FindOrCreateConversation(c.Request.Context(), req.ProductID, userID, req.OtherUserID)
	if err != nil {
		respondError(c, "messaging", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

// GetConversations lists the caller's inbox, most recent activity first
// GET /api/v1/conversations
func (h *Handlers) GetConversations(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	summaries, err := h.messaging.GetUserConversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "messaging", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// GetConversationMessages returns a thread oldest first
// GET /api/v1/conversations/:id/messages
func (h *Handlers) GetConversationMessages(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	msgs, err := h.messaging.GetConversationMessages(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, "messaging", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage posts a message to a thread
// POST /api/v1/conversations/:id/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	msg, err := h.messaging.SendMessage(c.Request.Context(), c.Param("id"), userID, req.Content)
	if err != nil {
		respondError(c, "messaging", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkConversationRead marks every message the caller received in a thread as read
// POST /api/v1/conversations/:id/read
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	n, err := h.messaging.MarkAllMessagesAsRead(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, "messaging", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// MarkMessageRead marks one message as read
// POST /api/v1/messages/:id/read
func (h *Handlers) MarkMessageRead(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	msg, err := h.messaging.MarkMessageAsRead(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, "messaging", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// GetUnreadCount returns the navbar badge count
// GET /api/v1/messages/unread-count
func (h *Handlers) GetUnreadCount(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	count, err := h.messaging.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "messaging", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
