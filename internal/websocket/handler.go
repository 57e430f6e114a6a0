package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/models"
	"go.uber.org/zap"
)

// TokenValidator resolves a session token to its profile
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Profile, error)
}

// Handler upgrades authenticated HTTP requests to WebSocket connections
type Handler struct {
	hub            *Hub
	tokens         TokenValidator
	members        MembershipChecker
	originPatterns []string
}

// NewHandler creates the WebSocket endpoint. originPatterns restricts
// browser origins; empty allows same-host requests only.
func NewHandler(hub *Hub, tokens TokenValidator, members MembershipChecker, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		tokens:         tokens,
		members:        members,
		originPatterns: originPatterns,
	}
}

// HandleWebSocket authenticates via ?token= or an Authorization: Bearer header
func (h *Handler) HandleWebSocket(c *gin.Context) {
	user, err := h.authenticateRequest(c)
	if err != nil {
		logger.Log.Debug("WebSocket auth failed", zap.Error(err), logger.WithIP(c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		logger.WarnWithFields("WebSocket upgrade failed", err, logger.WithUserID(user.ID))
		return
	}

	client := NewClient(h.hub, conn, user.ID, user.Email, h.members)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	h.hub.Register(client)

	client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event:   "connected",
		Message: "Bienvenue sur Le Marché Luxe",
		Data: map[string]interface{}{
			"user_id":     user.ID,
			"server_time": time.Now().UTC().UnixMilli(),
			"session_id":  fmt.Sprintf("%p", client),
		},
	}))

	go client.WritePump()
	client.ReadPump()
}

func (h *Handler) authenticateRequest(c *gin.Context) (*models.Profile, error) {
	tokenString := c.Query("token")
	if auth := c.GetHeader("Authorization"); auth != "" {
		tokenString = strings.TrimPrefix(auth, "Bearer ")
	}
	if tokenString == "" {
		return nil, errors.New("no authentication token provided")
	}

	user, err := h.tokens.ValidateToken(c.Request.Context(), tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return user, nil
}

// HandleMetrics returns hub statistics for monitoring
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":    h.hub.GetMetrics(),
		"online_users": len(h.hub.GetOnlineUsers()),
		"timestamp":    time.Now().UTC(),
	})
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
