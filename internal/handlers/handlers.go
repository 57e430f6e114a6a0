package handlers

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/auth"
	"github.com/lemarcheluxe/backend/internal/messaging"
	"github.com/lemarcheluxe/backend/internal/products"
	"github.com/lemarcheluxe/backend/internal/profiles"
	"github.com/lemarcheluxe/backend/internal/websocket"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker func(ctx context.Context) error

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	auth      auth.AuthServiceInterface
	profiles  *profiles.Service
	products  *products.Service
	messaging *messaging.Service
	wsHandler *websocket.Handler

	// OAuth callbacks redirect here with the session token in the fragment
	frontendURL  string
	secureCookie bool

	healthMu sync.RWMutex
	health   map[string]HealthChecker
}

// NewHandlers creates a new handlers instance
func NewHandlers(authService auth.AuthServiceInterface, profileService *profiles.Service, productService *products.Service, messagingService *messaging.Service) *Handlers {
	registerValidators()
	return &Handlers{
		auth:      authService,
		profiles:  profileService,
		products:  productService,
		messaging: messagingService,
		health:    make(map[string]HealthChecker),
	}
}

// SetWebSocketHandler sets the WebSocket handler for real-time notifications
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// SetFrontendURL makes the Google callback redirect to the web client
func (h *Handlers) SetFrontendURL(url string, secureCookie bool) {
	h.frontendURL = url
	h.secureCookie = secureCookie
}

// AddHealthCheck registers a named dependency probe for /health
func (h *Handlers) AddHealthCheck(name string, check HealthChecker) {
	h.healthMu.Lock()
	defer h.healthMu.Unlock()
	h.health[name] = check
}

// RouteMiddleware is the per-route middleware RegisterRoutes needs
type RouteMiddleware struct {
	RequireAuth  gin.HandlerFunc
	OptionalAuth gin.HandlerFunc
	// AuthLimit throttles the credential endpoints; nil disables it
	AuthLimit gin.HandlerFunc
}

func passThrough(c *gin.Context) { c.Next() }

// RegisterRoutes mounts every API route on api (normally /api/v1)
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup, mw RouteMiddleware) {
	requireAuth, optionalAuth, authLimit := mw.RequireAuth, mw.OptionalAuth, mw.AuthLimit
	if optionalAuth == nil {
		optionalAuth = passThrough
	}
	if authLimit == nil {
		authLimit = passThrough
	}

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", authLimit, h.SignUp)
		authGroup.POST("/signin", authLimit, h.SignIn)
		authGroup.POST("/signout", requireAuth, h.SignOut)
		authGroup.POST("/password-reset", authLimit, h.RequestPasswordReset)
		authGroup.POST("/password-reset/confirm", authLimit, h.ResetPassword)
		authGroup.GET("/google", h.GoogleLogin)
		authGroup.GET("/google/callback", h.GoogleCallback)
	}

	api.GET("/catalog", h.GetCatalog)

	profileGroup := api.Group("/profiles")
	{
		profileGroup.GET("/me", requireAuth, h.GetMyProfile)
		profileGroup.PUT("/me", requireAuth, h.UpdateMyProfile)
		profileGroup.POST("/me/avatar", requireAuth, h.UploadAvatar)
		profileGroup.GET("/search", requireAuth, h.SearchProfiles)
		profileGroup.GET("/:id", h.GetProfile)
	}

	productGroup := api.Group("/products")
	{
		productGroup.GET("", h.ListProducts)
		productGroup.POST("", requireAuth, h.CreateProduct)
		productGroup.POST("/images", requireAuth, h.UploadProductImage)
		productGroup.GET("/:id", optionalAuth, h.GetProduct)
		productGroup.PATCH("/:id/status", requireAuth, h.UpdateProductStatus)
		productGroup.DELETE("/:id", requireAuth, h.DeleteProduct)
	}
	api.GET("/users/:id/products", optionalAuth, h.ListUserProducts)

	conversationGroup := api.Group("/conversations", requireAuth)
	{
		conversationGroup.POST("", h.FindOrCreateConversation)
		conversationGroup.GET("", h.GetConversations)
		conversationGroup.GET("/:id/messages", h.GetConversationMessages)
		conversationGroup.POST("/:id/messages", h.SendMessage)
		conversationGroup.POST("/:id/read", h.MarkConversationRead)
	}

	messageGroup := api.Group("/messages", requireAuth)
	{
		messageGroup.GET("/unread-count", h.GetUnreadCount)
		messageGroup.POST("/:id/read", h.MarkMessageRead)
	}

	if h.wsHandler != nil {
		api.GET("/ws", h.wsHandler.HandleWebSocket)
		api.GET("/ws/metrics", h.wsHandler.HandleMetrics)
	}
}
