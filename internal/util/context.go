package util

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/models"
)

// Keys the auth middleware stores on the gin context
const (
	ContextUserID = "user_id"
	ContextUser   = "user"
	ContextToken  = "token"
)

// GetUserFromContext extracts the authenticated profile from the Gin context.
// If the user is not authenticated, it automatically responds with 401 Unauthorized.
func GetUserFromContext(c *gin.Context) (*models.Profile, bool) {
	user, exists := c.Get(ContextUser)
	if !exists {
		RespondUnauthorized(c)
		return nil, false
	}
	profile, ok := user.(*models.Profile)
	if !ok || profile == nil {
		RespondInternalError(c, "invalid user data in context")
		return nil, false
	}
	return profile, true
}

// GetUserIDFromContext extracts the user ID from the Gin context.
// If the user is not authenticated, it automatically responds with 401 Unauthorized.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		RespondUnauthorized(c)
		return "", false
	}
	id, ok := userID.(string)
	if !ok || id == "" {
		RespondInternalError(c, "invalid user ID in context")
		return "", false
	}
	return id, true
}

// GetTokenFromContext returns the raw bearer token of the current request
func GetTokenFromContext(c *gin.Context) string {
	return c.GetString(ContextToken)
}

// BearerToken strips the "Bearer " prefix from an Authorization header value
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
