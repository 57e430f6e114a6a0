package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/util"
)

// TokenValidator resolves a bearer token to its profile
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Profile, error)
}

// AuthMiddleware rejects requests without a valid bearer token.
// On success the profile, its id and the raw token are stored on the context.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			util.RespondUnauthorized(c, "no token provided")
			return
		}

		profile, err := tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			util.RespondUnauthorized(c, "invalid or expired token")
			return
		}

		setUser(c, profile, token)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the user when a valid token is present
// and lets anonymous requests through untouched.
func OptionalAuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := util.BearerToken(c.GetHeader("Authorization")); token != "" {
			if profile, err := tokens.ValidateToken(c.Request.Context(), token); err == nil {
				setUser(c, profile, token)
			}
		}
		c.Next()
	}
}

func setUser(c *gin.Context, profile *models.Profile, token string) {
	c.Set(util.ContextUser, profile)
	c.Set(util.ContextUserID, profile.ID)
	c.Set(util.ContextToken, token)
}
