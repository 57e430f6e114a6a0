package auth

import (
	"context"

	"github.com/lemarcheluxe/backend/internal/models"
)

// AuthServiceInterface is what the HTTP layer and the realtime gateway need
type AuthServiceInterface interface {
	SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error)
	SignIn(ctx context.Context, req SignInRequest) (*AuthResponse, error)
	SignOut(ctx context.Context, token string) error
	ValidateToken(ctx context.Context, token string) (*models.Profile, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GoogleAuthURL() (url, state string, err error)
	HandleGoogleCallback(ctx context.Context, code string) (*AuthResponse, error)
}

var _ AuthServiceInterface = (*Service)(nil)
