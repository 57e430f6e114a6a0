// Package auth handles sign-up, sign-in, JWT sessions, password reset and
// Google sign-in.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const (
	// MinPasswordLength matches the web client's sign-up form
	MinPasswordLength = 6
	// ResetTokenTTL is how long a password reset link stays valid
	ResetTokenTTL = time.Hour
)

var (
	ErrEmailTaken           = errors.New("an account already exists for this email")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrNoPassword           = errors.New("account has no password, sign in with Google")
	ErrWeakPassword         = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrTokenRevoked         = errors.New("token has been revoked")
	ErrInvalidResetToken    = errors.New("invalid or expired reset token")
	ErrOAuthNotConfigured   = errors.New("google sign-in is not configured")
	ErrOAuthEmailUnverified = errors.New("google account email is not verified")
)

// TokenRevoker remembers signed-out token ids
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Mailer sends the account emails
type Mailer interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, name, resetToken string) error
	SendWelcomeEmail(ctx context.Context, toEmail, name string) error
}

// Claims are the JWT claims issued by the service
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AuthResponse is returned by every successful sign-in
type AuthResponse struct {
	Token     string          `json:"token"`
	User      *models.Profile `json:"user"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// SignUpRequest is the body of POST /auth/signup
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"max=100"`
}

// SignInRequest is the body of POST /auth/signin
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Service implements the authentication operations
type Service struct {
	profiles  repository.ProfileRepository
	resets    repository.PasswordResetRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	revoker   TokenRevoker
	mailer    Mailer
	google    *oauth2.Config
	userInfo  googleUserInfoFetcher
	now       func() time.Time
}

// NewService creates an auth service. Signed-out tokens are remembered in
// process until SetRevoker swaps in a shared store. Email and Google sign-in
// stay disabled until their setters are called.
func NewService(profiles repository.ProfileRepository, resets repository.PasswordResetRepository, jwtSecret []byte, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		profiles:  profiles,
		resets:    resets,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		revoker:   NewLocalRevoker(),
		userInfo:  fetchGoogleUserInfo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetRevoker(r TokenRevoker) {
	if r != nil {
		s.revoker = r
	}
}

func (s *Service) SetMailer(m Mailer) { s.mailer = m }
func (s *Service) SetGoogleConfig(cfg *oauth2.Config) {
	s.google = cfg
}

// SignUp registers an email/password account. An email that already has a
// profile, Google-only included, is rejected; those owners set a password
// through the reset flow.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if len(req.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	_, err := s.profiles.GetProfileByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, repository.ErrProfileNotFound):
		return nil, fmt.Errorf("database error: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	hashStr := string(hash)
	profile := &models.Profile{
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: &hashStr,
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	logger.InfoWithFields("Account created", logger.WithUserID(profile.ID))
	if s.mailer != nil {
		if err := s.mailer.SendWelcomeEmail(ctx, profile.Email, profile.FullName); err != nil {
			logger.WarnWithFields("Failed to send welcome email", err, logger.WithUserID(profile.ID))
		}
	}
	return s.issue(profile)
}

// SignIn checks an email/password pair
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*AuthResponse, error) {
	profile, err := s.profiles.GetProfileByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, repository.ErrProfileNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if profile.PasswordHash == nil {
		return nil, ErrNoPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*profile.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(profile)
}

// SignOut revokes the token for the rest of its lifetime
func (s *Service) SignOut(ctx context.Context, tokenString string) error {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return err
	}
	if claims.ID == "" {
		logger.Log.Warn("Token has no id, cannot revoke", logger.WithUserID(claims.UserID))
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.revoker.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ParseToken verifies the signature and expiry of a token
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateToken parses a token, rejects revoked ones, and loads the profile
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.Profile, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.ID != "" {
		revoked, err := s.revoker.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	profile, err := s.profiles.GetProfile(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return profile, nil
}

// IssueToken signs a session token for an existing profile
func (s *Service) IssueToken(profile *models.Profile) (*AuthResponse, error) {
	return s.issue(profile)
}

func (s *Service) issue(profile *models.Profile) (*AuthResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		UserID: profile.ID,
		Email:  profile.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   profile.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &AuthResponse{Token: token, User: profile, ExpiresAt: expiresAt}, nil
}

// RequestPasswordReset emails a reset link. Unknown emails succeed without
// sending anything. Google-only accounts get a link too, which is how they
// attach a password.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	profile, err := s.profiles.GetProfileByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrProfileNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	reset := &models.PasswordReset{
		UserID:    profile.ID,
		Token:     token,
		ExpiresAt: s.now().Add(ResetTokenTTL),
	}
	if err := s.resets.CreateReset(ctx, reset); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	if s.mailer == nil {
		logger.Log.Warn("Password reset requested but no mailer is configured", logger.WithUserID(profile.ID))
		return nil
	}
	return s.mailer.SendPasswordResetEmail(ctx, profile.Email, profile.FullName, token)
}

// ResetPassword consumes a reset token and sets the new password
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	reset, err := s.resets.GetValidReset(ctx, token, s.now())
	if errors.Is(err, repository.ErrResetTokenNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.resets.MarkUsed(ctx, reset.ID); err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if err := s.profiles.SetPasswordHash(ctx, reset.UserID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	logger.InfoWithFields("Password reset", logger.WithUserID(reset.UserID))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
