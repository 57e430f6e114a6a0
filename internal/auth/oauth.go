package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/repository"
	"golang.org/x/oauth2"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleUserInfo is the v2 userinfo response
type GoogleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

type googleUserInfoFetcher func(ctx context.Context, cfg *oauth2.Config, code string) (*GoogleUserInfo, error)

// GoogleAuthURL returns the consent URL and the state the callback must echo
func (s *Service) GoogleAuthURL() (url, state string, err error) {
	if s.google == nil {
		return "", "", ErrOAuthNotConfigured
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}
	state = base64.RawURLEncoding.EncodeToString(b)
	return s.google.AuthCodeURL(state, oauth2.AccessTypeOnline), state, nil
}

// HandleGoogleCallback exchanges the code and signs the user in. Accounts are
// matched by Google id first, then linked by verified email.
func (s *Service) HandleGoogleCallback(ctx context.Context, code string) (*AuthResponse, error) {
	if s.google == nil {
		return nil, ErrOAuthNotConfigured
	}
	info, err := s.userInfo(ctx, s.google, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get Google user info: %w", err)
	}
	profile, err := s.findOrCreateGoogleProfile(ctx, info)
	if err != nil {
		return nil, err
	}
	return s.issue(profile)
}

func (s *Service) findOrCreateGoogleProfile(ctx context.Context, info *GoogleUserInfo) (*models.Profile, error) {
	if info.ID == "" || info.Email == "" {
		return nil, errors.New("google user info is missing id or email")
	}

	profile, err := s.profiles.GetProfileByGoogleID(ctx, info.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !info.VerifiedEmail {
		return nil, ErrOAuthEmailUnverified
	}
	email := normalizeEmail(info.Email)

	existing, err := s.profiles.GetProfileByEmail(ctx, email)
	switch {
	case err == nil:
		updates := map[string]interface{}{"google_id": info.ID}
		if existing.AvatarURL == "" && info.Picture != "" {
			updates["avatar_url"] = info.Picture
		}
		if existing.FullName == "" && info.Name != "" {
			updates["full_name"] = info.Name
		}
		linked, err := s.profiles.UpdateProfile(ctx, existing.ID, updates)
		if err != nil {
			return nil, fmt.Errorf("failed to link Google account: %w", err)
		}
		logger.InfoWithFields("Linked Google account", logger.WithUserID(linked.ID))
		return linked, nil
	case !errors.Is(err, repository.ErrProfileNotFound):
		return nil, fmt.Errorf("database error: %w", err)
	}

	googleID := info.ID
	profile = &models.Profile{
		Email:     email,
		FullName:  info.Name,
		AvatarURL: info.Picture,
		GoogleID:  &googleID,
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	logger.InfoWithFields("Account created via Google", logger.WithUserID(profile.ID))
	if s.mailer != nil {
		if err := s.mailer.SendWelcomeEmail(ctx, profile.Email, profile.FullName); err != nil {
			logger.WarnWithFields("Failed to send welcome email", err, logger.WithUserID(profile.ID))
		}
	}
	return profile, nil
}

func fetchGoogleUserInfo(ctx context.Context, cfg *oauth2.Config, code string) (*GoogleUserInfo, error) {
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cfg.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned %d: %s", resp.StatusCode, string(body))
	}

	var info GoogleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return &info, nil
}
