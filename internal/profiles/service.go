// Package profiles serves user profiles: lookup, edits, avatar uploads and
// user search for starting a conversation.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/repository"
	"github.com/lemarcheluxe/backend/internal/search"
	"github.com/lemarcheluxe/backend/internal/storage"
)

const (
	// MinSearchLength is the shortest trimmed query that hits the backend
	MinSearchLength = 3
	SearchLimit     = 20
)

var (
	ErrProfileNotFound = repository.ErrProfileNotFound
	ErrUsernameTaken   = errors.New("username is already taken")
	ErrEmailTaken      = errors.New("an account already exists for this email")
	ErrUploadsDisabled = errors.New("image uploads are not configured")
)

// Searcher is the search index surface used for profiles
type Searcher interface {
	SearchProfiles(ctx context.Context, query, excludeID string, limit int) ([]string, error)
	IndexProfile(ctx context.Context, doc search.ProfileDoc) error
}

// UpdateInput carries the editable profile fields; nil leaves a field unchanged
type UpdateInput struct {
	Username  *string `json:"username" binding:"omitempty,max=30"`
	FullName  *string `json:"full_name" binding:"omitempty,max=100"`
	Email     *string `json:"email" binding:"omitempty,email"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,url"`
	City      *string `json:"city" binding:"omitempty,max=100"`
	Country   *string `json:"country" binding:"omitempty,max=100"`
}

type Service struct {
	profiles repository.ProfileRepository
	uploader storage.ImageUploader
	search   Searcher
}

// NewService creates the profile service. uploader and searcher may be nil.
func NewService(profiles repository.ProfileRepository, uploader storage.ImageUploader, searcher Searcher) *Service {
	return &Service{profiles: profiles, uploader: uploader, search: searcher}
}

func (s *Service) GetCurrentUserProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.profiles.GetProfile(ctx, userID)
}

func (s *Service) GetUserProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	return s.profiles.GetProfile(ctx, id)
}

// SearchUsers finds other users by email, name or username. Short queries
// return an empty list without touching any backend.
func (s *Service) SearchUsers(ctx context.Context, query, currentUserID string) ([]*models.Profile, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchLength {
		return []*models.Profile{}, nil
	}

	if s.search != nil {
		results, err := s.searchIndex(ctx, query, currentUserID)
		if err == nil {
			metrics.Get().SearchRequestsTotal.WithLabelValues(search.IndexProfiles, "elasticsearch").Inc()
			return results, nil
		}
		logger.WarnWithFields("Profile search failed, falling back to database", err)
		metrics.Get().ErrorsTotal.WithLabelValues("search", "profiles").Inc()
	}

	metrics.Get().SearchRequestsTotal.WithLabelValues(search.IndexProfiles, "database").Inc()
	results, err := s.profiles.SearchProfiles(ctx, query, currentUserID, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	return results, nil
}

func (s *Service) searchIndex(ctx context.Context, query, currentUserID string) ([]*models.Profile, error) {
	ids, err := s.search.SearchProfiles(ctx, query, currentUserID, SearchLimit)
	if err != nil {
		return nil, err
	}
	found, err := s.profiles.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	// keep rank order; ids deleted since indexing are dropped
	results := make([]*models.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok && id != currentUserID {
			results = append(results, p)
		}
	}
	return results, nil
}

// UpdateUserProfile applies the non-nil fields of in
func (s *Service) UpdateUserProfile(ctx context.Context, userID string, in UpdateInput) (*models.Profile, error) {
	updates := map[string]interface{}{}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			updates["username"] = nil
		} else {
			updates["username"] = username
		}
	}
	if in.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.AvatarURL != nil {
		updates["avatar_url"] = *in.AvatarURL
	}
	if in.City != nil {
		updates["city"] = strings.TrimSpace(*in.City)
	}
	if in.Country != nil {
		updates["country"] = strings.TrimSpace(*in.Country)
	}

	profile, err := s.profiles.UpdateProfile(ctx, userID, updates)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, s.duplicateField(ctx, userID, updates, err)
	}
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, profile)
	return profile, nil
}

// duplicateField names the unique column an update collided on. Email is
// checked against its owner; otherwise a username in the update is to blame.
func (s *Service) duplicateField(ctx context.Context, userID string, updates map[string]interface{}, err error) error {
	if email, ok := updates["email"].(string); ok {
		owner, lookupErr := s.profiles.GetProfileByEmail(ctx, email)
		if lookupErr == nil && owner.ID != userID {
			return ErrEmailTaken
		}
	}
	if username, ok := updates["username"].(string); ok && username != "" {
		return ErrUsernameTaken
	}
	return err
}

// UpsertProfile inserts profile or overwrites the stored one with the same id
func (s *Service) UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	stored, err := s.profiles.GetProfile(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	s.reindex(ctx, stored)
	return stored, nil
}

// UploadAvatar stores the image and points avatar_url at it
func (s *Service) UploadAvatar(ctx context.Context, userID string, data []byte, filename string) (*models.Profile, error) {
	if s.uploader == nil {
		return nil, ErrUploadsDisabled
	}
	if _, err := s.profiles.GetProfile(ctx, userID); err != nil {
		return nil, err
	}

	result, err := s.uploader.UploadAvatar(ctx, data, userID, filename)
	if err != nil {
		metrics.Get().UploadsTotal.WithLabelValues("avatar", "error").Inc()
		return nil, err
	}
	metrics.Get().UploadsTotal.WithLabelValues("avatar", "ok").Inc()

	url := result.URL
	return s.UpdateUserProfile(ctx, userID, UpdateInput{AvatarURL: &url})
}

func (s *Service) reindex(ctx context.Context, profile *models.Profile) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexProfile(ctx, search.ProfileToDoc(profile)); err != nil {
		logger.WarnWithFields("Failed to index profile", err, logger.WithUserID(profile.ID))
	}
}
