package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lemarcheluxe/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository handles all database operations for profiles
type ProfileRepository interface {
	CreateProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfiles(ctx context.Context, ids []string) (map[string]*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetProfileByGoogleID(ctx context.Context, googleID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, id string, updates map[string]interface{}) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	SetPasswordHash(ctx context.Context, id, hash string) error
	SearchProfiles(ctx context.Context, query, excludeID string, limit int) ([]*models.Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) CreateProfile(ctx context.Context, profile *models.Profile) error {
	if profile == nil || profile.Email == "" {
		return ErrInvalidInput
	}
	return translate(r.db.WithContext(ctx).Create(profile).Error)
}

func (r *profileRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfiles loads many profiles at once, keyed by id
func (r *profileRepository) GetProfiles(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var profiles []*models.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

// GetProfileByEmail is case-insensitive
func (r *profileRepository) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", strings.TrimSpace(email)).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) GetProfileByGoogleID(ctx context.Context, googleID string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("google_id = ?", googleID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile applies column updates and stamps updated_at
func (r *profileRepository) UpdateProfile(ctx context.Context, id string, updates map[string]interface{}) (*models.Profile, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(updates)
	if err := translate(res.Error); err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, ErrProfileNotFound
	}
	return r.GetProfile(ctx, id)
}

// UpsertProfile inserts the profile or, on id conflict, overwrites its public fields
func (r *profileRepository) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	if profile == nil || profile.ID == "" || profile.Email == "" {
		return ErrInvalidInput
	}
	profile.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "username", "full_name", "avatar_url", "city", "country", "updated_at"}),
	}).Create(profile).Error
	return translate(err)
}

func (r *profileRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	res := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).
		Updates(map[string]interface{}{"password_hash": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SearchProfiles matches query as a case-insensitive substring of email,
// full name, or username, excluding excludeID
func (r *profileRepository) SearchProfiles(ctx context.Context, query, excludeID string, limit int) ([]*models.Profile, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	q := r.db.WithContext(ctx).
		Where("(LOWER(email) LIKE ? ESCAPE '\\' OR LOWER(full_name) LIKE ? ESCAPE '\\' OR LOWER(username) LIKE ? ESCAPE '\\')", pattern, pattern, pattern)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var profiles []*models.Profile
	if err := q.Order("full_name ASC").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") {
		return ErrDuplicate
	}
	return err
}
