package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lemarcheluxe/backend/internal/models"
	"gorm.io/gorm"
)

var ErrResetTokenNotFound = errors.New("reset token not found or expired")

// PasswordResetRepository stores single-use password reset tokens
type PasswordResetRepository interface {
	CreateReset(ctx context.Context, reset *models.PasswordReset) error
	GetValidReset(ctx context.Context, token string, now time.Time) (*models.PasswordReset, error)
	MarkUsed(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type passwordResetRepository struct {
	db *gorm.DB
}

func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) CreateReset(ctx context.Context, reset *models.PasswordReset) error {
	if reset == nil || reset.UserID == "" || reset.Token == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(reset).Error
}

// GetValidReset returns an unused token that has not expired at now
func (r *passwordResetRepository) GetValidReset(ctx context.Context, token string, now time.Time) (*models.PasswordReset, error) {
	var reset models.PasswordReset
	err := r.db.WithContext(ctx).
		Where("token = ? AND used = ? AND expires_at > ?", token, false, now).
		First(&reset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResetTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reset, nil
}

// MarkUsed consumes a token. A token already used reports ErrResetTokenNotFound.
func (r *passwordResetRepository) MarkUsed(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.PasswordReset{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrResetTokenNotFound
	}
	return nil
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ? OR used = ?", before, true).Delete(&models.PasswordReset{})
	return res.RowsAffected, res.Error
}
