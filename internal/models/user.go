package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringArray stores a list of strings as a JSON array column
type StringArray []string

// Scan implements the sql.Scanner interface for reading from database
func (a *StringArray) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported StringArray source %T", value)
	}
	if len(raw) == 0 {
		*a = StringArray{}
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(a))
}

// Value implements the driver.Valuer interface for writing to database
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func generateUUID() string {
	return uuid.NewString()
}

// Profile is a marketplace account: buyer and seller are the same entity
type Profile struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	Email     string  `gorm:"uniqueIndex;not null" json:"email"`
	Username  *string `gorm:"uniqueIndex" json:"username"`
	FullName  string  `json:"full_name"`
	AvatarURL string  `json:"avatar_url"`
	City      string  `json:"city"`
	Country   string  `json:"country"`

	PasswordHash *string `gorm:"type:text" json:"-"`
	GoogleID     *string `gorm:"uniqueIndex" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

// DisplayName returns the full name, falling back to the email
func (p *Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Email
}

// ProfileSummary is the slice of a profile exposed next to conversations
type ProfileSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// Summary returns the fields shown in a conversation list
func (p *Profile) Summary() ProfileSummary {
	return ProfileSummary{ID: p.ID, Email: p.Email, FullName: p.FullName, AvatarURL: p.AvatarURL}
}

// PasswordReset is a single-use, time-limited password reset token
type PasswordReset struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"not null;default:false" json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *PasswordReset) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = generateUUID()
	}
	return nil
}
