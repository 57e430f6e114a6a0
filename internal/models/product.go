package models

import (
	"time"

	"gorm.io/gorm"
)

// Product is a secondhand listing. Price is in UZS.
type Product struct {
	ID          string      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title       string      `gorm:"not null" json:"title"`
	Category    string      `gorm:"not null;index" json:"category"`
	Subcategory string      `json:"subcategory"`
	Brand       string      `gorm:"not null;index" json:"brand"`
	Model       string      `json:"model"`
	Condition   string      `gorm:"not null" json:"condition"`
	Description string      `gorm:"type:text" json:"description"`
	Price       int64       `gorm:"not null" json:"price"`
	Location    string      `json:"location"`
	Negotiable  bool        `gorm:"not null;default:false" json:"negotiable"`
	Images      StringArray `gorm:"type:jsonb" json:"images"`
	Status      string      `gorm:"not null;index" json:"status"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Seller *Profile `gorm:"foreignKey:UserID" json:"seller,omitempty"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

// ProductSummary is the listing preview shown in a conversation
type ProductSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Brand  string `json:"brand"`
	Price  int64  `json:"price"`
	Image  string `json:"image,omitempty"`
	Status string `json:"status"`
}

// Summary returns the listing preview, with the first image as thumbnail
func (p *Product) Summary() ProductSummary {
	s := ProductSummary{ID: p.ID, Title: p.Title, Brand: p.Brand, Price: p.Price, Status: p.Status}
	if len(p.Images) > 0 {
		s.Image = p.Images[0]
	}
	return s
}
