package search

import (
	"time"

	"github.com/lemarcheluxe/backend/internal/models"
)

// ProductDoc is the indexed shape of a listing
type ProductDoc struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Brand       string    `json:"brand"`
	Model       string    `json:"model"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Condition   string    `json:"condition"`
	Status      string    `json:"status"`
	Location    string    `json:"location"`
	Price       int64     `json:"price"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProfileDoc is the indexed shape of a profile
type ProfileDoc struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Username  string    `json:"username,omitempty"`
	City      string    `json:"city,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func ProductToDoc(p *models.Product) ProductDoc {
	return ProductDoc{
		ID:          p.ID,
		UserID:      p.UserID,
		Title:       p.Title,
		Description: p.Description,
		Brand:       p.Brand,
		Model:       p.Model,
		Category:    p.Category,
		Subcategory: p.Subcategory,
		Condition:   p.Condition,
		Status:      p.Status,
		Location:    p.Location,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt,
	}
}

func ProfileToDoc(p *models.Profile) ProfileDoc {
	doc := ProfileDoc{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		City:      p.City,
		CreatedAt: p.CreatedAt,
	}
	if p.Username != nil {
		doc.Username = *p.Username
	}
	return doc
}
