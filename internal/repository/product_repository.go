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

// ProductFilter narrows a public listing query. Zero values are ignored.
type ProductFilter struct {
	Statuses   []string
	Category   string
	Brand      string
	Condition  string
	MinPrice   int64
	MaxPrice   int64
	Query      string
	ExcludeIDs []string
	Limit      int
	Offset     int
}

// ProductRepository handles all database operations for listings
type ProductRepository interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error)
	ListUserProducts(ctx context.Context, userID, status string) ([]*models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]*models.Product, int64, error)
	UpdateStatus(ctx context.Context, id, status string) error
	DeleteProduct(ctx context.Context, id string) (participants []string, err error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) CreateProduct(ctx context.Context, product *models.Product) error {
	if product == nil || product.UserID == "" {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Omit("Seller").Create(product).Error
}

// GetProduct loads a listing with its seller
func (r *productRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Preload("Seller").Where("id = ?", id).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []*models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// ListUserProducts returns a seller's listings, newest first. Empty status means all.
func (r *productRepository) ListUserProducts(ctx context.Context, userID, status string) ([]*models.Product, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var products []*models.Product
	if err := q.Order("created_at DESC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ListProducts returns one page of listings and the total match count
func (r *productRepository) ListProducts(ctx context.Context, filter ProductFilter) ([]*models.Product, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Brand != "" {
		q = q.Where("brand = ?", filter.Brand)
	}
	if filter.Condition != "" {
		q = q.Where("condition = ?", filter.Condition)
	}
	if filter.MinPrice > 0 {
		q = q.Where("price >= ?", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		q = q.Where("price <= ?", filter.MaxPrice)
	}
	if filter.Query != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Query)) + "%"
		q = q.Where("(LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(brand) LIKE ? ESCAPE '\\' OR LOWER(model) LIKE ? ESCAPE '\\')", pattern, pattern, pattern)
	}
	if len(filter.ExcludeIDs) > 0 {
		q = q.Where("id NOT IN ?", filter.ExcludeIDs)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var products []*models.Product
	err := q.Preload("Seller").Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&products).Error
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *productRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct removes a listing together with the conversations about it
// and their participants and messages, in one transaction. The listing row is
// locked first so no conversation can be opened on it mid-delete. It returns
// the users who took part in the removed conversations.
func (r *productRepository) DeleteProduct(ctx context.Context, id string) (participants []string, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", id).Take(&product).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}

		var conversationIDs []string
		if err := tx.Model(&models.Conversation{}).Where("product_id = ?", id).Pluck("id", &conversationIDs).Error; err != nil {
			return err
		}
		if len(conversationIDs) > 0 {
			if err := tx.Model(&models.ConversationParticipant{}).
				Where("conversation_id IN ?", conversationIDs).
				Distinct().Pluck("user_id", &participants).Error; err != nil {
				return err
			}
			if err := tx.Where("conversation_id IN ?", conversationIDs).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("conversation_id IN ?", conversationIDs).Delete(&models.ConversationParticipant{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", conversationIDs).Delete(&models.Conversation{}).Error; err != nil {
				return err
			}
		}

		res := tx.Where("id = ?", id).Delete(&models.Product{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProductNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participants, nil
}
