// Package products manages marketplace listings.
package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lemarcheluxe/backend/internal/catalog"
	"github.com/lemarcheluxe/backend/internal/logger"
	"github.com/lemarcheluxe/backend/internal/metrics"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/repository"
	"github.com/lemarcheluxe/backend/internal/search"
	"github.com/lemarcheluxe/backend/internal/storage"
	"github.com/lemarcheluxe/backend/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const MaxPageSize = 100

var (
	ErrProductNotFound = repository.ErrProductNotFound
	ErrNotOwner        = errors.New("only the seller can change this listing")
	ErrInvalidPrice    = errors.New("price must be greater than zero")
	ErrTitleRequired   = errors.New("title is required")
	ErrImageCount      = fmt.Errorf("a listing needs between %d and %d images", catalog.MinImages, catalog.MaxImages)
	ErrUploadsDisabled = errors.New("image uploads are not configured")
)

// Searcher is the search index surface used for listings
type Searcher interface {
	IndexProduct(ctx context.Context, doc search.ProductDoc) error
	DeleteProduct(ctx context.Context, id string) error
	SearchProducts(ctx context.Context, q search.ProductQuery) ([]string, int, error)
}

// UnreadInvalidator drops cached unread counts
type UnreadInvalidator interface {
	InvalidateUnread(ctx context.Context, userIDs ...string)
}

// CreateInput is the listing form
type CreateInput struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Category    string   `json:"category" binding:"required"`
	Subcategory string   `json:"subcategory"`
	Brand       string   `json:"brand" binding:"required"`
	CustomBrand string   `json:"custom_brand"`
	Model       string   `json:"model" binding:"max=200"`
	Condition   string   `json:"condition" binding:"required"`
	Description string   `json:"description" binding:"max=5000"`
	Price       int64    `json:"price" binding:"required"`
	Location    string   `json:"location" binding:"max=200"`
	Negotiable  bool     `json:"negotiable"`
	Images      []string `json:"images"`
	Status      string   `json:"status"`
}

// ListInput holds the public listing query parameters
type ListInput struct {
	Query     string `form:"q"`
	Category  string `form:"category"`
	Brand     string `form:"brand"`
	Condition string `form:"condition" binding:"omitempty,product_condition"`
	MinPrice  int64  `form:"min_price" binding:"gte=0"`
	MaxPrice  int64  `form:"max_price" binding:"gte=0"`
	Limit     int    `form:"limit" binding:"gte=0"`
	Offset    int    `form:"offset" binding:"gte=0"`
}

// ListResult is one page of listings with display prices
type ListResult struct {
	Products []*Listing `json:"products"`
	Total    int64      `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

// Listing is a product as returned to clients
type Listing struct {
	*models.Product
	ConditionLabel string        `json:"condition_label"`
	Prices         catalog.Price `json:"prices"`
}

func NewListing(p *models.Product) *Listing {
	return &Listing{
		Product:        p,
		ConditionLabel: catalog.ConditionLabel(p.Condition),
		Prices:         catalog.ConvertPrice(p.Price),
	}
}

type Service struct {
	products repository.ProductRepository
	uploader storage.ImageUploader
	search   Searcher
	unread   UnreadInvalidator
}

// NewService creates the listing service. uploader and searcher may be nil.
func NewService(products repository.ProductRepository, uploader storage.ImageUploader, searcher Searcher) *Service {
	return &Service{products: products, uploader: uploader, search: searcher}
}

// SetUnreadCache lets DeleteProduct drop the unread counts of users whose
// conversations went away with the listing
func (s *Service) SetUnreadCache(c UnreadInvalidator) {
	if c != nil {
		s.unread = c
	}
}

// CreateProduct validates the form against the catalog and stores the listing
func (s *Service) CreateProduct(ctx context.Context, userID string, in CreateInput) (_ *models.Product, err error) {
	ctx, span := telemetry.GetBusinessEvents().TraceCreateProduct(ctx, userID, in.Category, in.Brand)
	defer func() { telemetry.EndSpan(span, err) }()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if in.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	if err := catalog.ValidateCategory(in.Category, in.Subcategory); err != nil {
		return nil, err
	}
	brand, err := catalog.ResolveBrand(in.Brand, in.CustomBrand)
	if err != nil {
		return nil, err
	}
	if err := catalog.ValidateCondition(in.Condition); err != nil {
		return nil, err
	}
	images := nonEmpty(in.Images)
	if len(images) < catalog.MinImages || len(images) > catalog.MaxImages {
		return nil, ErrImageCount
	}
	status := in.Status
	if status == "" {
		status = catalog.StatusPublished
	}
	if err := catalog.ValidateInitialStatus(status); err != nil {
		return nil, err
	}

	product := &models.Product{
		UserID:      userID,
		Title:       title,
		Category:    in.Category,
		Subcategory: in.Subcategory,
		Brand:       brand,
		Model:       strings.TrimSpace(in.Model),
		Condition:   in.Condition,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Location:    strings.TrimSpace(in.Location),
		Negotiable:  in.Negotiable,
		Images:      models.StringArray(images),
		Status:      status,
	}
	if err := s.products.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	metrics.Get().ProductsCreatedTotal.WithLabelValues(product.Category).Inc()
	logger.InfoWithFields("Product created",
		logger.WithProductID(product.ID),
		logger.WithUserID(userID),
		zap.String("category", product.Category),
	)
	s.reindex(ctx, product)
	return product, nil
}

// UploadProductImage stores one listing photo and returns its public URL
func (s *Service) UploadProductImage(ctx context.Context, userID string, data []byte, filename string) (string, error) {
	if s.uploader == nil {
		return "", ErrUploadsDisabled
	}
	result, err := s.uploader.UploadProductImage(ctx, data, userID, filename)
	if err != nil {
		metrics.Get().UploadsTotal.WithLabelValues("product_image", "error").Inc()
		return "", err
	}
	metrics.Get().UploadsTotal.WithLabelValues("product_image", "ok").Inc()
	return result.URL, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.products.GetProduct(ctx, id)
}

// ListUserProducts returns a seller's listings newest first; status filters
// when non-empty
func (s *Service) ListUserProducts(ctx context.Context, userID, status string) ([]*models.Product, error) {
	if status != "" {
		if err := catalog.ValidateStatus(status); err != nil {
			return nil, err
		}
	}
	return s.products.ListUserProducts(ctx, userID, status)
}

// ListProducts returns visible listings. Text queries go to the search index
// first and fall back to the database.
func (s *Service) ListProducts(ctx context.Context, in ListInput) (*ListResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	in.Query = strings.TrimSpace(in.Query)

	if in.Query != "" {
		var span trace.Span
		ctx, span = telemetry.GetBusinessEvents().TraceSearch(ctx, telemetry.SearchEventAttrs{
			Query:       in.Query,
			Index:       search.IndexProducts,
			FiltersUsed: nonEmpty([]string{in.Category, in.Brand, in.Condition}),
		})
		defer span.End()

		if s.search != nil {
			result, err := s.searchIndex(ctx, in, limit)
			if err == nil {
				metrics.Get().SearchRequestsTotal.WithLabelValues(search.IndexProducts, "elasticsearch").Inc()
				telemetry.RecordSearchResult(span, len(result.Products), false)
				return result, nil
			}
			logger.WarnWithFields("Product search failed, falling back to database", err)
			metrics.Get().ErrorsTotal.WithLabelValues("search", "products").Inc()
		}
		metrics.Get().SearchRequestsTotal.WithLabelValues(search.IndexProducts, "database").Inc()
		telemetry.RecordSearchResult(span, 0, true)
	}

	list, total, err := s.products.ListProducts(ctx, repository.ProductFilter{
		Statuses:  catalog.VisibleStatuses,
		Category:  in.Category,
		Brand:     in.Brand,
		Condition: in.Condition,
		MinPrice:  in.MinPrice,
		MaxPrice:  in.MaxPrice,
		Query:     in.Query,
		Limit:     limit,
		Offset:    in.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &ListResult{Products: Listings(list), Total: total, Limit: limit, Offset: in.Offset}, nil
}

func (s *Service) searchIndex(ctx context.Context, in ListInput, limit int) (*ListResult, error) {
	ids, total, err := s.search.SearchProducts(ctx, search.ProductQuery{
		Query:     in.Query,
		Statuses:  catalog.VisibleStatuses,
		Category:  in.Category,
		Brand:     in.Brand,
		Condition: in.Condition,
		MinPrice:  in.MinPrice,
		MaxPrice:  in.MaxPrice,
		Limit:     limit,
		Offset:    in.Offset,
	})
	if err != nil {
		return nil, err
	}
	found, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	list := make([]*models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			list = append(list, p)
		}
	}
	return &ListResult{Products: Listings(list), Total: int64(total), Limit: limit, Offset: in.Offset}, nil
}

// UpdateProductStatus changes a listing's status; only the seller may do it
func (s *Service) UpdateProductStatus(ctx context.Context, id, userID, status string) (*models.Product, error) {
	product, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := catalog.CanTransition(product.Status, status); err != nil {
		return nil, err
	}
	if err := s.products.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	product.Status = status

	logger.InfoWithFields("Product status changed",
		logger.WithProductID(id),
		zap.String("status", status),
	)
	s.reindex(ctx, product)
	return product, nil
}

// DeleteProduct removes a listing and its stored images; only the seller may do it
func (s *Service) DeleteProduct(ctx context.Context, id, userID string) error {
	product, err := s.owned(ctx, id, userID)
	if err != nil {
		return err
	}
	participants, err := s.products.DeleteProduct(ctx, id)
	if err != nil {
		return err
	}
	if s.unread != nil && len(participants) > 0 {
		s.unread.InvalidateUnread(ctx, participants...)
	}

	if s.uploader != nil {
		for _, url := range product.Images {
			key, ok := s.uploader.KeyFromURL(url)
			if !ok {
				continue
			}
			if err := s.uploader.DeleteFile(ctx, key); err != nil {
				logger.WarnWithFields("Failed to delete listing image", err, logger.WithProductID(id))
			}
		}
	}
	if s.search != nil {
		if err := s.search.DeleteProduct(ctx, id); err != nil {
			logger.WarnWithFields("Failed to remove product from index", err, logger.WithProductID(id))
		}
	}
	logger.InfoWithFields("Product deleted", logger.WithProductID(id), logger.WithUserID(userID))
	return nil
}

func (s *Service) owned(ctx context.Context, id, userID string) (*models.Product, error) {
	product, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.UserID != userID {
		return nil, ErrNotOwner
	}
	return product, nil
}

// reindex keeps the index in step; hidden listings are removed from it
func (s *Service) reindex(ctx context.Context, p *models.Product) {
	if s.search == nil {
		return
	}
	var err error
	if IsVisible(p.Status) {
		err = s.search.IndexProduct(ctx, search.ProductToDoc(p))
	} else {
		err = s.search.DeleteProduct(ctx, p.ID)
	}
	if err != nil {
		logger.WarnWithFields("Failed to sync product to index", err, logger.WithProductID(p.ID))
	}
}

// IsVisible reports whether a listing with this status shows up publicly
func IsVisible(status string) bool {
	for _, s := range catalog.VisibleStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Listings wraps products for the API
func Listings(list []*models.Product) []*Listing {
	out := make([]*Listing, 0, len(list))
	for _, p := range list {
		out = append(out, NewListing(p))
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
