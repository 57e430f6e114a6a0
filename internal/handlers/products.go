package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/catalog"
	"github.com/lemarcheluxe/backend/internal/products"
	"github.com/lemarcheluxe/backend/internal/storage"
	"github.com/lemarcheluxe/backend/internal/util"
)

// ListProducts browses published listings
// GET /api/v1/products?q=&category=&brand=&condition=&min_price=&max_price=&limit=&offset=
func (h *Handlers) ListProducts(c *gin.Context) {
	var in products.ListInput
	if err := c.ShouldBindQuery(&in); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := h.products.ListProducts(c.Request.Context(), in)
	if err != nil {
		respondError(c, "products", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateProduct publishes a new listing
// POST /api/v1/products
func (h *Handlers) CreateProduct(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var in products.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, "products", err)
		return
	}
	c.JSON(http.StatusCreated, products.NewListing(product))
}

// UploadProductImage stores one listing photo before the listing is created
// POST /api/v1/products/images (multipart field "file")
func (h *Handlers) UploadProductImage(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		util.RespondValidationError(c, "file", "is required")
		return
	}
	data, err := util.ReadUploadedFile(file, storage.MaxImageSize)
	if err != nil {
		respondError(c, "products", err)
		return
	}

	url, err := h.products.UploadProductImage(c.Request.Context(), userID, data, file.Filename)
	if err != nil {
		respondError(c, "products", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

// GetProduct returns one listing. Hidden listings are only shown to their seller.
// GET /api/v1/products/:id
func (h *Handlers) GetProduct(c *gin.Context) {
	product, err := h.products.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "products", err)
		return
	}
	if !products.IsVisible(product.Status) && product.Status != catalog.StatusSold && c.GetString(util.ContextUserID) != product.UserID {
		util.RespondNotFound(c, "product")
		return
	}
	c.JSON(http.StatusOK, products.NewListing(product))
}

// ListUserProducts returns a seller's listings, newest first
// GET /api/v1/users/:id/products?status=
func (h *Handlers) ListUserProducts(c *gin.Context) {
	sellerID := c.Param("id")
	status := c.Query("status")
	list, err := h.products.ListUserProducts(c.Request.Context(), sellerID, status)
	if err != nil {
		respondError(c, "products", err)
		return
	}

	// Drafts and paused listings stay private to the seller
	if c.GetString(util.ContextUserID) != sellerID {
		visible := list[:0]
		for _, p := range list {
			if products.IsVisible(p.Status) || p.Status == catalog.StatusSold {
				visible = append(visible, p)
			}
		}
		list = visible
	}
	c.JSON(http.StatusOK, gin.H{"products": products.Listings(list)})
}

// UpdateProductStatus moves a listing through its lifecycle
// PATCH /api/v1/products/:id/status
func (h *Handlers) UpdateProductStatus(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required,product_status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	product, err := h.products.UpdateProductStatus(c.Request.Context(), c.Param("id"), userID, req.Status)
	if err != nil {
		respondError(c, "products", err)
		return
	}
	c.JSON(http.StatusOK, products.NewListing(product))
}

// DeleteProduct removes a listing
// DELETE /api/v1/products/:id
func (h *Handlers) DeleteProduct(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if err := h.products.DeleteProduct(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, "products", err)
		return
	}
	c.Status(http.StatusNoContent)
}
