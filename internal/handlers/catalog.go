package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lemarcheluxe/backend/internal/catalog"
)

// GetCatalog returns the reference data the listing form is built from
// GET /api/v1/catalog
func (h *Handlers) GetCatalog(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=3600")
	c.JSON(http.StatusOK, gin.H{
		"categories": catalog.Categories,
		"brands":     catalog.Brands,
		"conditions": catalog.Conditions,
		"statuses":   catalog.Statuses,
		"min_images": catalog.MinImages,
		"max_images": catalog.MaxImages,
		"currency":   "UZS",
	})
}
